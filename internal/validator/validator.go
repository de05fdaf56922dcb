// Package validator rejects uploads that cannot be a supported image before
// any decoding work is done.
package validator

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Brownie44l1/agrivision-api/internal/domain"
)

type Config struct {
	CheckExtension    bool
	AllowedExtensions []string
	CheckSize         bool
	MaxBytes          int64
	CheckMagicBytes   bool
}

type Validator struct {
	cfg     Config
	allowed map[string]bool
}

func New(cfg Config) *Validator {
	allowed := make(map[string]bool, len(cfg.AllowedExtensions))
	for _, ext := range cfg.AllowedExtensions {
		allowed[normalizeExt(ext)] = true
	}
	return &Validator{cfg: cfg, allowed: allowed}
}

// Check applies the extension and size rules. It never touches content.
func (v *Validator) Check(filename string, size int64) error {
	if v.cfg.CheckExtension {
		ext := normalizeExt(filepath.Ext(filename))
		if ext == "" || !v.allowed[ext] {
			return fmt.Errorf("%q: %w", filepath.Ext(filename), domain.ErrUnsupportedExtension)
		}
	}
	if v.cfg.CheckSize && v.cfg.MaxBytes > 0 && size > v.cfg.MaxBytes {
		return fmt.Errorf("%d bytes exceeds %d: %w", size, v.cfg.MaxBytes, domain.ErrPayloadTooLarge)
	}
	return nil
}

// Validate runs Check and, when enabled, the signature check on content.
func (v *Validator) Validate(filename string, size int64, content []byte) error {
	if err := v.Check(filename, size); err != nil {
		return err
	}
	if v.cfg.CheckMagicBytes {
		format, ok := Sniff(content)
		if !ok || !v.formatAllowed(format) {
			return domain.ErrMagicBytesMismatch
		}
	}
	return nil
}

// AllowedExtensions lists the configured extensions without leading dots.
func (v *Validator) AllowedExtensions() []string {
	out := make([]string, 0, len(v.cfg.AllowedExtensions))
	for _, ext := range v.cfg.AllowedExtensions {
		out = append(out, normalizeExt(ext))
	}
	return out
}

func (v *Validator) formatAllowed(format string) bool {
	if !v.cfg.CheckExtension {
		return true
	}
	for _, ext := range formatExtensions[format] {
		if v.allowed[ext] {
			return true
		}
	}
	return false
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

type signature struct {
	format string
	offset int
	magic  []byte
}

var signatures = []signature{
	{"jpeg", 0, []byte{0xFF, 0xD8, 0xFF}},
	{"png", 0, []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}},
	{"gif", 0, []byte("GIF87a")},
	{"gif", 0, []byte("GIF89a")},
	{"bmp", 0, []byte("BM")},
	{"webp", 8, []byte("WEBP")},
}

var formatExtensions = map[string][]string{
	"jpeg": {"jpg", "jpeg"},
	"png":  {"png"},
	"gif":  {"gif"},
	"bmp":  {"bmp"},
	"webp": {"webp"},
}

// Sniff identifies the image format from the leading bytes of content.
func Sniff(content []byte) (string, bool) {
	for _, s := range signatures {
		end := s.offset + len(s.magic)
		if len(content) < end {
			continue
		}
		if s.format == "webp" && !bytes.HasPrefix(content, []byte("RIFF")) {
			continue
		}
		if bytes.Equal(content[s.offset:end], s.magic) {
			return s.format, true
		}
	}
	return "", false
}
