package domain

import "errors"

var (
	ErrUnsupportedExtension = errors.New("unsupported file extension")
	ErrPayloadTooLarge      = errors.New("file too large")
	ErrMagicBytesMismatch   = errors.New("file content is not a recognized image format")
	ErrUnreadable           = errors.New("image could not be decoded")
	ErrModelUnavailable     = errors.New("model not loaded")
	ErrUnknownClass         = errors.New("class not present in disease catalog")
	ErrInferenceFailed      = errors.New("inference failed")
)

// Kind classifies every outcome of the inference pipeline.
type Kind int

const (
	KindNone Kind = iota
	KindUnsupportedExtension
	KindPayloadTooLarge
	KindMagicBytesMismatch
	KindUnreadable
	KindModelUnavailable
	KindUnknownClass
	KindIndeterminate
	KindInternal
)

var kindNames = map[Kind]string{
	KindNone:                 "NONE",
	KindUnsupportedExtension: "UNSUPPORTED_EXTENSION",
	KindPayloadTooLarge:      "PAYLOAD_TOO_LARGE",
	KindMagicBytesMismatch:   "MAGIC_BYTES_MISMATCH",
	KindUnreadable:           "UNREADABLE_IMAGE",
	KindModelUnavailable:     "MODEL_UNAVAILABLE",
	KindUnknownClass:         "UNKNOWN_CLASS",
	KindIndeterminate:        "INDETERMINATE",
	KindInternal:             "INTERNAL_ERROR",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "INTERNAL_ERROR"
}

// KindOf maps err onto exactly one Kind. A nil error is KindNone and any
// error outside the taxonomy is KindInternal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrUnsupportedExtension):
		return KindUnsupportedExtension
	case errors.Is(err, ErrPayloadTooLarge):
		return KindPayloadTooLarge
	case errors.Is(err, ErrMagicBytesMismatch):
		return KindMagicBytesMismatch
	case errors.Is(err, ErrUnreadable):
		return KindUnreadable
	case errors.Is(err, ErrModelUnavailable):
		return KindModelUnavailable
	case errors.Is(err, ErrUnknownClass):
		return KindUnknownClass
	default:
		return KindInternal
	}
}

// UserFacing reports whether the error text may be shown to the caller.
// Validation and decode failures are; engine and catalog failures are not.
func (k Kind) UserFacing() bool {
	switch k {
	case KindUnsupportedExtension, KindPayloadTooLarge, KindMagicBytesMismatch, KindUnreadable:
		return true
	}
	return false
}
