// Package pipeline wires upload validation, preprocessing, inference and
// prediction resolution into a single classification call.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Brownie44l1/agrivision-api/internal/catalog"
	"github.com/Brownie44l1/agrivision-api/internal/domain"
	"github.com/Brownie44l1/agrivision-api/internal/model"
	"github.com/Brownie44l1/agrivision-api/internal/predict"
	"github.com/Brownie44l1/agrivision-api/internal/preprocess"
	"github.com/Brownie44l1/agrivision-api/internal/validator"
)

// Upload is one image received from a client.
type Upload struct {
	Filename string
	Size     int64
	Content  []byte
}

type Service struct {
	validator    *validator.Validator
	preprocessor *preprocess.Preprocessor
	engine       model.Engine
	catalog      *catalog.Catalog
	resolver     *predict.Resolver
	log          *zap.Logger
}

func New(
	v *validator.Validator,
	p *preprocess.Preprocessor,
	engine model.Engine,
	c *catalog.Catalog,
	opts predict.Options,
	log *zap.Logger,
) *Service {
	return &Service{
		validator:    v,
		preprocessor: p,
		engine:       engine,
		catalog:      c,
		resolver:     predict.NewResolver(c, opts),
		log:          log,
	}
}

// CheckCatalog reports a mismatch between the model's class count and the
// catalog size. Such a deployment fails every prediction that lands outside
// the catalog.
func (s *Service) CheckCatalog() error {
	if !s.engine.Loaded() {
		return nil
	}
	if n := s.engine.Descriptor().NumClasses; n != s.catalog.Size() {
		return fmt.Errorf("model outputs %d classes but catalog has %d: %w", n, s.catalog.Size(), domain.ErrUnknownClass)
	}
	return nil
}

// CheckUpload applies the extension and size rules only, so callers can
// reject a request before reading its body.
func (s *Service) CheckUpload(filename string, size int64) error {
	return s.validator.Check(filename, size)
}

// Classify runs the full pipeline on one upload.
func (s *Service) Classify(ctx context.Context, up Upload) (predict.Result, error) {
	if !s.engine.Loaded() {
		return predict.Result{}, domain.ErrModelUnavailable
	}

	if err := s.validator.Validate(up.Filename, up.Size, up.Content); err != nil {
		return predict.Result{}, err
	}

	start := time.Now()
	tensor, err := s.preprocessor.Preprocess(up.Content, s.engine.Descriptor())
	if err != nil {
		return predict.Result{}, err
	}
	preprocessed := time.Since(start)

	probs, err := s.engine.Infer(ctx, tensor)
	if err != nil {
		return predict.Result{}, err
	}

	result, err := s.resolver.Resolve(probs)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownClass) {
			s.log.Error("Model and catalog out of sync", zap.Error(err), zap.Int("catalog_size", s.catalog.Size()))
		}
		return predict.Result{}, err
	}

	s.log.Debug("Image classified",
		zap.String("filename", up.Filename),
		zap.Int("class", result.ClassID),
		zap.Float64("confidence", result.Confidence),
		zap.Bool("indeterminate", result.Indeterminate),
		zap.Duration("preprocess", preprocessed),
		zap.Duration("total", time.Since(start)))

	return result, nil
}

func (s *Service) ModelLoaded() bool {
	return s.engine.Loaded()
}

func (s *Service) Descriptor() domain.Descriptor {
	return s.engine.Descriptor()
}

func (s *Service) CatalogSize() int {
	return s.catalog.Size()
}

func (s *Service) AllowedExtensions() []string {
	return s.validator.AllowedExtensions()
}
