package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Brownie44l1/agrivision-api/internal/catalog"
	"github.com/Brownie44l1/agrivision-api/internal/config"
	"github.com/Brownie44l1/agrivision-api/internal/handlers"
	"github.com/Brownie44l1/agrivision-api/internal/model"
	"github.com/Brownie44l1/agrivision-api/internal/pipeline"
	"github.com/Brownie44l1/agrivision-api/internal/predict"
	"github.com/Brownie44l1/agrivision-api/internal/preprocess"
	"github.com/Brownie44l1/agrivision-api/internal/ratelimit"
	"github.com/Brownie44l1/agrivision-api/internal/validator"
)

type Server struct {
	httpServer *http.Server
	service    *pipeline.Service
	cfg        *config.Config
	log        *zap.Logger
}

// New wires the classification pipeline around engine and exposes it over
// HTTP. The engine may be model.Unavailable, in which case the server still
// starts and reports the model as not loaded.
func New(cfg *config.Config, engine model.Engine, c *catalog.Catalog, log *zap.Logger) (*Server, error) {
	pre, err := preprocess.New(cfg.Inference.Interpolation)
	if err != nil {
		return nil, fmt.Errorf("failed to create preprocessor: %w", err)
	}

	v := validator.New(validator.Config{
		CheckExtension:    cfg.Upload.ValidateExtension,
		AllowedExtensions: cfg.Upload.AllowedExtensions,
		CheckSize:         cfg.Upload.ValidateSize,
		MaxBytes:          cfg.Upload.MaxBytes(),
		CheckMagicBytes:   cfg.Upload.ValidateMagicBytes,
	})

	service := pipeline.New(v, pre, engine, c, predict.Options{
		WarningThreshold: cfg.Inference.WarningThreshold,
		DisplayFloor:     cfg.Inference.ConfidenceThreshold,
		TopK:             cfg.Inference.TopK,
	}, log)

	if err := service.CheckCatalog(); err != nil {
		log.Error("Catalog does not match model", zap.Error(err))
	}

	opts := handlers.Options{
		APIPrefix:      cfg.Server.APIPrefix,
		StaticDir:      cfg.Server.StaticDir,
		ShowWarning:    cfg.Inference.ShowWarning,
		CORSEnabled:    cfg.CORS.Enabled,
		CORSOrigins:    cfg.CORS.Origins,
		RequestTimeout: cfg.Server.RequestTimeout,
	}
	if cfg.Upload.ValidateSize {
		opts.MaxUploadBytes = cfg.Upload.MaxBytes()
	}
	if cfg.RateLimit.Enabled {
		opts.Limiter = ratelimit.New(cfg.RateLimit.PerHour, time.Hour)
	}

	router := handlers.NewRouter(handlers.NewHandler(service, opts, log))

	writeTimeout := 10 * time.Second
	if cfg.Server.RequestTimeout > 0 {
		writeTimeout += cfg.Server.RequestTimeout
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr(),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      writeTimeout,
			MaxHeaderBytes:    1 << 20,
		},
		service: service,
		cfg:     cfg,
		log:     log,
	}, nil
}

func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run blocks until the server stops. A graceful Shutdown is not an error.
func (s *Server) Run() error {
	s.logBanner()

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) logBanner() {
	prefix := s.cfg.Server.APIPrefix
	fields := []zap.Field{
		zap.String("address", s.httpServer.Addr),
		zap.Bool("model_loaded", s.service.ModelLoaded()),
		zap.Int("classes", s.service.CatalogSize()),
		zap.Strings("allowed_extensions", s.service.AllowedExtensions()),
		zap.Int64("max_file_size_mb", s.cfg.Upload.MaxFileSizeMB),
		zap.Float64("warning_threshold", s.cfg.Inference.WarningThreshold),
		zap.Float64("confidence_threshold", s.cfg.Inference.ConfidenceThreshold),
		zap.Int("top_k", s.cfg.Inference.TopK),
		zap.Bool("cors", s.cfg.CORS.Enabled),
		zap.Bool("rate_limit", s.cfg.RateLimit.Enabled),
		zap.Strings("endpoints", []string{"GET /", "GET /health", "POST /predict", "GET " + prefix + "/health", "POST " + prefix + "/predict"}),
	}
	if s.service.ModelLoaded() {
		d := s.service.Descriptor()
		fields = append(fields, zap.Int64s("input_shape", d.InputShape()))
	}
	s.log.Info("Server is running", fields...)
}
