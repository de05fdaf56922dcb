package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Model     ModelConfig
	Upload    UploadConfig
	Inference InferenceConfig
	CORS      CORSConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host            string
	Port            string
	APIPrefix       string
	StaticDir       string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

type ModelConfig struct {
	Path         string
	MetadataPath string
	LibraryPath  string
	PoolSize     int
	NumThreads   int
	CatalogPath  string
}

type UploadConfig struct {
	MaxFileSizeMB      int64
	AllowedExtensions  []string
	ValidateExtension  bool
	ValidateSize       bool
	ValidateMagicBytes bool
}

// MaxBytes is the upload ceiling in bytes.
func (u UploadConfig) MaxBytes() int64 {
	return u.MaxFileSizeMB << 20
}

type InferenceConfig struct {
	// ConfidenceThreshold is the minimum confidence for a label to be shown.
	ConfidenceThreshold float64
	WarningThreshold    float64
	ShowWarning         bool
	TopK                int
	Interpolation       string
}

type CORSConfig struct {
	Enabled bool
	Origins []string
}

type RateLimitConfig struct {
	Enabled bool
	PerHour int
}

type LogConfig struct {
	Level string
	File  string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", "8000")
	v.SetDefault("API_PREFIX", "/api")
	v.SetDefault("STATIC_DIR", "static")
	v.SetDefault("REQUEST_TIMEOUT", 30*time.Second)
	v.SetDefault("SHUTDOWN_TIMEOUT", 10*time.Second)

	v.SetDefault("MODEL_PATH", "models/agrivision_edge_model.onnx")
	v.SetDefault("MODEL_METADATA_PATH", "")
	v.SetDefault("ONNXRUNTIME_LIB", "")
	v.SetDefault("MODEL_POOL_SIZE", 1)
	v.SetDefault("MODEL_NUM_THREADS", 4)
	v.SetDefault("CATALOG_PATH", "")

	v.SetDefault("UPLOAD_MAX_FILE_SIZE_MB", 5)
	v.SetDefault("UPLOAD_ALLOWED_EXTENSIONS", []string{"jpg", "jpeg", "png", "gif", "bmp", "webp"})
	v.SetDefault("UPLOAD_VALIDATE_EXTENSION", true)
	v.SetDefault("UPLOAD_VALIDATE_SIZE", true)
	v.SetDefault("UPLOAD_VALIDATE_MAGIC_BYTES", false)

	v.SetDefault("INFERENCE_CONFIDENCE_THRESHOLD", 0.0)
	v.SetDefault("INFERENCE_WARNING_THRESHOLD", 0.5)
	v.SetDefault("INFERENCE_SHOW_WARNING", true)
	v.SetDefault("INFERENCE_TOP_K", 1)
	v.SetDefault("INFERENCE_INTERPOLATION", "bicubic")

	v.SetDefault("CORS_ENABLED", false)
	v.SetDefault("CORS_ORIGINS", []string{"http://localhost:3000", "http://localhost:8000"})

	v.SetDefault("RATE_LIMIT_ENABLED", false)
	v.SetDefault("RATE_LIMIT_PER_HOUR", 100)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FILE", "")
}

// Load reads configuration from defaults, an optional config file, a .env
// file in the working directory and the environment, in rising priority.
func Load(configFile string) (*Config, error) {
	// a missing .env is normal outside development
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:            v.GetString("SERVER_HOST"),
			Port:            v.GetString("SERVER_PORT"),
			APIPrefix:       v.GetString("API_PREFIX"),
			StaticDir:       v.GetString("STATIC_DIR"),
			RequestTimeout:  v.GetDuration("REQUEST_TIMEOUT"),
			ShutdownTimeout: v.GetDuration("SHUTDOWN_TIMEOUT"),
		},
		Model: ModelConfig{
			Path:         v.GetString("MODEL_PATH"),
			MetadataPath: v.GetString("MODEL_METADATA_PATH"),
			LibraryPath:  v.GetString("ONNXRUNTIME_LIB"),
			PoolSize:     v.GetInt("MODEL_POOL_SIZE"),
			NumThreads:   v.GetInt("MODEL_NUM_THREADS"),
			CatalogPath:  v.GetString("CATALOG_PATH"),
		},
		Upload: UploadConfig{
			MaxFileSizeMB:      v.GetInt64("UPLOAD_MAX_FILE_SIZE_MB"),
			AllowedExtensions:  list(v.GetStringSlice("UPLOAD_ALLOWED_EXTENSIONS")),
			ValidateExtension:  v.GetBool("UPLOAD_VALIDATE_EXTENSION"),
			ValidateSize:       v.GetBool("UPLOAD_VALIDATE_SIZE"),
			ValidateMagicBytes: v.GetBool("UPLOAD_VALIDATE_MAGIC_BYTES"),
		},
		Inference: InferenceConfig{
			ConfidenceThreshold: v.GetFloat64("INFERENCE_CONFIDENCE_THRESHOLD"),
			WarningThreshold:    v.GetFloat64("INFERENCE_WARNING_THRESHOLD"),
			ShowWarning:         v.GetBool("INFERENCE_SHOW_WARNING"),
			TopK:                v.GetInt("INFERENCE_TOP_K"),
			Interpolation:       v.GetString("INFERENCE_INTERPOLATION"),
		},
		CORS: CORSConfig{
			Enabled: v.GetBool("CORS_ENABLED"),
			Origins: list(v.GetStringSlice("CORS_ORIGINS")),
		},
		RateLimit: RateLimitConfig{
			Enabled: v.GetBool("RATE_LIMIT_ENABLED"),
			PerHour: v.GetInt("RATE_LIMIT_PER_HOUR"),
		},
		Log: LogConfig{
			Level: v.GetString("LOG_LEVEL"),
			File:  v.GetString("LOG_FILE"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port == "" {
		errs = append(errs, errors.New("SERVER_PORT is required"))
	}
	if c.Model.PoolSize < 1 {
		errs = append(errs, fmt.Errorf("MODEL_POOL_SIZE must be at least 1, got %d", c.Model.PoolSize))
	}
	if c.Upload.ValidateSize && c.Upload.MaxFileSizeMB <= 0 {
		errs = append(errs, fmt.Errorf("UPLOAD_MAX_FILE_SIZE_MB must be positive, got %d", c.Upload.MaxFileSizeMB))
	}
	if c.Upload.ValidateExtension && len(c.Upload.AllowedExtensions) == 0 {
		errs = append(errs, errors.New("UPLOAD_ALLOWED_EXTENSIONS is empty"))
	}
	if t := c.Inference.ConfidenceThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("INFERENCE_CONFIDENCE_THRESHOLD must be within [0, 1], got %v", t))
	}
	if t := c.Inference.WarningThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("INFERENCE_WARNING_THRESHOLD must be within [0, 1], got %v", t))
	}
	if c.Inference.TopK < 1 {
		errs = append(errs, fmt.Errorf("INFERENCE_TOP_K must be at least 1, got %d", c.Inference.TopK))
	}
	if c.RateLimit.Enabled && c.RateLimit.PerHour < 1 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_PER_HOUR must be at least 1, got %d", c.RateLimit.PerHour))
	}
	return errors.Join(errs...)
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}

// list splits comma-separated entries, since environment variables arrive
// as a single string.
func list(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
