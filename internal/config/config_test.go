package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8000", cfg.Addr())
	assert.Equal(t, "/api", cfg.Server.APIPrefix)
	assert.Equal(t, 30*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, "models/agrivision_edge_model.onnx", cfg.Model.Path)
	assert.Equal(t, 1, cfg.Model.PoolSize)
	assert.Equal(t, int64(5<<20), cfg.Upload.MaxBytes())
	assert.Equal(t, []string{"jpg", "jpeg", "png", "gif", "bmp", "webp"}, cfg.Upload.AllowedExtensions)
	assert.True(t, cfg.Upload.ValidateExtension)
	assert.False(t, cfg.Upload.ValidateMagicBytes)
	assert.Equal(t, 0.0, cfg.Inference.ConfidenceThreshold)
	assert.Equal(t, 0.5, cfg.Inference.WarningThreshold)
	assert.Equal(t, 1, cfg.Inference.TopK)
	assert.Equal(t, "bicubic", cfg.Inference.Interpolation)
	assert.False(t, cfg.CORS.Enabled)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 100, cfg.RateLimit.PerHour)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFromEnvironment(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("MODEL_POOL_SIZE", "4")
	t.Setenv("UPLOAD_MAX_FILE_SIZE_MB", "2")
	t.Setenv("UPLOAD_ALLOWED_EXTENSIONS", "jpg, png")
	t.Setenv("UPLOAD_VALIDATE_MAGIC_BYTES", "true")
	t.Setenv("INFERENCE_TOP_K", "3")
	t.Setenv("INFERENCE_WARNING_THRESHOLD", "0.7")
	t.Setenv("CORS_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("REQUEST_TIMEOUT", "5s")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 4, cfg.Model.PoolSize)
	assert.Equal(t, int64(2<<20), cfg.Upload.MaxBytes())
	assert.Equal(t, []string{"jpg", "png"}, cfg.Upload.AllowedExtensions)
	assert.True(t, cfg.Upload.ValidateMagicBytes)
	assert.Equal(t, 3, cfg.Inference.TopK)
	assert.Equal(t, 0.7, cfg.Inference.WarningThreshold)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.Origins)
	assert.Equal(t, 5*time.Second, cfg.Server.RequestTimeout)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("LOG_LEVEL=debug\nMODEL_NUM_THREADS=2\n"), 0o644))
	t.Cleanup(func() {
		os.Unsetenv("LOG_LEVEL")
		os.Unsetenv("MODEL_NUM_THREADS")
	})

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 2, cfg.Model.NumThreads)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "agrivision.yaml")
	require.NoError(t, os.WriteFile(path, []byte("SERVER_PORT: \"7000\"\nINFERENCE_CONFIDENCE_THRESHOLD: 0.3\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "7000", cfg.Server.Port)
	assert.Equal(t, 0.3, cfg.Inference.ConfidenceThreshold)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("INFERENCE_WARNING_THRESHOLD", "1.5")

	_, err := Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Server:    ServerConfig{Port: "8000"},
			Model:     ModelConfig{PoolSize: 1},
			Upload:    UploadConfig{MaxFileSizeMB: 5, ValidateSize: true, ValidateExtension: true, AllowedExtensions: []string{"png"}},
			Inference: InferenceConfig{WarningThreshold: 0.5, TopK: 1},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no port", func(c *Config) { c.Server.Port = "" }},
		{"pool size", func(c *Config) { c.Model.PoolSize = 0 }},
		{"size limit", func(c *Config) { c.Upload.MaxFileSizeMB = 0 }},
		{"no extensions", func(c *Config) { c.Upload.AllowedExtensions = nil }},
		{"negative floor", func(c *Config) { c.Inference.ConfidenceThreshold = -0.1 }},
		{"warning above one", func(c *Config) { c.Inference.WarningThreshold = 1.1 }},
		{"top k", func(c *Config) { c.Inference.TopK = 0 }},
		{"rate limit", func(c *Config) { c.RateLimit = RateLimitConfig{Enabled: true} }},
	}

	base := valid()
	require.NoError(t, base.Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	disabled := valid()
	disabled.Upload.ValidateSize = false
	disabled.Upload.MaxFileSizeMB = 0
	assert.NoError(t, disabled.Validate())
}

func TestList(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, list([]string{"a,b", " c ", ""}))
	assert.Nil(t, list(nil))
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent to testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}
