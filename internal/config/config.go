package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/Brownie44l1/crop-disease-api/internal/inference"
	"github.com/Brownie44l1/crop-disease-api/internal/model"
)

type Config struct {
	ModelPath     string
	MetadataPath  string
	LabelsPath    string
	Backend       string
	OnnxLibrary   string
	InputSize     int
	Threads       int
	Port          string
	RateLimit     int // prediction requests per IP per minute, 0 disables
	TelegramToken string
}

// Load reads .env (if present) and then the process environment.
func Load() (*Config, error) {
	// A missing .env file is fine.
	_ = godotenv.Load()
	return FromEnv()
}

func FromEnv() (*Config, error) {
	cfg := &Config{
		ModelPath:     getenv("MODEL_PATH", "models/mobilenet_v2_crop_disease.onnx"),
		MetadataPath:  getenv("METADATA_PATH", "models/model_metadata.json"),
		LabelsPath:    os.Getenv("LABELS_PATH"),
		Backend:       getenv("MODEL_BACKEND", inference.BackendONNX),
		OnnxLibrary:   os.Getenv("ONNXRUNTIME_LIB"),
		Port:          getenv("PORT", "8080"),
		TelegramToken: os.Getenv("TELEGRAM_TOKEN"),
	}

	var err error
	if cfg.InputSize, err = getint("INPUT_SIZE", model.InputSize); err != nil {
		return nil, err
	}
	if cfg.Threads, err = getint("MODEL_THREADS", 0); err != nil {
		return nil, err
	}
	if cfg.RateLimit, err = getint("RATE_LIMIT", 60); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Backend {
	case inference.BackendONNX, inference.BackendTFLite:
	default:
		return fmt.Errorf("unknown model backend %q (expected %q or %q)", c.Backend, inference.BackendONNX, inference.BackendTFLite)
	}
	if c.ModelPath == "" {
		return fmt.Errorf("model path is required")
	}
	if c.InputSize <= 0 {
		return fmt.Errorf("input size must be positive, got %d", c.InputSize)
	}
	if c.Threads < 0 || c.RateLimit < 0 {
		return fmt.Errorf("threads and rate limit cannot be negative")
	}
	return nil
}

// LoadConfig builds the model loading parameters. Metadata is optional for tflite models,
// so a missing file is only an error for onnx.
func (c *Config) LoadConfig() (inference.LoadConfig, *model.Metadata, error) {
	lc := inference.LoadConfig{
		Backend:     c.Backend,
		ModelPath:   c.ModelPath,
		LibraryPath: c.OnnxLibrary,
		InputSide:   c.InputSize,
		Threads:     c.Threads,
	}
	if c.MetadataPath == "" {
		return lc, nil, nil
	}
	if _, err := os.Stat(c.MetadataPath); os.IsNotExist(err) && c.Backend == inference.BackendTFLite {
		return lc, nil, nil
	}
	md, err := model.LoadMetadata(c.MetadataPath)
	if err != nil {
		return lc, nil, err
	}
	lc.Metadata = md
	return lc, md, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getint(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}
