package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	cenv "github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const DefaultAudioURL = "https://qianwen-res.oss-cn-beijing.aliyuncs.com/Qwen3-Omni/cookbook/caption2.mp3"

type Config struct {
	BaseURL         string
	Temperature     float64
	TopP            float64
	TopK            int
	MaxTokens       int
	RequestTimeout  time.Duration
	DefaultAudioURL string
	LogLevel        string
	MetricsFile     string
	MockListenAddr  string
}

type envConfig struct {
	BaseURL               string  `env:"BASE_URL" envDefault:"http://localhost:8003"`
	Temperature           float64 `env:"TEMPERATURE" envDefault:"0.6"`
	TopP                  float64 `env:"TOP_P" envDefault:"0.95"`
	TopK                  int     `env:"TOP_K" envDefault:"20"`
	MaxTokens             int     `env:"MAX_TOKENS" envDefault:"16384"`
	RequestTimeoutSeconds int     `env:"TIMEOUT_SECONDS" envDefault:"300"`
	DefaultAudioURL       string  `env:"DEFAULT_AUDIO_URL" envDefault:"https://qianwen-res.oss-cn-beijing.aliyuncs.com/Qwen3-Omni/cookbook/caption2.mp3"`
	LogLevel              string  `env:"LOG_LEVEL" envDefault:"warn"`
	MetricsFile           string  `env:"METRICS_FILE"`
	MockListenAddr        string  `env:"MOCK_ADDR" envDefault:":8003"`
}

const envPrefix = "CAPTION_"

// Load reads an optional .env file from the working directory, then the
// CAPTION_* environment. With nothing set, every field holds its default.
func Load() (Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, err
	}
	return Parse(cenv.Options{Prefix: envPrefix})
}

// Parse builds a Config from the environment described by opts.
func Parse(opts cenv.Options) (Config, error) {
	var raw envConfig
	if err := cenv.ParseWithOptions(&raw, opts); err != nil {
		return Config{}, err
	}

	cfg := Config{
		BaseURL:         strings.TrimRight(strings.TrimSpace(raw.BaseURL), "/"),
		Temperature:     raw.Temperature,
		TopP:            raw.TopP,
		TopK:            raw.TopK,
		MaxTokens:       raw.MaxTokens,
		RequestTimeout:  time.Duration(raw.RequestTimeoutSeconds) * time.Second,
		DefaultAudioURL: strings.TrimSpace(raw.DefaultAudioURL),
		LogLevel:        strings.ToLower(strings.TrimSpace(raw.LogLevel)),
		MetricsFile:     strings.TrimSpace(raw.MetricsFile),
		MockListenAddr:  strings.TrimSpace(raw.MockListenAddr),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("CAPTION_BASE_URL must not be empty")
	}
	if c.DefaultAudioURL == "" {
		return errors.New("CAPTION_DEFAULT_AUDIO_URL must not be empty")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("CAPTION_TIMEOUT_SECONDS must be > 0")
	}
	if c.MockListenAddr == "" {
		return errors.New("CAPTION_MOCK_ADDR must not be empty")
	}
	return nil
}

// loadDotEnv loads variables from path without overriding ones already set.
// A missing file is not an error.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
