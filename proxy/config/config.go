package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultListen          = "127.0.0.1:8090"
	DefaultChatPath        = "/v1/chat/completions"
	DefaultEmbeddingsPath  = "/v1/embeddings"
	DefaultModelsPath      = "/v1/models"
	DefaultPayloadField    = "payload"
	DefaultTimeoutSeconds  = 60
	DefaultMaxFileBytes    = 10 << 20
	DefaultMaxFileCount    = 4
	DefaultMultipartMemory = 32 << 20
)

// DefaultAllowedMimeTypes covers the image formats the upstream accepts inline.
var DefaultAllowedMimeTypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
}

type Config struct {
	Listen   string `yaml:"listen"`
	LogLevel string `yaml:"logLevel"`

	Upstream UpstreamConfig `yaml:"upstream"`
	Auth     AuthConfig     `yaml:"auth"`
	Uploads  UploadConfig   `yaml:"uploads"`
}

// UpstreamConfig describes the single inference service this gateway fronts.
type UpstreamConfig struct {
	BaseURL        string `yaml:"baseUrl"`
	APIKey         string `yaml:"apiKey"`
	ChatPath       string `yaml:"chatPath"`
	EmbeddingsPath string `yaml:"embeddingsPath"`
	ModelsPath     string `yaml:"modelsPath"`
	TimeoutSeconds int    `yaml:"timeout"`
}

// Timeout bounds how long the relay waits for the upstream to begin
// responding. It does not cap an in-progress stream.
func (u UpstreamConfig) Timeout() time.Duration {
	return time.Duration(u.TimeoutSeconds) * time.Second
}

// AuthConfig holds the optional inbound API key. An empty key means open mode.
type AuthConfig struct {
	APIKey string `yaml:"apiKey"`
}

type UploadConfig struct {
	PayloadField     string   `yaml:"payloadField"`
	AllowedMimeTypes []string `yaml:"allowedMimeTypes"`
	MaxFileBytes     int64    `yaml:"maxFileSize"`
	MaxFileCount     int      `yaml:"maxFileCount"`
}

// LoadConfig reads and validates a yaml config file. The returned Config is
// complete with defaults applied; callers treat it as immutable after this.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return LoadConfigFromBytes(data)
}

func LoadConfigFromBytes(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("error parsing config: %w", err)
	}

	cfg = AddDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// AddDefaults fills in every optional field. Exported so tests can build a
// Config directly without going through yaml.
func AddDefaults(cfg Config) Config {
	if strings.TrimSpace(cfg.Listen) == "" {
		cfg.Listen = DefaultListen
	}
	if strings.TrimSpace(cfg.LogLevel) == "" {
		cfg.LogLevel = "info"
	}
	if strings.TrimSpace(cfg.Upstream.ChatPath) == "" {
		cfg.Upstream.ChatPath = DefaultChatPath
	}
	if strings.TrimSpace(cfg.Upstream.EmbeddingsPath) == "" {
		cfg.Upstream.EmbeddingsPath = DefaultEmbeddingsPath
	}
	if strings.TrimSpace(cfg.Upstream.ModelsPath) == "" {
		cfg.Upstream.ModelsPath = DefaultModelsPath
	}
	if cfg.Upstream.TimeoutSeconds <= 0 {
		cfg.Upstream.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if strings.TrimSpace(cfg.Uploads.PayloadField) == "" {
		cfg.Uploads.PayloadField = DefaultPayloadField
	}
	if len(cfg.Uploads.AllowedMimeTypes) == 0 {
		cfg.Uploads.AllowedMimeTypes = append([]string(nil), DefaultAllowedMimeTypes...)
	}
	if cfg.Uploads.MaxFileBytes <= 0 {
		cfg.Uploads.MaxFileBytes = DefaultMaxFileBytes
	}
	if cfg.Uploads.MaxFileCount <= 0 {
		cfg.Uploads.MaxFileCount = DefaultMaxFileCount
	}
	return cfg
}

func (c Config) Validate() error {
	base := strings.TrimSpace(c.Upstream.BaseURL)
	if base == "" {
		return fmt.Errorf("upstream.baseUrl is required")
	}
	parsed, err := url.Parse(base)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return fmt.Errorf("upstream.baseUrl %q is not a valid http(s) URL", base)
	}

	// The outbound credential is mandatory: the gateway never forwards the
	// caller's own token upstream.
	if strings.TrimSpace(c.Upstream.APIKey) == "" {
		return fmt.Errorf("upstream.apiKey is required")
	}

	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logLevel must be one of: debug, info, warn, error")
	}

	for _, mimeType := range c.Uploads.AllowedMimeTypes {
		if !strings.Contains(mimeType, "/") {
			return fmt.Errorf("uploads.allowedMimeTypes entry %q is not a mime type", mimeType)
		}
	}
	return nil
}
