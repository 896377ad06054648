package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the service configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Upload  UploadConfig  `yaml:"upload"`
	PDF     PDFConfig     `yaml:"pdf"`
	Session SessionConfig `yaml:"session"`
	Auth    AuthConfig    `yaml:"auth"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowOrigins    []string      `yaml:"allow_origins"`
}

// UploadConfig holds limits applied to uploaded files
type UploadConfig struct {
	TempDir     string `yaml:"temp_dir"`
	MaxFileSize int64  `yaml:"max_file_size"`
	MaxFiles    int    `yaml:"max_files"`
	Workers     int    `yaml:"workers"`
	ChunkSize   int    `yaml:"chunk_size"`
}

// PDFConfig holds PDF loader settings
type PDFConfig struct {
	// Validate runs a structural validation pass before extraction
	Validate bool `yaml:"validate"`
}

// SessionConfig holds session cookie and page retention settings
type SessionConfig struct {
	Secret string        `yaml:"secret"`
	MaxAge int           `yaml:"max_age"`
	TTL    time.Duration `yaml:"ttl"`
	Secure bool          `yaml:"secure"`
}

// AuthConfig holds API token settings. An empty secret disables auth.
//
// With auth enabled every /api route needs a bearer token, including the
// upload form served at "/": paste a token minted by cmd/tokengen into the
// form's token field before uploading.
type AuthConfig struct {
	Secret   string        `yaml:"secret"`
	TokenTTL time.Duration `yaml:"token_ttl"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    2 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
			AllowOrigins:    []string{"http://localhost:8080"},
		},
		Upload: UploadConfig{
			TempDir:     os.TempDir(),
			MaxFileSize: 50 * 1024 * 1024, // 50MB max
			MaxFiles:    20,
			Workers:     4,
			ChunkSize:   32 * 1024,
		},
		Session: SessionConfig{
			MaxAge: 3600,
			TTL:    30 * time.Minute,
		},
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads the YAML file at path on top of the defaults, then applies
// environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := decode(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode parses YAML strictly: unknown keys and non-mapping documents are
// errors. An empty document leaves the defaults in place.
func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PDF_INGEST_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("PDF_INGEST_TEMP_DIR"); v != "" {
		c.Upload.TempDir = v
	}
	if v := os.Getenv("SESSION_SECRET"); v != "" {
		c.Session.Secret = v
	}
	if v := os.Getenv("AUTH_SECRET"); v != "" {
		c.Auth.Secret = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Validate rejects settings the service cannot run with
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr must be set"))
	}
	if c.Upload.TempDir == "" {
		errs = append(errs, errors.New("upload.temp_dir must be set"))
	}
	if c.Upload.MaxFileSize <= 0 {
		errs = append(errs, errors.New("upload.max_file_size must be positive"))
	}
	if c.Upload.MaxFiles <= 0 {
		errs = append(errs, errors.New("upload.max_files must be positive"))
	}
	if c.Upload.Workers <= 0 {
		errs = append(errs, errors.New("upload.workers must be positive"))
	}
	if c.Session.TTL < 0 {
		errs = append(errs, errors.New("session.ttl must not be negative"))
	}
	if c.Auth.Secret != "" && c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive when auth is enabled"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
