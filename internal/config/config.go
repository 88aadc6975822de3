// Package config provides YAML-based configuration loading for minutes.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level minutes configuration, loaded from minutes.yaml.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Blob     BlobConfig     `yaml:"blob"`
	Encoder  EncoderConfig  `yaml:"encoder"`
	OpenAI   OpenAIConfig   `yaml:"openai"`
	Worker   WorkerConfig   `yaml:"worker"`
	Server   ServerConfig   `yaml:"server"`
	Notify   NotifyConfig   `yaml:"notify"`
	Log      LogConfig      `yaml:"log"`
}

// DatabaseConfig selects and configures the job record database.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Path     string `yaml:"path"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

// BlobConfig selects and configures the object store holding uploaded audio.
type BlobConfig struct {
	Backend   string `yaml:"backend"`
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
	Dir       string `yaml:"dir"`
	Prefix    string `yaml:"prefix"`
}

// EncoderConfig controls the external audio encoder.
type EncoderConfig struct {
	Binary         string `yaml:"binary"`
	Bitrate        string `yaml:"bitrate"`
	SampleRate     int    `yaml:"sample_rate"`
	SegmentSeconds int    `yaml:"segment_seconds"`
	Format         string `yaml:"format"`
}

// OpenAIConfig holds speech-to-text and language model settings.
type OpenAIConfig struct {
	APIKey             string        `yaml:"api_key"`
	BaseURL            string        `yaml:"base_url"`
	TranscriptionModel string        `yaml:"transcription_model"`
	SummaryModel       string        `yaml:"summary_model"`
	MaxTokens          int           `yaml:"max_tokens"`
	MaxTranscriptChars int           `yaml:"max_transcript_chars"`
	Timeout            time.Duration `yaml:"timeout"`
}

// WorkerConfig controls queue consumers and the stale-claim watchdog.
type WorkerConfig struct {
	Concurrency       int           `yaml:"concurrency"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	MaxAttempts       int           `yaml:"max_attempts"`
	StaleAfter        time.Duration `yaml:"stale_after"`
	WatchdogSchedule  string        `yaml:"watchdog_schedule"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port           int   `yaml:"port"`
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
}

// NotifyConfig holds optional completion webhook targets.
type NotifyConfig struct {
	SlackWebhookURL   string `yaml:"slack_webhook_url"`
	DiscordWebhookURL string `yaml:"discord_webhook_url"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MaxUploadBytes is the default upload size ceiling (25 MiB).
const MaxUploadBytes int64 = 25 << 20

// LoadEnvFiles loads KEY=VALUE pairs from the given .env files into the
// process environment. Missing files are skipped; variables that are
// already set are not overridden.
func LoadEnvFiles(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: load env %s: %w", p, err)
		}
	}
	return nil
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse expands ${VAR} references and unmarshals YAML bytes into a
// validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in default values.
func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = "minutes.db"
	}
	if c.Database.Driver == "mysql" {
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
	}

	if c.Blob.Backend == "" {
		c.Blob.Backend = "s3"
	}
	if c.Blob.Prefix == "" {
		c.Blob.Prefix = "meetings"
	}
	if c.Blob.Region == "" {
		c.Blob.Region = "auto"
	}

	if c.Encoder.Binary == "" {
		c.Encoder.Binary = "ffmpeg"
	}
	if c.Encoder.Bitrate == "" {
		c.Encoder.Bitrate = "64k"
	}
	if c.Encoder.SampleRate == 0 {
		c.Encoder.SampleRate = 16000
	}
	if c.Encoder.SegmentSeconds == 0 {
		c.Encoder.SegmentSeconds = 600
	}
	if c.Encoder.Format == "" {
		c.Encoder.Format = "mp3"
	}

	if c.OpenAI.TranscriptionModel == "" {
		c.OpenAI.TranscriptionModel = "whisper-1"
	}
	if c.OpenAI.SummaryModel == "" {
		c.OpenAI.SummaryModel = "gpt-4o-mini"
	}
	if c.OpenAI.MaxTokens == 0 {
		c.OpenAI.MaxTokens = 1000
	}
	if c.OpenAI.MaxTranscriptChars == 0 {
		c.OpenAI.MaxTranscriptChars = 10000
	}
	if c.OpenAI.Timeout == 0 {
		c.OpenAI.Timeout = 5 * time.Minute
	}

	if c.Worker.Concurrency == 0 {
		c.Worker.Concurrency = 2
	}
	if c.Worker.PollInterval == 0 {
		c.Worker.PollInterval = 2 * time.Second
	}
	if c.Worker.HeartbeatInterval == 0 {
		c.Worker.HeartbeatInterval = 10 * time.Second
	}
	if c.Worker.MaxAttempts == 0 {
		c.Worker.MaxAttempts = 3
	}
	if c.Worker.StaleAfter == 0 {
		c.Worker.StaleAfter = 15 * time.Minute
	}
	if c.Worker.WatchdogSchedule == "" {
		c.Worker.WatchdogSchedule = "*/5 * * * *"
	}

	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.MaxUploadBytes == 0 {
		c.Server.MaxUploadBytes = MaxUploadBytes
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			errs = append(errs, "database.path is required for sqlite")
		}
	case "mysql":
		if c.Database.Host == "" {
			errs = append(errs, "database.host is required for mysql")
		}
		if c.Database.Name == "" {
			errs = append(errs, "database.name is required for mysql")
		}
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not supported (sqlite, mysql)", c.Database.Driver))
	}

	switch c.Blob.Backend {
	case "s3":
		if c.Blob.Endpoint == "" {
			errs = append(errs, "blob.endpoint is required for s3")
		}
		if c.Blob.Bucket == "" {
			errs = append(errs, "blob.bucket is required for s3")
		}
	case "fs":
		if c.Blob.Dir == "" {
			errs = append(errs, "blob.dir is required for fs")
		}
	default:
		errs = append(errs, fmt.Sprintf("blob.backend %q is not supported (s3, fs)", c.Blob.Backend))
	}

	if c.OpenAI.APIKey == "" {
		errs = append(errs, "openai.api_key is required")
	}
	if c.Encoder.SegmentSeconds < 0 {
		errs = append(errs, "encoder.segment_seconds must be positive")
	}
	if c.Worker.Concurrency < 1 {
		errs = append(errs, "worker.concurrency must be at least 1")
	}
	if c.Worker.MaxAttempts < 1 {
		errs = append(errs, "worker.max_attempts must be at least 1")
	}
	if c.Server.MaxUploadBytes < 0 {
		errs = append(errs, "server.max_upload_bytes must be positive")
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Sprintf("log.format %q is not supported (text, json)", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
