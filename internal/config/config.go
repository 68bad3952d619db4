package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/wb-go/wbf/zlog"
)

// Config holds the main configuration for the application.
type Config struct {
	Server     Server     `mapstructure:"server"`
	Generation Generation `mapstructure:"generation"`
	OpenAI     OpenAI     `mapstructure:"openai"`
	Replicate  Replicate  `mapstructure:"replicate"`
	Poll       Poll       `mapstructure:"poll"`
	Processor  Processor  `mapstructure:"processor"`
	Gallery    Gallery    `mapstructure:"gallery"`
	Storage    Storage    `mapstructure:"storage"`
	Jobs       Jobs       `mapstructure:"jobs"`
	Database   Database   `mapstructure:"database"`
	Kafka      Kafka      `mapstructure:"kafka"`
	Retry      Retry      `mapstructure:"retry"`
}

// Server holds HTTP server-related configuration.
type Server struct {
	HTTPPort     string        `mapstructure:"http_port"`     // HTTP port to listen on
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`  // Maximum duration for reading a request
	WriteTimeout time.Duration `mapstructure:"write_timeout"` // Must cover a full synchronous generation
}

// Generation selects the remote provider and how prompts are sent to it.
type Generation struct {
	Provider     string `mapstructure:"provider"`      // "replicate" or "openai"
	PromptPrefix string `mapstructure:"prompt_prefix"` // prepended to every user prompt
	Width        int    `mapstructure:"width"`         // requested source width
	Height       int    `mapstructure:"height"`        // requested source height
}

// OpenAI holds OpenAI Images API settings.
type OpenAI struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Size    string        `mapstructure:"size"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Replicate holds Replicate predictions API settings.
type Replicate struct {
	BaseURL  string        `mapstructure:"base_url"`
	APIToken string        `mapstructure:"api_token"`
	Model    string        `mapstructure:"model"`   // owner/name
	Version  string        `mapstructure:"version"` // optional pinned version id
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Poll defines how remote jobs are awaited.
type Poll struct {
	Attempts int           `mapstructure:"attempts"`  // Maximum number of status checks
	Delay    time.Duration `mapstructure:"delay"`     // Initial delay between checks
	Backoff  float64       `mapstructure:"backoff"`   // Multiplier applied to the delay
	MaxDelay time.Duration `mapstructure:"max_delay"` // Upper bound for a single delay
	Timeout  time.Duration `mapstructure:"timeout"`   // Overall deadline for one job
}

// Processor holds image post-processing settings.
type Processor struct {
	Mode             string  `mapstructure:"mode"` // cover, crop-pad or contain
	Width            int     `mapstructure:"width"`
	Height           int     `mapstructure:"height"`
	CropRatio        float64 `mapstructure:"crop_ratio"`
	JPEGQuality      int     `mapstructure:"jpeg_quality"`
	MaxDownloadBytes int64   `mapstructure:"max_download_bytes"`
	Watermark        string  `mapstructure:"watermark"`
	FontPath         string  `mapstructure:"font_path"`
}

// Gallery holds configuration of the bounded recency store.
type Gallery struct {
	Backend   string `mapstructure:"backend"` // "fs" or "minio"
	Dir       string `mapstructure:"dir"`
	Capacity  int    `mapstructure:"capacity"`
	URLPrefix string `mapstructure:"url_prefix"`
}

// Storage holds configuration for the object storage backend.
type Storage struct {
	Endpoint   string `mapstructure:"endpoint"`
	AccessKey  string `mapstructure:"access_key"`
	SecretKey  string `mapstructure:"secret_key"`
	BucketName string `mapstructure:"bucket_name"`
	Prefix     string `mapstructure:"prefix"`
	UseSSL     bool   `mapstructure:"use_ssl"`
}

// Jobs toggles the queue-backed generation API.
type Jobs struct {
	Enabled bool `mapstructure:"enabled"`
}

// Database holds database master and slave configuration.
type Database struct {
	Master DatabaseNode   `mapstructure:"master"`
	Slaves []DatabaseNode `mapstructure:"slaves"`

	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DatabaseNode holds connection parameters for a single database node.
type DatabaseNode struct {
	Host    string `mapstructure:"host"`
	Port    string `mapstructure:"port"`
	User    string `mapstructure:"user"`
	Pass    string `mapstructure:"pass"`
	Name    string `mapstructure:"name"`
	SSLMode string `mapstructure:"ssl_mode"`
}

// Kafka holds configuration for the Kafka message queue.
type Kafka struct {
	GroupID string   `mapstructure:"group_id"` // Consumer group ID
	Topic   string   `mapstructure:"topic"`    // Kafka topic name
	Brokers []string `mapstructure:"brokers"`  // List of Kafka broker addresses
}

// Retry defines retry policy configuration.
type Retry struct {
	Attempts int           `mapstructure:"attempts"` // Number of retry attempts
	Delay    time.Duration `mapstructure:"delay"`    // Initial delay between retries
	Backoff  float64       `mapstructure:"backoff"`  // Backoff multiplier for delays
}

// Addr returns the listen address. A bare port such as "3001" is
// turned into ":3001".
func (s Server) Addr() string {
	if s.HTTPPort == "" || strings.Contains(s.HTTPPort, ":") {
		return s.HTTPPort
	}

	return ":" + s.HTTPPort
}

// DSN returns the PostgreSQL DSN string for connecting to this database node.
func (n DatabaseNode) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		n.User, n.Pass, n.Host, n.Port, n.Name, n.SSLMode,
	)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_port", ":3001")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 6*time.Minute)

	v.SetDefault("generation.provider", "replicate")
	v.SetDefault("generation.prompt_prefix", "fine art painting style, ")
	v.SetDefault("generation.width", 1024)
	v.SetDefault("generation.height", 576)

	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.model", "dall-e-3")
	v.SetDefault("openai.size", "1792x1024")
	v.SetDefault("openai.timeout", 90*time.Second)

	v.SetDefault("replicate.base_url", "https://api.replicate.com/v1")
	v.SetDefault("replicate.model", "stability-ai/sdxl")
	v.SetDefault("replicate.timeout", 30*time.Second)

	v.SetDefault("poll.attempts", 150)
	v.SetDefault("poll.delay", 2*time.Second)
	v.SetDefault("poll.backoff", 1.0)
	v.SetDefault("poll.max_delay", 10*time.Second)
	v.SetDefault("poll.timeout", 5*time.Minute)

	v.SetDefault("processor.mode", "cover")
	v.SetDefault("processor.width", 1920)
	v.SetDefault("processor.height", 1080)
	v.SetDefault("processor.crop_ratio", 0.7)
	v.SetDefault("processor.jpeg_quality", 90)
	v.SetDefault("processor.max_download_bytes", 32<<20)

	v.SetDefault("gallery.backend", "fs")
	v.SetDefault("gallery.dir", "./public/gallery")
	v.SetDefault("gallery.capacity", 10)
	v.SetDefault("gallery.url_prefix", "/gallery")

	v.SetDefault("storage.bucket_name", "gallery")

	v.SetDefault("kafka.topic", "generation-requested")
	v.SetDefault("kafka.group_id", "ai-gallery")

	v.SetDefault("retry.attempts", 3)
	v.SetDefault("retry.delay", 500*time.Millisecond)
	v.SetDefault("retry.backoff", 2.0)
}

// bindEnv binds secrets and the listen port to their environment variables.
func bindEnv(v *viper.Viper) error {
	bindings := map[string]string{
		"server.http_port":     "PORT",
		"openai.api_key":       "OPENAI_API_KEY",
		"replicate.api_token":  "REPLICATE_API_TOKEN",
		"storage.access_key":   "MINIO_ACCESS_KEY",
		"storage.secret_key":   "MINIO_SECRET_KEY",
		"database.master.host": "DB_HOST",
		"database.master.port": "DB_PORT",
		"database.master.user": "DB_USER",
		"database.master.pass": "DB_PASSWORD",
		"database.master.name": "DB_NAME",
	}

	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	return nil
}

// Load reads the configuration file at path, applies defaults and
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	setDefaults(v)

	if err := bindEnv(v); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads the configuration from the specified file path.
// It panics if the configuration file cannot be loaded or unmarshaled.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		zlog.Logger.Panic().Err(err).Msg("failed to load config")
	}

	return cfg
}
