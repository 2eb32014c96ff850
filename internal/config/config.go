package config

import (
	"NetSeismic/internal/model"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultDataPort    = 7225
	DefaultControlPort = 7226
)

// SessionConfig holds the measurement parameters shared by both ends.
type SessionConfig struct {
	ChunkSize       int    `yaml:"chunk_size"`
	SampleFrequency string `yaml:"sample_frequency"`
	RunDuration     string `yaml:"run_duration"`
	Echo            bool   `yaml:"echo"`
	IdleTimeout     string `yaml:"idle_timeout"`
}

// ClientConfig holds the settings of the sending end.
type ClientConfig struct {
	Target         string `yaml:"target"`
	DataPort       int    `yaml:"data_port"`
	ControlPort    int    `yaml:"control_port"`
	ConnectTimeout string `yaml:"connect_timeout"`
	StartDelay     string `yaml:"start_delay"`
	// ControlCheck asks the server's control port for its health before sending.
	ControlCheck bool `yaml:"control_check"`
}

// LinkEmulationConfig throttles accepted data connections.
type LinkEmulationConfig struct {
	Enabled          bool `yaml:"enabled"`
	ReadBytesPerSec  int  `yaml:"read_bytes_per_sec"`
	WriteBytesPerSec int  `yaml:"write_bytes_per_sec"`
}

// SessionCacheConfig bounds the in-memory store of finished sessions.
type SessionCacheConfig struct {
	MaxSize int    `yaml:"max_size"`
	TTL     string `yaml:"ttl"`
}

// ServerConfig holds the settings of the receiving end.
type ServerConfig struct {
	ListenAddr    string              `yaml:"listen_addr"`
	DataPort      int                 `yaml:"data_port"`
	ControlPort   int                 `yaml:"control_port"`
	ReusePort     bool                `yaml:"reuse_port"`
	LinkEmulation LinkEmulationConfig `yaml:"link_emulation"`
	SessionCache  SessionCacheConfig  `yaml:"session_cache"`
	NumWorkers    int                 `yaml:"num_workers"`
	QueueSize     int                 `yaml:"queue_size"`
}

// APIConfig holds the HTTP API settings.
type APIConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// ClickHouseConfig holds the connection details for ClickHouse.
type ClickHouseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// RedisConfig holds the connection details for Redis.
type RedisConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	TLSEnabled bool   `yaml:"tls_enabled"`
	KeyPrefix  string `yaml:"key_prefix"`
	TTL        string `yaml:"ttl"`
}

// WriterDef defines a single report writer.
type WriterDef struct {
	Type       string           `yaml:"type"`
	Enabled    bool             `yaml:"enabled"`
	RootPath   string           `yaml:"root_path"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Redis      RedisConfig      `yaml:"redis"`
}

// NATSConfig holds the settings for live sample publishing.
type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// MetricsConfig holds the OTLP export settings. Prometheus metrics are always
// served by the API.
type MetricsConfig struct {
	OTelEnabled    bool   `yaml:"otel_enabled"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	ExportInterval string `yaml:"export_interval"`
	ServiceVersion string `yaml:"service_version"`
}

// AlerterRule defines a single threshold on finished sessions.
type AlerterRule struct {
	Name      string  `yaml:"name"`
	Role      string  `yaml:"role"`
	Metric    string  `yaml:"metric"`
	Operator  string  `yaml:"operator"`
	Threshold float64 `yaml:"threshold"`
}

// AlerterConfig holds the alerting rules.
type AlerterConfig struct {
	Enabled bool `yaml:"enabled"`
	// CheckInterval is how often triggered alerts are flushed as one notification.
	CheckInterval string        `yaml:"check_interval"`
	Rules         []AlerterRule `yaml:"rules"`
}

// SMTPConfig holds the mail relay used for alert notifications.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	To       string `yaml:"to"`
}

// LoggingConfig holds the file-level logging defaults; flags override them.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogDir  string `yaml:"log_dir"`
	LogName string `yaml:"log_name"`
}

// Config is the top-level configuration struct for every binary.
type Config struct {
	Session SessionConfig `yaml:"session"`
	Client  ClientConfig  `yaml:"client"`
	Server  ServerConfig  `yaml:"server"`
	API     APIConfig     `yaml:"api"`
	Writers []WriterDef   `yaml:"writers"`
	NATS    NATSConfig    `yaml:"nats"`
	Metrics MetricsConfig `yaml:"metrics"`
	Alerter AlerterConfig `yaml:"alerter"`
	SMTP    SMTPConfig    `yaml:"smtp"`
	Logging LoggingConfig `yaml:"logging"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Session: SessionConfig{
			ChunkSize:       1024,
			SampleFrequency: "200ms",
			RunDuration:     "5s",
			IdleTimeout:     "0s",
		},
		Client: ClientConfig{
			Target:         "127.0.0.1",
			DataPort:       DefaultDataPort,
			ControlPort:    DefaultControlPort,
			ConnectTimeout: "10s",
			StartDelay:     "3s",
		},
		Server: ServerConfig{
			ListenAddr:   "0.0.0.0",
			DataPort:     DefaultDataPort,
			ControlPort:  DefaultControlPort,
			SessionCache: SessionCacheConfig{MaxSize: 256, TTL: "1h"},
			NumWorkers:   2,
			QueueSize:    64,
		},
		API: APIConfig{
			Enabled:    true,
			ListenAddr: ":8080",
		},
		NATS: NATSConfig{
			URL:     "nats://127.0.0.1:4222",
			Subject: "seismic.samples",
		},
		Metrics: MetricsConfig{
			OTLPEndpoint:   "localhost:4317",
			ExportInterval: "10s",
			ServiceVersion: "dev",
		},
		Alerter: AlerterConfig{CheckInterval: "1m"},
		SMTP:    SMTPConfig{Port: 587},
		Logging: LoggingConfig{Level: "info"},
	}
}

// LoadConfig reads the configuration from a YAML file on top of the defaults,
// applies environment overrides and validates the result. An empty path falls
// back to $SEISMIC_CONFIG_FILE, then to the defaults alone.
func LoadConfig(filePath string) (*Config, error) {
	cfg := Default()

	if filePath == "" {
		filePath = GetEnv("SEISMIC_CONFIG_FILE", "")
	}

	if filePath != "" {
		data, err := os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Client.Target = GetEnv("SEISMIC_TARGET", c.Client.Target)
	c.Client.DataPort = GetEnvInt("SEISMIC_DATA_PORT", c.Client.DataPort)
	c.Server.DataPort = GetEnvInt("SEISMIC_DATA_PORT", c.Server.DataPort)
	c.Server.ControlPort = GetEnvInt("SEISMIC_CONTROL_PORT", c.Server.ControlPort)
	c.Client.ControlPort = GetEnvInt("SEISMIC_CONTROL_PORT", c.Client.ControlPort)
	c.Session.Echo = GetEnvBool("SEISMIC_ECHO", c.Session.Echo)
	c.NATS.URL = GetEnv("SEISMIC_NATS_URL", c.NATS.URL)
	c.Logging.Level = GetEnv("SEISMIC_LOG_LEVEL", c.Logging.Level)
}

// Validate checks that every duration parses and every port is usable.
func (c *Config) Validate() error {
	if _, err := c.Session.ToModel(); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	durations := map[string]string{
		"client.connect_timeout":   c.Client.ConnectTimeout,
		"client.start_delay":       c.Client.StartDelay,
		"server.session_cache.ttl": c.Server.SessionCache.TTL,
		"metrics.export_interval":  c.Metrics.ExportInterval,
		"alerter.check_interval":   c.Alerter.CheckInterval,
	}
	for name, value := range durations {
		if _, err := parseDuration(value); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	ports := map[string]int{
		"client.data_port":    c.Client.DataPort,
		"client.control_port": c.Client.ControlPort,
		"server.data_port":    c.Server.DataPort,
		"server.control_port": c.Server.ControlPort,
	}
	for name, port := range ports {
		if port <= 0 || port > 65535 {
			return fmt.Errorf("%s: port %d out of range", name, port)
		}
	}
	if c.Server.LinkEmulation.Enabled &&
		(c.Server.LinkEmulation.ReadBytesPerSec < 0 || c.Server.LinkEmulation.WriteBytesPerSec < 0) {
		return fmt.Errorf("server.link_emulation: rates must not be negative")
	}
	return nil
}

// ToModel converts the session section into the per-session configuration.
func (s SessionConfig) ToModel() (model.SessionConfig, error) {
	freq, err := parseDuration(s.SampleFrequency)
	if err != nil {
		return model.SessionConfig{}, fmt.Errorf("invalid sample_frequency: %w", err)
	}
	length, err := parseDuration(s.RunDuration)
	if err != nil {
		return model.SessionConfig{}, fmt.Errorf("invalid run_duration: %w", err)
	}
	idle, err := parseDuration(s.IdleTimeout)
	if err != nil {
		return model.SessionConfig{}, fmt.Errorf("invalid idle_timeout: %w", err)
	}
	cfg := model.SessionConfig{
		ChunkSize:       s.ChunkSize,
		SampleFrequency: freq,
		RunDuration:     length,
		Echo:            s.Echo,
		IdleTimeout:     idle,
	}
	return cfg, cfg.Validate()
}

// Duration parses a duration field, treating an empty string as zero.
func Duration(value string) time.Duration {
	d, _ := parseDuration(value)
	return d
}

func parseDuration(value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	return time.ParseDuration(value)
}
