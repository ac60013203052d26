package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

//go:generate go run ../../cmd/schema -o schema.json

// Config holds the application configuration
type Config struct {
	Server struct {
		Listen     string        `yaml:"listen" json:"listen" jsonschema:"default=:8080,description=HTTP server listen address"`
		Timeout    time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=30s,description=HTTP server timeout"`
		PingPeriod time.Duration `yaml:"ping_period" json:"ping_period" jsonschema:"default=30s,description=Websocket keepalive ping period"`
	} `yaml:"server" json:"server" jsonschema:"description=Server configuration"`

	Remote RemoteConfig `yaml:"remote" json:"remote" jsonschema:"description=Broker admin API"`

	Refresh RefreshConfig `yaml:"refresh" json:"refresh" jsonschema:"description=Auto-refresh settings"`

	History struct {
		DSN       string        `yaml:"dsn" json:"dsn" jsonschema:"description=Statistics history sqlite database; history is kept in memory only if empty"`
		Size      int           `yaml:"size" json:"size" jsonschema:"default=100,minimum=1,description=Number of statistics samples kept in memory"`
		Retention time.Duration `yaml:"retention" json:"retention" jsonschema:"default=24h,description=Persisted samples older than this are pruned"`
	} `yaml:"history" json:"history" jsonschema:"description=Broker statistics history"`

	View struct {
		PageSize int `yaml:"page_size" json:"page_size" jsonschema:"default=25,minimum=1,description=Default table page size"`
	} `yaml:"view" json:"view" jsonschema:"description=Table view defaults"`
}

// RemoteConfig holds broker admin API settings
type RemoteConfig struct {
	URL       string        `yaml:"url" json:"url" jsonschema:"default=http://localhost:8161/api/v1,description=Base URL of the broker admin REST API"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=30s,description=Timeout of a single remote call"`
	User      string        `yaml:"user" json:"user" jsonschema:"description=Basic auth user"`
	Password  string        `yaml:"password" json:"password" jsonschema:"description=Basic auth password (can use environment variable)"`
	RateLimit float64       `yaml:"rate_limit" json:"rate_limit" jsonschema:"default=20,description=Maximum requests per second to the broker, negative disables limiting"`
	Burst     int           `yaml:"burst" json:"burst" jsonschema:"default=10,description=Request burst size"`
}

// RefreshConfig holds the global auto-refresh settings and per-feature fetch options
type RefreshConfig struct {
	Enabled  *bool         `yaml:"enabled" json:"enabled" jsonschema:"default=true,description=Start polling on launch"`
	Interval time.Duration `yaml:"interval" json:"interval" jsonschema:"default=5s,description=Default polling interval"`

	Broker struct {
		Interval   time.Duration `yaml:"interval" json:"interval" jsonschema:"description=Broker polling interval, refresh.interval if not set"`
		Statistics bool          `yaml:"statistics" json:"statistics" jsonschema:"default=true,description=Fetch broker statistics"`
		Health     bool          `yaml:"health" json:"health" jsonschema:"default=true,description=Fetch broker health"`
	} `yaml:"broker" json:"broker"`

	Destinations struct {
		Interval time.Duration `yaml:"interval" json:"interval" jsonschema:"description=Destinations polling interval, refresh.interval if not set"`
		Type     string        `yaml:"type" json:"type" jsonschema:"default=both,enum=queue,enum=topic,enum=both,description=Destination kinds to poll"`
		PageSize int           `yaml:"page_size" json:"page_size" jsonschema:"default=20,description=Remote list page size"`
	} `yaml:"destinations" json:"destinations"`

	Connections struct {
		Interval time.Duration `yaml:"interval" json:"interval" jsonschema:"description=Connections polling interval, refresh.interval if not set"`
	} `yaml:"connections" json:"connections"`

	Messages struct {
		Interval time.Duration `yaml:"interval" json:"interval" jsonschema:"description=Message browse polling interval, refresh.interval if not set"`
		PageSize int           `yaml:"page_size" json:"page_size" jsonschema:"default=50,description=Remote browse page size"`
	} `yaml:"messages" json:"messages"`

	Details struct {
		Interval time.Duration `yaml:"interval" json:"interval" jsonschema:"description=Polling interval of opened queue, topic, connection, subscriber and message details, refresh.interval if not set"`
	} `yaml:"details" json:"details"`
}

// IsEnabled reports whether polling starts on launch
func (r RefreshConfig) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// GetServerConfig returns listen address, server timeout and websocket ping period
func (c *Config) GetServerConfig() (listen string, timeout, pingPeriod time.Duration) {
	return c.Server.Listen, c.Server.Timeout, c.Server.PingPeriod
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // file path comes from CLI flag
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse reads configuration from YAML data, applies defaults and validates the result
func Parse(data []byte) (*Config, error) {
	// expand environment variables
	expanded := os.ExpandEnv(string(data))

	// statistics and health are on unless turned off explicitly
	var cfg Config
	cfg.Refresh.Broker.Statistics = true
	cfg.Refresh.Broker.Health = true
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	// verify against embedded schema
	if err := VerifyAgainstEmbeddedSchema(&cfg); err != nil {
		return nil, fmt.Errorf("verify config: %w", err)
	}

	return &cfg, nil
}

// Default returns configuration with all defaults set, used when no config file is given
func Default() *Config {
	cfg, err := Parse(nil)
	if err != nil {
		panic(fmt.Sprintf("default config is invalid: %v", err)) // can't happen unless defaults are broken
	}
	return cfg
}

func (c *Config) setDefaults() {
	// server
	if c.Server.Listen == "" {
		c.Server.Listen = ":8080"
	}
	if c.Server.Timeout == 0 {
		c.Server.Timeout = 30 * time.Second
	}
	if c.Server.PingPeriod == 0 {
		c.Server.PingPeriod = 30 * time.Second
	}

	// remote
	if c.Remote.URL == "" {
		c.Remote.URL = "http://localhost:8161/api/v1"
	}
	if c.Remote.Timeout == 0 {
		c.Remote.Timeout = 30 * time.Second
	}
	if c.Remote.RateLimit == 0 {
		c.Remote.RateLimit = 20
	}
	if c.Remote.Burst == 0 {
		c.Remote.Burst = 10
	}

	// refresh
	if c.Refresh.Interval == 0 {
		c.Refresh.Interval = 5 * time.Second
	}
	for _, d := range []*time.Duration{&c.Refresh.Broker.Interval, &c.Refresh.Destinations.Interval,
		&c.Refresh.Connections.Interval, &c.Refresh.Messages.Interval, &c.Refresh.Details.Interval} {
		if *d == 0 {
			*d = c.Refresh.Interval
		}
	}
	if c.Refresh.Destinations.Type == "" {
		c.Refresh.Destinations.Type = "both"
	}
	if c.Refresh.Destinations.PageSize == 0 {
		c.Refresh.Destinations.PageSize = 20
	}
	if c.Refresh.Messages.PageSize == 0 {
		c.Refresh.Messages.PageSize = 50
	}

	// history
	if c.History.Size == 0 {
		c.History.Size = 100
	}
	if c.History.Retention == 0 {
		c.History.Retention = 24 * time.Hour
	}

	// view
	if c.View.PageSize == 0 {
		c.View.PageSize = 25
	}
}

// validate checks configuration for correctness
func validate(cfg *Config) error {
	// validate server config
	if cfg.Server.Timeout < time.Second {
		return fmt.Errorf("server timeout must be at least 1 second")
	}

	// validate remote config
	u, err := url.Parse(cfg.Remote.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("remote.url must be an absolute http(s) url, got %q", cfg.Remote.URL)
	}
	if cfg.Remote.Timeout < 100*time.Millisecond {
		return fmt.Errorf("remote.timeout must be at least 100ms")
	}

	// validate refresh config
	for name, d := range map[string]time.Duration{
		"refresh.interval":              cfg.Refresh.Interval,
		"refresh.broker.interval":       cfg.Refresh.Broker.Interval,
		"refresh.destinations.interval": cfg.Refresh.Destinations.Interval,
		"refresh.connections.interval":  cfg.Refresh.Connections.Interval,
		"refresh.messages.interval":     cfg.Refresh.Messages.Interval,
		"refresh.details.interval":      cfg.Refresh.Details.Interval,
	} {
		if d < 100*time.Millisecond {
			return fmt.Errorf("%s must be at least 100ms", name)
		}
	}
	switch cfg.Refresh.Destinations.Type {
	case "queue", "topic", "both":
	default:
		return fmt.Errorf("refresh.destinations.type must be queue, topic or both, got %q", cfg.Refresh.Destinations.Type)
	}
	if cfg.Refresh.Destinations.PageSize < 1 || cfg.Refresh.Messages.PageSize < 1 {
		return fmt.Errorf("remote page sizes must be positive")
	}

	// validate history and view
	if cfg.History.Size < 1 {
		return fmt.Errorf("history.size must be at least 1")
	}
	if cfg.History.Retention < 0 {
		return fmt.Errorf("history.retention must be non-negative")
	}
	if cfg.View.PageSize < 1 {
		return fmt.Errorf("view.page_size must be at least 1")
	}

	return nil
}
