// Package config handles loading and validating exporter configuration.
// Settings come from an optional YAML file, DB_* / MAILMAN_* environment
// variables and command-line flags, in increasing order of precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ExporterConfig holds the HTTP exposition settings.
type ExporterConfig struct {
	ListenAddr    string `yaml:"listen_addr"`
	ListenPort    int    `yaml:"listen_port"`
	ScrapeTimeout string `yaml:"scrape_timeout"`
}

// DatabaseConfig holds the PostgreSQL connection settings for the
// mailing-list platform's database. RawDSN, when set, wins over the
// individual fields.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	RawDSN   string `yaml:"dsn"`
}

// Config is the root configuration structure.
type Config struct {
	Exporter ExporterConfig `yaml:"exporter"`
	Database DatabaseConfig `yaml:"database"`
}

// Load reads the optional YAML configuration file, applies environment
// variable overrides and fills in defaults. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// applyEnv overrides file values with the environment variables the
// exporter has always honored.
func (c *Config) applyEnv() error {
	if v := os.Getenv("MAILMAN_DB_DSN"); v != "" {
		c.Database.RawDSN = v
	}
	if v := os.Getenv("DB_HOST"); v != "" {
		c.Database.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("DB_PORT: %w", err)
		}
		c.Database.Port = port
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		c.Database.Name = v
	}
	if v := os.Getenv("DB_USER"); v != "" {
		c.Database.User = v
	}
	if v := os.Getenv("DB_PASS"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("MAILMAN_EXPORTER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MAILMAN_EXPORTER_PORT: %w", err)
		}
		c.Exporter.ListenPort = port
	}
	return nil
}

// applyDefaults fills in reasonable defaults for unset optional fields.
func (c *Config) applyDefaults() {
	if c.Exporter.ListenAddr == "" {
		c.Exporter.ListenAddr = "0.0.0.0"
	}
	if c.Exporter.ListenPort == 0 {
		c.Exporter.ListenPort = 9934
	}
	if c.Exporter.ScrapeTimeout == "" {
		c.Exporter.ScrapeTimeout = "10s"
	}
	if c.Database.Host == "" {
		c.Database.Host = "localhost"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.Name == "" {
		c.Database.Name = "mailman"
	}
	if c.Database.User == "" {
		c.Database.User = "mailman"
	}
}

// validate checks mandatory fields.
func (c *Config) validate() error {
	if c.Exporter.ListenPort < 1 || c.Exporter.ListenPort > 65535 {
		return fmt.Errorf("exporter.listen_port %d out of range", c.Exporter.ListenPort)
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("database.port %d out of range", c.Database.Port)
	}
	return nil
}

// ListenAddress returns the host:port the HTTP server binds to.
func (c *Config) ListenAddress() string {
	return fmt.Sprintf("%s:%d", c.Exporter.ListenAddr, c.Exporter.ListenPort)
}

// DSN returns the PostgreSQL connection string. A raw DSN (flag, env or
// file) is passed through untouched; otherwise a keyword/value conninfo
// is assembled from the individual fields with a 10 second connect
// timeout, matching the defaults the platform itself ships with.
func (c *Config) DSN() string {
	if c.Database.RawDSN != "" {
		return c.Database.RawDSN
	}

	parts := []string{
		"host=" + quoteConninfo(c.Database.Host),
		"port=" + strconv.Itoa(c.Database.Port),
		"dbname=" + quoteConninfo(c.Database.Name),
		"user=" + quoteConninfo(c.Database.User),
		"connect_timeout=10",
	}
	if c.Database.Password != "" {
		parts = append(parts, "password="+quoteConninfo(c.Database.Password))
	}
	return strings.Join(parts, " ")
}

// RedactedDSN is the DSN with the password masked, safe for logging.
func (c *Config) RedactedDSN() string {
	if c.Database.RawDSN != "" {
		return "<raw dsn, redacted>"
	}
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=<redacted>",
		c.Database.Host, c.Database.Port, c.Database.Name, c.Database.User)
}

// quoteConninfo quotes a conninfo value when it contains characters that
// would break keyword/value parsing. Single quotes and backslashes are
// escaped with a backslash.
func quoteConninfo(v string) string {
	if v != "" && !strings.ContainsAny(v, " '\\") {
		return v
	}
	var b strings.Builder
	b.WriteByte('\'')
	for _, r := range v {
		if r == '\'' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('\'')
	return b.String()
}
