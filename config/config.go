// Package config provides YAML configuration parsing for the badgesink
// command.
//
// Example configuration:
//
//	base_url: https://api.example.com
//	app_id: ${BADGE_APP_ID}
//	secret: ${BADGE_SECRET}
//	backoff: 5s
//	request_timeout: 30s
//	location: Europe/Paris
//
//	http:
//	  addr: ":8080"
//	  recent_events: 500
//
//	forward:
//	  log: true
//	  nats:
//	    url: nats://localhost:4222
//	    subject_prefix: badges
//	  sql:
//	    driver: sqlite3
//	    dsn: badges.db
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	defaultBackoff        = 5 * time.Second
	defaultRequestTimeout = 30 * time.Second
	defaultRecentEvents   = 500
	defaultHTTPAddr       = ":8080"
)

// Config is the root configuration structure for the badgesink command.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// BaseURL is the badge API root, e.g. https://api.example.com.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	BaseURL string `yaml:"base_url" validate:"required,url"`

	// AppID and Secret are exchanged for access tokens.
	// Both support environment variable substitution.
	AppID  string `yaml:"app_id" validate:"required"`
	Secret string `yaml:"secret" validate:"required"`

	// Backoff is the pause after a poll that returned no events.
	// Defaults to 5s.
	Backoff Duration `yaml:"backoff" validate:"gte=0"`

	// RequestTimeout bounds each call to the badge API. Defaults to 30s.
	RequestTimeout Duration `yaml:"request_timeout" validate:"gte=0"`

	// ReuseToken keeps the access token between polls instead of
	// requesting a new one each time.
	ReuseToken bool `yaml:"reuse_token"`

	// Location is the IANA time zone of the badge API's timestamps.
	// Defaults to the process's local zone.
	Location string `yaml:"location"`

	// LogLevel is one of debug, info, warn, error. Defaults to info.
	LogLevel string `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`

	HTTP    HTTPConfig    `yaml:"http"`
	Forward ForwardConfig `yaml:"forward"`
}

// HTTPConfig configures the status and events API.
type HTTPConfig struct {
	// Addr is the listen address. Defaults to ":8080".
	Addr string `yaml:"addr"`

	// RecentEvents is how many delivered events are kept for /api/events
	// and new SSE clients. Defaults to 500.
	RecentEvents int `yaml:"recent_events" validate:"gte=0"`
}

// ForwardConfig selects where delivered events are sent besides the
// in-memory store.
type ForwardConfig struct {
	// Log writes each event to the log.
	Log bool `yaml:"log"`

	NATS *NATSConfig `yaml:"nats" validate:"omitempty"`
	SQL  *SQLConfig  `yaml:"sql" validate:"omitempty"`
}

// NATSConfig configures the NATS forwarder.
type NATSConfig struct {
	URL string `yaml:"url" validate:"required"`

	// SubjectPrefix defaults to "badges".
	SubjectPrefix string `yaml:"subject_prefix"`
}

// SQLConfig configures the SQL forwarder.
type SQLConfig struct {
	// Driver is "sqlite3" or "pgx".
	Driver string `yaml:"driver" validate:"required,oneof=sqlite3 pgx"`
	DSN    string `yaml:"dsn" validate:"required"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// TimeLocation resolves Location. An empty value is time.Local.
func (c *Config) TimeLocation() (*time.Location, error) {
	if c.Location == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Location)
}

// SlogLevel returns LogLevel as a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// already have an error, skip processing
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in the file are expanded before validation.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in base_url, app_id, secret, the NATS
// url and the SQL dsn. Defaults are applied for backoff (5s),
// request_timeout (30s), http.addr (":8080") and http.recent_events (500).
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := cfg.expand(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	return &cfg, nil
}

// expand substitutes environment variables in the fields that allow it.
func (c *Config) expand() error {
	fields := []struct {
		name string
		ptr  *string
	}{
		{"base_url", &c.BaseURL},
		{"app_id", &c.AppID},
		{"secret", &c.Secret},
	}
	if c.Forward.NATS != nil {
		fields = append(fields, struct {
			name string
			ptr  *string
		}{"forward.nats.url", &c.Forward.NATS.URL})
	}
	if c.Forward.SQL != nil {
		fields = append(fields, struct {
			name string
			ptr  *string
		}{"forward.sql.dsn", &c.Forward.SQL.DSN})
	}

	for _, f := range fields {
		expanded, err := expandEnvVars(*f.ptr)
		if err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
		*f.ptr = expanded
	}
	return nil
}

var structValidator = validator.New(validator.WithRequiredStructEnabled())

// validate checks struct tags, then the rules tags cannot express.
func (c *Config) validate() error {
	if err := structValidator.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return formatValidationErrors(verrs)
		}
		return err
	}

	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base_url scheme must be http or https, got %q", u.Scheme)
	}

	if _, err := c.TimeLocation(); err != nil {
		return fmt.Errorf("location: %w", err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Backoff == 0 {
		c.Backoff = Duration(defaultBackoff)
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = Duration(defaultRequestTimeout)
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = defaultHTTPAddr
	}
	if c.HTTP.RecentEvents == 0 {
		c.HTTP.RecentEvents = defaultRecentEvents
	}
}

// yamlFieldNames maps struct field names to their YAML keys for messages.
var yamlFieldNames = map[string]string{
	"BaseURL":        "base_url",
	"AppID":          "app_id",
	"Secret":         "secret",
	"Backoff":        "backoff",
	"RequestTimeout": "request_timeout",
	"LogLevel":       "log_level",
	"RecentEvents":   "recent_events",
	"URL":            "url",
	"Driver":         "driver",
	"DSN":            "dsn",
}

// formatValidationErrors turns validator errors into "field: rule" lines.
func formatValidationErrors(verrs validator.ValidationErrors) error {
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		// namespace is "Config.Forward.SQL.Driver"; drop the root type
		parts := strings.Split(fe.StructNamespace(), ".")[1:]
		for i, p := range parts {
			if name, ok := yamlFieldNames[p]; ok {
				parts[i] = name
			} else {
				parts[i] = strings.ToLower(p)
			}
		}
		field := strings.Join(parts, ".")

		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", field))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fe.Value()))
		case "url":
			msgs = append(msgs, fmt.Sprintf("%s must be an absolute URL, got %q", field, fe.Value()))
		case "gte":
			msgs = append(msgs, fmt.Sprintf("%s cannot be negative", field))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %q validation", field, fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}
