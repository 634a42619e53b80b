package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config is the complete configuration of a vcutil run.
type Config struct {
	// Store describes how to reach the database holding the table
	Store StoreConfig `mapstructure:"store" yaml:"store" json:"store"`

	// Archive describes what to export and whether to prune it
	Archive ArchiveConfig `mapstructure:"archive" yaml:"archive" json:"archive"`

	// Upload optionally ships closed destinations to object storage
	Upload UploadConfig `mapstructure:"upload" yaml:"upload" json:"upload"`

	// Metrics optionally pushes run metrics to a Prometheus Pushgateway
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics" json:"metrics"`

	// Log configures the zap logger
	Log LogConfig `mapstructure:"log" yaml:"log" json:"log"`

	// Trace configures OpenTelemetry tracing
	Trace TraceConfig `mapstructure:"trace" yaml:"trace" json:"trace"`

	// Schedule repeats the run on a cron expression when set
	Schedule string `mapstructure:"schedule" yaml:"schedule" json:"schedule"`
}

// StoreConfig holds database connection parameters.
type StoreConfig struct {
	// Driver is "mysql" or "postgres"
	Driver string `mapstructure:"driver" yaml:"driver" json:"driver"`
	// DSN, if provided, takes precedence over the individual fields
	DSN      string `mapstructure:"dsn" yaml:"dsn" json:"dsn"`
	Host     string `mapstructure:"host" yaml:"host" json:"host"`
	Port     int    `mapstructure:"port" yaml:"port" json:"port"`
	User     string `mapstructure:"user" yaml:"user" json:"user"`
	Password string `mapstructure:"password" yaml:"password" json:"password"`
	Database string `mapstructure:"database" yaml:"database" json:"database"`
	// TimeZone is the session time zone; DST rules for temporal columns come from it
	TimeZone string `mapstructure:"time_zone" yaml:"time_zone" json:"time_zone"`
	// ConnectTimeout bounds connection establishment
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout" json:"connect_timeout"`
	// Params are extra driver parameters
	Params map[string]string `mapstructure:"params" yaml:"params" json:"params"`
}

// ArchiveConfig describes a single extraction/prune run.
type ArchiveConfig struct {
	Table  string `mapstructure:"table" yaml:"table" json:"table"`
	Column string `mapstructure:"column" yaml:"column" json:"column"`
	// Where is an extra SQL predicate ANDed into every query
	Where string `mapstructure:"where" yaml:"where" json:"where"`
	// Until is an exclusive upper bound on the column, or a duration relative to now
	Until string `mapstructure:"until" yaml:"until" json:"until"`
	// Period is the window size: seconds/units ("3600") or a duration ("1h")
	Period string `mapstructure:"period" yaml:"period" json:"period"`
	// Output is the destination name template (strftime placeholders)
	Output string `mapstructure:"output" yaml:"output" json:"output"`
	// Prune deletes each exported window
	Prune bool `mapstructure:"prune" yaml:"prune" json:"prune"`
	// DryRun exports but only logs the deletes it would issue
	DryRun bool `mapstructure:"dry_run" yaml:"dry_run" json:"dry_run"`
	// Throttle is the pause between windows: a duration ("250ms") or fractional seconds ("0.5")
	Throttle string `mapstructure:"throttle" yaml:"throttle" json:"throttle"`
}

// UploadConfig configures shipping of closed destinations to S3.
type UploadConfig struct {
	Bucket    string `mapstructure:"bucket" yaml:"bucket" json:"bucket"`
	Prefix    string `mapstructure:"prefix" yaml:"prefix" json:"prefix"`
	Region    string `mapstructure:"region" yaml:"region" json:"region"`
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint" json:"endpoint"`
	PathStyle bool   `mapstructure:"path_style" yaml:"path_style" json:"path_style"`
}

// Enabled reports whether uploads are configured.
func (u UploadConfig) Enabled() bool { return u.Bucket != "" }

// MetricsConfig configures metric delivery.
type MetricsConfig struct {
	Pushgateway string `mapstructure:"pushgateway" yaml:"pushgateway" json:"pushgateway"`
	Job         string `mapstructure:"job" yaml:"job" json:"job"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level       string `mapstructure:"level" yaml:"level" json:"level"`
	Encoding    string `mapstructure:"encoding" yaml:"encoding" json:"encoding"`
	Development bool   `mapstructure:"development" yaml:"development" json:"development"`
}

// TraceConfig configures tracing.
type TraceConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
}

// Default returns a configuration populated with defaults.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Driver:         "mysql",
			Host:           "localhost",
			TimeZone:       "SYSTEM",
			ConnectTimeout: 10 * time.Second,
		},
		Archive: ArchiveConfig{
			Period:   "3600",
			Output:   "%Y-%m-%d.csv",
			Throttle: "0",
		},
		Metrics: MetricsConfig{
			Job: "vcutil",
		},
		Log: LogConfig{
			Level:    "info",
			Encoding: "console",
		},
	}
}

// Validate checks required fields and value ranges that need no I/O.
// Domain-dependent checks (period kind, template placeholders) happen when
// the archiver is built and again once the domain is probed.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "mysql", "postgres":
	default:
		return fmt.Errorf("store.driver must be mysql or postgres, got %q", c.Store.Driver)
	}
	if c.Store.DSN == "" && c.Store.Host == "" {
		return fmt.Errorf("store.host or store.dsn is required")
	}
	if c.Store.Port < 0 || c.Store.Port > 65535 {
		return fmt.Errorf("store.port out of range: %d", c.Store.Port)
	}
	if strings.TrimSpace(c.Archive.Table) == "" {
		return fmt.Errorf("archive.table is required")
	}
	if strings.TrimSpace(c.Archive.Column) == "" {
		return fmt.Errorf("archive.column is required")
	}
	if strings.TrimSpace(c.Archive.Output) == "" {
		return fmt.Errorf("archive.output is required")
	}
	if _, err := c.Archive.ThrottleDuration(); err != nil {
		return err
	}
	if c.Archive.DryRun && !c.Archive.Prune {
		return fmt.Errorf("archive.dry_run only makes sense together with archive.prune")
	}
	return nil
}

// ThrottleDuration parses the throttle setting.
func (a ArchiveConfig) ThrottleDuration() (time.Duration, error) {
	return ParseDelay(a.Throttle)
}

// ParseDelay accepts a Go duration ("250ms") or fractional seconds ("0.25").
func ParseDelay(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		if secs < 0 {
			return 0, fmt.Errorf("throttle cannot be negative: %q", s)
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid throttle %q: %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("throttle cannot be negative: %q", s)
	}
	return d, nil
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() *Config {
	out := *c
	if out.Store.Password != "" {
		out.Store.Password = "******"
	}
	if out.Store.DSN != "" {
		out.Store.DSN = redactDSN(out.Store.DSN)
	}
	return &out
}

// redactDSN hides the password part of user:password@host style DSNs.
func redactDSN(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	if at < 0 {
		return dsn
	}
	head := dsn[:at]
	scheme := ""
	if i := strings.Index(head, "://"); i >= 0 {
		scheme, head = head[:i+3], head[i+3:]
	}
	colon := strings.Index(head, ":")
	if colon < 0 {
		return dsn
	}
	return scheme + head[:colon] + ":******" + dsn[at:]
}
