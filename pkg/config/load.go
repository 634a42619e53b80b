package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. VCUTIL_STORE_PASSWORD.
const EnvPrefix = "VCUTIL"

// Loader merges defaults, an optional YAML file, environment variables and
// command-line flags, in increasing order of precedence.
type Loader struct {
	v *viper.Viper
}

// NewLoader returns a loader seeded with Default().
func NewLoader() *Loader {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := Default()
	v.SetDefault("store.driver", def.Store.Driver)
	v.SetDefault("store.dsn", def.Store.DSN)
	v.SetDefault("store.host", def.Store.Host)
	v.SetDefault("store.port", def.Store.Port)
	v.SetDefault("store.user", def.Store.User)
	v.SetDefault("store.password", def.Store.Password)
	v.SetDefault("store.database", def.Store.Database)
	v.SetDefault("store.time_zone", def.Store.TimeZone)
	v.SetDefault("store.connect_timeout", def.Store.ConnectTimeout)
	v.SetDefault("archive.table", def.Archive.Table)
	v.SetDefault("archive.column", def.Archive.Column)
	v.SetDefault("archive.where", def.Archive.Where)
	v.SetDefault("archive.until", def.Archive.Until)
	v.SetDefault("archive.period", def.Archive.Period)
	v.SetDefault("archive.output", def.Archive.Output)
	v.SetDefault("archive.prune", def.Archive.Prune)
	v.SetDefault("archive.dry_run", def.Archive.DryRun)
	v.SetDefault("archive.throttle", def.Archive.Throttle)
	v.SetDefault("upload.bucket", def.Upload.Bucket)
	v.SetDefault("upload.prefix", def.Upload.Prefix)
	v.SetDefault("upload.region", def.Upload.Region)
	v.SetDefault("upload.endpoint", def.Upload.Endpoint)
	v.SetDefault("upload.path_style", def.Upload.PathStyle)
	v.SetDefault("metrics.pushgateway", def.Metrics.Pushgateway)
	v.SetDefault("metrics.job", def.Metrics.Job)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.encoding", def.Log.Encoding)
	v.SetDefault("log.development", def.Log.Development)
	v.SetDefault("trace.enabled", def.Trace.Enabled)
	v.SetDefault("schedule", def.Schedule)

	return &Loader{v: v}
}

// BindFlag makes an explicitly set flag override the config key.
func (l *Loader) BindFlag(key string, flag *pflag.Flag) error {
	if flag == nil {
		return fmt.Errorf("no flag bound for %s", key)
	}
	return l.v.BindPFlag(key, flag)
}

// Load reads the optional YAML file at path and returns the merged, validated config.
func (l *Loader) Load(path string) (*Config, error) {
	cfg, err := l.Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Read is Load without validation.
func (l *Loader) Read(path string) (*Config, error) {
	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the operator
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		content := substituteEnvVars(string(data))
		if err := l.v.ReadConfig(bytes.NewBufferString(content)); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	}

	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// Render returns cfg as YAML.
func Render(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal YAML: %w", err)
	}
	return data, nil
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values
func substituteEnvVars(content string) string {
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		varName := content[start+2 : end]
		envValue := os.Getenv(varName)
		content = content[:start] + envValue + content[end+1:]
	}
	return content
}
