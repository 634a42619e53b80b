package main

import (
	"github.com/spf13/pflag"

	"github.com/kamazee/vcutil/pkg/config"
)

// configFlags registers the flags that mirror config keys and binds them to
// the loader. Only flags given on the command line override the file.
type configFlags struct {
	path string
	set  *pflag.FlagSet
}

var flagKeys = []struct {
	name, key, usage string
	kind             string
}{
	{"driver", "store.driver", "Store driver (mysql, postgres)", "string"},
	{"dsn", "store.dsn", "Driver DSN; overrides host, port, user and database", "string"},
	{"host", "store.host", "Database host", "string"},
	{"port", "store.port", "Database port", "int"},
	{"user", "store.user", "Database user", "string"},
	{"database", "store.database", "Database name", "string"},
	{"time-zone", "store.time_zone", "Session time zone used for DST rules (SYSTEM keeps the server default)", "string"},
	{"table", "archive.table", "Table to archive", "string"},
	{"column", "archive.column", "Sequence column (date/time or integer)", "string"},
	{"where", "archive.where", "Extra SQL predicate ANDed into every query", "string"},
	{"until", "archive.until", "Exclusive upper bound: a date, an integer, or a duration relative to now (e.g. -720h)", "string"},
	{"period", "archive.period", "Window size: seconds or units (3600) or a duration (1h)", "string"},
	{"output", "archive.output", "Destination name template with strftime placeholders", "string"},
	{"prune", "archive.prune", "Delete every exported window", "bool"},
	{"dry-run", "archive.dry_run", "With --prune, log the deletes instead of issuing them", "bool"},
	{"throttle", "archive.throttle", "Pause between windows (0.5, 250ms)", "string"},
	{"bucket", "upload.bucket", "S3 bucket that receives closed destinations", "string"},
	{"prefix", "upload.prefix", "S3 key prefix", "string"},
	{"pushgateway", "metrics.pushgateway", "Prometheus Pushgateway URL", "string"},
	{"log-level", "log.level", "Log level (debug, info, warn, error)", "string"},
	{"trace", "trace.enabled", "Export spans to stderr", "bool"},
	{"schedule", "schedule", "Repeat the run on a cron expression until interrupted", "string"},
}

func addConfigFlags(set *pflag.FlagSet) *configFlags {
	cf := &configFlags{set: set}
	set.StringVarP(&cf.path, "config", "c", "", "Path to YAML configuration file")
	for _, f := range flagKeys {
		switch f.kind {
		case "int":
			set.Int(f.name, 0, f.usage)
		case "bool":
			set.Bool(f.name, false, f.usage)
		default:
			set.String(f.name, "", f.usage)
		}
	}
	return cf
}

func (cf *configFlags) loader() (*config.Loader, error) {
	l := config.NewLoader()
	for _, f := range flagKeys {
		flag := cf.set.Lookup(f.name)
		if flag == nil || !flag.Changed {
			continue
		}
		if err := l.BindFlag(f.key, flag); err != nil {
			return nil, err
		}
	}
	return l, nil
}

func (cf *configFlags) load() (*config.Config, error) {
	l, err := cf.loader()
	if err != nil {
		return nil, err
	}
	return l.Load(cf.path)
}
