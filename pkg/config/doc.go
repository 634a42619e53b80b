// Package config provides configuration management for vcutil.
//
// A run is described by a single Config organized into sections:
//   - Store: driver, connection parameters, session time zone
//   - Archive: table, sequence column, filter, upper bound, period, output template, prune
//   - Upload: optional S3 shipping of closed destinations
//   - Metrics, Log, Trace: observability
//   - Schedule: optional cron expression for repeated runs
//
// # Loading
//
// Values are merged with github.com/spf13/viper from, in increasing precedence:
// built-in defaults, a YAML file, VCUTIL_* environment variables, and flags.
// The YAML file may reference environment variables with ${VAR_NAME} syntax.
//
//	loader := config.NewLoader()
//	_ = loader.BindFlag("archive.table", cmd.Flags().Lookup("table"))
//	cfg, err := loader.Load("vcutil.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//
// # Example Configuration
//
//	store:
//	  driver: mysql
//	  host: db.internal
//	  user: archiver
//	  password: ${ARCHIVE_DB_PASSWORD}
//	  database: app
//	  time_zone: Europe/Berlin
//	archive:
//	  table: events
//	  column: created_at
//	  where: "kind <> 'audit'"
//	  until: -720h
//	  period: 1h
//	  output: /var/archive/events/%Y/%m/%d.csv.gz
//	  prune: true
//	  throttle: 0.5
package config
