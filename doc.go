// Package vcutil archives old rows out of a live SQL table in small,
// predictable pieces.
//
// A run walks the table along one sequence column, either a date/time or an
// integer, in fixed-size windows. Every window's rows are appended to a
// destination file whose name comes from a strftime template, and with
// pruning enabled exactly those rows are deleted once the file has been
// synced. The column's maximum is captured once at the start of the run, so
// rows written while the run is going are left for the next one.
//
// # Quick Start
//
//	vcutil archive \
//	    --driver mysql --host db.internal --user archiver --ask-password \
//	    --database app --table events --column created_at \
//	    --period 1h --until -720h \
//	    --output 'archive/events/%Y/%m/%d.csv.gz' --prune
//
// The same settings can live in a YAML file (see pkg/config) and be overridden
// by VCUTIL_* environment variables and flags:
//
//	store:
//	  driver: postgres
//	  host: db.internal
//	  password: ${DB_PASSWORD}
//	archive:
//	  table: events
//	  column: id
//	  period: "100000"
//	  output: archive/events.csv.zst
//	  prune: true
//	  throttle: 0.5
//	schedule: "0 3 * * *"
//
// # Key Packages
//
//	internal/bounds      - Probes the minimum and maximum of the sequence column
//	internal/window      - Window arithmetic: alignment, advancing, skipping gaps
//	internal/dst         - Widens window lower bounds across DST transitions
//	internal/codec       - The record format written to destinations
//	internal/archiver    - The extraction/prune loop
//	internal/store       - MySQL and PostgreSQL access with a validating decoder
//	internal/destination - Append-only, optionally compressed files and S3 upload
//	internal/schedule    - Cron-driven repeated runs
//	pkg/config           - Configuration loading (YAML, env, flags)
//	pkg/vcerrors         - Structured error handling
//	pkg/logger           - Structured logging
//	pkg/metrics          - Prometheus run metrics
//	pkg/observability    - OpenTelemetry tracing
//
// # Record Format
//
// Destinations hold comma-separated records, one per line, headed by the
// quoted column names when the file is new. Text and dates are double-quoted
// with inner quotes doubled, numbers are bare, NULL is the bare word NULL and
// binary values are written as 0x followed by uppercase hex. Files whose name
// ends in .gz, .zst or .lz4 are compressed; each run appends a new member so
// the file remains a valid stream.
//
// # Safety
//
// The read and the delete of a window share one predicate and one set of
// bound parameters. A delete is issued only after the window's rows have been
// written and synced, and it runs in a transaction that is rolled back if it
// would remove more rows than were exported. Any error stops the run; the
// error carries the last fully completed window so an operator can resume.
package vcutil
