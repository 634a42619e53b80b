package store

import (
	"context"
	"database/sql"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/kamazee/vcutil/pkg/config"
	"github.com/kamazee/vcutil/pkg/vcerrors"
)

// Open connects to the configured database and verifies the connection.
//
// The pool is limited to a single connection: the session time zone decides
// how wall-clock bounds map to real instants, and every statement of a run
// must see the same session.
func Open(ctx context.Context, cfg config.StoreConfig, log *zap.Logger) (*SQLStore, error) {
	dialect, err := DialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}

	var db *sql.DB
	switch dialect.(type) {
	case MySQL:
		mc, err := MySQLConfig(cfg)
		if err != nil {
			return nil, err
		}
		connector, err := mysql.NewConnector(mc)
		if err != nil {
			return nil, vcerrors.Wrap(err, vcerrors.ErrorTypeConfig, "invalid mysql configuration")
		}
		db = sql.OpenDB(connector)
	case Postgres:
		pc, err := PostgresConfig(cfg)
		if err != nil {
			return nil, err
		}
		db = stdlib.OpenDB(*pc, stdlib.OptionAfterConnect(scanInSessionZone))
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(30 * time.Minute)

	pingCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, vcerrors.Wrap(err, vcerrors.ErrorTypeConnection, "failed to connect").
			WithDetail("driver", dialect.Name())
	}

	if log != nil {
		log.Info("Connected to database",
			zap.String("driver", dialect.Name()),
			zap.String("time_zone", cfg.TimeZone))
	}
	return NewSQLStore(db, dialect), nil
}

// MySQLConfig builds the driver configuration. Temporal values are fetched
// as text so that they keep the wall clock stored in the table, and the
// session time_zone is set from the configuration.
func MySQLConfig(cfg config.StoreConfig) (*mysql.Config, error) {
	var mc *mysql.Config
	if cfg.DSN != "" {
		parsed, err := mysql.ParseDSN(cfg.DSN)
		if err != nil {
			return nil, vcerrors.Wrap(err, vcerrors.ErrorTypeConfig, "invalid mysql dsn")
		}
		mc = parsed
	} else {
		mc = mysql.NewConfig()
		mc.Net = "tcp"
		port := cfg.Port
		if port == 0 {
			port = 3306
		}
		mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(port))
		mc.User = cfg.User
		mc.Passwd = cfg.Password
		mc.DBName = cfg.Database
	}

	mc.ParseTime = false
	mc.InterpolateParams = true
	mc.Loc = time.UTC
	if cfg.ConnectTimeout > 0 {
		mc.Timeout = cfg.ConnectTimeout
	}
	if mc.Params == nil {
		mc.Params = map[string]string{}
	}
	for k, v := range cfg.Params {
		mc.Params[k] = v
	}
	if cfg.TimeZone != "" {
		mc.Params["time_zone"] = "'" + cfg.TimeZone + "'"
	}
	return mc, nil
}

// PostgresConfig builds the pgx connection configuration. A time zone other
// than SYSTEM becomes the session TimeZone.
func PostgresConfig(cfg config.StoreConfig) (*pgx.ConnConfig, error) {
	dsn := cfg.DSN
	if dsn == "" {
		port := cfg.Port
		if port == 0 {
			port = 5432
		}
		u := url.URL{
			Scheme: "postgres",
			Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
			Path:   "/" + cfg.Database,
		}
		if cfg.User != "" {
			u.User = url.UserPassword(cfg.User, cfg.Password)
		}
		dsn = u.String()
	}

	pc, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, vcerrors.Wrap(err, vcerrors.ErrorTypeConfig, "invalid postgres dsn")
	}
	if cfg.ConnectTimeout > 0 {
		pc.ConnectTimeout = cfg.ConnectTimeout
	}
	if pc.RuntimeParams == nil {
		pc.RuntimeParams = map[string]string{}
	}
	for k, v := range cfg.Params {
		pc.RuntimeParams[k] = v
	}
	if cfg.TimeZone != "" && cfg.TimeZone != "SYSTEM" {
		pc.RuntimeParams["timezone"] = cfg.TimeZone
	}
	return pc, nil
}

// scanInSessionZone makes timestamptz values arrive in the session TimeZone.
// pgx otherwise delivers them in the process's local zone, and the decoder
// keeps only the wall clock, which has to be the one the window bounds are
// compared in.
func scanInSessionZone(ctx context.Context, conn *pgx.Conn) error {
	var (
		name   string
		offset float64
	)
	err := conn.QueryRow(ctx, "SELECT current_setting('TimeZone'), EXTRACT(TIMEZONE FROM now())").
		Scan(&name, &offset)
	if err != nil {
		return vcerrors.Wrap(err, vcerrors.ErrorTypeConnection, "failed to read session time zone")
	}
	registerScanLocation(conn.TypeMap(), sessionLocation(name, int(offset)))
	return nil
}

// sessionLocation resolves a server time zone name. Names the local zone
// database does not know fall back to the session's current offset.
func sessionLocation(name string, offsetSeconds int) *time.Location {
	if name != "" {
		if loc, err := time.LoadLocation(name); err == nil && name != "Local" {
			return loc
		}
	}
	return time.FixedZone(name, offsetSeconds)
}

func registerScanLocation(m *pgtype.Map, loc *time.Location) {
	m.RegisterType(&pgtype.Type{
		Name:  "timestamptz",
		OID:   pgtype.TimestamptzOID,
		Codec: &pgtype.TimestamptzCodec{ScanLocation: loc},
	})
}
