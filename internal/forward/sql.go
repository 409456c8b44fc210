package forward

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"github.com/jpalmerr/badgesink/internal/store"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// dialect holds the statements that differ between drivers.
type dialect struct {
	schema string
	insert string
}

var dialects = map[string]dialect{
	DriverSQLite: {
		schema: `CREATE TABLE IF NOT EXISTS badge_events (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	seq          INTEGER NOT NULL,
	rider_id     TEXT NOT NULL,
	at           TIMESTAMP NOT NULL,
	longitude    REAL NOT NULL,
	latitude     REAL NOT NULL,
	stop_name    TEXT NOT NULL DEFAULT '',
	vehicle_name TEXT NOT NULL DEFAULT '',
	ride_name    TEXT NOT NULL DEFAULT '',
	received_at  TIMESTAMP NOT NULL
)`,
		insert: `INSERT INTO badge_events
	(seq, rider_id, at, longitude, latitude, stop_name, vehicle_name, ride_name, received_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	},
	DriverPostgres: {
		schema: `CREATE TABLE IF NOT EXISTS badge_events (
	id           BIGSERIAL PRIMARY KEY,
	seq          BIGINT NOT NULL,
	rider_id     TEXT NOT NULL,
	at           TIMESTAMPTZ NOT NULL,
	longitude    DOUBLE PRECISION NOT NULL,
	latitude     DOUBLE PRECISION NOT NULL,
	stop_name    TEXT NOT NULL DEFAULT '',
	vehicle_name TEXT NOT NULL DEFAULT '',
	ride_name    TEXT NOT NULL DEFAULT '',
	received_at  TIMESTAMPTZ NOT NULL
)`,
		insert: `INSERT INTO badge_events
	(seq, rider_id, at, longitude, latitude, stop_name, vehicle_name, ride_name, received_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
	},
}

// SQL appends events to the badge_events table.
type SQL struct {
	db      *sql.DB
	dialect dialect
	timeout time.Duration
}

// OpenSQL opens the database, verifies the connection and creates the
// badge_events table if needed. driver is "sqlite3" or "pgx".
func OpenSQL(ctx context.Context, driver, dsn string) (*SQL, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == DriverSQLite {
		// SQLite only supports one writer at a time; a single connection
		// also keeps ":memory:" databases alive
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(4)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := db.ExecContext(ctx, d.schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create badge_events table: %w", err)
	}

	return &SQL{db: db, dialect: d, timeout: 5 * time.Second}, nil
}

func (s *SQL) Name() string { return "sql" }

func (s *SQL) Forward(ctx context.Context, ev store.Event) error {
	// a cancelled run context must not drop the event being delivered
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, s.dialect.insert,
		int64(ev.Seq), ev.RiderID, ev.At.UTC(), ev.Longitude, ev.Latitude,
		ev.StopName, ev.VehicleName, ev.RideName, ev.ReceivedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert badge event: %w", err)
	}
	return nil
}

// DB returns the underlying database handle.
func (s *SQL) DB() *sql.DB {
	return s.db
}

func (s *SQL) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
