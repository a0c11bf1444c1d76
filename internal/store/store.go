// Package store implements durable storage for transit topology and the two
// read-through caches on SQLite. All mutations are scoped to one committed
// transaction per logical operation; reads observe the latest committed
// state.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	_ "github.com/mattn/go-sqlite3" // CGo-based SQLite driver

	"sevibus.transitlab.org/internal/clock"
	"sevibus.transitlab.org/internal/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the single shared mutable resource of the process. It is safe for
// concurrent use; SQLite serializes writes internally.
type Store struct {
	DB     *sql.DB
	clock  clock.Clock
	logger *slog.Logger
}

// Open opens (or creates) the database at dbPath, applies performance
// pragmas and any pending migrations, and configures the connection pool.
// It is safe to call on every startup.
func Open(dbPath string, clk clock.Clock, logger *slog.Logger) (*Store, error) {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	ctx := context.Background()
	if err := configurePragmas(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("error configuring SQLite: %w", err)
	}

	if err := Migrate(ctx, db, logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("error applying migrations: %w", err)
	}

	configureConnectionPool(db, dbPath)

	return &Store{DB: db, clock: clk, logger: logger}, nil
}

func configurePragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("exec %q: %w", pragma, err)
		}
	}
	return nil
}

func configureConnectionPool(db *sql.DB, dbPath string) {
	if dbPath == ":memory:" {
		// A pooled :memory: connection per goroutine would each see its own
		// empty database; force a single shared connection.
		db.SetMaxOpenConns(1)
		return
	}
	db.SetMaxOpenConns(max(4, runtime.NumCPU()))
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)
}

// Close releases the underlying database handle. Call exactly once at
// process shutdown.
func (s *Store) Close() error {
	return s.DB.Close()
}

// Ping verifies connectivity for health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

// Stop is a physical transit stop. Address fields are populated
// independently of topology and survive topology-only upserts.
type Stop struct {
	Code      string         `json:"code"`
	Name      string         `json:"name"`
	Lat       float64        `json:"lat"`
	Lon       float64        `json:"lon"`
	Address   models.Address `json:"address"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// Line is a named transit route.
type Line struct {
	Number    string    `json:"number"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Membership associates a stop with a line in one travel direction, at the
// stop's ordinal position along that line/direction.
type Membership struct {
	StopCode   string
	LineNumber string
	Direction  models.Direction
	Ordinal    int
}

// LineStop is a stop annotated with its membership data, as returned by
// StopsForLine.
type LineStop struct {
	Stop
	Direction models.Direction
	Ordinal   int
}

// timeFormat is the sortable textual timestamp layout used in every table.
const timeFormat = time.RFC3339Nano

func (s *Store) now() string {
	return s.clock.Now().UTC().Format(timeFormat)
}

func parseTimestamp(v string) time.Time {
	t, err := time.Parse(timeFormat, v)
	if err != nil {
		return time.Time{}
	}
	return t
}
