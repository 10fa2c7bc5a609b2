package repository

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DB implements IncidentRepository and SessionStore on top of database/sql.
type DB struct {
	db     *sql.DB
	driver string
}

func NewSQLiteDB(path string) (*DB, error) {
	return Open(DriverSQLite, path)
}

func NewPostgresDB(dsn string) (*DB, error) {
	return Open(DriverPostgres, dsn)
}

func Open(driver, dsn string) (*DB, error) {
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if driver == DriverSQLite {
		// One connection: writes are serialized and ":memory:" stays a single database.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	s := &DB{
		db:     db,
		driver: driver,
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error while migrating to database: %w", err)
	}

	return s, nil
}

func (s *DB) migrate() error {
	schema := sqliteSchema
	if s.driver == DriverPostgres {
		schema = postgresSchema
	}
	_, err := s.db.Exec(schema)
	return err
}

func (s *DB) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders into the driver's native form.
func (s *DB) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS incidents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		latitude REAL NOT NULL CHECK (latitude BETWEEN -90 AND 90),
		longitude REAL NOT NULL CHECK (longitude BETWEEN -180 AND 180),
		status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'controlled', 'threat')),
		fire_type TEXT NOT NULL,
		intensity TEXT NOT NULL,
		size_hectares REAL NOT NULL DEFAULT 0,
		confidence INTEGER NOT NULL DEFAULT 50,
		fuel_type TEXT NOT NULL,
		terrain_type TEXT NOT NULL,
		slope_degrees REAL NOT NULL DEFAULT 0,
		temperature_c REAL NOT NULL DEFAULT 0,
		humidity_pct REAL NOT NULL DEFAULT 0,
		wind_speed_kmh REAL NOT NULL DEFAULT 0,
		wind_direction TEXT NOT NULL,
		wind_type TEXT NOT NULL,
		agency TEXT NOT NULL,
		response_level TEXT NOT NULL,
		firefighters INTEGER NOT NULL DEFAULT 0,
		vehicles INTEGER NOT NULL DEFAULT 0,
		aircraft INTEGER NOT NULL DEFAULT 0,
		evacuation_status TEXT NOT NULL,
		district TEXT NOT NULL DEFAULT '',
		nearest_settlement TEXT NOT NULL DEFAULT '',
		distance_to_settlement_km REAL NOT NULL DEFAULT 0,
		risk_to_settlements TEXT NOT NULL DEFAULT 'low' CHECK (risk_to_settlements IN ('low', 'medium', 'high')),
		reporter_name TEXT,
		reporter_contact TEXT,
		detected_at DATETIME NOT NULL,
		last_update DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS channel_sessions (
		channel TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_incidents_detected_at ON incidents(detected_at);
	CREATE INDEX IF NOT EXISTS idx_incidents_status ON incidents(status);
`
