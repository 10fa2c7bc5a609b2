package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mr1hm/go-wildfire-alerts/internal/apperr"
)

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS incidents (
		id BIGSERIAL PRIMARY KEY,
		latitude DOUBLE PRECISION NOT NULL CHECK (latitude BETWEEN -90 AND 90),
		longitude DOUBLE PRECISION NOT NULL CHECK (longitude BETWEEN -180 AND 180),
		status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'controlled', 'threat')),
		fire_type TEXT NOT NULL,
		intensity TEXT NOT NULL,
		size_hectares DOUBLE PRECISION NOT NULL DEFAULT 0,
		confidence INTEGER NOT NULL DEFAULT 50,
		fuel_type TEXT NOT NULL,
		terrain_type TEXT NOT NULL,
		slope_degrees DOUBLE PRECISION NOT NULL DEFAULT 0,
		temperature_c DOUBLE PRECISION NOT NULL DEFAULT 0,
		humidity_pct DOUBLE PRECISION NOT NULL DEFAULT 0,
		wind_speed_kmh DOUBLE PRECISION NOT NULL DEFAULT 0,
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
		distance_to_settlement_km DOUBLE PRECISION NOT NULL DEFAULT 0,
		risk_to_settlements TEXT NOT NULL DEFAULT 'low' CHECK (risk_to_settlements IN ('low', 'medium', 'high')),
		reporter_name TEXT,
		reporter_contact TEXT,
		detected_at TIMESTAMPTZ NOT NULL,
		last_update TIMESTAMPTZ NOT NULL,
		CHECK (last_update >= detected_at)
	);

	CREATE TABLE IF NOT EXISTS channel_sessions (
		channel TEXT PRIMARY KEY,
		data BYTEA NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_incidents_detected_at ON incidents(detected_at);
	CREATE INDEX IF NOT EXISTS idx_incidents_status ON incidents(status);
`

// wrapError translates driver errors into apperr kinds. Check constraint
// violations become validation errors so callers see a 400, not a 500.
func wrapError(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, apperr.ErrNotFound)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", op, ctxErr)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23514" {
		field := pqErr.Column
		if field == "" {
			field = pgCheckField(pqErr.Constraint)
		}
		return fmt.Errorf("%s: %w", op, &apperr.ValidationError{
			Field:   field,
			Message: "violates constraint " + pqErr.Constraint,
		})
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) && liteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT &&
		strings.Contains(liteErr.Error(), "CHECK constraint failed") {
		return fmt.Errorf("%s: %w", op, &apperr.ValidationError{
			Field:   sqliteCheckField(liteErr.Error()),
			Message: liteErr.Error(),
		})
	}

	return fmt.Errorf("%s: %w", op, err)
}

// sqlite reports the failing expression, e.g.
// "CHECK constraint failed: status IN ('active', ...)". The column is its
// leading identifier.
var sqliteCheckExpr = regexp.MustCompile(`CHECK constraint failed: ([a-z_]+)`)

func sqliteCheckField(msg string) string {
	if m := sqliteCheckExpr.FindStringSubmatch(msg); m != nil {
		return m[1]
	}
	return ""
}

// pgCheckField recovers the column from postgres' generated constraint name
// "<table>_<column>_check". Table-level checks have no single column.
func pgCheckField(constraint string) string {
	name, ok := strings.CutPrefix(constraint, "incidents_")
	if !ok {
		return ""
	}
	name, ok = strings.CutSuffix(name, "_check")
	if !ok {
		return ""
	}
	return name
}
