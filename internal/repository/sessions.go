package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

func (s *DB) LoadSession(ctx context.Context, channel string) ([]byte, error) {
	const op = "repository.LoadSession"

	var data []byte
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT data FROM channel_sessions WHERE channel = ?`), channel).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapError(ctx, op, err)
	}
	return data, nil
}

func (s *DB) SaveSession(ctx context.Context, channel string, data []byte) error {
	const op = "repository.SaveSession"

	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO channel_sessions (channel, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (channel) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`),
		channel, data, time.Now().UTC(),
	)
	return wrapError(ctx, op, err)
}

func (s *DB) DeleteSession(ctx context.Context, channel string) error {
	const op = "repository.DeleteSession"

	_, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM channel_sessions WHERE channel = ?`), channel)
	return wrapError(ctx, op, err)
}
