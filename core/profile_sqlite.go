package core

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type SQLiteProfileStore struct {
	db *sql.DB
}

func NewSQLiteProfileStore(db *sql.DB) *SQLiteProfileStore {
	return &SQLiteProfileStore{db: db}
}

func (s *SQLiteProfileStore) SaveProfile(ctx context.Context, profile Profile, local bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("BeginTx: %w", err)
	}
	defer tx.Rollback()

	if local {
		// only one local identity exists at a time
		if _, err := tx.ExecContext(ctx, "UPDATE profiles SET is_local = 0 WHERE public_key != @public_key",
			sql.Named("public_key", profile.PublicKey)); err != nil {
			return fmt.Errorf("ExecContext(clear local): %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO profiles (public_key, name, status, is_local, updated_at)
		VALUES (@public_key, @name, @status, @is_local, CURRENT_TIMESTAMP)
		ON CONFLICT (public_key) DO UPDATE SET
			name = excluded.name,
			status = excluded.status,
			is_local = MAX(profiles.is_local, excluded.is_local),
			updated_at = excluded.updated_at`,
		sql.Named("public_key", profile.PublicKey), sql.Named("name", profile.Name),
		sql.Named("status", string(profile.Status)), sql.Named("is_local", local))
	if err != nil {
		return fmt.Errorf("ExecContext(upsert profile): %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("Commit: %w", err)
	}
	return nil
}

func (s *SQLiteProfileStore) GetProfile(ctx context.Context, publicKey string) (*Profile, error) {
	return s.queryProfile(ctx, "SELECT public_key, name, status FROM profiles WHERE public_key = @public_key",
		sql.Named("public_key", publicKey))
}

func (s *SQLiteProfileStore) LocalProfile(ctx context.Context) (*Profile, error) {
	return s.queryProfile(ctx, "SELECT public_key, name, status FROM profiles WHERE is_local = 1 LIMIT 1")
}

func (s *SQLiteProfileStore) queryProfile(ctx context.Context, query string, args ...any) (*Profile, error) {
	var (
		p      Profile
		status string
	)
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&p.PublicKey, &p.Name, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("QueryRowContext: %w", err)
	}
	p.Status = PresenceStatus(status)
	return &p, nil
}
