package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
)

const signingKeyMetadata = "session_signing_key"

// SetMetadata upserts a key-value pair in the app_metadata table.
func (s *Store) SetMetadata(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO app_metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = ?`,
		key, value, value,
	)
	if err != nil {
		return wrap("set metadata", err)
	}
	return nil
}

// GetMetadata returns the value for a metadata key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM app_metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", wrap("get metadata", err)
	}
	return value, nil
}

// SigningKey returns the persisted session signing key, generating and
// storing a random one on first use so tokens survive restarts.
func (s *Store) SigningKey(ctx context.Context) ([]byte, error) {
	existing, err := s.GetMetadata(ctx, signingKeyMetadata)
	if err != nil {
		return nil, err
	}
	if existing != "" {
		return hex.DecodeString(existing)
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	if err := s.SetMetadata(ctx, signingKeyMetadata, hex.EncodeToString(b)); err != nil {
		return nil, err
	}
	return b, nil
}
