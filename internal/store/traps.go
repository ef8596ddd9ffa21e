package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/pavelanni/phishtrap/internal/model"
)

// CreateTrap records a trap resolution. Events are never updated.
func (s *Store) CreateTrap(ctx context.Context, e model.TrapEvent) (model.TrapEvent, error) {
	if e.Email == "" {
		return model.TrapEvent{}, fmt.Errorf("%w: email is required", model.ErrValidation)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.CreatedAt = s.now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO traps (id, email, ignored, email_input, password_hash, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.Email, e.Ignored, e.EmailInput, e.PasswordHash, e.CreatedAt,
	)
	if err != nil {
		slog.Error("failed to record trap", "email", e.Email, "error", err)
		return model.TrapEvent{}, wrap("create trap", err)
	}
	slog.Info("recorded trap", "id", e.ID, "email", e.Email, "ignored", e.Ignored,
		"captured_password", e.CapturedPassword())
	return e, nil
}

// ListTraps returns trap events, newest first. Empty email means all users.
func (s *Store) ListTraps(ctx context.Context, email string) ([]model.TrapEvent, error) {
	query := `SELECT id, email, ignored, email_input, password_hash, created_at FROM traps`
	var args []any
	if email != "" {
		query += ` WHERE email = ?`
		args = append(args, email)
	}
	query += ` ORDER BY created_at DESC, rowid DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap("list traps", err)
	}
	defer rows.Close()
	var events []model.TrapEvent
	for rows.Next() {
		var e model.TrapEvent
		if err := rows.Scan(&e.ID, &e.Email, &e.Ignored, &e.EmailInput, &e.PasswordHash, &e.CreatedAt); err != nil {
			return nil, wrap("scan trap", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("iterate traps", err)
	}
	return events, nil
}
