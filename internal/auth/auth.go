// Package auth verifies credentials, registers users and mints session
// tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/phishtrap/internal/model"
)

// BcryptCost is the work factor for stored password hashes.
const BcryptCost = 12

// UserStore is the persistence the gateway needs.
type UserStore interface {
	CreateUser(ctx context.Context, u model.User) (string, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
}

// Gateway authenticates and registers users.
type Gateway struct {
	users UserStore
	cost  int
}

// NewGateway returns a gateway hashing with cost, or BcryptCost when
// cost is zero.
func NewGateway(users UserStore, cost int) *Gateway {
	if cost == 0 {
		cost = BcryptCost
	}
	return &Gateway{users: users, cost: cost}
}

// Cost returns the bcrypt work factor used for new hashes.
func (g *Gateway) Cost() int { return g.cost }

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Authenticate checks the credentials. An unknown email yields
// model.ErrNotFound and a wrong password model.ErrInvalidCredentials.
func (g *Gateway) Authenticate(ctx context.Context, email, password string) (*model.Identity, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", model.ErrValidation)
	}
	u, err := g.users.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("look up user: %w", err)
	}
	if u == nil {
		return nil, fmt.Errorf("user %q: %w", email, model.ErrNotFound)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, model.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("compare password: %w", err)
	}
	return &model.Identity{ID: u.ID, Email: u.Email}, nil
}

// Register creates a user with a bcrypt-hashed password and returns its id.
// An existing email yields model.ErrConflict.
func (g *Gateway) Register(ctx context.Context, email, password string) (string, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return "", fmt.Errorf("%w: email and password are required", model.ErrValidation)
	}
	existing, err := g.users.GetUserByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("look up user: %w", err)
	}
	if existing != nil {
		return "", fmt.Errorf("user %q: %w", email, model.ErrConflict)
	}
	hash, err := HashPassword(password, g.cost)
	if err != nil {
		return "", err
	}
	return g.users.CreateUser(ctx, model.User{Email: email, PasswordHash: hash})
}

// HashPassword bcrypt-hashes a secret.
func HashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
