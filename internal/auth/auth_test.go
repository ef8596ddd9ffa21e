package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/phishtrap/internal/model"
	"github.com/pavelanni/phishtrap/internal/store"
)

func newTestGateway(t *testing.T) *Gateway {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return NewGateway(s, bcrypt.MinCost)
}

func TestRegisterAndAuthenticate(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	id, err := g.Register(ctx, "Alice@Example.com ", "s3cret")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if id == "" {
		t.Fatal("expected user id")
	}

	ident, err := g.Authenticate(ctx, "alice@example.com", "s3cret")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if ident.ID != id || ident.Email != "alice@example.com" {
		t.Errorf("unexpected identity: %+v", ident)
	}
}

func TestRegisterErrors(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()
	if _, err := g.Register(ctx, "bob@example.com", "pw"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	tests := []struct {
		name     string
		email    string
		password string
		want     error
	}{
		{"existing email", "bob@example.com", "other", model.ErrConflict},
		{"missing email", "", "pw", model.ErrValidation},
		{"missing password", "carol@example.com", "", model.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := g.Register(ctx, tt.email, tt.password); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestAuthenticateErrors(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()
	if _, err := g.Register(ctx, "bob@example.com", "right"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	tests := []struct {
		name     string
		email    string
		password string
		want     error
	}{
		{"unknown email", "nobody@example.com", "right", model.ErrNotFound},
		{"wrong password", "bob@example.com", "wrong", model.ErrInvalidCredentials},
		{"empty password", "bob@example.com", "", model.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := g.Authenticate(ctx, tt.email, tt.password); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestTokensRoundTrip(t *testing.T) {
	tok := NewTokens([]byte("0123456789abcdef0123456789abcdef"), time.Hour)
	signed, err := tok.Issue(model.Identity{ID: "u1", Email: "alice@example.com"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	id, err := tok.Verify(signed)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if id.ID != "u1" || id.Email != "alice@example.com" {
		t.Errorf("unexpected identity: %+v", id)
	}
}

func TestTokensRejectBadTokens(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	tok := NewTokens(key, time.Hour)
	signed, err := tok.Issue(model.Identity{ID: "u1", Email: "alice@example.com"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	expired := NewTokens(key, time.Hour)
	expired.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	other := NewTokens([]byte("another-key-another-key-another!"), time.Hour)

	tests := []struct {
		name  string
		tok   *Tokens
		token string
	}{
		{"garbage", tok, "not-a-token"},
		{"tampered", tok, signed[:len(signed)-2] + strings.Repeat("x", 2)},
		{"expired", expired, signed},
		{"wrong key", other, signed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.tok.Verify(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestNewTokensDefaultTTL(t *testing.T) {
	if ttl := NewTokens([]byte("k"), 0).TTL(); ttl != DefaultTokenTTL {
		t.Errorf("expected %v, got %v", DefaultTokenTTL, ttl)
	}
}

func TestNewGatewayDefaultCost(t *testing.T) {
	if c := NewGateway(nil, 0).Cost(); c != BcryptCost {
		t.Errorf("expected cost %d, got %d", BcryptCost, c)
	}
}
