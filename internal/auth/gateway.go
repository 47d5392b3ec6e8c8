// Package auth implements the session gateway: the boundary that turns an
// opaque bearer token presented at connection time into a verified account.
//
// The production implementation validates HS256 JWTs whose subject claim is
// the account ID, then loads and vets the account. The delivery core only
// sees the Gateway interface, so tests substitute a stub.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"

	"github.com/tbourn/go-messenger-backend/internal/domain"
	"github.com/tbourn/go-messenger-backend/internal/repo"
)

var (
	// ErrInvalidToken covers every way a credential can fail verification:
	// malformed, bad signature, expired, or missing a subject.
	ErrInvalidToken = errors.New("invalid session token")

	// ErrUnknownUser indicates a structurally valid token whose subject no
	// longer resolves to an account.
	ErrUnknownUser = errors.New("unknown user")

	// ErrUserBlocked indicates an account that exists but is barred from
	// connecting.
	ErrUserBlocked = errors.New("user is blocked")
)

// Gateway verifies a session credential and resolves it to an account.
type Gateway interface {
	Authenticate(ctx context.Context, token string) (*domain.User, error)
}

// JWTGateway validates HS256-signed tokens against a shared secret and
// resolves the subject claim through the user store.
type JWTGateway struct {
	DB     *gorm.DB
	Secret []byte
}

// NewJWTGateway constructs a gateway. An empty secret is a configuration
// error and is rejected here rather than at first use.
func NewJWTGateway(db *gorm.DB, secret string) (*JWTGateway, error) {
	if secret == "" {
		return nil, errors.New("auth: signing secret must not be empty")
	}
	return &JWTGateway{DB: db, Secret: []byte(secret)}, nil
}

// Authenticate parses and verifies token, then loads the subject account.
// Blocked accounts are rejected even with a valid credential.
func (g *JWTGateway) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return g.Secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	sub, err := parsed.Claims.GetSubject()
	if err != nil || sub == "" {
		return nil, ErrInvalidToken
	}

	u, err := repo.GetUser(ctx, g.DB, sub)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUnknownUser
		}
		return nil, err
	}
	if u.Blocked {
		return nil, ErrUserBlocked
	}
	return u, nil
}

// IssueToken mints a signed credential for userID with the given lifetime
// claims. Used by provisioning tooling and tests; the relay itself only
// verifies.
func (g *JWTGateway) IssueToken(userID string, claims jwt.MapClaims) (string, error) {
	if claims == nil {
		claims = jwt.MapClaims{}
	}
	claims["sub"] = userID
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(g.Secret)
}
