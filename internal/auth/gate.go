package auth

import (
	"context"
	"errors"
	"time"

	"orderline-be/internal/apperror"

	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleAdmin    = "admin"
	RoleCustomer = "customer"
)

// Principal is the identity resolved from a verified token.
type Principal struct {
	UserID string
	Email  string
	Role   string
}

func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}

// Gate verifies access tokens. Verify fails with an authentication error for
// a missing, malformed or expired token; VerifyAdmin additionally fails with
// an authorization error when the principal is not an admin.
type Gate interface {
	Verify(ctx context.Context, token string) (*Principal, error)
	VerifyAdmin(ctx context.Context, token string) (*Principal, error)
}

type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// JWTGate checks HS256 tokens signed with a shared secret.
type JWTGate struct {
	secret []byte
	issuer string
	now    func() time.Time
}

type JWTOption func(*JWTGate)

// WithIssuer requires the "iss" claim to match.
func WithIssuer(issuer string) JWTOption {
	return func(g *JWTGate) { g.issuer = issuer }
}

func WithClock(now func() time.Time) JWTOption {
	return func(g *JWTGate) { g.now = now }
}

func NewJWTGate(secret string, opts ...JWTOption) *JWTGate {
	g := &JWTGate{secret: []byte(secret), now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *JWTGate) Verify(_ context.Context, token string) (*Principal, error) {
	if token == "" {
		return nil, apperror.Unauthenticated("missing access token")
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(g.now),
	}
	if g.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(g.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return g.secret, nil
	}, parserOpts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperror.Unauthenticated("access token has expired")
		}
		return nil, apperror.Unauthenticated("invalid access token")
	}

	if claims.Subject == "" {
		return nil, apperror.Unauthenticated("access token has no subject")
	}

	return &Principal{
		UserID: claims.Subject,
		Email:  claims.Email,
		Role:   claims.Role,
	}, nil
}

func (g *JWTGate) VerifyAdmin(ctx context.Context, token string) (*Principal, error) {
	p, err := g.Verify(ctx, token)
	if err != nil {
		return nil, err
	}
	if !p.IsAdmin() {
		return nil, apperror.Forbidden("admin role required")
	}
	return p, nil
}

// Issue signs a token for p valid for ttl. Token issuance belongs to the
// identity service; this exists for tooling and tests.
func (g *JWTGate) Issue(p Principal, ttl time.Duration) (string, error) {
	now := g.now()
	claims := Claims{
		Email: p.Email,
		Role:  p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			Issuer:    g.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.secret)
}
