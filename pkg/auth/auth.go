// Package auth verifies Bearer JWTs issued by the identity provider and
// carries the authenticated user through request contexts.
package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// RoleAdmin is the role that may manage the hotel catalogue and list every booking.
const RoleAdmin = "admin"

var (
	ErrMissingToken = errors.New("auth: missing bearer token")
	ErrInvalidToken = errors.New("auth: invalid token")
)

// Claims are the token claims we rely on. The subject is the user id.
type Claims struct {
	Email string   `json:"email,omitempty"`
	Role  string   `json:"role,omitempty"`
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// User is the authenticated caller.
type User struct {
	ID    string
	Email string
	Roles []string
}

// IsAdmin reports whether u carries RoleAdmin.
func (u User) IsAdmin() bool { return slices.Contains(u.Roles, RoleAdmin) }

// Options configures a Verifier. Exactly one of Secret or PublicKeyPEM is used;
// the PEM key wins when both are set.
type Options struct {
	Secret       []byte
	PublicKeyPEM []byte
	Issuer       string
}

// Verifier validates tokens signed with HS256 or RS256.
type Verifier struct {
	secret []byte
	pub    *rsa.PublicKey
	issuer string
}

// NewVerifier builds a Verifier from opts.
func NewVerifier(opts Options) (*Verifier, error) {
	v := &Verifier{issuer: opts.Issuer}
	switch {
	case len(opts.PublicKeyPEM) > 0:
		pub, err := jwt.ParseRSAPublicKeyFromPEM(opts.PublicKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("auth: parse public key: %w", err)
		}
		v.pub = pub
	case len(opts.Secret) > 0:
		v.secret = opts.Secret
	default:
		return nil, errors.New("auth: no signing secret or public key configured")
	}
	return v, nil
}

func (v *Verifier) keyFunc(t *jwt.Token) (any, error) {
	switch t.Method.(type) {
	case *jwt.SigningMethodRSA:
		if v.pub == nil {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.pub, nil
	case *jwt.SigningMethodHMAC:
		if v.secret == nil {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	default:
		return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
	}
}

// Verify parses and validates a raw token.
func (v *Verifier) Verify(raw string) (User, error) {
	var claims Claims
	parser := jwt.Parser{}
	tok, err := parser.ParseWithClaims(raw, &claims, v.keyFunc)
	if err != nil || !tok.Valid {
		return User{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if v.issuer != "" && !claims.VerifyIssuer(v.issuer, true) {
		return User{}, fmt.Errorf("%w: issuer %q", ErrInvalidToken, claims.Issuer)
	}
	if claims.Subject == "" {
		return User{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	roles := append([]string(nil), claims.Roles...)
	if claims.Role != "" && !slices.Contains(roles, claims.Role) {
		roles = append(roles, claims.Role)
	}
	return User{ID: claims.Subject, Email: claims.Email, Roles: roles}, nil
}

// VerifyRequest verifies the Authorization header of r.
func (v *Verifier) VerifyRequest(r *http.Request) (User, error) {
	raw, err := BearerToken(r.Header.Get("Authorization"))
	if err != nil {
		return User{}, err
	}
	return v.Verify(raw)
}

// BearerToken extracts the token from a "Bearer <token>" header value.
func BearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
		return "", ErrMissingToken
	}
	return strings.TrimSpace(token), nil
}

// Sign issues an HS256 token for u. Used by tests and local tooling.
func Sign(secret []byte, u User, issuer string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: u.Email,
		Roles: u.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

type ctxKey struct{}

// WithUser returns a copy of ctx carrying u.
func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// FromContext returns the user stored by WithUser.
func FromContext(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(ctxKey{}).(User)
	return u, ok && u.ID != ""
}
