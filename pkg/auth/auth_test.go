package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var secret = []byte("test-secret")

func TestVerifyHS256(t *testing.T) {
	v, err := NewVerifier(Options{Secret: secret, Issuer: "stayhub-test"})
	if err != nil {
		t.Fatal(err)
	}
	tok, err := Sign(secret, User{ID: "user_1", Email: "a@b.c", Roles: []string{RoleAdmin}}, "stayhub-test", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	u, err := v.Verify(tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if u.ID != "user_1" || u.Email != "a@b.c" || !u.IsAdmin() {
		t.Fatalf("unexpected user %+v", u)
	}
}

func TestVerifyRejects(t *testing.T) {
	v, _ := NewVerifier(Options{Secret: secret, Issuer: "stayhub-test"})

	expired, _ := Sign(secret, User{ID: "u"}, "stayhub-test", -time.Minute)
	wrongKey, _ := Sign([]byte("other"), User{ID: "u"}, "stayhub-test", time.Hour)
	wrongIss, _ := Sign(secret, User{ID: "u"}, "someone-else", time.Hour)
	noSub, _ := Sign(secret, User{}, "stayhub-test", time.Hour)

	tests := map[string]string{
		"expired":   expired,
		"wrong key": wrongKey,
		"issuer":    wrongIss,
		"no sub":    noSub,
		"garbage":   "not.a.jwt",
	}
	for name, tok := range tests {
		if _, err := v.Verify(tok); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
}

func TestVerifyRS256(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatal(err)
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	v, err := NewVerifier(Options{PublicKeyPEM: pemBytes})
	if err != nil {
		t.Fatal(err)
	}
	claims := Claims{Role: RoleAdmin, RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "user_rsa",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		t.Fatal(err)
	}
	u, err := v.Verify(tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if u.ID != "user_rsa" || !u.IsAdmin() {
		t.Fatalf("unexpected user %+v", u)
	}

	// an HS256 token must not be accepted by an RS256-only verifier
	hs, _ := Sign(secret, User{ID: "x"}, "", time.Hour)
	if _, err := v.Verify(hs); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestNewVerifierNeedsKey(t *testing.T) {
	if _, err := NewVerifier(Options{}); err == nil {
		t.Fatal("expected error without key material")
	}
	if _, err := NewVerifier(Options{PublicKeyPEM: []byte("nope")}); err == nil {
		t.Fatal("expected error for bad PEM")
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header, want string
		ok           bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer  abc ", "abc", true},
		{"Basic abc", "", false},
		{"Bearer", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, err := BearerToken(tt.header)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("BearerToken(%q) = %q, %v", tt.header, got, err)
		}
	}
}

func TestVerifyRequestAndContext(t *testing.T) {
	v, _ := NewVerifier(Options{Secret: secret})
	tok, _ := Sign(secret, User{ID: "user_2"}, "", time.Hour)

	r := httptest.NewRequest("GET", "/", nil)
	if _, err := v.VerifyRequest(r); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}
	r.Header.Set("Authorization", "Bearer "+tok)
	u, err := v.VerifyRequest(r)
	if err != nil {
		t.Fatal(err)
	}

	ctx := WithUser(r.Context(), u)
	got, ok := FromContext(ctx)
	if !ok || got.ID != "user_2" || got.IsAdmin() {
		t.Fatalf("unexpected context user %+v ok=%v", got, ok)
	}
	if _, ok := FromContext(r.Context()); ok {
		t.Fatal("bare context should carry no user")
	}
}
