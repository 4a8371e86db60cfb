package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "super-secret-jwt-token-with-at-least-32-characters"

func signToken(t *testing.T, secret string, claims jwt.Claims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func validClaims(now time.Time) supabaseClaims {
	return supabaseClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-123",
			Audience:  jwt.ClaimStrings{supabaseAudience},
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Email: "p@example.com",
		Role:  "authenticated",
	}
}

func TestJWTVerifierAcceptsValidToken(t *testing.T) {
	v := NewJWTVerifier(testSecret)
	user, err := v.VerifyAccessToken(context.Background(), signToken(t, testSecret, validClaims(time.Now())))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.ID != "user-123" || user.Email != "p@example.com" {
		t.Fatalf("unexpected user: %+v", user)
	}
}

func TestJWTVerifierRejects(t *testing.T) {
	now := time.Now()
	expired := validClaims(now.Add(-2 * time.Hour))
	wrongAud := validClaims(now)
	wrongAud.Audience = jwt.ClaimStrings{"anon"}
	noSub := validClaims(now)
	noSub.Subject = ""
	noExp := validClaims(now)
	noExp.ExpiresAt = nil

	noneTok, err := jwt.NewWithClaims(jwt.SigningMethodNone, validClaims(now)).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}

	tests := map[string]string{
		"wrong secret":   signToken(t, "another-secret-another-secret-another", validClaims(now)),
		"expired":        signToken(t, testSecret, expired),
		"wrong audience": signToken(t, testSecret, wrongAud),
		"missing sub":    signToken(t, testSecret, noSub),
		"missing exp":    signToken(t, testSecret, noExp),
		"alg none":       noneTok,
		"garbage":        "not-a-token",
	}
	v := NewJWTVerifier(testSecret)
	for name, tok := range tests {
		if _, err := v.VerifyAccessToken(context.Background(), tok); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
}

func TestSupabaseVerifyAccessToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/v1/user" || r.Header.Get("apikey") != "anon" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(User{ID: "u1", Email: "a@b.c"})
	}))
	defer srv.Close()

	c := NewSupabaseClient(srv.URL+"/", "anon")
	user, err := c.VerifyAccessToken(context.Background(), "good")
	if err != nil || user.ID != "u1" {
		t.Fatalf("got %+v, %v", user, err)
	}
	if _, err := c.VerifyAccessToken(context.Background(), "bad"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestSupabaseLoginRelaysUpstreamStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("grant_type") != "password" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "hunter22" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(Session{AccessToken: "tok", User: User{ID: "u1", Email: body["email"]}})
	}))
	defer srv.Close()

	c := NewSupabaseClient(srv.URL, "anon")
	sess, err := c.Login(context.Background(), " a@b.c ", "hunter22")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if sess.AccessToken != "tok" || sess.User.Email != "a@b.c" {
		t.Fatalf("unexpected session: %+v", sess)
	}

	_, err = c.Login(context.Background(), "a@b.c", "wrong")
	var upstream *UpstreamError
	if !errors.As(err, &upstream) || upstream.Status != http.StatusBadRequest {
		t.Fatalf("expected upstream 400, got %v", err)
	}
}
