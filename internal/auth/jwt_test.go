package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestIssueAndValidate(t *testing.T) {
	v, err := NewValidator("s3cret", "chesscake")
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	tok, err := v.Issue("alice", time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := v.Validate(tok)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.Player() != "alice" {
		t.Fatalf("player = %q", claims.Player())
	}
}

func TestValidateRejects(t *testing.T) {
	v, _ := NewValidator("s3cret", "chesscake")
	other, _ := NewValidator("different", "chesscake")
	forged, _ := other.Issue("alice", time.Minute)
	if _, err := v.Validate(forged); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("wrong secret err = %v", err)
	}

	v.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, _ := v.Issue("alice", time.Minute)
	v.now = time.Now
	if _, err := v.Validate(expired); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired err = %v", err)
	}

	none := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{Username: "alice"})
	raw, _ := none.SignedString([]byte("s3cret"))
	if _, err := v.Validate(raw); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("HS512 accepted: %v", err)
	}

	if _, err := NewValidator(" ", ""); err == nil {
		t.Fatalf("empty secret accepted")
	}
}

func TestMiddleware(t *testing.T) {
	v, _ := NewValidator("s3cret", "")
	var seen string
	h := v.Middleware(func(w http.ResponseWriter, r *http.Request, err error) {
		http.Error(w, err.Error(), http.StatusUnauthorized)
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = PlayerFrom(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token status = %d", rec.Code)
	}

	tok, _ := v.Issue("bob", time.Minute)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || seen != "bob" {
		t.Fatalf("status=%d seen=%q", rec.Code, seen)
	}

	seen = ""
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?token="+tok, nil))
	if seen != "bob" {
		t.Fatalf("query token not accepted")
	}
}
