// Package auth gates the HTTP surface with HS256 bearer tokens.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid or expired token")
)

const DefaultTokenTTL = 24 * time.Hour

// Claims carries the player's username; Subject is used when Username is empty.
type Claims struct {
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// Player returns the username the token speaks for.
func (c *Claims) Player() string {
	if u := strings.TrimSpace(c.Username); u != "" {
		return u
	}
	return strings.TrimSpace(c.Subject)
}

type Validator struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewValidator(secret, issuer string) (*Validator, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("jwt secret is empty")
	}
	return &Validator{secret: []byte(secret), issuer: issuer, now: time.Now}, nil
}

// Issue signs a token for username. Used by tooling and tests.
func (v *Validator) Issue(username string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	now := v.now()
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

func (v *Validator) Validate(raw string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Player() == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

type contextKey string

const playerKey contextKey = "player"

// WithPlayer stores the authenticated username on ctx.
func WithPlayer(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, playerKey, username)
}

func PlayerFrom(ctx context.Context) string {
	if v, ok := ctx.Value(playerKey).(string); ok {
		return v
	}
	return ""
}

// Authenticate resolves the request's token, taken from the Authorization
// header or, for websocket upgrades, the token query parameter.
func (v *Validator) Authenticate(r *http.Request) (*Claims, error) {
	raw := extractBearerToken(r)
	if raw == "" {
		raw = strings.TrimSpace(r.URL.Query().Get("token"))
	}
	if raw == "" {
		return nil, ErrMissingToken
	}
	return v.Validate(raw)
}

// Middleware rejects unauthenticated requests through onError and puts the
// player on the request context otherwise.
func (v *Validator) Middleware(onError func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := v.Authenticate(r)
			if err != nil {
				onError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPlayer(r.Context(), claims.Player())))
		})
	}
}

func extractBearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
