// Package auth provides optional JWT authentication for the file manager API.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/flmngr/flmngr-server-go/internal/logging"
	"github.com/flmngr/flmngr-server-go/internal/metrics"
)

type contextKey string

const claimsContextKey contextKey = "claims"

// Issuer is written into and required from every token.
const Issuer = "flmngr"

// ErrNoToken is returned when a request carries no token.
var ErrNoToken = errors.New("missing authentication token")

// Claims holds JWT token claims.
type Claims struct {
	// ReadOnly tokens may only list and preview.
	ReadOnly bool `json:"read_only,omitempty"`
	jwt.RegisteredClaims
}

// Auth signs and verifies HS256 tokens.
type Auth struct {
	secret []byte
}

// New creates an Auth with the shared secret.
func New(secret string) *Auth {
	return &Auth{secret: []byte(secret)}
}

// Issue signs a token for subject that expires after ttl.
func (a *Auth) Issue(subject string, ttl time.Duration, readOnly bool) (string, error) {
	now := time.Now()
	claims := &Claims{
		ReadOnly: readOnly,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return s, nil
}

// Verify parses and validates a token string.
func (a *Auth) Verify(tokenStr string) (*Claims, error) {
	if tokenStr == "" {
		return nil, ErrNoToken
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithIssuer(Issuer))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// Middleware returns HTTP middleware that rejects requests without a valid
// token.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := a.Verify(extractToken(r))
		if err != nil {
			metrics.RecordAuthAttempt(false)
			logging.WithContext(r.Context()).Debug("request rejected", zap.Error(err))
			sendAuthError(w, "invalid token: "+err.Error())
			return
		}
		metrics.RecordAuthAttempt(true)

		ctx := context.WithValue(r.Context(), claimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetClaims extracts claims from the request context.
func GetClaims(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsContextKey).(*Claims)
	return claims
}

func extractToken(r *http.Request) string {
	// Bearer token from Authorization header
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	// Query parameter fallback, used by <img> previews
	return r.URL.Query().Get("token")
}

// sendAuthError answers in the widget envelope so the client shows the message.
func sendAuthError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": http.StatusUnauthorized, "args": []string{message}},
		"data":  nil,
	})
}
