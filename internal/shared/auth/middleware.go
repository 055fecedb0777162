package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/echoledger/platform/internal/shared/config"
)

type contextKey string

const (
	// CallerContextKey carries the authenticated caller through the request context
	CallerContextKey contextKey = "caller"
)

// CallerType distinguishes the kinds of principals that hold platform tokens
type CallerType string

const (
	CallerTypeHospital  CallerType = "hospital"
	CallerTypeClinician CallerType = "clinician"
	CallerTypePatient   CallerType = "patient"
	CallerTypeSystem    CallerType = "system"
)

// Caller represents the authenticated principal from JWT claims
type Caller struct {
	ID         string     `json:"sub"`
	Type       CallerType `json:"caller_type"`
	HospitalID string     `json:"hospital_id,omitempty"`
	Scopes     []string   `json:"scopes"`
}

// Claims extends JWT claims with platform-specific data
type Claims struct {
	jwt.RegisteredClaims
	CallerType CallerType `json:"caller_type"`
	HospitalID string     `json:"hospital_id,omitempty"`
	Scopes     []string   `json:"scopes"`
}

// IssueToken signs a token for a caller. Used by the emergency bridge to
// mint short-lived access tokens and by tests.
func IssueToken(cfg config.AuthConfig, callerID string, callerType CallerType, hospitalID string, scopes []string) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   callerID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TokenTTL)),
			Issuer:    "echoledger",
		},
		CallerType: callerType,
		HospitalID: hospitalID,
		Scopes:     scopes,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.JWTSecret))
}

// VerifyToken parses and validates a token string
func VerifyToken(cfg config.AuthConfig, tokenString string) (*Caller, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(cfg.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}

	return &Caller{
		ID:         claims.Subject,
		Type:       claims.CallerType,
		HospitalID: claims.HospitalID,
		Scopes:     claims.Scopes,
	}, nil
}

// Middleware creates JWT authentication middleware
func Middleware(cfg config.AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				writeError(w, http.StatusUnauthorized, "invalid authorization header format")
				return
			}

			caller, err := VerifyToken(cfg, parts[1])
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), CallerContextKey, caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CallerFromContext retrieves the authenticated caller from the context
func CallerFromContext(ctx context.Context) (*Caller, bool) {
	caller, ok := ctx.Value(CallerContextKey).(*Caller)
	return caller, ok
}

// RequireScope requires the caller to hold a scope
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, ok := CallerFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "not authenticated")
				return
			}

			for _, s := range caller.Scopes {
				if s == scope {
					next.ServeHTTP(w, r)
					return
				}
			}

			writeError(w, http.StatusForbidden, "missing required scope: "+scope)
		})
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
