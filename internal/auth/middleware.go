// Package auth guards the API with a shared bearer token.
package auth

import (
	"crypto/subtle"
	"errors"
	"log"
	"net/http"
	"strings"
)

var (
	errNoToken    = errors.New("no token")
	errBadHeader  = errors.New("invalid Authorization header format")
	errWrongToken = errors.New("token does not match")
)

// RequireToken returns middleware that only lets through requests carrying the
// API token. An empty token disables the check.
func RequireToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := ValidateToken(r, token); err != nil {
				log.Printf("Auth: %v", err)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ValidateToken checks the request's token against the expected one.
// The token comes from an "Authorization: Bearer <token>" header (RFC 7235) or,
// since browsers can't set headers on WebSocket connections, from the token
// query parameter.
func ValidateToken(r *http.Request, expected string) error {
	token, err := tokenFromRequest(r)
	if err != nil {
		return err
	}

	if subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
		return errWrongToken
	}
	return nil
}

func tokenFromRequest(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if token := r.URL.Query().Get("token"); token != "" {
			return token, nil
		}
		return "", errNoToken
	}

	// Bearer scheme is case-insensitive per RFC 7235
	fields := strings.Fields(authHeader)
	if len(fields) < 2 || !strings.EqualFold(fields[0], "Bearer") {
		return "", errBadHeader
	}

	token := strings.TrimSpace(strings.Join(fields[1:], " "))
	if token == "" {
		return "", errNoToken
	}
	return token, nil
}
