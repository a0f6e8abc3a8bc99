package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultTokenTTL = 12 * time.Hour
	tokenIssuer     = "brickd"
)

// ErrTokenInvalid is returned for tokens that fail signature, expiry or
// issuer checks.
var ErrTokenInvalid = errors.New("api: invalid token")

// issueToken signs a websocket token for subject.
func issueToken(secret, subject string, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	now := time.Now()
	expires := now.Add(ttl)
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
		ID:        uuid.NewString(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing websocket token: %w", err)
	}
	return signed, expires, nil
}

// parseToken validates a websocket token and returns its claims.
func parseToken(tokenString, secret string) (*jwt.RegisteredClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

type wsTokenRequest struct {
	Client string `json:"client"`
	Key    string `json:"key"`
}

type wsTokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
	ExpiresIn int    `json:"expires_in"`
}

// handleWSToken exchanges the shared key for a websocket token so the key
// itself never appears in a URL.
func (s *Server) handleWSToken(w http.ResponseWriter, r *http.Request) {
	secret := s.secCfg.JWT.Secret
	if secret == "" {
		writeNotFound(w, "websocket authentication is disabled")
		return
	}

	var req wsTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Client == "" {
		writeBadRequest(w, "client is required")
		return
	}
	if subtle.ConstantTimeCompare([]byte(req.Key), []byte(secret)) != 1 {
		s.logger.Warn("websocket token refused", "client", req.Client)
		writeUnauthorized(w, "invalid key")
		return
	}

	ttl := time.Duration(s.secCfg.JWT.TokenTTL) * time.Minute
	token, expires, err := issueToken(secret, req.Client, ttl)
	if err != nil {
		s.logger.Error("issuing websocket token", "error", err)
		writeInternalError(w, "could not issue token")
		return
	}

	writeJSON(w, http.StatusOK, wsTokenResponse{
		Token:     token,
		ExpiresAt: expires.UTC().Format(time.RFC3339),
		ExpiresIn: int(time.Until(expires).Seconds()),
	})
}
