package api

import (
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestIssueAndParseToken(t *testing.T) {
	token, expires, err := issueToken(testSecret, "panel-1", time.Minute)
	if err != nil {
		t.Fatalf("issueToken() error = %v", err)
	}
	if time.Until(expires) > time.Minute || time.Until(expires) < 50*time.Second {
		t.Errorf("expires = %v", expires)
	}

	claims, err := parseToken(token, testSecret)
	if err != nil {
		t.Fatalf("parseToken() error = %v", err)
	}
	if claims.Subject != "panel-1" || claims.Issuer != tokenIssuer {
		t.Errorf("claims = %+v", claims)
	}

	if _, err := parseToken(token, testSecret+"x"); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("wrong secret error = %v", err)
	}
	if _, err := parseToken("not-a-token", testSecret); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("garbage error = %v", err)
	}

	// A non-positive TTL selects the default.
	defaulted, _, err := issueToken(testSecret, "panel-1", -time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := parseToken(defaulted, testSecret); err != nil {
		t.Errorf("default TTL token error = %v", err)
	}
}

func TestWSToken_Endpoint(t *testing.T) {
	disabled := newTestEnv(t)
	if rec := disabled.do(t, http.MethodPost, "/api/v1/auth/ws-token", `{}`); rec.Code != http.StatusNotFound {
		t.Errorf("disabled status = %d, want 404", rec.Code)
	}

	env := newTestEnv(t, withSecret)
	tests := []struct {
		name string
		body string
		want int
	}{
		{"bad json", `{`, http.StatusBadRequest},
		{"missing client", `{"key":"` + testSecret + `"}`, http.StatusBadRequest},
		{"wrong key", `{"client":"panel","key":"nope"}`, http.StatusUnauthorized},
		{"ok", `{"client":"panel","key":"` + testSecret + `"}`, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/v1/auth/ws-token", tt.body)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body)
			}
			if tt.want != http.StatusOK {
				return
			}
			resp := decode[wsTokenResponse](t, rec)
			if resp.ExpiresIn <= 0 || resp.ExpiresIn > 600 {
				t.Errorf("expires_in = %d", resp.ExpiresIn)
			}
			claims, err := parseToken(resp.Token, testSecret)
			if err != nil || claims.Subject != "panel" {
				t.Errorf("token claims = %+v, err = %v", claims, err)
			}
		})
	}
}
