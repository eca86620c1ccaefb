// Package auth extracts the acting identity for mutating operations. The
// pipeline itself only consumes "privileged actor + identity string"; token
// validation lives here, at the edge.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type ctxKey string

const ctxKeyActor ctxKey = "promptgate.actor"

// Actor is the caller identity attached to mutating requests.
type Actor struct {
	Subject    string
	Privileged bool
}

// FromContext returns the Actor stored by the middleware, or nil.
func FromContext(ctx context.Context) *Actor {
	if a, ok := ctx.Value(ctxKeyActor).(*Actor); ok {
		return a
	}
	return nil
}

// Config controls the middleware.
type Config struct {
	// JWTSecret verifies HMAC-signed bearer tokens carrying "sub" and
	// "privileged" claims.
	JWTSecret string
	// AllowDebugToken accepts an X-Debug-Token header instead, for local
	// development only; the actor is then taken from X-Actor.
	AllowDebugToken bool
	DebugToken      string
}

// RequirePrivileged returns middleware gating mutating routes: the caller
// must authenticate and carry the privileged claim.
func RequirePrivileged(cfg Config) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, err := authenticate(cfg, r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}
			if !actor.Privileged {
				http.Error(w, "privileged actor required", http.StatusForbidden)
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyActor, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authenticate(cfg Config, r *http.Request) (*Actor, error) {
	if cfg.AllowDebugToken {
		if token := r.Header.Get("X-Debug-Token"); token != "" && token == cfg.DebugToken {
			subject := r.Header.Get("X-Actor")
			if subject == "" {
				subject = "debug"
			}
			return &Actor{Subject: subject, Privileged: true}, nil
		}
		return nil, fmt.Errorf("debug token required")
	}

	authz := r.Header.Get("Authorization")
	if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return nil, fmt.Errorf("bearer token required")
	}
	raw := strings.TrimSpace(authz[len("bearer "):])

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	subject, _ := claims["sub"].(string)
	if subject == "" {
		return nil, fmt.Errorf("token missing sub claim")
	}
	privileged, _ := claims["privileged"].(bool)
	return &Actor{Subject: subject, Privileged: privileged}, nil
}
