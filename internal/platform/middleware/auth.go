// Package middleware carries the HTTP middleware shared by the transport
// layer.
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// Claims carries the authenticated mobile session identity: the user and the
// device activation the token was issued for.
type Claims struct {
	UserID       string
	ActivationID string
}

type contextKeyUserID struct{}
type contextKeyActivationID struct{}

// GetUserID retrieves the authenticated user ID from the context.
func GetUserID(ctx context.Context) string {
	userID, ok := ctx.Value(contextKeyUserID{}).(string)
	if !ok {
		return ""
	}
	return userID
}

// GetActivationID retrieves the authenticated activation ID from the context.
func GetActivationID(ctx context.Context) string {
	activationID, ok := ctx.Value(contextKeyActivationID{}).(string)
	if !ok {
		return ""
	}
	return activationID
}

// WithIdentity injects an identity into the context. Test hook for handler
// tests that bypass the middleware.
func WithIdentity(ctx context.Context, claims Claims) context.Context {
	ctx = context.WithValue(ctx, contextKeyUserID{}, claims.UserID)
	return context.WithValue(ctx, contextKeyActivationID{}, claims.ActivationID)
}

// RequireAuth validates the bearer token and stores the caller identity on
// the request context.
func RequireAuth(signingKey []byte, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				logger.Warn("unauthorized access, missing token",
					zap.String("request_id", chimiddleware.GetReqID(ctx)))
				writeUnauthorized(w, "Missing or invalid Authorization header")
				return
			}

			claims, err := parseToken(token, signingKey)
			if err != nil {
				logger.Warn("unauthorized access, invalid token",
					zap.String("request_id", chimiddleware.GetReqID(ctx)), zap.Error(err))
				writeUnauthorized(w, "Invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, claims)))
		})
	}
}

func parseToken(tokenString string, signingKey []byte) (Claims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return signingKey, nil
	})
	if err != nil {
		return Claims{}, err
	}
	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, fmt.Errorf("unexpected claims type %T", token.Claims)
	}

	claims := Claims{}
	if sub, _ := mapClaims["sub"].(string); sub != "" {
		claims.UserID = sub
	}
	if activationID, _ := mapClaims["activation_id"].(string); activationID != "" {
		claims.ActivationID = activationID
	}
	if claims.UserID == "" || claims.ActivationID == "" {
		return Claims{}, fmt.Errorf("token missing identity claims")
	}
	return claims, nil
}

func writeUnauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	fmt.Fprintf(w, `{"error":"unauthorized","error_description":%q}`, description)
}
