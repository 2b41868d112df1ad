package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"escaperoom/internal/model"
	"escaperoom/internal/service"
)

type contextKey string

const (
	RoomClaimsKey contextKey = "roomClaims"
	IdentityKey   contextKey = "identity"
)

// AuthMiddleware provides JWT authentication middleware
type AuthMiddleware struct {
	authSvc *service.AuthService
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(authSvc *service.AuthService) *AuthMiddleware {
	return &AuthMiddleware{authSvc: authSvc}
}

// RequireRoom validates a room token issued for the {code} in the path.
func (m *AuthMiddleware) RequireRoom(next http.Handler) http.Handler {
	return m.requireRole(next, func(*model.RoomClaims) bool { return true })
}

// RequireAdmin only lets the room's admin through.
func (m *AuthMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return m.requireRole(next, func(c *model.RoomClaims) bool { return c.Role == model.RoleAdmin })
}

// RequirePlayer lets seated players through. A solo owner's admin token
// carries a player id and counts as a seat.
func (m *AuthMiddleware) RequirePlayer(next http.Handler) http.Handler {
	return m.requireRole(next, func(c *model.RoomClaims) bool { return c.PlayerID != "" })
}

func (m *AuthMiddleware) requireRole(next http.Handler, allowed func(*model.RoomClaims) bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r)
		if token == "" {
			writeAuthError(w, http.StatusUnauthorized, "missing authorization header")
			return
		}

		claims, err := m.authSvc.ValidateRoomToken(token)
		if err != nil {
			writeAuthError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		if code := mux.Vars(r)["code"]; code != "" && !strings.EqualFold(code, claims.RoomCode) {
			writeAuthError(w, http.StatusForbidden, "token not valid for this room")
			return
		}
		if !allowed(claims) {
			writeAuthError(w, http.StatusForbidden, "insufficient role")
			return
		}

		ctx := context.WithValue(r.Context(), RoomClaimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OptionalIdentity attaches identity claims when a bearer token is present.
// A present but invalid token is rejected.
func (m *AuthMiddleware) OptionalIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := m.authSvc.ValidateIdentityToken(token)
		if err != nil {
			writeAuthError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), IdentityKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRoomClaims extracts room claims from context
func GetRoomClaims(ctx context.Context) *model.RoomClaims {
	if v, ok := ctx.Value(RoomClaimsKey).(*model.RoomClaims); ok {
		return v
	}
	return nil
}

// GetPlayerID extracts the caller's seat from context
func GetPlayerID(ctx context.Context) string {
	if c := GetRoomClaims(ctx); c != nil {
		return c.PlayerID
	}
	return ""
}

// GetIdentity extracts identity claims from context
func GetIdentity(ctx context.Context) *model.IdentityClaims {
	if v, ok := ctx.Value(IdentityKey).(*model.IdentityClaims); ok {
		return v
	}
	return nil
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + message + `","code":"unauthorized"}`))
}
