package httpx

import (
	"net/http"
	"slices"
	"strings"
)

// Identity headers are set by the gateway after the bearer token is verified.
// Inbound copies from clients are stripped before forwarding.
const (
	UserIDHeader   = "X-User-Id"
	RoleHeader     = "X-Role"
	UserNameHeader = "X-User-Name"
)

type Identity struct {
	UserID string
	Role   string
	Name   string
}

func (i Identity) HasRole(roles ...string) bool {
	return slices.Contains(roles, i.Role)
}

func IdentityFromRequest(r *http.Request) (Identity, bool) {
	id := Identity{
		UserID: strings.TrimSpace(r.Header.Get(UserIDHeader)),
		Role:   strings.ToUpper(strings.TrimSpace(r.Header.Get(RoleHeader))),
		Name:   strings.TrimSpace(r.Header.Get(UserNameHeader)),
	}
	if id.UserID == "" || id.Role == "" {
		return Identity{}, false
	}
	return id, true
}

// StripIdentity removes identity headers a client may have forged.
func StripIdentity(h http.Header) {
	h.Del(UserIDHeader)
	h.Del(RoleHeader)
	h.Del(UserNameHeader)
}

func SetIdentity(h http.Header, id Identity) {
	h.Set(UserIDHeader, id.UserID)
	h.Set(RoleHeader, id.Role)
	if id.Name != "" {
		h.Set(UserNameHeader, id.Name)
	}
}

func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := IdentityFromRequest(r); !ok {
			WriteError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole rejects callers whose role is not listed.
func RequireRole(roles ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromRequest(r)
			if !ok {
				WriteError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if !id.HasRole(roles...) {
				WriteError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
