package main

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/healpoint/healpoint/libs/auth"
	"github.com/healpoint/healpoint/libs/httpx"
)

// Roles accepted on authenticated routes.
const (
	roleAdmin     = "ADMINISTRADOR"
	rolePhysician = "MEDICO"
	rolePatient   = "PACIENTE"
)

var knownRoles = []string{roleAdmin, rolePhysician, rolePatient}

type tokenVerifier interface {
	Verify(ctx context.Context, token string) (*auth.Claims, error)
}

// requireAuth verifies the bearer token and replaces any client supplied
// identity headers with the verified ones. When allowQueryToken is set the
// token may also come from the access_token query parameter, which browsers
// need for websocket upgrades.
func requireAuth(next http.Handler, verifier tokenVerifier, allowQueryToken bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpx.StripIdentity(r.Header)

		token, ok := auth.BearerToken(r.Header.Get("Authorization"))
		if !ok && allowQueryToken {
			token = strings.TrimSpace(r.URL.Query().Get("access_token"))
			ok = token != ""
		}
		if !ok {
			httpx.WriteError(w, http.StatusUnauthorized, "missing or invalid Authorization header")
			return
		}

		claims, err := verifier.Verify(r.Context(), token)
		if err != nil {
			httpx.WriteError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		role := strings.ToUpper(claims.Role)
		if !slices.Contains(knownRoles, role) {
			httpx.WriteError(w, http.StatusForbidden, "forbidden")
			return
		}

		httpx.SetIdentity(r.Header, httpx.Identity{UserID: claims.Subject, Role: role, Name: claims.Name})
		next.ServeHTTP(w, r)
	})
}

// requireRoleFor applies httpx.RequireRole only to the listed methods; other
// methods pass through.
func requireRoleFor(next http.Handler, methods []string, roles ...string) http.Handler {
	guarded := httpx.RequireRole(roles...)(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, m := range methods {
			if r.Method == m {
				guarded.ServeHTTP(w, r)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
