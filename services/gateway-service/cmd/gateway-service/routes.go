package main

import (
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/healpoint/healpoint/libs/httpx"
)

var writeMethods = []string{http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete}

type upstreams struct {
	auth   *url.URL
	clinic *url.URL
}

// newProxy forwards to target and turns transport failures into a JSON 502.
func newProxy(target *url.URL, transport http.RoundTripper, logger *slog.Logger) *httputil.ReverseProxy {
	proxy := httputil.NewSingleHostReverseProxy(target)
	if transport != nil {
		proxy.Transport = transport
	}
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Error("upstream request failed",
			"err", err,
			"upstream", target.Host,
			"path", r.URL.Path,
			"request_id", httpx.RequestIDFromContext(r.Context()),
		)
		httpx.WriteError(w, http.StatusBadGateway, "upstream unavailable")
	}
	return proxy
}

// registerRoutes mounts the public route table. Finer role checks than a
// prefix are left to the clinic service.
func registerRoutes(mux *http.ServeMux, up upstreams, verifier tokenVerifier, transport http.RoundTripper, logger *slog.Logger) {
	authProxy := newProxy(up.auth, transport, logger)
	clinicProxy := newProxy(up.clinic, transport, logger)

	authed := func(h http.Handler) http.Handler { return requireAuth(h, verifier, false) }

	registerProxy(mux, "/api/v1/auth", authProxy)
	mux.Handle("/.well-known/jwks.json", authProxy)

	registerProxy(mux, "/api/v1/monitoring", authed(httpx.RequireRole(roleAdmin)(clinicProxy)))
	registerProxy(mux, "/api/v1/roles", authed(requireRoleFor(clinicProxy, writeMethods, roleAdmin)))
	registerProxy(mux, "/api/v1/statuses", authed(requireRoleFor(clinicProxy, writeMethods, roleAdmin)))
	registerProxy(mux, "/api/v1", authed(clinicProxy))
}

// liveHandler proxies the websocket feed. It is mounted outside the timeout
// middleware because the upgraded connection outlives any request deadline.
func liveHandler(up upstreams, verifier tokenVerifier, transport http.RoundTripper, logger *slog.Logger) http.Handler {
	return requireAuth(newProxy(up.clinic, transport, logger), verifier, true)
}

func registerProxy(mux *http.ServeMux, prefix string, handler http.Handler) {
	if !strings.HasSuffix(prefix, "/") {
		mux.Handle(prefix, handler)
		mux.Handle(prefix+"/", handler)
		return
	}
	mux.Handle(prefix, handler)
}

func mustParseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		panic(err)
	}
	return u
}
