// Package rpc exposes a read-only, bearer-JWT-gated HTTP surface over world
// state and the APP_EVENT index (SPEC_FULL.md §5 "Admin/query HTTP
// surface"): nodes, institutions, karma, proposals, and app events. This is
// ambient operator tooling layered on top of the core ledger, not one of the
// spec's excluded "apps" (spec §1 only excludes game/attendance-style
// consumers, not an operator console). Grounded on gateway/routes/router.go's
// chi.NewRouter + middleware-stack shape and gateway/middleware/auth.go's
// bearer-JWT Authenticator.
package rpc

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"srishti/appindex"
	"srishti/chain"
)

// Dependencies wires the read models the admin surface serves.
type Dependencies struct {
	Chain    *chain.Manager
	AppIndex *appindex.Store
	Auth     AuthConfig
}

// NewRouter builds the chi-routed HTTP handler.
func NewRouter(deps Dependencies) http.Handler {
	auth := NewAuthenticator(deps.Auth)
	h := &handlers{chain: deps.Chain, apps: deps.AppIndex}

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(sr chi.Router) {
		sr.Use(auth.Middleware)
		sr.Get("/nodes", h.listNodes)
		sr.Get("/nodes/{id}", h.getNode)
		sr.Get("/institutions", h.listInstitutions)
		sr.Get("/karma/{id}", h.getKarma)
		sr.Get("/proposals", h.listProposals)
		sr.Get("/proposals/{id}", h.getProposal)
		sr.Get("/app-events", h.queryAppEvents)
	})

	return otelhttp.NewHandler(r, "srishti-admin-api")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
