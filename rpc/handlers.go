package rpc

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"srishti/appindex"
	"srishti/chain"
)

type handlers struct {
	chain *chain.Manager
	apps  *appindex.Store
}

// nodeView is the JSON shape returned for a single node (world-state Node
// plus the derived role and karma balance, which live in separate maps).
type nodeView struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	ParentIDs []string `json:"parentIds"`
	Role      string   `json:"role"`
	Karma     string   `json:"karma"`
	JoinedAt  int64    `json:"joinedAt"`
}

func (h *handlers) listNodes(w http.ResponseWriter, r *http.Request) {
	st := h.chain.State()
	views := make([]nodeView, 0, len(st.Nodes))
	for id, n := range st.Nodes {
		views = append(views, nodeView{
			ID:        id,
			Name:      n.Name,
			ParentIDs: n.ParentIDs,
			Role:      string(st.NodeRoles[id]),
			Karma:     st.KarmaOf(id).String(),
			JoinedAt:  n.JoinedAt,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *handlers) getNode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	st := h.chain.State()
	n, ok := st.Nodes[id]
	if !ok {
		writeError(w, http.StatusNotFound, "node not found")
		return
	}
	writeJSON(w, http.StatusOK, nodeView{
		ID:        id,
		Name:      n.Name,
		ParentIDs: n.ParentIDs,
		Role:      string(st.NodeRoles[id]),
		Karma:     st.KarmaOf(id).String(),
		JoinedAt:  n.JoinedAt,
	})
}

func (h *handlers) listInstitutions(w http.ResponseWriter, r *http.Request) {
	st := h.chain.State()
	writeJSON(w, http.StatusOK, st.Institutions)
}

func (h *handlers) getKarma(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	st := h.chain.State()
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "karma": st.KarmaOf(id).String()})
}

func (h *handlers) listProposals(w http.ResponseWriter, r *http.Request) {
	st := h.chain.State()
	writeJSON(w, http.StatusOK, st.Proposals)
}

func (h *handlers) getProposal(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	st := h.chain.State()
	p, ok := st.Proposals[id]
	if !ok {
		writeError(w, http.StatusNotFound, "proposal not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handlers) queryAppEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 100
	if raw := q.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	ctx := r.Context()
	switch {
	case q.Get("ref") != "":
		records, err := h.apps.QueryByRef(ctx, q.Get("ref"), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, records)
	case q.Get("target") != "":
		records, err := h.apps.QueryByTarget(ctx, q.Get("target"), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, records)
	case q.Get("appId") != "":
		records, err := h.apps.QueryByApp(ctx, q.Get("appId"), q.Get("action"), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, records)
	default:
		writeError(w, http.StatusBadRequest, "one of appId, ref, or target is required")
	}
}
