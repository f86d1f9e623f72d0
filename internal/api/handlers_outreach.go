package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/bondedhq/link-server/internal/api/respond"
	"github.com/bondedhq/link-server/internal/api/validate"
	"github.com/bondedhq/link-server/internal/outreach"
	"github.com/bondedhq/link-server/internal/store"
)

type OutreachHandler struct {
	mgr   *outreach.Manager
	coord *outreach.Coordinator
	runs  store.Runs
}

func NewOutreachHandler(mgr *outreach.Manager, coord *outreach.Coordinator, runs store.Runs) *OutreachHandler {
	return &OutreachHandler{mgr: mgr, coord: coord, runs: runs}
}

// GetRun handles GET /v0/outreach/{runId}.
func (h *OutreachHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["runId"]
	if err := validate.RunID(runID); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	run, err := h.runs.Get(r.Context(), runID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, run)
}

// Collect handles POST /v0/outreach/{runId}/collect.
func (h *OutreachHandler) Collect(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["runId"]
	if err := validate.RunID(runID); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	out, err := h.mgr.Collect(r.Context(), runID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, out)
}

// ResolveConsent handles POST /v0/outreach/{runId}/consent.
func (h *OutreachHandler) ResolveConsent(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["runId"]
	if err := validate.RunID(runID); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	var in struct {
		RequesterOk bool `json:"requesterOk"`
		TargetOk    bool `json:"targetOk"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respond.WriteBadRequest(w, "invalid json")
		return
	}
	out, err := h.coord.Resolve(r.Context(), runID, in.RequesterOk, in.TargetOk)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, out)
}

// Cancel handles POST /v0/outreach/{runId}/cancel.
func (h *OutreachHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["runId"]
	if err := validate.RunID(runID); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	run, err := h.mgr.Cancel(r.Context(), runID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, run)
}
