package api

import (
	"net/http"
	"strings"

	"github.com/bondedhq/link-server/internal/api/respond"
	"github.com/bondedhq/link-server/internal/api/validate"
	"github.com/bondedhq/link-server/internal/factcache"
)

type FactsHandler struct {
	facts *factcache.Cache
}

func NewFactsHandler(facts *factcache.Cache) *FactsHandler {
	return &FactsHandler{facts: facts}
}

// ListFacts handles GET /v0/facts?universityId=...&tags=a,b.
// Expired facts are swept before the lookup and never returned.
func (h *FactsHandler) ListFacts(w http.ResponseWriter, r *http.Request) {
	universityID := r.URL.Query().Get("universityId")
	if err := validate.NonEmpty("universityId", universityID); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	var tags []string
	if raw := r.URL.Query().Get("tags"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
	}

	facts, err := h.facts.Lookup(r.Context(), universityID, tags)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"facts": facts,
		"count": len(facts),
	})
}
