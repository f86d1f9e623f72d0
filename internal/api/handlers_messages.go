package api

import (
	"encoding/json"
	"net/http"

	"github.com/bondedhq/link-server/internal/api/respond"
	"github.com/bondedhq/link-server/internal/api/validate"
	"github.com/bondedhq/link-server/internal/assistant"
)

type MessagesHandler struct {
	svc *assistant.Service
}

func NewMessagesHandler(svc *assistant.Service) *MessagesHandler {
	return &MessagesHandler{svc: svc}
}

// HandleMessage handles POST /v0/messages.
func (h *MessagesHandler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	var in struct {
		UserID string `json:"userId"`
		Text   string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respond.WriteBadRequest(w, "invalid json")
		return
	}
	if err := validate.UserID(in.UserID); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	if err := validate.MessageText(in.Text); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}

	out, err := h.svc.Handle(r.Context(), in.UserID, in.Text)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, out)
}
