package handler

import (
	"encoding/json"
	"net/http"

	"github.com/peerpay/ledgercore/internal/service"
)

type IdentityHandler struct {
	svc *service.IdentityService
}

func NewIdentityHandler(svc *service.IdentityService) *IdentityHandler {
	return &IdentityHandler{svc: svc}
}

func (h *IdentityHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username    string `json:"username"`
		DisplayName string `json:"display_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	identity, err := h.svc.Register(r.Context(), req.Username, req.DisplayName)
	if err != nil {
		if status, problemType, message, ok := mapDBError(err); ok {
			RespondError(w, r, status, problemType, message)
			return
		}
		RespondError(w, r, http.StatusBadRequest, "identity/invalid", err.Error())
		return
	}

	RespondJSON(w, http.StatusCreated, identity)
}

func (h *IdentityHandler) Me(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-context", err.Error())
		return
	}

	identity, err := h.svc.GetIdentity(r.Context(), actorID)
	if err != nil {
		RespondError(w, r, http.StatusNotFound, "identity/not-found", "Identity not found")
		return
	}
	RespondJSON(w, http.StatusOK, identity)
}
