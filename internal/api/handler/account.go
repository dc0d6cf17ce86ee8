package handler

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/peerpay/ledgercore/internal/domain"
	"github.com/peerpay/ledgercore/internal/service"
)

type AccountHandler struct {
	svc *service.AccountService
}

func NewAccountHandler(svc *service.AccountService) *AccountHandler {
	return &AccountHandler{svc: svc}
}

func (h *AccountHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-context", err.Error())
		return
	}

	var req struct {
		Currency string `json:"currency"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	account, err := h.svc.CreateAccount(r.Context(), actorID, req.Currency)
	if err != nil {
		if status, problemType, message, ok := mapDBError(err); ok {
			RespondError(w, r, status, problemType, message)
			return
		}
		RespondError(w, r, http.StatusBadRequest, "account/invalid", err.Error())
		return
	}
	RespondJSON(w, http.StatusCreated, account)
}

func (h *AccountHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-context", err.Error())
		return
	}

	accounts, err := h.svc.ListAccounts(r.Context(), actorID)
	if err != nil {
		RespondError(w, r, http.StatusNotFound, "identity/not-found", "Identity not found")
		return
	}
	RespondJSON(w, http.StatusOK, accounts)
}

func (h *AccountHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-context", err.Error())
		return
	}

	accountID, err := pathUUID(r, "id")
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "Invalid account id")
		return
	}

	snapshot, err := h.svc.Snapshot(r.Context(), actorID, accountID)
	if err != nil {
		if respondDomainError(w, r, err) {
			return
		}
		RespondError(w, r, http.StatusInternalServerError, "", "Failed to read balance")
		return
	}
	RespondJSON(w, http.StatusOK, snapshot)
}

// Deposit credits external funds. Admin only; the router enforces the role.
func (h *AccountHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountID string `json:"account_id"`
		Amount    string `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	accountID, err := uuid.Parse(req.AccountID)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "Invalid account_id")
		return
	}

	amountMicros, err := domain.ParseAmount(req.Amount)
	if err != nil {
		RespondError(w, r, http.StatusUnprocessableEntity, "deposit/invalid-amount", "Invalid amount")
		return
	}

	snapshot, err := h.svc.Deposit(r.Context(), accountID, amountMicros)
	if err != nil {
		if respondDomainError(w, r, err) {
			return
		}
		RespondError(w, r, http.StatusInternalServerError, "", "Deposit failed")
		return
	}
	RespondJSON(w, http.StatusOK, snapshot)
}
