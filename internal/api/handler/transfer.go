package handler

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/peerpay/ledgercore/internal/domain"
	"github.com/peerpay/ledgercore/internal/service"
)

type TransferHandler struct {
	svc *service.TransferCoordinator
}

func NewTransferHandler(svc *service.TransferCoordinator) *TransferHandler {
	return &TransferHandler{svc: svc}
}

// Propose escrows funds on the sender account and creates a pending
// transfer. The idempotency middleware guards against duplicate submissions.
func (h *TransferHandler) Propose(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-context", err.Error())
		return
	}

	var req struct {
		SenderAccountID   string `json:"sender_account_id"`
		ReceiverAccountID string `json:"receiver_account_id"`
		Amount            string `json:"amount"`
		Description       string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	senderID, err := uuid.Parse(req.SenderAccountID)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "Invalid sender_account_id")
		return
	}
	receiverID, err := uuid.Parse(req.ReceiverAccountID)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "Invalid receiver_account_id")
		return
	}
	amountMicros, err := domain.ParseAmount(req.Amount)
	if err != nil {
		RespondError(w, r, http.StatusUnprocessableEntity, "transfer/invalid-amount", "Invalid amount")
		return
	}

	transfer, err := h.svc.Propose(r.Context(), actorID, senderID, receiverID, amountMicros, req.Description)
	if err != nil {
		if respondDomainError(w, r, err) {
			return
		}
		RespondError(w, r, http.StatusInternalServerError, "", "Transfer proposal failed")
		return
	}
	RespondJSON(w, http.StatusCreated, transfer)
}

// Decide records the receiver's accept or reject verdict.
func (h *TransferHandler) Decide(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-context", err.Error())
		return
	}

	transferID, err := pathUUID(r, "id")
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "Invalid transfer id")
		return
	}

	var req struct {
		Decision string `json:"decision"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	var outcome domain.DecisionOutcome
	switch req.Decision {
	case "accept":
		outcome = domain.OutcomeAccept
	case "reject":
		outcome = domain.OutcomeReject
	default:
		RespondError(w, r, http.StatusBadRequest, "transfer/invalid-decision", `decision must be "accept" or "reject"`)
		return
	}

	transfer, err := h.svc.Decide(r.Context(), actorID, transferID, outcome)
	if err != nil {
		if respondDomainError(w, r, err) {
			return
		}
		RespondError(w, r, http.StatusInternalServerError, "", "Transfer decision failed")
		return
	}
	RespondJSON(w, http.StatusOK, transfer)
}

// Cancel withdraws a pending transfer the actor proposed.
func (h *TransferHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-context", err.Error())
		return
	}

	transferID, err := pathUUID(r, "id")
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "Invalid transfer id")
		return
	}

	transfer, err := h.svc.Cancel(r.Context(), actorID, transferID)
	if err != nil {
		if respondDomainError(w, r, err) {
			return
		}
		RespondError(w, r, http.StatusInternalServerError, "", "Transfer cancel failed")
		return
	}
	RespondJSON(w, http.StatusOK, transfer)
}

func (h *TransferHandler) GetTransfer(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-context", err.Error())
		return
	}

	transferID, err := pathUUID(r, "id")
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "Invalid transfer id")
		return
	}

	transfer, err := h.svc.GetTransfer(r.Context(), actorID, transferID)
	if err != nil {
		if respondDomainError(w, r, err) {
			return
		}
		RespondError(w, r, http.StatusInternalServerError, "", "Failed to load transfer")
		return
	}
	RespondJSON(w, http.StatusOK, transfer)
}

func (h *TransferHandler) ListTransfers(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-context", err.Error())
		return
	}

	limit := queryInt(r, "limit", 20)
	offset := queryInt(r, "offset", 0)

	if rawAccount := r.URL.Query().Get("account_id"); rawAccount != "" {
		accountID, err := uuid.Parse(rawAccount)
		if err != nil {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "Invalid account_id")
			return
		}
		transfers, err := h.svc.ListTransfersForAccount(r.Context(), actorID, accountID, limit, offset)
		if err != nil {
			if respondDomainError(w, r, err) {
				return
			}
			RespondError(w, r, http.StatusInternalServerError, "", "Failed to list transfers")
			return
		}
		RespondJSON(w, http.StatusOK, transfers)
		return
	}

	transfers, err := h.svc.ListTransfersForIdentity(r.Context(), actorID, limit, offset)
	if err != nil {
		if respondDomainError(w, r, err) {
			return
		}
		RespondError(w, r, http.StatusInternalServerError, "", "Failed to list transfers")
		return
	}
	RespondJSON(w, http.StatusOK, transfers)
}
