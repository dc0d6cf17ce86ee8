package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/peerpay/ledgercore/internal/api/middleware"
	"github.com/peerpay/ledgercore/internal/api/problem"
	"github.com/peerpay/ledgercore/internal/domain"
)

// RespondJSON writes a JSON response.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// RespondError writes an error response.
func RespondError(w http.ResponseWriter, r *http.Request, status int, problemType, message string) {
	if problemType != "" && problemType != "about:blank" && !strings.HasPrefix(problemType, "http") {
		problemType = problem.Type(problemType)
	}
	problem.Write(w, r, status, problemType, http.StatusText(status), message)
}

func requestActor(r *http.Request) (uuid.UUID, bool, error) {
	identityID := middleware.IdentityIDFromContext(r.Context())
	if identityID == "" {
		return uuid.Nil, false, errors.New("missing identity in auth context")
	}

	actorID, err := uuid.Parse(identityID)
	if err != nil {
		return uuid.Nil, false, errors.New("invalid identity_id in auth context")
	}

	return actorID, middleware.IdentityRoleFromContext(r.Context()) == "admin", nil
}

// respondDomainError translates the core error taxonomy into problem+json.
// Returns false when the error is not a recognized domain error.
func respondDomainError(w http.ResponseWriter, r *http.Request, err error) bool {
	switch {
	case errors.Is(err, domain.ErrInvalidAmount):
		RespondError(w, r, http.StatusUnprocessableEntity, "transfer/invalid-amount", "amount must be positive")
	case errors.Is(err, domain.ErrSameAccount):
		RespondError(w, r, http.StatusUnprocessableEntity, "transfer/same-account", "sender and receiver accounts must differ")
	case errors.Is(err, domain.ErrCurrencyMismatch):
		RespondError(w, r, http.StatusUnprocessableEntity, "transfer/currency-mismatch", "accounts hold different currencies")
	case errors.Is(err, domain.ErrInsufficientFunds):
		RespondError(w, r, http.StatusUnprocessableEntity, "transfer/insufficient-funds", "available balance is too low")
	case errors.Is(err, domain.ErrAlreadyFinalized):
		RespondError(w, r, http.StatusConflict, "transfer/already-finalized", "transfer already has a terminal decision")
	case errors.Is(err, domain.ErrUnauthorized):
		RespondError(w, r, http.StatusForbidden, "auth/not-owner", "account is not owned by the authenticated identity")
	case errors.Is(err, domain.ErrAccountNotFound):
		RespondError(w, r, http.StatusNotFound, "account/not-found", "account not found")
	case errors.Is(err, domain.ErrTransferNotFound):
		RespondError(w, r, http.StatusNotFound, "transfer/not-found", "transfer not found")
	case errors.Is(err, domain.ErrInternalInconsistency):
		RespondError(w, r, http.StatusInternalServerError, "ledger/inconsistency", "ledger state inconsistency detected")
	default:
		return false
	}
	return true
}

func mapDBError(err error) (status int, problemType, message string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return 0, "", "", false
	}

	switch pgErr.Code {
	case "23505": // unique_violation
		return http.StatusConflict, "db/unique-violation", "resource already exists", true
	case "23503": // foreign_key_violation
		return http.StatusBadRequest, "db/foreign-key-violation", "invalid reference", true
	case "23514": // check_violation
		return http.StatusBadRequest, "db/check-violation", "request violates data constraints", true
	case "23502": // not_null_violation
		return http.StatusBadRequest, "db/not-null-violation", "missing required field", true
	default:
		return 0, "", "", false
	}
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func pathUUID(r *http.Request, param string) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, param))
}
