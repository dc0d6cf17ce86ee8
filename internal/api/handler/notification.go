package handler

import (
	"net/http"

	"github.com/peerpay/ledgercore/internal/notification"
)

type NotificationHandler struct {
	svc *notification.Service
}

func NewNotificationHandler(svc *notification.Service) *NotificationHandler {
	return &NotificationHandler{svc: svc}
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-context", err.Error())
		return
	}

	limit := queryInt(r, "limit", 20)
	offset := queryInt(r, "offset", 0)

	notifications, err := h.svc.List(r.Context(), actorID, limit, offset)
	if err != nil {
		RespondError(w, r, http.StatusInternalServerError, "", "Failed to list notifications")
		return
	}
	RespondJSON(w, http.StatusOK, notifications)
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-context", err.Error())
		return
	}

	notificationID, err := pathUUID(r, "id")
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "Invalid notification id")
		return
	}

	if err := h.svc.MarkRead(r.Context(), actorID, notificationID); err != nil {
		RespondError(w, r, http.StatusNotFound, "notification/not-found", "Notification not found")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{"status": "read"})
}
