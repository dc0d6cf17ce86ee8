package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/peerpay/ledgercore/internal/api/middleware"
	"github.com/peerpay/ledgercore/internal/service"
)

type AuthHandler struct {
	identities *service.IdentityService
}

func NewAuthHandler(identities *service.IdentityService) *AuthHandler {
	return &AuthHandler{identities: identities}
}

// Login issues a signed token for a registered username. Credential
// verification is out of scope; possession of the username is the mock
// credential, mirroring a gateway that terminates real authentication
// upstream.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	identity, err := h.identities.GetByUsername(r.Context(), req.Username)
	if err != nil {
		RespondError(w, r, http.StatusNotFound, "identity/not-found", "Identity not found")
		return
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"identity_id": identity.ID.String(),
		"role":        identity.Role,
		"sub":         identity.ID.String(),
		"iss":         middleware.JWTIssuer(),
		"aud":         middleware.JWTAudience(),
		"iat":         now.Unix(),
		"exp":         now.Add(24 * time.Hour).Unix(),
	})

	tokenString, err := token.SignedString(middleware.JWTSecret())
	if err != nil {
		RespondError(w, r, http.StatusInternalServerError, "auth/token-signing", "Failed to sign token")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]string{"token": tokenString})
}
