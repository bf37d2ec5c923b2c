package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/invitation-core/internal/auth"
	"github.com/Shivanand-hulikatti/invitation-core/internal/model"
	"github.com/Shivanand-hulikatti/invitation-core/internal/service"
)

// ProvisionInvitation handles POST /provision-invitation
// Creates an invitation against the caller's package quota.
func (h *Handler) ProvisionInvitation(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req model.ProvisionInvitationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	res, err := h.saga.Provision(r.Context(), model.ProvisioningRequest{
		UserID:     userID,
		TemplateID: req.TemplateID,
		Payload:    req.InvitationData,
	})
	if err != nil {
		var (
			qe *service.QuotaExceededError
			te *service.TemplateNotAccessibleError
		)
		switch {
		case errors.As(err, &qe):
			writeErrorDetails(w, http.StatusForbidden, "Package limit exceeded", map[string]int{
				"remaining": qe.Remaining,
				"limit":     qe.Limit,
			})
		case errors.As(err, &te):
			writeErrorDetails(w, http.StatusForbidden, "Template not accessible with current package", map[string]any{
				"templateId":            te.TemplateID,
				"accessibleTemplateIds": te.AccessibleIDs,
			})
		case errors.Is(err, service.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.Error("provision invitation", zap.String("user_id", userID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Failed to create invitation")
		}
		return
	}

	writeData(w, res)
}

// Quota handles GET /provision-invitation/quota
// Returns the caller's advisory quota status.
func (h *Handler) Quota(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if _, err := h.ledger.EnsureProfile(r.Context(), userID); err != nil {
		h.logger.Error("ensure profile", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load quota")
		return
	}
	status, err := h.ledger.CheckCanCreate(r.Context(), userID)
	if err != nil {
		h.logger.Error("check quota", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load quota")
		return
	}

	writeData(w, status)
}

// UpgradeEntitlement handles POST /internal/entitlements/{userId}/upgrade
// Grants a package tier; called by billing after a successful payment.
func (h *Handler) UpgradeEntitlement(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "userId"))

	var req model.UpgradeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	ent, err := h.ledger.Upgrade(r.Context(), userID, req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("upgrade entitlement", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to upgrade entitlement")
		return
	}

	writeData(w, ent)
}
