package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/pandeptwidyaop/hookrelay/internal/db/models"
	"github.com/pandeptwidyaop/hookrelay/internal/server/hooks"
	"github.com/pandeptwidyaop/hookrelay/internal/server/web/middleware"
	"github.com/pandeptwidyaop/hookrelay/pkg/logger"
)

// maxCreateBodyBytes bounds the create-hook request body.
const maxCreateBodyBytes = 64 << 10

// hookResponse is a Hook plus its public ingestion URL.
type hookResponse struct {
	models.Hook
	WebhookURL string `json:"webhook_url"`
}

func (h *Handler) webhookURL(hookID string) string {
	return h.config.Server.PublicURL + "/webhook/" + hookID
}

func (h *Handler) toResponse(hook models.Hook) hookResponse {
	return hookResponse{Hook: hook, WebhookURL: h.webhookURL(hook.ID)}
}

func (h *Handler) createHook(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipalFromContext(r.Context())

	// A missing or malformed body yields a hook with default settings
	var input hooks.CreateHookInput
	if err := json.NewDecoder(io.LimitReader(r.Body, maxCreateBodyBytes)).Decode(&input); err != nil {
		if err != io.EOF {
			logger.DebugEvent().Err(err).Msg("Ignoring malformed create hook body")
		}
		input = hooks.CreateHookInput{}
	}

	hook, err := h.registry.Create(r.Context(), principal.Token, input)
	if err != nil {
		respondServiceError(w, err, "Failed to create hook")
		return
	}

	logger.InfoEvent().
		Str("hook_id", hook.ID).
		Str("identity", principal.Identity).
		Str("delivery_method", string(hook.DeliveryMethod)).
		Msg("Hook created")

	respondJSON(w, http.StatusCreated, h.toResponse(*hook))
}

func (h *Handler) listHooks(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipalFromContext(r.Context())

	list, err := h.registry.List(r.Context(), principal.Token)
	if err != nil {
		respondServiceError(w, err, "Failed to list hooks")
		return
	}

	response := make([]hookResponse, len(list))
	for i, hook := range list {
		response[i] = h.toResponse(hook)
	}

	respondJSON(w, http.StatusOK, response)
}

func (h *Handler) getHook(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipalFromContext(r.Context())

	hook, err := h.registry.Get(r.Context(), r.PathValue("id"), principal.Token)
	if err != nil {
		respondServiceError(w, err, "Failed to get hook")
		return
	}

	respondJSON(w, http.StatusOK, h.toResponse(*hook))
}

func (h *Handler) deleteHook(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipalFromContext(r.Context())
	hookID := r.PathValue("id")

	if err := h.registry.Delete(r.Context(), hookID, principal.Token); err != nil {
		respondServiceError(w, err, "Failed to delete hook")
		return
	}

	logger.InfoEvent().
		Str("hook_id", hookID).
		Str("identity", principal.Identity).
		Msg("Hook deleted")

	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}
