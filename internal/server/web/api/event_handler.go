package api

import (
	"net/http"
	"strconv"

	"github.com/pandeptwidyaop/hookrelay/internal/db/models"
	"github.com/pandeptwidyaop/hookrelay/internal/server/events"
	"github.com/pandeptwidyaop/hookrelay/internal/server/web/middleware"
)

type pollResponse struct {
	Events  []models.Event `json:"events"`
	Count   int            `json:"count"`
	HasMore bool           `json:"has_more"`
}

// pollEvents returns a page of a hook's events and, unless told otherwise,
// marks the undelivered ones in that page as delivered.
func (h *Handler) pollEvents(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipalFromContext(r.Context())
	hookID := r.PathValue("id")

	if _, err := h.registry.Get(r.Context(), hookID, principal.Token); err != nil {
		respondServiceError(w, err, "Failed to get hook")
		return
	}

	query := r.URL.Query()
	limit := events.NormalizeLimit(parseInt(query.Get("limit"), events.DefaultLimit))
	undelivered := parseBool(query.Get("undelivered"), false)
	markDelivered := parseBool(query.Get("mark_delivered"), true)

	list, err := h.events.ListByHook(r.Context(), hookID, limit, undelivered)
	if err != nil {
		respondServiceError(w, err, "Failed to list events")
		return
	}

	if markDelivered {
		var pending []string
		for _, event := range list {
			if !event.IsDelivered() {
				pending = append(pending, event.ID)
			}
		}

		if len(pending) > 0 {
			if _, err := h.events.MarkDelivered(r.Context(), pending...); err != nil {
				respondServiceError(w, err, "Failed to mark events delivered")
				return
			}

			stamps, err := h.events.DeliveredAt(r.Context(), pending...)
			if err != nil {
				respondServiceError(w, err, "Failed to mark events delivered")
				return
			}
			for i := range list {
				if at, ok := stamps[list[i].ID]; ok && !list[i].IsDelivered() {
					list[i].DeliveredAt = &at
				}
			}
		}
	}

	respondJSON(w, http.StatusOK, pollResponse{
		Events:  list,
		Count:   len(list),
		HasMore: len(list) == limit,
	})
}

func parseInt(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

func parseBool(s string, fallback bool) bool {
	if s == "" {
		return fallback
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return fallback
	}
	return b
}
