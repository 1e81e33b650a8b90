package api

import (
	"net/http"
)

// receiveWebhook is the public ingestion endpoint. It answers 200 for every
// request so senders cannot probe for hook ids.
func (h *Handler) receiveWebhook(w http.ResponseWriter, r *http.Request) {
	receipt := h.pipeline.Ingest(r.Context(), r.PathValue("id"), r)
	respondJSON(w, http.StatusOK, receipt)
}
