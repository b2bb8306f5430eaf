// internal/api/integration.go
package api

import (
	"context"
	"net/http"
	"strconv"

	"github-integration/internal/model"
)

func userIDParam(r *http.Request) (int64, bool) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	return userID, err == nil
}

// integrationStatus reports the connection state of an account.
// GET /integration/status?user_id=
func (h *Handler) integrationStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid 'user_id' parameter. Must be an integer.")
		return
	}
	st, err := h.Integrations.Status(r.Context(), userID)
	if err != nil {
		h.respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, st)
}

// removeIntegration deletes an account and all of its mirrored data.
// POST /integration/remove?user_id=
func (h *Handler) removeIntegration(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid 'user_id' parameter. Must be an integer.")
		return
	}
	if err := h.Integrations.Remove(r.Context(), userID); err != nil {
		h.respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{
		"message": "Integration and all associated data removed successfully",
	})
}

type resyncResponse struct {
	Message string          `json:"message"`
	Stats   model.SyncStats `json:"stats"`
}

// resync replaces the mirrored data of an account.
// POST /integration/resync?user_id=
func (h *Handler) resync(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid 'user_id' parameter. Must be an integer.")
		return
	}

	// A client that goes away must not abort a resync halfway through.
	stats, err := h.Syncer.Resync(context.WithoutCancel(r.Context()), userID)
	if err != nil {
		h.respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, resyncResponse{
		Message: "Data resync completed successfully",
		Stats:   stats,
	})
}
