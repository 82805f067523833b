package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/boxdarr/boxdarr/internal/controllers"
	"github.com/sirupsen/logrus"
)

// RetryHandler lets the operator retry failed records
type RetryHandler struct {
	reconciler *controllers.Reconciler
	logger     *logrus.Logger
}

// NewRetryHandler creates a new retry handler
func NewRetryHandler(reconciler *controllers.Reconciler, logger *logrus.Logger) *RetryHandler {
	return &RetryHandler{
		reconciler: reconciler,
		logger:     logger,
	}
}

// RetryPayload optionally narrows the retry to one record
type RetryPayload struct {
	ItemID string `json:"item_id"`
}

// ServeHTTP handles the retry endpoint
func (h *RetryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var payload RetryPayload
	if r.Body != nil {
		// An empty body sweeps every failed record
		_ = json.NewDecoder(r.Body).Decode(&payload)
	}

	retried, err := h.reconciler.RetryFailed(r.Context(), payload.ItemID)
	if err != nil {
		h.logger.WithError(err).Error("Retry request failed")
		http.Error(w, "Retry failed", http.StatusInternalServerError)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"item_id": payload.ItemID,
		"retried": retried,
	}).Info("Retry request processed")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"retried": retried})
}
