package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/boxdarr/boxdarr/internal/controllers"
	"github.com/boxdarr/boxdarr/internal/models"
	"github.com/sirupsen/logrus"
)

// RatingHandler receives rating callbacks from the interactive chat component
type RatingHandler struct {
	reconciler *controllers.Reconciler
	logger     *logrus.Logger
}

// NewRatingHandler creates a new rating callback handler
func NewRatingHandler(reconciler *controllers.Reconciler, logger *logrus.Logger) *RatingHandler {
	return &RatingHandler{
		reconciler: reconciler,
		logger:     logger,
	}
}

// RatingPayload is the callback body posted by the chat component
type RatingPayload struct {
	ItemID  string  `json:"item_id"`
	Rating  float64 `json:"rating"`
	Liked   bool    `json:"liked"`
	Rewatch bool    `json:"rewatch"`
	Tags    string  `json:"tags"`
	Review  string  `json:"review"`
}

// ServeHTTP handles the rating callback endpoint
func (h *RatingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var payload RatingPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.logger.WithError(err).Error("Failed to decode rating payload")
		http.Error(w, "Invalid payload", http.StatusBadRequest)
		return
	}
	if payload.ItemID == "" {
		http.Error(w, "item_id is required", http.StatusBadRequest)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"item_id": payload.ItemID,
		"rating":  payload.Rating,
	}).Info("Received rating callback")

	err := h.reconciler.HandleRating(r.Context(), payload.ItemID, models.Rating(payload.Rating), controllers.RatingOptions{
		Liked:   payload.Liked,
		Rewatch: payload.Rewatch,
		Tags:    payload.Tags,
		Review:  payload.Review,
	})

	switch {
	case err == nil:
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "synced"})
	case errors.Is(err, controllers.ErrDuplicateInteraction):
		// Acknowledged without side effects: the chat surface may replay
		// interactions for records already handled
		h.logger.WithField("item_id", payload.ItemID).Debug("Ignoring duplicate rating callback")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ignored"})
	default:
		// The ledger already holds the failed state; the callback reports it
		h.logger.WithError(err).Error("Rating callback processing failed")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{"status": "failed", "detail": err.Error()})
	}
}
