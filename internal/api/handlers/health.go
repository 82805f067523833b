package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/boxdarr/boxdarr/internal/models"
	"github.com/sirupsen/logrus"
)

// HealthHandler reports liveness, including whether the watch ledger is
// reachable. An unreachable ledger means detections and ratings would be lost,
// so it fails the check.
type HealthHandler struct {
	db     *models.Database
	logger *logrus.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db *models.Database, logger *logrus.Logger) *HealthHandler {
	return &HealthHandler{db: db, logger: logger}
}

// ServeHTTP handles the health check endpoint
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]string{
		"status":  "healthy",
		"service": "boxdarr",
		"ledger":  "ok",
	}

	w.Header().Set("Content-Type", "application/json")
	if _, err := h.db.GetCursor(); err != nil {
		h.logger.WithError(err).Error("Health check: ledger unreachable")
		response["status"] = "unhealthy"
		response["ledger"] = err.Error()
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(response)
}
