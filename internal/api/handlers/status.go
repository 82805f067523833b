package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/boxdarr/boxdarr/internal/models"
	"github.com/sirupsen/logrus"
)

// StatusHandler reports ledger state counts
type StatusHandler struct {
	db     *models.Database
	logger *logrus.Logger
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(db *models.Database, logger *logrus.Logger) *StatusHandler {
	return &StatusHandler{
		db:     db,
		logger: logger,
	}
}

// StatusResponse represents the status response
type StatusResponse struct {
	TotalRecords int             `json:"total_records"`
	Detected     int             `json:"detected"`
	Notified     int             `json:"notified"`
	Rated        int             `json:"rated"`
	Synced       int             `json:"synced"`
	Failed       int             `json:"failed"`
	FailedItems  []FailedSummary `json:"failed_items,omitempty"`
}

// FailedSummary surfaces what still needs operator attention
type FailedSummary struct {
	ItemID string `json:"item_id"`
	Title  string `json:"title"`
	Year   int    `json:"year"`
	Reason string `json:"reason"`
}

// ServeHTTP handles the status endpoint
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	records, err := h.db.GetAllRecords()
	if err != nil {
		h.logger.WithError(err).Error("Failed to load ledger")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	response := StatusResponse{TotalRecords: len(records)}
	for _, record := range records {
		switch record.Status {
		case models.StatusDetected:
			response.Detected++
		case models.StatusNotified:
			response.Notified++
		case models.StatusRated:
			response.Rated++
		case models.StatusSynced:
			response.Synced++
		case models.StatusFailed:
			response.Failed++
			response.FailedItems = append(response.FailedItems, FailedSummary{
				ItemID: record.ItemID,
				Title:  record.Title,
				Year:   record.Year,
				Reason: record.FailureReason,
			})
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}
