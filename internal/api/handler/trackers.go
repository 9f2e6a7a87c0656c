package handler

import (
	"net/http"

	"github.com/kiranshivaraju/phrasetracker/internal/api/response"
	"github.com/kiranshivaraju/phrasetracker/pkg/models"
)

// NewTrackersHandler returns an http.HandlerFunc for GET /api/v1/trackers.
func NewTrackersHandler() http.HandlerFunc {
	list := append(models.Trackers(), models.TrackerInfo{
		Name:        models.TrackerNone,
		Description: "Sentence fits none of the categories",
	})
	return func(w http.ResponseWriter, _ *http.Request) {
		response.JSON(w, list)
	}
}
