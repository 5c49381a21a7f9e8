package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	appErrors "github.com/unclebandit/whatsapp-campaigns/internal/errors"
)

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Warn("failed to write response")
	}
}

// WriteError maps domain errors to HTTP status codes.
func WriteError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case appErrors.IsCampaignNotFound(err):
		status = http.StatusNotFound
	case errors.Is(err, appErrors.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, appErrors.ErrInvalidTransition):
		status = http.StatusConflict
	default:
		logrus.WithError(err).Error("❌ request failed")
	}
	WriteJSON(w, status, map[string]string{"error": err.Error()})
}

// CampaignID parses the {id} route parameter, writing a 400 when it is not a positive integer.
func CampaignID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid campaign id"})
		return 0, false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body: " + err.Error()})
		return false
	}
	return true
}
