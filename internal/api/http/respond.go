package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/skillproof/skillproof-api/internal/assessment"
	"github.com/skillproof/skillproof-api/internal/catalog"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeEngineError maps domain error kinds to statuses; anything else is an
// opaque infrastructure failure.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, assessment.ErrInvalidFilter),
		errors.Is(err, assessment.ErrInvalidSubmission):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, assessment.ErrNoQuestionsAvailable),
		errors.Is(err, assessment.ErrReportNotFound),
		errors.Is(err, catalog.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, assessment.ErrSessionNotActive),
		errors.Is(err, assessment.ErrDuplicateAnswer):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		log.Printf("internal error: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
