package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"talentbridge-backend/core/escrow"
)

// JSON writes a JSON response with status code.
func JSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, msg string) {
	JSON(w, status, map[string]string{"error": msg})
}

// DomainError maps the error taxonomy onto HTTP statuses. Partial failures
// answer 202: the request is parked behind a checkpoint and a maintenance
// resume will finish it.
func DomainError(w http.ResponseWriter, err error) {
	var pf *escrow.PartialFailureError
	switch {
	case escrow.IsValidation(err):
		Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, escrow.ErrNotFound):
		Error(w, http.StatusNotFound, err.Error())
	case escrow.IsConflict(err):
		conflictsTotal.Inc()
		Error(w, http.StatusConflict, err.Error())
	case errors.As(err, &pf):
		JSON(w, http.StatusAccepted, map[string]string{
			"status":        "pending_repair",
			"submission_id": pf.SubmissionID,
			"step":          pf.Step,
			"error":         pf.Error(),
		})
	case escrow.IsChain(err):
		chainErrorsTotal.Inc()
		Error(w, http.StatusBadGateway, err.Error())
	default:
		log.Printf("internal error: %v", err)
		Error(w, http.StatusInternalServerError, "internal error")
	}
}
