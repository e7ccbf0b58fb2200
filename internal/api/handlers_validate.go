package api

import (
	"net/http"

	"github.com/engram-labs/engram/internal/models"
	"github.com/engram-labs/engram/internal/safety"
)

type ValidateHandler struct {
	validator *safety.Validator
}

func NewValidateHandler(validator *safety.Validator) *ValidateHandler {
	return &ValidateHandler{validator: validator}
}

// Validate handles POST /validate. By default the full verdict is returned
// regardless of level; with enforce set, CRITICAL text gets a 422 so
// pipeline callers can fail closed.
func (h *ValidateHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req models.ValidateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	result := h.validator.Validate(req.Text)

	status := http.StatusOK
	if req.Enforce && !result.IsValid {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, result)
}
