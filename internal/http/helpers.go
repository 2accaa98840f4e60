package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"gastos/internal/core"
	"gastos/internal/log"
)

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps store errors onto status codes: validation 422, duplicate
// 409, backing store 503, anything else 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	logger := log.FromContext(r.Context())

	var ve *core.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: ve.Error(), Field: ve.Field})
	case errors.Is(err, core.ErrValidation):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: err.Error()})
	case errors.Is(err, core.ErrDuplicate):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	case errors.Is(err, core.ErrBackingStore):
		logger.ErrorContext(r.Context(), "Backing store failure",
			log.NewFields().WithOperation(op).WithError(err, log.ErrorTypeBackingStore).ToSlice()...)
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: err.Error()})
	default:
		logger.ErrorContext(r.Context(), "Request failed",
			log.NewFields().WithOperation(op).WithError(err, log.ErrorTypeInternal).ToSlice()...)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
