package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ledgerrun/ledgerrun"
	"github.com/ledgerrun/ledgerrun/fault"
)

type errorResponse struct {
	Error string `json:"error"`
}

// rawJSON lets an already-encoded payload pass through encoding untouched.
func rawJSON(data []byte) json.RawMessage {
	return json.RawMessage(data)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err)
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ledgerrun.ErrRunNotFound),
		errors.Is(err, ledgerrun.ErrTransactionNotFound),
		errors.Is(err, ledgerrun.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledgerrun.ErrNoSession),
		errors.Is(err, ledgerrun.ErrUnknownSignal):
		return http.StatusConflict
	}
	switch fault.KindOf(err) {
	case fault.KindValidation:
		return http.StatusBadRequest
	case fault.KindBusiness:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
