package api

import (
	"encoding/json"
	"net/http"
)

// Error is the body of every non-2xx API response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`

	// Param names the offending query parameter, if any.
	Param string `json:"param,omitempty"`
}

// Error codes returned by the relay API.
const (
	ErrCodeInvalidQuery    = "invalid_query"
	ErrCodeNotFound        = "not_found"
	ErrCodeJournalDisabled = "journal_disabled"
	ErrCodeMethodNotAllow  = "method_not_allowed"
	ErrCodeInternal        = "internal_error"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
//
// Parameters:
//   - w: Response writer
//   - status: HTTP status code
//   - code: One of the ErrCode constants
//   - message: Human-readable detail
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeInvalidQuery writes a 400 naming the query parameter that failed to
// parse.
func writeInvalidQuery(w http.ResponseWriter, param, message string) {
	writeJSON(w, http.StatusBadRequest, Error{
		Status:  http.StatusBadRequest,
		Code:    ErrCodeInvalidQuery,
		Message: message,
		Param:   param,
	})
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeJournalDisabled writes a 404 for journal endpoints when journal.enabled
// is false, so clients can tell it apart from an unknown route.
func writeJournalDisabled(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, ErrCodeJournalDisabled, "event journal is disabled")
}

// writeMethodNotAllowed writes a 405 error response.
func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed")
}

// writeInternalError writes a 500 error response. The message is sent to
// the client, so it must not carry the underlying error.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}
