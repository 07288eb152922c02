package json

import (
	"encoding/json"
	"net/http"

	"github.com/dgellow/cdsso/internal/jsonrpc"
	"github.com/dgellow/cdsso/internal/log"
)

// ErrorResponse represents a standard JSON error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ActionErrorResponse is the body returned for a protocol action that
// cannot be served
type ActionErrorResponse struct {
	Success bool           `json:"success"`
	Error   *jsonrpc.Error `json:"error"`
}

// WriteResponse writes a JSON response with the given status code
func WriteResponse(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.LogError("Failed to encode JSON response: %v", err)
		return err
	}
	return nil
}

// WriteError writes a JSON error response
func WriteError(w http.ResponseWriter, statusCode int, error string, message string) {
	response := ErrorResponse{
		Error:   error,
		Message: message,
	}

	if err := WriteResponse(w, statusCode, response); err != nil {
		// Fallback to plain text error if JSON encoding fails
		http.Error(w, error+": "+message, statusCode)
	}
}

// WriteActionError writes a failed action response carrying rpcErr, with
// the status its code maps to
func WriteActionError(w http.ResponseWriter, rpcErr *jsonrpc.Error) {
	status := rpcErr.HTTPStatus()
	if err := WriteResponse(w, status, ActionErrorResponse{Success: false, Error: rpcErr}); err != nil {
		http.Error(w, rpcErr.Message, status)
	}
}

func WriteInternalServerError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, "internal_server_error", message)
}

func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, "bad_request", message)
}

func WriteForbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, "forbidden", message)
}
