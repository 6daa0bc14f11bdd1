package handler

import (
	"encoding/json"
	"net/http"

	"connectrpc.com/connect"
)

// ErrorResponse has the shape of a Connect error body, so REST and RPC
// clients decode failures the same way. Reason is a stable machine-readable
// cause, e.g. TABLE_NOT_FOUND.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code connect.Code, reason, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code.String(),
		Message: message,
		Reason:  reason,
	})
}
