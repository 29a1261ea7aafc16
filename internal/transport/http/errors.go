package httptransport

import (
	"encoding/json"
	"net/http"
)

var errorCodes = map[int]string{
	http.StatusBadRequest:          "bad_request",
	http.StatusBadGateway:          "bad_gateway",
	http.StatusInternalServerError: "internal_error",
}

// WriteError writes the JSON error envelope. The description is only sent
// for client errors.
func WriteError(w http.ResponseWriter, status int, description string) {
	code, ok := errorCodes[status]
	if !ok {
		code = "internal_error"
	}
	body := map[string]string{"error": code}
	if status < http.StatusInternalServerError && description != "" {
		body["error_description"] = description
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
