// Package httputil provides the JSON response helpers used by the in-process
// proxy admin API.
package httputil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/getmockd/hoverfly-go/pkg/api/types"
)

// MaxBodySize bounds request bodies read by ReadJSON.
const MaxBodySize = 32 << 20

// WriteJSON writes a JSON response with the given status code.
// It sets the Content-Type header to application/json.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// WriteError writes the proxy's error envelope, {"error": message}.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, types.ErrorResponse{Error: message})
}

// WriteErrorf is WriteError with a formatted message.
func WriteErrorf(w http.ResponseWriter, status int, format string, args ...any) {
	WriteError(w, status, fmt.Sprintf(format, args...))
}

// WriteOK writes a 200 OK response with data.
func WriteOK(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, data)
}

// ReadBody reads at most MaxBodySize bytes of the request body.
func ReadBody(r *http.Request) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r.Body, MaxBodySize))
}

// ReadJSON decodes the request body into v.
func ReadJSON(r *http.Request, v any) error {
	body, err := ReadBody(r)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}
