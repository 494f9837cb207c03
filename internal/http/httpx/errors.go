package httpx

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

// Numeric error codes carried alongside the OAuth2 string codes so support
// can correlate reports without parsing descriptions.
const (
	CodeInvalidJSON        = 1102
	CodeInvalidRequest     = 2100
	CodeInvalidClient      = 2101
	CodeInvalidGrant       = 2102
	CodeUnsupportedGrant   = 2103
	CodeUnauthorizedClient = 2104
	CodeTenantMissing      = 2110
	CodeRateLimited        = 2120
	CodeNotFound           = 2130
	CodeConflict           = 2131
	CodeValidation         = 2132
	CodeUnauthorized       = 2140
	CodeInternal           = 2500
)

type apiError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	ErrorCode        int    `json:"error_code,omitempty"`
	RequestID        string `json:"request_id,omitempty"`
}

func WriteError(w http.ResponseWriter, status int, code, desc string, errCode int) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	rid := w.Header().Get("X-Request-ID")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiError{
		Error:            code,
		ErrorDescription: desc,
		ErrorCode:        errCode,
		RequestID:        rid,
	})
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ReadJSON decodes a JSON body leniently: unknown fields pass through, the
// body is capped at 1MB, and the Content-Type must be application/json.
func ReadJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	if !strings.Contains(ct, "application/json") {
		WriteError(w, http.StatusBadRequest, "invalid_json", "Content-Type must be application/json", CodeInvalidJSON)
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil && err != io.EOF {
		WriteError(w, http.StatusBadRequest, "invalid_json", "malformed json", CodeInvalidJSON)
		return false
	}
	return true
}
