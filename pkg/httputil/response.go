package httputil

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/1qh/nexvex/pkg/apperr"
	"github.com/1qh/nexvex/pkg/observability"
)

// ErrorResponse is the body of every error response
type ErrorResponse struct {
	Code    apperr.Code       `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
	// RetryAfterMs is set for RATE_LIMITED
	RetryAfterMs int64 `json:"retry_after_ms,omitempty"`
	Limit        int   `json:"limit,omitempty"`
	Remaining    *int  `json:"remaining,omitempty"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteAppError writes err as an ErrorResponse. Errors that are not
// *apperr.Error are logged and answered with a generic 500 so their text
// never reaches the client.
func WriteAppError(w http.ResponseWriter, r *http.Request, err error) {
	e, ok := apperr.As(err)
	if !ok {
		observability.FromContext(r.Context()).WithError(err).
			WithField("path", r.URL.Path).
			Error("request failed")
		e = apperr.New(apperr.CodeInternal)
	}

	body := ErrorResponse{
		Code:    e.Code,
		Message: e.Message,
		Fields:  e.Fields,
	}
	if e.Code == apperr.CodeRateLimited {
		remaining := e.Remaining
		body.RetryAfterMs = e.RetryAfter.Milliseconds()
		body.Limit = e.Limit
		body.Remaining = &remaining

		seconds := int64(e.RetryAfter.Seconds())
		if e.RetryAfter%time.Second != 0 {
			seconds++
		}
		w.Header().Set("Retry-After", strconv.FormatInt(seconds, 10))
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(e.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(e.Remaining))
	}
	_ = WriteJSON(w, apperr.HTTPStatus(e.Code), body)
}

// WriteBadRequest writes a VALIDATION_FAILED response for a malformed request
func WriteBadRequest(w http.ResponseWriter, r *http.Request, field, message string) {
	WriteAppError(w, r, apperr.Validation(map[string]string{field: message}))
}

// WriteCreated writes a successful creation response (201 Created) with JSON data
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, data)
}

// WriteSuccess writes a successful response (200 OK) with JSON data
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteNoContent writes a successful response with no content (204 No Content)
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Respond writes data with status, or err through WriteAppError
func Respond(w http.ResponseWriter, r *http.Request, status int, data interface{}, err error) {
	if err != nil {
		WriteAppError(w, r, err)
		return
	}
	if status == http.StatusNoContent {
		WriteNoContent(w)
		return
	}
	if err := WriteJSON(w, status, data); err != nil {
		observability.FromContext(r.Context()).WithError(err).Warn("failed to write response")
	}
}
