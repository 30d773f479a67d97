package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/1qh/nexvex/pkg/apperr"
)

func bodyError(msg string) error {
	return apperr.Validation(map[string]string{"body": msg})
}

// ParseJSON decodes one JSON value from the request body into dest. An
// empty body leaves dest untouched unless required is set; trailing data
// after the value is rejected.
func ParseJSON(r *http.Request, dest interface{}, required bool) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			if required {
				return bodyError("is required")
			}
			return nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return bodyError("exceeds " + strconv.FormatInt(tooLarge.Limit, 10) + " bytes")
		}
		return bodyError("invalid JSON: " + err.Error())
	}
	if dec.More() {
		return bodyError("must hold a single JSON value")
	}
	return nil
}

// ParseJSONOrError decodes a required JSON body and writes the error
// response on failure
func ParseJSONOrError(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if err := ParseJSON(r, dest, true); err != nil {
		WriteAppError(w, r, err)
		return false
	}
	return true
}

// PathString returns a path parameter; mux only routes when it is present
func PathString(r *http.Request, key string) string {
	return mux.Vars(r)[key]
}

// parseQuery returns def when the parameter is absent and a validation
// error naming the parameter when parse fails
func parseQuery[T any](r *http.Request, key string, def T, parse func(string) (T, error), want string) (T, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := parse(raw)
	if err != nil {
		var zero T
		return zero, apperr.Validation(map[string]string{key: "must be " + want})
	}
	return v, nil
}

// ParseQueryInt extracts and parses an integer query parameter
func ParseQueryInt(r *http.Request, key string, defaultVal int) (int, error) {
	return parseQuery(r, key, defaultVal, strconv.Atoi, "an integer")
}

// ParseQueryBool extracts and parses a boolean query parameter
func ParseQueryBool(r *http.Request, key string, defaultVal bool) (bool, error) {
	return parseQuery(r, key, defaultVal, strconv.ParseBool, "a boolean")
}

// ParseQueryString extracts a string query parameter
func ParseQueryString(r *http.Request, key string, defaultVal string) string {
	if v := r.URL.Query().Get(key); v != "" {
		return v
	}
	return defaultVal
}
