// ABOUTME: JSON response helpers and the single error-to-status mapping for the API
// ABOUTME: Also parses path ids, pagination, and the timestamp formats clients send

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/2389/roster/internal/auth"
	"github.com/2389/roster/internal/backup"
	"github.com/2389/roster/internal/notify"
	"github.com/2389/roster/internal/rules"
	"github.com/2389/roster/internal/store"
)

// maxBodyBytes bounds JSON request bodies, restore uploads included.
const maxBodyBytes = 32 << 20

var (
	errUserNotFound       = errors.New("user not found")
	errAssignmentNotFound = errors.New("assignment not found")
	errBadRequest         = errors.New("invalid request body")
)

// validationError is a request-shape failure reported as 422 with its message.
type validationError struct {
	msg string
}

func (e *validationError) Error() string { return e.msg }

func invalid(format string, args ...any) error {
	return &validationError{msg: fmt.Sprintf(format, args...)}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func sendJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// statusFor maps domain errors to an HTTP status and client-facing message.
func statusFor(err error) (int, string) {
	var verr *validationError
	switch {
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity, verr.msg
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, errBadRequest.Error()

	case errors.Is(err, rules.ErrMissionNotFound):
		return http.StatusNotFound, rules.ErrMissionNotFound.Error()
	case errors.Is(err, errUserNotFound):
		return http.StatusNotFound, errUserNotFound.Error()
	case errors.Is(err, errAssignmentNotFound):
		return http.StatusNotFound, errAssignmentNotFound.Error()
	case errors.Is(err, rules.ErrUsernameTaken):
		return http.StatusConflict, rules.ErrUsernameTaken.Error()
	case errors.Is(err, rules.ErrInvalidRole),
		errors.Is(err, rules.ErrCapacityExceeded),
		errors.Is(err, rules.ErrInvalidWindow),
		errors.Is(err, rules.ErrInvalidStatus),
		errors.Is(err, rules.ErrInvalidPosition),
		errors.Is(err, rules.ErrUserNotFound):
		return http.StatusUnprocessableEntity, err.Error()

	case errors.Is(err, backup.ErrInvalidEnvelope):
		return http.StatusUnprocessableEntity, backup.ErrInvalidEnvelope.Error()
	case errors.Is(err, backup.ErrNoSink):
		return http.StatusServiceUnavailable, backup.ErrNoSink.Error()

	case errors.Is(err, auth.ErrMissingCredentials):
		return http.StatusUnprocessableEntity, auth.ErrMissingCredentials.Error()
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, auth.ErrInvalidCredentials.Error()

	case errors.Is(err, notify.ErrThrottled):
		return http.StatusTooManyRequests, notify.ErrThrottled.Error()

	case errors.Is(err, store.ErrStorageCorrupt):
		return http.StatusInternalServerError, store.ErrStorageCorrupt.Error()
	case errors.Is(err, store.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, store.ErrStorageUnavailable.Error()
	}
	return http.StatusInternalServerError, "internal error"
}

// writeError translates err into a JSON error response. Server-side
// failures are logged; client errors are not.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", RequestIDFromContext(r.Context()),
			"error", err,
		)
	}
	sendJSONError(w, status, msg)
}

// decodeJSON reads a JSON body into dst. Unknown fields are ignored.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var terr *json.UnmarshalTypeError
		if errors.As(err, &terr) {
			return invalid("invalid value for %s", terr.Field)
		}
		var verr *validationError
		if errors.As(err, &verr) {
			return verr
		}
		return errBadRequest
	}
	return nil
}

// pathID parses a positive integer path parameter.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id < 1 {
		return 0, invalid("invalid %s", name)
	}
	return id, nil
}

// page is a validated page window.
type page struct {
	Page    int
	PerPage int
}

// parsePage reads page (>= 1) and per_page (1..100) from the query string.
func parsePage(q url.Values, defaultPerPage int) (page, error) {
	p := page{Page: 1, PerPage: defaultPerPage}
	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return page{}, invalid("page must be a positive integer")
		}
		p.Page = n
	}
	if v := q.Get("per_page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			return page{}, invalid("per_page must be between 1 and 100")
		}
		p.PerPage = n
	}
	return p, nil
}

// paginate returns the slice of items that falls in p.
func paginate[T any](items []T, p page) []T {
	start := (p.Page - 1) * p.PerPage
	if start >= len(items) {
		return []T{}
	}
	end := min(start+p.PerPage, len(items))
	return items[start:end]
}

// pageResponse is the envelope for paginated listings.
type pageResponse[T any] struct {
	Items   []T `json:"items"`
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
	Total   int `json:"total"`
}

// parseTime accepts RFC 3339 timestamps. Timestamps without an offset are
// taken as UTC.
func parseTime(s string) (time.Time, error) {
	return store.ParseTime(s)
}

// Timestamp is a request field holding a parsed time.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return invalid("invalid datetime format")
	}
	parsed, err := parseTime(s)
	if err != nil {
		return invalid("invalid datetime format")
	}
	t.Time = parsed
	return nil
}

func logAttrsForUser(a *auth.AuthContext) []any {
	if a == nil {
		return nil
	}
	return []any{slog.Int64("user_id", a.UserID), slog.String("username", a.Username)}
}
