package validators

import (
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/paysettle-backend/pkg/errors"
)

// ParseUUIDParam reads a chi URL parameter and requires it to be a uuid.
func ParseUUIDParam(r *http.Request, key string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, key))
	if raw == "" {
		return uuid.Nil, fieldError("path parameter required", key)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fieldError("path parameter must be a uuid", key)
	}
	return id, nil
}

// ParseQueryLimit reads a page size in [1, max]; absent means fallback.
func ParseQueryLimit(r *http.Request, key string, fallback, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > max {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter out of range").
			WithDetails(map[string]any{"field": key, "min": 1, "max": max})
	}
	return n, nil
}

// ParseQueryEnum returns the trimmed query value when it is empty or passes
// valid; anything else is a validation error.
func ParseQueryEnum(r *http.Request, key string, valid func(string) bool) (string, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" || valid(raw) {
		return raw, nil
	}
	return "", fieldError("query parameter is invalid", key)
}

// Clip trims whitespace and cuts s to at most maxRunes runes.
func Clip(s string, maxRunes int) string {
	s = strings.TrimSpace(s)
	if maxRunes <= 0 || utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:maxRunes]))
}

func fieldError(msg, field string) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeValidation, msg).WithDetails(map[string]any{"field": field})
}
