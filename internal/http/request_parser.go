// Package http provides the dashboard server and its handlers.
//
// This file holds helpers for reading and validating query parameters.

package http

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"findash/internal/core"
)

const (
	maxSearchLength = 100
	defaultLimit    = 50
	maxLimit        = 500
)

// ParsePreset returns the look-back preset named by the "period" parameter,
// falling back to def when absent and to the 14 day window when unknown.
func ParsePreset(query url.Values, def string) core.Preset {
	key := strings.TrimSpace(query.Get("period"))
	if key == "" {
		key = def
	}
	return core.LookupPreset(key)
}

// ParseMarket returns the upper-cased "market" parameter or def.
func ParseMarket(query url.Values, def string) string {
	m := strings.ToUpper(strings.TrimSpace(query.Get("market")))
	switch m {
	case "KSP", "KSQ":
		return m
	default:
		return def
	}
}

// ParseLimit reads "limit" clamped to [1, max], or def when absent or invalid.
func ParseLimit(query url.Values, def, max int) int {
	v := strings.TrimSpace(query.Get("limit"))
	n, err := strconv.Atoi(v)
	if v == "" || err != nil || n < 1 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

// ParseSearch returns the sanitized "q" parameter, truncated to a sane length.
func ParseSearch(query url.Values) string {
	q := sanitizeInput(query.Get("q"))
	if r := []rune(q); len(r) > maxSearchLength {
		q = string(r[:maxSearchLength])
	}
	return q
}

// ParseBool treats "1", "true", "on" and "yes" as true.
func ParseBool(query url.Values, key string) bool {
	switch strings.ToLower(strings.TrimSpace(query.Get(key))) {
	case "1", "true", "on", "yes":
		return true
	default:
		return false
	}
}

// RequireMethod returns an error response when the request method is not
// one of methods.
func RequireMethod(r *http.Request, methods ...string) *ResponseBuilder {
	for _, m := range methods {
		if r.Method == m {
			return nil
		}
	}
	return MethodNotAllowedError(strings.Join(methods, ", "))
}

// RequireGET is a convenience for read-only handlers. HEAD is accepted too.
func RequireGET(r *http.Request) *ResponseBuilder {
	return RequireMethod(r, http.MethodGet, http.MethodHead)
}
