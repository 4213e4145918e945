package utils

import (
	"net/http"
	"strings"
)

var (
	// SensitiveKeywords are substrings of header names treated as secret-bearing.
	SensitiveKeywords = []string{
		"authorization",
		"token",
		"key",
		"secret",
		"password",
		"credential",
		"api-key",
	}
)

// HeaderRedactor masks sensitive HTTP header values before they reach logs.
type HeaderRedactor struct {
	sensitiveKeywords []string
}

// NewHeaderRedactor builds a redactor with the default keyword list.
func NewHeaderRedactor() *HeaderRedactor {
	return &HeaderRedactor{
		sensitiveKeywords: SensitiveKeywords,
	}
}

// IsSensitiveHeader reports whether name matches a sensitive keyword.
func (hr *HeaderRedactor) IsSensitiveHeader(name string) bool {
	nameLower := strings.ToLower(name)
	for _, keyword := range hr.sensitiveKeywords {
		if strings.Contains(nameLower, keyword) {
			return true
		}
	}
	return false
}

// RedactHeaderValue masks one header value, picking a strategy by shape.
func (hr *HeaderRedactor) RedactHeaderValue(name, value string) string {
	if !hr.IsSensitiveHeader(name) {
		return value
	}

	// Bearer tokens: keep only the scheme prefix.
	if strings.HasPrefix(value, "Bearer ") {
		return "Bearer ***"
	}

	// Longer secrets: keep first/last 4 chars so logs remain diffable.
	if len(value) > 8 {
		return value[:4] + "***" + value[len(value)-4:]
	}

	// Short secrets: hide entirely.
	return "***"
}

// Redact masks every sensitive value in headers, returning a plain map
// suitable for structured logging (first value only per header).
func (hr *HeaderRedactor) Redact(headers http.Header) map[string]string {
	result := make(map[string]string)
	for name, values := range headers {
		if len(values) == 0 {
			continue
		}

		value := values[0]
		if hr.IsSensitiveHeader(name) {
			result[name] = hr.RedactHeaderValue(name, value)
		} else {
			result[name] = value
		}
	}
	return result
}

// RedactToString formats a masked header set as "Name: value, Name: value".
func (hr *HeaderRedactor) RedactToString(headers http.Header) string {
	redacted := hr.Redact(headers)
	var parts []string
	for name, value := range redacted {
		parts = append(parts, name+": "+value)
	}
	return strings.Join(parts, ", ")
}
