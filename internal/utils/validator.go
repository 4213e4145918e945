package utils

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/sitearchiver/sitearchiver/internal/models"
)

const (
	// MaxHeaderValueLength is the largest header value we accept (8KB).
	MaxHeaderValueLength = 8192
)

var (
	// ForbiddenHeaders may not be set by the user; the HTTP client owns them.
	ForbiddenHeaders = []string{
		"Host",
		"Content-Length",
		"Transfer-Encoding",
		"Connection",
	}
)

// HeaderValidator checks user-supplied HTTP headers against RFC 7230.
type HeaderValidator struct {
	// nameRegex matches legal header names (letters, digits, hyphen).
	nameRegex *regexp.Regexp

	// valueRegex matches legal header values (printable ASCII).
	valueRegex *regexp.Regexp

	maxValueLength int

	forbiddenHeaders map[string]bool
}

// NewHeaderValidator builds a validator with the default rule set.
func NewHeaderValidator() *HeaderValidator {
	forbidden := make(map[string]bool)
	for _, h := range ForbiddenHeaders {
		forbidden[strings.ToLower(h)] = true
	}

	return &HeaderValidator{
		nameRegex:  regexp.MustCompile(`^[A-Za-z0-9-]+$`),
		valueRegex: regexp.MustCompile(`^[\x20-\x7E\t]*$`),

		maxValueLength:   MaxHeaderValueLength,
		forbiddenHeaders: forbidden,
	}
}

// ValidateName checks a header name in isolation.
func (hv *HeaderValidator) ValidateName(name string) error {
	if name == "" {
		return &models.ValidationError{
			Field:      "name",
			HeaderName: name,
			Reason:     "header name must not be empty",
		}
	}

	if !hv.nameRegex.MatchString(name) {
		return &models.ValidationError{
			Field:      "name",
			HeaderName: name,
			Reason:     "header name contains illegal characters (letters, digits and hyphen only)",
			Suggestion: "use letters, digits and hyphens, e.g. 'User-Agent', 'X-Custom-Header'",
		}
	}

	return nil
}

// ValidateValue checks a header value in isolation.
func (hv *HeaderValidator) ValidateValue(name, value string) error {
	if len(value) > hv.maxValueLength {
		return &models.ValidationError{
			Field:      "value",
			HeaderName: name,
			Reason:     fmt.Sprintf("header value too long: %d bytes (max %d)", len(value), hv.maxValueLength),
			Suggestion: fmt.Sprintf("shorten the value to %d bytes or fewer", hv.maxValueLength),
		}
	}

	if !hv.valueRegex.MatchString(value) {
		return &models.ValidationError{
			Field:      "value",
			HeaderName: name,
			Reason:     "header value contains illegal characters (printable ASCII only)",
			Suggestion: "remove control characters and non-ASCII bytes",
		}
	}

	return nil
}

// ValidateHeader checks a name/value pair together, including the
// forbidden-header list.
func (hv *HeaderValidator) ValidateHeader(name, value string) error {
	if hv.IsForbidden(name) {
		return &models.ValidationError{
			Field:      "name",
			HeaderName: name,
			Reason:     "this header is managed by the HTTP client and cannot be overridden",
			Suggestion: fmt.Sprintf("remove the '%s' header from your configuration", name),
		}
	}

	if err := hv.ValidateName(name); err != nil {
		return err
	}

	if err := hv.ValidateValue(name, value); err != nil {
		return err
	}

	return nil
}

// IsForbidden reports whether name is on the forbidden-header list.
func (hv *HeaderValidator) IsForbidden(name string) bool {
	return hv.forbiddenHeaders[strings.ToLower(name)]
}

// Validate checks every header in h, returning the first violation found.
func (hv *HeaderValidator) Validate(headers http.Header) error {
	for name, values := range headers {
		for _, value := range values {
			if err := hv.ValidateHeader(name, value); err != nil {
				return err
			}
		}
	}
	return nil
}
