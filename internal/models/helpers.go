package models

import (
	"fmt"
	"net/url"

	"github.com/google/uuid"
)

// ValidateURL performs a cheap structural check on a seed URL before it
// reaches the canonicaliser.
func ValidateURL(urlStr string) error {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("url must use http or https")
	}
	if parsed.Host == "" {
		return fmt.Errorf("url must include a host")
	}
	return nil
}

// NewJobID returns a fresh job identifier.
func NewJobID() string {
	return uuid.New().String()
}
