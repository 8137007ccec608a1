package utils

import (
	"regexp"
	"strings"
)

var idRegex = regexp.MustCompile(`^[a-zA-Z0-9\-_]{1,64}$`)

// ValidateID validates an internal or provider-side identifier
func ValidateID(id string) bool {
	return idRegex.MatchString(id)
}

// ValidateBatch checks batch size bounds before any work is admitted
func ValidateBatch(size, max int) bool {
	return size > 0 && size <= max
}

// SanitizeProvider sanitizes a provider name from a request path
func SanitizeProvider(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
