package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces the value of any attribute that looks like a secret.
const RedactedValue = "[REDACTED]"

// Keys that contain a secret marker but only ever carry names or identifiers.
var redactionAllowlist = map[string]struct{}{
	"hmac_secret_env": {},
	"token_subject":   {},
	"scope":           {},
	"flow_id":         {},
	"error":           {},
}

var secretMarkers = []string{"secret", "token", "password", "authorization", "dsn", "bearer"}

// IsAllowlisted reports whether key is exempt from redaction.
func IsAllowlisted(key string) bool {
	_, ok := redactionAllowlist[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

func isSecret(key string) bool {
	normalized := strings.ToLower(key)
	for _, marker := range secretMarkers {
		if strings.Contains(normalized, marker) {
			return true
		}
	}
	return false
}

// MaskField redacts value unless it is empty or key is allowlisted.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}
