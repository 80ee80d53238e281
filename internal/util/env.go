// Package util holds small configuration helpers shared by the Livreo binaries.
package util

import (
	"log/slog"
	"os"
	"strings"
)

// ParseBoolEnv reads key as a boolean. Unset, blank, or unparseable values
// fall back to the provided default; unparseable values are logged once.
func ParseBoolEnv(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	switch strings.ToLower(raw) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	slog.Warn("ignoring unparseable boolean environment variable", "key", key, "value", raw)
	return fallback
}

// GetenvDefault returns the value of key, or fallback when the variable is
// unset or blank.
func GetenvDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
