package stringutil

import (
	"os"
	"strings"
)

// FirstNonEmpty returns the first value that is not blank, trimmed.
func FirstNonEmpty(values ...string) string {
	for _, value := range values {
		if value = strings.TrimSpace(value); value != "" {
			return value
		}
	}
	return ""
}

// EnvOverride returns the trimmed value of the environment variable key
// when it is set and not blank, and current otherwise.
func EnvOverride(key, current string) string {
	if value, ok := os.LookupEnv(key); ok {
		if value = strings.TrimSpace(value); value != "" {
			return value
		}
	}
	return current
}
