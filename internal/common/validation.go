package common

import (
	"fmt"
	"slices"
	"strings"
)

// ValidateOutputFormat validates format against configured supported formats
func ValidateOutputFormat(format string, supportedFormats []string) error {
	if len(supportedFormats) == 0 {
		return nil // No restrictions configured
	}

	if slices.Contains(supportedFormats, format) {
		return nil
	}

	return fmt.Errorf("unsupported output format '%s'. Supported formats: %v",
		format, supportedFormats)
}

// ResolveChoice matches value case-insensitively against a catalogue and
// returns the catalogue spelling. An empty catalogue accepts anything.
func ResolveChoice(kind, value string, catalogue []string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" || len(catalogue) == 0 {
		return value, nil
	}

	for _, entry := range catalogue {
		if strings.EqualFold(entry, value) {
			return entry, nil
		}
	}

	return "", fmt.Errorf("unknown %s '%s'. Choose one of: %s",
		kind, value, strings.Join(catalogue, ", "))
}
