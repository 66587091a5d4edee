package store

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// NewID returns a time-ordered identifier for records and blobs.
func NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return id.String(), nil
}

// ValidID reports whether raw is a syntactically legal record or blob id.
func ValidID(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}
	_, err := uuid.Parse(raw)
	return err == nil && len(raw) == 36
}
