package server

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"deptcms/internal/ingest"
)

// requireFields rejects a form missing any of names.
func requireFields(form *ingest.Session, names ...string) error {
	var missing []string
	for _, name := range names {
		if value, _ := form.Field(name); value == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return badRequestCode(fmt.Errorf("missing required fields: %s", strings.Join(missing, ", ")), ErrCodeMissingRequired)
	}
	return nil
}

// setString overwrites dst when the form carries a non-empty value.
func setString(form *ingest.Session, name string, dst *string) {
	if value, _ := form.Field(name); value != "" {
		*dst = value
	}
}

func setList(form *ingest.Session, name, sep string, dst *[]string) {
	if value, _ := form.Field(name); value != "" {
		*dst = splitList(value, sep)
	}
}

func setInt(form *ingest.Session, name string, dst *int) error {
	value, _ := form.Field(name)
	if value == "" {
		return nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return badRequest(fmt.Errorf("%s must be a non-negative integer", name))
	}
	*dst = parsed
	return nil
}

func setDate(form *ingest.Session, name string, dst **time.Time) error {
	value, _ := form.Field(name)
	if value == "" {
		return nil
	}
	parsed, err := parseFlexibleTime(value)
	if err != nil {
		return badRequestCode(fmt.Errorf("%s: %w", name, err), ErrCodeInvalidDate)
	}
	*dst = &parsed
	return nil
}

// setJSON decodes a JSON-encoded form field into dst.
func setJSON(form *ingest.Session, name string, dst any) (bool, error) {
	value, _ := form.Field(name)
	if value == "" {
		return false, nil
	}
	if err := json.Unmarshal([]byte(value), dst); err != nil {
		return false, badRequestCode(fmt.Errorf("%s: %w", name, err), ErrCodeInvalidJSON)
	}
	return true, nil
}

func splitList(value, sep string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, sep)
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

func splitCSV(value string) []string {
	return splitList(value, ",")
}

func parseFlexibleTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	t, err := time.Parse(time.RFC3339, value)
	if err == nil {
		return t, nil
	}
	t, err = time.Parse("2006-01-02", value)
	if err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("expected RFC3339 or YYYY-MM-DD format")
}
