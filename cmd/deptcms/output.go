package main

import (
	"fmt"
	"os"
	"time"

	"deptcms/internal/format"
)

var (
	jsonFormatter format.Formatter = format.JSONFormatter{}
	textFormatter format.Formatter = format.TextFormatter{}
)

func writeJSON(payload any) error {
	return jsonFormatter.Write(os.Stdout, payload)
}

func writeTable(table *format.Table) error {
	return textFormatter.Write(os.Stdout, table)
}

func writePlain(format string, args ...any) error {
	_, err := fmt.Fprintf(os.Stdout, format, args...)
	return err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
