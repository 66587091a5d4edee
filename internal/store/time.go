package store

import "time"

// Fixed-width so that stored timestamps sort lexically.
const dbTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// FormatTime renders a timestamp in the form stored in every table.
func FormatTime(t time.Time) string {
	return t.UTC().Format(dbTimeLayout)
}

func ParseTime(value string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, value)
}
