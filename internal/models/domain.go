package models

import (
	"fmt"
	"strings"
)

// RecordType names one owning-record family. Each family owns one blob bucket.
type RecordType string

const (
	RecordAbout    RecordType = "about"
	RecordEvents   RecordType = "events"
	RecordLabs     RecordType = "labs"
	RecordBanners  RecordType = "banners"
	RecordPrograms RecordType = "programs"
)

// DefaultEventStatus is applied when an event is created without a status.
const DefaultEventStatus = "Live"

var recordTypes = []RecordType{
	RecordAbout,
	RecordEvents,
	RecordLabs,
	RecordBanners,
	RecordPrograms,
}

// AllRecordTypes returns every record type in a stable order.
func AllRecordTypes() []RecordType {
	out := make([]RecordType, len(recordTypes))
	copy(out, recordTypes)
	return out
}

func IsValidRecordType(recordType RecordType) bool {
	for _, known := range recordTypes {
		if known == recordType {
			return true
		}
	}
	return false
}

func ParseRecordType(raw string) (RecordType, error) {
	value := RecordType(strings.ToLower(strings.TrimSpace(raw)))
	if value == "" {
		return "", fmt.Errorf("record type is required")
	}
	if !IsValidRecordType(value) {
		return "", fmt.Errorf("invalid record type: %s", value)
	}
	return value, nil
}

// Bucket returns the blob bucket name for the record type.
func (t RecordType) Bucket() string {
	return string(t)
}

// BlobReferrer is implemented by records that hold blob ids.
type BlobReferrer interface {
	BlobRefs() []string
}

func appendNonEmpty(out []string, values ...string) []string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			out = append(out, value)
		}
	}
	return out
}
