package models

import "time"

// LabComponent is one hardware or software line item.
type LabComponent struct {
	Component      string   `json:"component"`
	Specifications []string `json:"specifications"`
	Quantity       int      `json:"quantity"`
}

type Lab struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Coordinators    []string       `json:"coordinators"`
	TechnicalStaff  []string       `json:"technical_staff"`
	Address         string         `json:"address"`
	Specialization  string         `json:"specialization"`
	WebpageURL      string         `json:"webpageURL,omitempty"`
	Description     string         `json:"description"`
	Objectives      []string       `json:"objectives"`
	Capacity        int            `json:"capacity"`
	HardwareDetails []LabComponent `json:"hardware_details"`
	SoftwareDetails []LabComponent `json:"software_details"`
	LabImageIDs     []string       `json:"labImageIds"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

func (l *Lab) BlobRefs() []string {
	if l == nil {
		return nil
	}
	return appendNonEmpty(nil, l.LabImageIDs...)
}
