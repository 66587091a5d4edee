package models

import "time"

// About is the per-department head-of-department record.
type About struct {
	ID         string    `json:"id"`
	HODName    string    `json:"hod_name"`
	HODMessage string    `json:"hod_message"`
	HODImageID string    `json:"hod_imageId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (a *About) BlobRefs() []string {
	if a == nil {
		return nil
	}
	return appendNonEmpty(nil, a.HODImageID)
}
