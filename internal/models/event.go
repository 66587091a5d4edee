package models

import "time"

// Event is a department event with a banner, a brochure and a gallery.
type Event struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Status        string     `json:"status"`
	Category      string     `json:"category"`
	Coordinators  []string   `json:"coordinators"`
	StartDate     *time.Time `json:"startDate,omitempty"`
	LastDate      *time.Time `json:"lastDate,omitempty"`
	Venue         string     `json:"venue"`
	OrganizedBy   string     `json:"organizedBy,omitempty"`
	Description   string     `json:"description"`
	BannerID      string     `json:"bannerId,omitempty"`
	BrochureID    string     `json:"brochureId,omitempty"`
	EventImageIDs []string   `json:"eventImageIds"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// BlobRefs returns singleton references first, then gallery images in display order.
func (e *Event) BlobRefs() []string {
	if e == nil {
		return nil
	}
	out := appendNonEmpty(nil, e.BannerID, e.BrochureID)
	return appendNonEmpty(out, e.EventImageIDs...)
}
