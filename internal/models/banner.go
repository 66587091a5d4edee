package models

import "time"

// Banner addresses its image by stored filename rather than by blob id.
type Banner struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	Order     int       `json:"order"`
	CreatedAt time.Time `json:"createdAt"`
}

// BannerOrder is one entry of a banner reorder request.
type BannerOrder struct {
	ID    string `json:"id"`
	Order int    `json:"order"`
}
