package models

import "time"

type StudentCounts struct {
	Male   int `json:"Male"`
	Female int `json:"Female"`
}

type SeatCounts struct {
	JoSAA int `json:"josaa"`
	CSAB  int `json:"csab"`
	DASA  int `json:"dasa"`
}

// SchemeEntry pairs a scheme title with its uploaded document.
type SchemeEntry struct {
	Title      string    `json:"title"`
	BlobID     string    `json:"blobId"`
	Filename   string    `json:"filename"`
	UploadDate time.Time `json:"uploadDate"`
}

type Program struct {
	ID           string        `json:"id"`
	Category     string        `json:"category"`
	Title        string        `json:"title"`
	NoOfStudents StudentCounts `json:"no_of_students"`
	NoOfSeats    SeatCounts    `json:"no_of_seats"`
	Scheme       []SchemeEntry `json:"scheme"`
	PSO          string        `json:"PSO,omitempty"`
	PEO          string        `json:"PEO,omitempty"`
	PO           string        `json:"PO,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// SchemeBlobIDs returns scheme document ids in display order.
func (p *Program) SchemeBlobIDs() []string {
	if p == nil {
		return nil
	}
	out := make([]string, 0, len(p.Scheme))
	for _, entry := range p.Scheme {
		out = appendNonEmpty(out, entry.BlobID)
	}
	return out
}

func (p *Program) BlobRefs() []string {
	return p.SchemeBlobIDs()
}
