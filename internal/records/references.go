package records

import (
	"context"

	"deptcms/internal/models"
)

// References is the set of blobs one record type keeps alive. Banners hold
// filenames rather than ids.
type References struct {
	IDs       map[string]struct{}
	Filenames map[string]struct{}
}

// Has reports whether a blob with the given id or filename is referenced.
func (r References) Has(id, filename string) bool {
	if _, ok := r.IDs[id]; ok {
		return true
	}
	_, ok := r.Filenames[filename]
	return ok
}

// ReferencedBlobs collects every blob reference held by records of one type.
func (s *Store) ReferencedBlobs(ctx context.Context, recordType models.RecordType) (References, error) {
	refs := References{IDs: map[string]struct{}{}, Filenames: map[string]struct{}{}}
	var referrers []models.BlobReferrer

	switch recordType {
	case models.RecordAbout:
		items, err := s.listAbout(ctx)
		if err != nil {
			return refs, err
		}
		for _, item := range items {
			referrers = append(referrers, item)
		}
	case models.RecordEvents:
		items, err := s.ListEvents(ctx)
		if err != nil {
			return refs, err
		}
		for _, item := range items {
			referrers = append(referrers, item)
		}
	case models.RecordLabs:
		items, err := s.ListLabs(ctx)
		if err != nil {
			return refs, err
		}
		for _, item := range items {
			referrers = append(referrers, item)
		}
	case models.RecordPrograms:
		items, err := s.ListPrograms(ctx)
		if err != nil {
			return refs, err
		}
		for _, item := range items {
			referrers = append(referrers, item)
		}
	case models.RecordBanners:
		items, err := s.ListBanners(ctx)
		if err != nil {
			return refs, err
		}
		for _, item := range items {
			refs.Filenames[item.Filename] = struct{}{}
		}
	default:
		if _, err := tableFor(recordType); err != nil {
			return refs, err
		}
	}

	for _, referrer := range referrers {
		for _, id := range referrer.BlobRefs() {
			refs.IDs[id] = struct{}{}
		}
	}
	return refs, nil
}
