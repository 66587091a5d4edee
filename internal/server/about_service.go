package server

import (
	"context"

	"deptcms/internal/ingest"
	"deptcms/internal/models"
	"deptcms/internal/tenant"
)

type aboutService struct {
	serviceBase
}

func (s *aboutService) Schema() ingest.Schema {
	return ingest.Schema{Single: []string{"hod_image"}}
}

// List returns the latest about record, or nil.
func (s *aboutService) List(ctx context.Context, b *tenant.Binding, _ assetLinker) (any, error) {
	return b.Records.LatestAbout(ctx)
}

func (s *aboutService) Create(ctx context.Context, b *tenant.Binding, form *ingest.Session) (any, error) {
	if err := requireFields(form, "hod_name", "hod_message"); err != nil {
		return nil, s.discard(ctx, b, form, err)
	}
	about := &models.About{HODImageID: form.First("hod_image")}
	setString(form, "hod_name", &about.HODName)
	setString(form, "hod_message", &about.HODMessage)
	if err := b.Records.CreateAbout(ctx, about); err != nil {
		return nil, s.discard(ctx, b, form, err)
	}
	return about, nil
}

// Update replaces the head-of-department image only when a new one was uploaded.
func (s *aboutService) Update(ctx context.Context, b *tenant.Binding, id string, form *ingest.Session) (any, error) {
	about, err := b.Records.GetAbout(ctx, id)
	if err != nil {
		return nil, s.discard(ctx, b, form, err)
	}
	setString(form, "hod_name", &about.HODName)
	setString(form, "hod_message", &about.HODMessage)

	oldImage := about.HODImageID
	newImage := form.First("hod_image")
	if newImage != "" {
		about.HODImageID = newImage
	}
	err = s.refs.ReplaceSingleton(ctx, b.Bucket, oldImage, newImage, func(ctx context.Context) error {
		return b.Records.UpdateAbout(ctx, about)
	})
	if err != nil {
		return nil, err
	}
	return about, nil
}

func (s *aboutService) Delete(ctx context.Context, b *tenant.Binding, id string) error {
	about, err := b.Records.GetAbout(ctx, id)
	if err != nil {
		return err
	}
	if err := b.Records.DeleteAbout(ctx, id); err != nil {
		return err
	}
	s.cascade(ctx, b, id, about.BlobRefs())
	return nil
}

func (s *aboutService) RemoveReference(ctx context.Context, b *tenant.Binding, blobID string) (bool, error) {
	return s.refs.RemoveFromList(ctx, b.Bucket, blobID, b.Records.PullAboutImage)
}
