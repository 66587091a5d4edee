package server

import (
	"context"

	"deptcms/internal/ingest"
	"deptcms/internal/models"
	"deptcms/internal/refs"
	"deptcms/internal/tenant"
)

type eventService struct {
	serviceBase
}

func (s *eventService) Schema() ingest.Schema {
	return ingest.Schema{Single: []string{"banner", "brochure"}, Multi: []string{"eventImages"}}
}

func (s *eventService) List(ctx context.Context, b *tenant.Binding, _ assetLinker) (any, error) {
	return b.Records.ListEvents(ctx)
}

func (s *eventService) Create(ctx context.Context, b *tenant.Binding, form *ingest.Session) (any, error) {
	if err := requireFields(form, "title", "category", "startDate", "venue", "description"); err != nil {
		return nil, s.discard(ctx, b, form, err)
	}
	event := &models.Event{
		BannerID:      form.First("banner"),
		BrochureID:    form.First("brochure"),
		EventImageIDs: refs.Append(nil, form.Files["eventImages"]),
	}
	if err := applyEventFields(form, event); err != nil {
		return nil, s.discard(ctx, b, form, err)
	}
	if err := b.Records.CreateEvent(ctx, event); err != nil {
		return nil, s.discard(ctx, b, form, err)
	}
	return event, nil
}

// Update applies sent fields, reorders images by orderedImageIds, appends new
// images and swaps banner or brochure when replacements were uploaded.
func (s *eventService) Update(ctx context.Context, b *tenant.Binding, id string, form *ingest.Session) (any, error) {
	event, err := b.Records.GetEvent(ctx, id)
	if err != nil {
		return nil, s.discard(ctx, b, form, err)
	}
	before := event.BlobRefs()

	if err := applyEventFields(form, event); err != nil {
		return nil, s.discard(ctx, b, form, err)
	}
	if ordering, ok := form.Field("orderedImageIds"); ok && ordering != "" {
		reordered, err := refs.Reorder(event.EventImageIDs, splitCSV(ordering))
		if err != nil {
			return nil, s.discard(ctx, b, form, err)
		}
		event.EventImageIDs = reordered
	}
	event.EventImageIDs = refs.Append(event.EventImageIDs, form.Files["eventImages"])
	if banner := form.First("banner"); banner != "" {
		event.BannerID = banner
	}
	if brochure := form.First("brochure"); brochure != "" {
		event.BrochureID = brochure
	}

	if err := b.Records.UpdateEvent(ctx, event); err != nil {
		return nil, s.discard(ctx, b, form, err)
	}
	s.reconcile(ctx, b, before, event.BlobRefs())
	return event, nil
}

func (s *eventService) Delete(ctx context.Context, b *tenant.Binding, id string) error {
	event, err := b.Records.GetEvent(ctx, id)
	if err != nil {
		return err
	}
	if err := b.Records.DeleteEvent(ctx, id); err != nil {
		return err
	}
	s.cascade(ctx, b, id, event.BlobRefs())
	return nil
}

func (s *eventService) RemoveReference(ctx context.Context, b *tenant.Binding, blobID string) (bool, error) {
	return s.refs.RemoveFromList(ctx, b.Bucket, blobID, b.Records.PullEventImage)
}

func applyEventFields(form *ingest.Session, event *models.Event) error {
	setString(form, "title", &event.Title)
	setString(form, "status", &event.Status)
	setString(form, "category", &event.Category)
	setString(form, "venue", &event.Venue)
	setString(form, "organizedBy", &event.OrganizedBy)
	setString(form, "description", &event.Description)
	setList(form, "coordinators", ",", &event.Coordinators)
	if err := setDate(form, "startDate", &event.StartDate); err != nil {
		return err
	}
	return setDate(form, "lastDate", &event.LastDate)
}
