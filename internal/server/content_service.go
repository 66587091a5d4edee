package server

import (
	"context"
	"log/slog"
	"net/url"

	"deptcms/internal/ingest"
	"deptcms/internal/models"
	"deptcms/internal/refs"
	"deptcms/internal/tenant"
)

// contentService implements the record-specific half of the upload flow.
// Services own cleanup: when a mutation fails, blobs uploaded with the form
// are deleted before the error is returned.
type contentService interface {
	Schema() ingest.Schema
	List(ctx context.Context, b *tenant.Binding, assets assetLinker) (any, error)
	Create(ctx context.Context, b *tenant.Binding, form *ingest.Session) (any, error)
	Delete(ctx context.Context, b *tenant.Binding, id string) error
}

// formUpdater is implemented by record types updated with a multipart form.
type formUpdater interface {
	Update(ctx context.Context, b *tenant.Binding, id string, form *ingest.Session) (any, error)
}

// referenceRemover drops one blob reference from every record that holds it.
type referenceRemover interface {
	RemoveReference(ctx context.Context, b *tenant.Binding, blobID string) (bool, error)
}

// assetLinker builds the URL a client fetches a blob from.
type assetLinker func(recordType models.RecordType, blobID string) string

func assetPath(prefix string) assetLinker {
	return func(recordType models.RecordType, blobID string) string {
		return prefix + url.PathEscape(string(recordType)) + "/" + url.PathEscape(blobID)
	}
}

type contentServices struct {
	about    *aboutService
	events   *eventService
	labs     *labService
	banners  *bannerService
	programs *programService
}

func newContentServices(manager *refs.Manager, logger *slog.Logger) contentServices {
	base := serviceBase{refs: manager, logger: logger.With("component", "content")}
	return contentServices{
		about:    &aboutService{serviceBase: base},
		events:   &eventService{serviceBase: base},
		labs:     &labService{serviceBase: base},
		banners:  &bannerService{serviceBase: base},
		programs: &programService{serviceBase: base},
	}
}

func (c contentServices) byType(recordType models.RecordType) contentService {
	switch recordType {
	case models.RecordAbout:
		return c.about
	case models.RecordEvents:
		return c.events
	case models.RecordLabs:
		return c.labs
	case models.RecordBanners:
		return c.banners
	case models.RecordPrograms:
		return c.programs
	default:
		return nil
	}
}

type serviceBase struct {
	refs   *refs.Manager
	logger *slog.Logger
}

// discard deletes blobs of a form whose mutation did not persist.
func (s serviceBase) discard(ctx context.Context, b *tenant.Binding, form *ingest.Session, cause error) error {
	if form != nil {
		if ids := form.BlobIDs(); len(ids) > 0 {
			s.refs.Cascade(context.WithoutCancel(ctx), b.Bucket, ids)
		}
	}
	return cause
}

// cascade deletes blobs of a removed record. Failures are logged, never returned.
func (s serviceBase) cascade(ctx context.Context, b *tenant.Binding, recordID string, ids []string) {
	result := s.refs.Cascade(context.WithoutCancel(ctx), b.Bucket, ids)
	if result.Err != nil {
		s.logger.Warn("record deleted with blobs left behind",
			"department", b.Namespace.Key, "type", b.RecordType, "record_id", recordID, "failed", result.Failed)
	}
}

// reconcile deletes blobs an update dropped.
func (s serviceBase) reconcile(ctx context.Context, b *tenant.Binding, before, after []string) {
	s.refs.Reconcile(context.WithoutCancel(ctx), b.Bucket, before, after)
}
