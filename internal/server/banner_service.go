package server

import (
	"context"
	"errors"
	"fmt"

	"deptcms/internal/api"
	"deptcms/internal/ingest"
	"deptcms/internal/models"
	"deptcms/internal/store"
	"deptcms/internal/tenant"
)

// bannerService stores one banner record per uploaded file. Banners find
// their image by filename, so a delete removes every blob with that name.
type bannerService struct {
	serviceBase
}

func (s *bannerService) Schema() ingest.Schema {
	return ingest.Schema{AnyFile: true}
}

func (s *bannerService) List(ctx context.Context, b *tenant.Binding, assets assetLinker) (any, error) {
	banners, err := b.Records.ListBanners(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]api.BannerItem, 0, len(banners))
	for _, banner := range banners {
		item := api.BannerItem{ID: banner.ID, Order: banner.Order, Filename: banner.Filename}
		meta, err := b.Bucket.StatByFilename(ctx, banner.Filename)
		if err != nil {
			return nil, err
		}
		if meta != nil {
			item.BlobID = meta.ID
			if assets != nil {
				item.URL = assets(b.RecordType, meta.ID)
			}
		} else {
			s.logger.Warn("banner image missing", "department", b.Namespace.Key, "banner_id", banner.ID, "filename", banner.Filename)
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *bannerService) Create(ctx context.Context, b *tenant.Binding, form *ingest.Session) (any, error) {
	if len(form.Blobs) == 0 {
		return nil, badRequestCode(errors.New("at least one banner file is required"), ErrCodeMissingRequired)
	}
	filenames := make([]string, 0, len(form.Blobs))
	for _, blob := range form.Blobs {
		filenames = append(filenames, blob.Filename)
	}
	banners, err := b.Records.AppendBanners(ctx, filenames)
	if err != nil {
		return nil, s.discard(ctx, b, form, err)
	}
	return banners, nil
}

func (s *bannerService) Delete(ctx context.Context, b *tenant.Binding, id string) error {
	banner, err := b.Records.GetBanner(ctx, id)
	if err != nil {
		return err
	}
	if err := b.Records.DeleteBanner(ctx, id); err != nil {
		return err
	}
	remaining, err := b.Records.ListBanners(ctx)
	if err != nil {
		s.logger.Error("list banners failed", "department", b.Namespace.Key, "banner_id", id, "err", err)
		return nil
	}
	for _, other := range remaining {
		if other.Filename == banner.Filename {
			s.logger.Warn("banner file still shared, keeping blob", "department", b.Namespace.Key, "banner_id", id, "filename", banner.Filename)
			return nil
		}
	}
	metas, err := b.Bucket.ListByFilename(ctx, banner.Filename)
	if err != nil {
		s.logger.Error("list banner blobs failed", "department", b.Namespace.Key, "banner_id", id, "err", err)
		return nil
	}
	ids := make([]string, 0, len(metas))
	for _, meta := range metas {
		ids = append(ids, meta.ID)
	}
	s.cascade(ctx, b, id, ids)
	return nil
}

// Reorder applies a batch of new positions. An unknown id rolls back the batch.
func (s *bannerService) Reorder(ctx context.Context, b *tenant.Binding, orders []models.BannerOrder) error {
	if len(orders) == 0 {
		return badRequestCode(errors.New("order list is empty"), ErrCodeInvalidOrdering)
	}
	seen := make(map[string]struct{}, len(orders))
	for _, entry := range orders {
		if !store.ValidID(entry.ID) {
			return badRequestCode(fmt.Errorf("invalid banner id %q", entry.ID), ErrCodeInvalidID)
		}
		if entry.Order < 0 {
			return badRequestCode(fmt.Errorf("banner %s: order must be non-negative", entry.ID), ErrCodeInvalidOrdering)
		}
		if _, dup := seen[entry.ID]; dup {
			return badRequestCode(fmt.Errorf("banner %s listed twice", entry.ID), ErrCodeInvalidOrdering)
		}
		seen[entry.ID] = struct{}{}
	}
	return b.Records.SetBannerOrders(ctx, orders)
}
