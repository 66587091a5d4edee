package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"deptcms/internal/models"
	"deptcms/internal/store"
)

var bannerColumns = []string{"id", "filename", "sort_order", "created_at"}

// ListBanners returns banners in display order.
func (s *Store) ListBanners(ctx context.Context) ([]*models.Banner, error) {
	query, args, err := s.qb.Select(bannerColumns...).From("banners").
		OrderBy("sort_order ASC", "created_at ASC").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list banners: %w", err)
	}
	return collect(rows, scanBanner)
}

func (s *Store) GetBanner(ctx context.Context, id string) (*models.Banner, error) {
	query, args, err := s.qb.Select(bannerColumns...).From("banners").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	banner, err := scanBanner(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	return banner, err
}

// AppendBanners creates one banner per filename. Orders continue after the
// current banner count, following the filenames' order.
func (s *Store) AppendBanners(ctx context.Context, filenames []string) ([]*models.Banner, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	query, args, err := s.qb.Select("COUNT(*)").From("banners").ToSql()
	if err != nil {
		return nil, err
	}
	var existing int
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&existing); err != nil {
		return nil, fmt.Errorf("count banners: %w", err)
	}

	now := s.now()
	out := make([]*models.Banner, 0, len(filenames))
	for i, filename := range filenames {
		id, err := store.NewID()
		if err != nil {
			return nil, err
		}
		banner := &models.Banner{ID: id, Filename: filename, Order: existing + i + 1, CreatedAt: now}
		insert := s.qb.Insert("banners").
			Columns(bannerColumns...).
			Values(banner.ID, banner.Filename, banner.Order, store.FormatTime(banner.CreatedAt))
		if _, err := s.exec(ctx, tx, insert); err != nil {
			return nil, fmt.Errorf("insert banner %s: %w", filename, err)
		}
		out = append(out, banner)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

// SetBannerOrders applies a reorder atomically. Any unknown id rolls back the whole batch.
func (s *Store) SetBannerOrders(ctx context.Context, orders []models.BannerOrder) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, entry := range orders {
		update := s.qb.Update("banners").Set("sort_order", entry.Order).Where(sq.Eq{"id": entry.ID})
		result, err := s.exec(ctx, tx, update)
		if err != nil {
			return fmt.Errorf("reorder banner %s: %w", entry.ID, err)
		}
		if err := requireAffected(result); err != nil {
			return fmt.Errorf("banner %s: %w", entry.ID, err)
		}
	}
	return tx.Commit()
}

func (s *Store) DeleteBanner(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "banners", id)
}

func scanBanner(row rowScanner) (*models.Banner, error) {
	var banner models.Banner
	var created string
	if err := row.Scan(&banner.ID, &banner.Filename, &banner.Order, &created); err != nil {
		return nil, err
	}
	createdAt, err := store.ParseTime(created)
	if err != nil {
		return nil, err
	}
	banner.CreatedAt = createdAt
	return &banner, nil
}
