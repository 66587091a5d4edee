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

var aboutColumns = []string{"id", "hod_name", "hod_message", "hod_image_id", "created_at", "updated_at"}

// LatestAbout returns the most recent about record, or nil when none exists.
func (s *Store) LatestAbout(ctx context.Context) (*models.About, error) {
	query, args, err := s.qb.Select(aboutColumns...).From("about").
		OrderBy("created_at DESC", "id DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, err
	}
	about, err := scanAbout(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return about, err
}

func (s *Store) GetAbout(ctx context.Context, id string) (*models.About, error) {
	query, args, err := s.qb.Select(aboutColumns...).From("about").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	about, err := scanAbout(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	return about, err
}

func (s *Store) listAbout(ctx context.Context) ([]*models.About, error) {
	query, args, err := s.qb.Select(aboutColumns...).From("about").OrderBy("created_at DESC").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanAbout)
}

func (s *Store) CreateAbout(ctx context.Context, about *models.About) error {
	if err := s.stamp(&about.ID, &about.CreatedAt, &about.UpdatedAt); err != nil {
		return err
	}
	insert := s.qb.Insert("about").
		Columns(aboutColumns...).
		Values(about.ID, about.HODName, about.HODMessage, nullString(about.HODImageID), store.FormatTime(about.CreatedAt), store.FormatTime(about.UpdatedAt))
	if _, err := s.exec(ctx, s.db, insert); err != nil {
		return fmt.Errorf("insert about: %w", err)
	}
	return nil
}

func (s *Store) UpdateAbout(ctx context.Context, about *models.About) error {
	about.UpdatedAt = s.now()
	update := s.qb.Update("about").
		Set("hod_name", about.HODName).
		Set("hod_message", about.HODMessage).
		Set("hod_image_id", nullString(about.HODImageID)).
		Set("updated_at", store.FormatTime(about.UpdatedAt)).
		Where(sq.Eq{"id": about.ID})
	result, err := s.exec(ctx, s.db, update)
	if err != nil {
		return fmt.Errorf("update about %s: %w", about.ID, err)
	}
	return requireAffected(result)
}

func (s *Store) DeleteAbout(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "about", id)
}

// PullAboutImage clears hod_image_id on every about record pointing at blobID.
func (s *Store) PullAboutImage(ctx context.Context, blobID string) (int64, error) {
	update := s.qb.Update("about").
		Set("hod_image_id", nil).
		Set("updated_at", store.FormatTime(s.now())).
		Where(sq.Eq{"hod_image_id": blobID})
	result, err := s.exec(ctx, s.db, update)
	if err != nil {
		return 0, fmt.Errorf("pull about image %s: %w", blobID, err)
	}
	return result.RowsAffected()
}

func scanAbout(row rowScanner) (*models.About, error) {
	var about models.About
	var imageID sql.NullString
	var created, updated string
	if err := row.Scan(&about.ID, &about.HODName, &about.HODMessage, &imageID, &created, &updated); err != nil {
		return nil, err
	}
	about.HODImageID = imageID.String
	var err error
	if about.CreatedAt, about.UpdatedAt, err = parseTimes(created, updated); err != nil {
		return nil, err
	}
	return &about, nil
}
