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

var eventColumns = []string{
	"id", "title", "status", "category", "coordinators", "start_date", "last_date",
	"venue", "organized_by", "description", "banner_id", "brochure_id", "event_image_ids",
	"created_at", "updated_at",
}

// ListEvents returns events newest start date first.
func (s *Store) ListEvents(ctx context.Context) ([]*models.Event, error) {
	query, args, err := s.qb.Select(eventColumns...).From("events").
		OrderBy("start_date DESC", "created_at DESC").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return collect(rows, scanEvent)
}

func (s *Store) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	query, args, err := s.qb.Select(eventColumns...).From("events").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	event, err := scanEvent(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	return event, err
}

func (s *Store) CreateEvent(ctx context.Context, event *models.Event) error {
	if err := s.stamp(&event.ID, &event.CreatedAt, &event.UpdatedAt); err != nil {
		return err
	}
	if event.Status == "" {
		event.Status = models.DefaultEventStatus
	}
	insert := s.qb.Insert("events").
		Columns(eventColumns...).
		Values(
			event.ID, event.Title, event.Status, event.Category, encodeJSON(nonNil(event.Coordinators)),
			nullTime(event.StartDate), nullTime(event.LastDate), event.Venue, nullString(event.OrganizedBy),
			event.Description, nullString(event.BannerID), nullString(event.BrochureID),
			encodeJSON(nonNil(event.EventImageIDs)),
			store.FormatTime(event.CreatedAt), store.FormatTime(event.UpdatedAt),
		)
	if _, err := s.exec(ctx, s.db, insert); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// UpdateEvent overwrites every mutable column. Concurrent writers race; the last one wins.
func (s *Store) UpdateEvent(ctx context.Context, event *models.Event) error {
	event.UpdatedAt = s.now()
	update := s.qb.Update("events").
		SetMap(map[string]any{
			"title":           event.Title,
			"status":          event.Status,
			"category":        event.Category,
			"coordinators":    encodeJSON(nonNil(event.Coordinators)),
			"start_date":      nullTime(event.StartDate),
			"last_date":       nullTime(event.LastDate),
			"venue":           event.Venue,
			"organized_by":    nullString(event.OrganizedBy),
			"description":     event.Description,
			"banner_id":       nullString(event.BannerID),
			"brochure_id":     nullString(event.BrochureID),
			"event_image_ids": encodeJSON(nonNil(event.EventImageIDs)),
			"updated_at":      store.FormatTime(event.UpdatedAt),
		}).
		Where(sq.Eq{"id": event.ID})
	result, err := s.exec(ctx, s.db, update)
	if err != nil {
		return fmt.Errorf("update event %s: %w", event.ID, err)
	}
	return requireAffected(result)
}

func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "events", id)
}

// PullEventImage removes blobID from the gallery of every event and clears
// any banner or brochure that holds it.
func (s *Store) PullEventImage(ctx context.Context, blobID string) (int64, error) {
	return s.pullFromList(ctx, "events", "event_image_ids", blobID, withoutID(blobID), "banner_id", "brochure_id")
}

func scanEvent(row rowScanner) (*models.Event, error) {
	var event models.Event
	var coordinators, imageIDs, created, updated string
	var startDate, lastDate, organizedBy, bannerID, brochureID sql.NullString
	if err := row.Scan(
		&event.ID, &event.Title, &event.Status, &event.Category, &coordinators, &startDate, &lastDate,
		&event.Venue, &organizedBy, &event.Description, &bannerID, &brochureID, &imageIDs,
		&created, &updated,
	); err != nil {
		return nil, err
	}
	var err error
	if event.Coordinators, err = decodeStrings(coordinators); err != nil {
		return nil, err
	}
	if event.EventImageIDs, err = decodeStrings(imageIDs); err != nil {
		return nil, err
	}
	if event.StartDate, err = parseNullTime(startDate); err != nil {
		return nil, err
	}
	if event.LastDate, err = parseNullTime(lastDate); err != nil {
		return nil, err
	}
	event.OrganizedBy = organizedBy.String
	event.BannerID = bannerID.String
	event.BrochureID = brochureID.String
	if event.CreatedAt, event.UpdatedAt, err = parseTimes(created, updated); err != nil {
		return nil, err
	}
	return &event, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
