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

var labColumns = []string{
	"id", "name", "coordinators", "technical_staff", "address", "specialization", "webpage_url",
	"description", "objectives", "capacity", "hardware_details", "software_details", "lab_image_ids",
	"created_at", "updated_at",
}

func (s *Store) ListLabs(ctx context.Context) ([]*models.Lab, error) {
	query, args, err := s.qb.Select(labColumns...).From("labs").OrderBy("created_at DESC").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list labs: %w", err)
	}
	return collect(rows, scanLab)
}

func (s *Store) GetLab(ctx context.Context, id string) (*models.Lab, error) {
	query, args, err := s.qb.Select(labColumns...).From("labs").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	lab, err := scanLab(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	return lab, err
}

func (s *Store) CreateLab(ctx context.Context, lab *models.Lab) error {
	if err := s.stamp(&lab.ID, &lab.CreatedAt, &lab.UpdatedAt); err != nil {
		return err
	}
	insert := s.qb.Insert("labs").
		Columns(labColumns...).
		Values(
			lab.ID, lab.Name, encodeJSON(nonNil(lab.Coordinators)), encodeJSON(nonNil(lab.TechnicalStaff)),
			lab.Address, lab.Specialization, nullString(lab.WebpageURL), lab.Description,
			encodeJSON(nonNil(lab.Objectives)), lab.Capacity,
			encodeJSON(components(lab.HardwareDetails)), encodeJSON(components(lab.SoftwareDetails)),
			encodeJSON(nonNil(lab.LabImageIDs)),
			store.FormatTime(lab.CreatedAt), store.FormatTime(lab.UpdatedAt),
		)
	if _, err := s.exec(ctx, s.db, insert); err != nil {
		return fmt.Errorf("insert lab: %w", err)
	}
	return nil
}

func (s *Store) UpdateLab(ctx context.Context, lab *models.Lab) error {
	lab.UpdatedAt = s.now()
	update := s.qb.Update("labs").
		SetMap(map[string]any{
			"name":             lab.Name,
			"coordinators":     encodeJSON(nonNil(lab.Coordinators)),
			"technical_staff":  encodeJSON(nonNil(lab.TechnicalStaff)),
			"address":          lab.Address,
			"specialization":   lab.Specialization,
			"webpage_url":      nullString(lab.WebpageURL),
			"description":      lab.Description,
			"objectives":       encodeJSON(nonNil(lab.Objectives)),
			"capacity":         lab.Capacity,
			"hardware_details": encodeJSON(components(lab.HardwareDetails)),
			"software_details": encodeJSON(components(lab.SoftwareDetails)),
			"lab_image_ids":    encodeJSON(nonNil(lab.LabImageIDs)),
			"updated_at":       store.FormatTime(lab.UpdatedAt),
		}).
		Where(sq.Eq{"id": lab.ID})
	result, err := s.exec(ctx, s.db, update)
	if err != nil {
		return fmt.Errorf("update lab %s: %w", lab.ID, err)
	}
	return requireAffected(result)
}

func (s *Store) DeleteLab(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "labs", id)
}

// PullLabImage removes blobID from the gallery of every lab.
func (s *Store) PullLabImage(ctx context.Context, blobID string) (int64, error) {
	return s.pullFromList(ctx, "labs", "lab_image_ids", blobID, withoutID(blobID))
}

func scanLab(row rowScanner) (*models.Lab, error) {
	var lab models.Lab
	var coordinators, staff, objectives, hardware, software, imageIDs, created, updated string
	var webpage sql.NullString
	if err := row.Scan(
		&lab.ID, &lab.Name, &coordinators, &staff, &lab.Address, &lab.Specialization, &webpage,
		&lab.Description, &objectives, &lab.Capacity, &hardware, &software, &imageIDs,
		&created, &updated,
	); err != nil {
		return nil, err
	}
	var err error
	if lab.Coordinators, err = decodeStrings(coordinators); err != nil {
		return nil, err
	}
	if lab.TechnicalStaff, err = decodeStrings(staff); err != nil {
		return nil, err
	}
	if lab.Objectives, err = decodeStrings(objectives); err != nil {
		return nil, err
	}
	if lab.LabImageIDs, err = decodeStrings(imageIDs); err != nil {
		return nil, err
	}
	if err := decodeInto(hardware, &lab.HardwareDetails); err != nil {
		return nil, err
	}
	if err := decodeInto(software, &lab.SoftwareDetails); err != nil {
		return nil, err
	}
	lab.WebpageURL = webpage.String
	if lab.CreatedAt, lab.UpdatedAt, err = parseTimes(created, updated); err != nil {
		return nil, err
	}
	return &lab, nil
}

func components(values []models.LabComponent) []models.LabComponent {
	if values == nil {
		return []models.LabComponent{}
	}
	return values
}
