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

var programColumns = []string{
	"id", "category", "title", "students_male", "students_female",
	"seats_josaa", "seats_csab", "seats_dasa", "scheme", "pso", "peo", "po",
	"created_at", "updated_at",
}

func (s *Store) ListPrograms(ctx context.Context) ([]*models.Program, error) {
	query, args, err := s.qb.Select(programColumns...).From("programs").OrderBy("created_at DESC").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list programs: %w", err)
	}
	return collect(rows, scanProgram)
}

func (s *Store) GetProgram(ctx context.Context, id string) (*models.Program, error) {
	query, args, err := s.qb.Select(programColumns...).From("programs").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	program, err := scanProgram(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	return program, err
}

func (s *Store) CreateProgram(ctx context.Context, program *models.Program) error {
	if err := s.stamp(&program.ID, &program.CreatedAt, &program.UpdatedAt); err != nil {
		return err
	}
	insert := s.qb.Insert("programs").
		Columns(programColumns...).
		Values(
			program.ID, program.Category, program.Title,
			program.NoOfStudents.Male, program.NoOfStudents.Female,
			program.NoOfSeats.JoSAA, program.NoOfSeats.CSAB, program.NoOfSeats.DASA,
			encodeJSON(scheme(program.Scheme)),
			nullString(program.PSO), nullString(program.PEO), nullString(program.PO),
			store.FormatTime(program.CreatedAt), store.FormatTime(program.UpdatedAt),
		)
	if _, err := s.exec(ctx, s.db, insert); err != nil {
		return fmt.Errorf("insert program: %w", err)
	}
	return nil
}

func (s *Store) UpdateProgram(ctx context.Context, program *models.Program) error {
	program.UpdatedAt = s.now()
	update := s.qb.Update("programs").
		SetMap(map[string]any{
			"category":        program.Category,
			"title":           program.Title,
			"students_male":   program.NoOfStudents.Male,
			"students_female": program.NoOfStudents.Female,
			"seats_josaa":     program.NoOfSeats.JoSAA,
			"seats_csab":      program.NoOfSeats.CSAB,
			"seats_dasa":      program.NoOfSeats.DASA,
			"scheme":          encodeJSON(scheme(program.Scheme)),
			"pso":             nullString(program.PSO),
			"peo":             nullString(program.PEO),
			"po":              nullString(program.PO),
			"updated_at":      store.FormatTime(program.UpdatedAt),
		}).
		Where(sq.Eq{"id": program.ID})
	result, err := s.exec(ctx, s.db, update)
	if err != nil {
		return fmt.Errorf("update program %s: %w", program.ID, err)
	}
	return requireAffected(result)
}

func (s *Store) DeleteProgram(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "programs", id)
}

// PullSchemeEntry removes every scheme entry that references blobID.
func (s *Store) PullSchemeEntry(ctx context.Context, blobID string) (int64, error) {
	return s.pullFromList(ctx, "programs", "scheme", blobID, func(raw string) (string, bool, error) {
		var entries []models.SchemeEntry
		if err := decodeInto(raw, &entries); err != nil {
			return "", false, err
		}
		kept := make([]models.SchemeEntry, 0, len(entries))
		for _, entry := range entries {
			if entry.BlobID != blobID {
				kept = append(kept, entry)
			}
		}
		if len(kept) == len(entries) {
			return raw, false, nil
		}
		return encodeJSON(kept), true, nil
	})
}

func scanProgram(row rowScanner) (*models.Program, error) {
	var program models.Program
	var schemeRaw, created, updated string
	var pso, peo, po sql.NullString
	if err := row.Scan(
		&program.ID, &program.Category, &program.Title,
		&program.NoOfStudents.Male, &program.NoOfStudents.Female,
		&program.NoOfSeats.JoSAA, &program.NoOfSeats.CSAB, &program.NoOfSeats.DASA,
		&schemeRaw, &pso, &peo, &po, &created, &updated,
	); err != nil {
		return nil, err
	}
	if err := decodeInto(schemeRaw, &program.Scheme); err != nil {
		return nil, err
	}
	program.PSO = pso.String
	program.PEO = peo.String
	program.PO = po.String
	var err error
	if program.CreatedAt, program.UpdatedAt, err = parseTimes(created, updated); err != nil {
		return nil, err
	}
	return &program, nil
}

func scheme(entries []models.SchemeEntry) []models.SchemeEntry {
	if entries == nil {
		return []models.SchemeEntry{}
	}
	return entries
}
