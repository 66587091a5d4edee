package server

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"time"

	"deptcms/internal/ingest"
	"deptcms/internal/models"
	"deptcms/internal/refs"
	"deptcms/internal/tenant"
)

var (
	schemeFilePattern  = regexp.MustCompile(`^scheme\[(\d+)\]\[file\]$`)
	schemeTitlePattern = regexp.MustCompile(`^scheme\[(\d+)\]\[title\]$`)
)

type programService struct {
	serviceBase
	now func() time.Time
}

func (s *programService) Schema() ingest.Schema {
	return ingest.Schema{Match: schemeFilePattern.MatchString}
}

func (s *programService) List(ctx context.Context, b *tenant.Binding, _ assetLinker) (any, error) {
	return b.Records.ListPrograms(ctx)
}

func (s *programService) Create(ctx context.Context, b *tenant.Binding, form *ingest.Session) (any, error) {
	if err := requireFields(form, "category", "title"); err != nil {
		return nil, s.discard(ctx, b, form, err)
	}
	program := &models.Program{}
	applyProgramText(form, program)
	counted, err := applyProgramCounts(form, program)
	if err != nil {
		return nil, s.discard(ctx, b, form, err)
	}
	if !counted {
		return nil, s.discard(ctx, b, form, badRequestCode(fmt.Errorf("missing required fields: no_of_students, no_of_seats"), ErrCodeMissingRequired))
	}
	entries, err := s.newSchemeEntries(form)
	if err != nil {
		return nil, s.discard(ctx, b, form, err)
	}
	program.Scheme = entries
	if err := b.Records.CreateProgram(ctx, program); err != nil {
		return nil, s.discard(ctx, b, form, err)
	}
	return program, nil
}

// Update keeps existing scheme documents unless a scheme JSON reorders or
// retitles them, then appends newly uploaded entries.
func (s *programService) Update(ctx context.Context, b *tenant.Binding, id string, form *ingest.Session) (any, error) {
	program, err := b.Records.GetProgram(ctx, id)
	if err != nil {
		return nil, s.discard(ctx, b, form, err)
	}
	before := program.BlobRefs()

	applyProgramText(form, program)
	if _, err := applyProgramCounts(form, program); err != nil {
		return nil, s.discard(ctx, b, form, err)
	}
	var ordering []schemeOrder
	sent, err := setJSON(form, "scheme", &ordering)
	if err != nil {
		return nil, s.discard(ctx, b, form, err)
	}
	if sent {
		scheme, err := reorderScheme(program.Scheme, ordering)
		if err != nil {
			return nil, s.discard(ctx, b, form, err)
		}
		program.Scheme = scheme
	}
	added, err := s.newSchemeEntries(form)
	if err != nil {
		return nil, s.discard(ctx, b, form, err)
	}
	program.Scheme = append(program.Scheme, added...)

	if err := b.Records.UpdateProgram(ctx, program); err != nil {
		return nil, s.discard(ctx, b, form, err)
	}
	s.reconcile(ctx, b, before, program.BlobRefs())
	return program, nil
}

func (s *programService) Delete(ctx context.Context, b *tenant.Binding, id string) error {
	program, err := b.Records.GetProgram(ctx, id)
	if err != nil {
		return err
	}
	if err := b.Records.DeleteProgram(ctx, id); err != nil {
		return err
	}
	s.cascade(ctx, b, id, program.BlobRefs())
	return nil
}

func (s *programService) RemoveReference(ctx context.Context, b *tenant.Binding, blobID string) (bool, error) {
	return s.refs.RemoveFromList(ctx, b.Bucket, blobID, b.Records.PullSchemeEntry)
}

type schemeOrder struct {
	Title  string `json:"title"`
	BlobID string `json:"blob_id"`
}

// reorderScheme applies ordering to the documented entries of current.
// The blob ids must be a permutation of the existing ones; titles may change.
func reorderScheme(current []models.SchemeEntry, ordering []schemeOrder) ([]models.SchemeEntry, error) {
	existing := make([]string, 0, len(current))
	byID := make(map[string]models.SchemeEntry, len(current))
	var untitled []models.SchemeEntry
	for _, entry := range current {
		if entry.BlobID == "" {
			untitled = append(untitled, entry)
			continue
		}
		existing = append(existing, entry.BlobID)
		byID[entry.BlobID] = entry
	}
	ids := make([]string, 0, len(ordering))
	for _, entry := range ordering {
		ids = append(ids, entry.BlobID)
	}
	if _, err := refs.Reorder(existing, ids); err != nil {
		return nil, err
	}
	out := make([]models.SchemeEntry, 0, len(current))
	for _, entry := range ordering {
		kept := byID[entry.BlobID]
		if entry.Title != "" {
			kept.Title = entry.Title
		}
		out = append(out, kept)
	}
	return append(out, untitled...), nil
}

// newSchemeEntries collects scheme[i][title] and scheme[i][file] pairs in index order.
func (s *programService) newSchemeEntries(form *ingest.Session) ([]models.SchemeEntry, error) {
	type pair struct {
		title  string
		blobID string
	}
	pairs := make(map[int]*pair)
	get := func(index int) *pair {
		if pairs[index] == nil {
			pairs[index] = &pair{}
		}
		return pairs[index]
	}
	for name, value := range form.Fields {
		match := schemeTitlePattern.FindStringSubmatch(name)
		if match == nil {
			continue
		}
		index, err := strconv.Atoi(match[1])
		if err != nil {
			return nil, badRequest(fmt.Errorf("invalid scheme index in %s", name))
		}
		get(index).title = value
	}
	for field, ids := range form.Files {
		match := schemeFilePattern.FindStringSubmatch(field)
		if match == nil || len(ids) == 0 {
			continue
		}
		index, err := strconv.Atoi(match[1])
		if err != nil {
			return nil, badRequest(fmt.Errorf("invalid scheme index in %s", field))
		}
		get(index).blobID = ids[0]
	}

	indexes := make([]int, 0, len(pairs))
	for index := range pairs {
		indexes = append(indexes, index)
	}
	sort.Ints(indexes)

	now := time.Now().UTC()
	if s.now != nil {
		now = s.now()
	}
	out := make([]models.SchemeEntry, 0, len(indexes))
	for _, index := range indexes {
		p := pairs[index]
		if p.title == "" && p.blobID != "" {
			return nil, badRequestCode(fmt.Errorf("scheme[%d][title] is required", index), ErrCodeMissingRequired)
		}
		if p.title == "" {
			continue
		}
		entry := models.SchemeEntry{Title: p.title, BlobID: p.blobID}
		if p.blobID != "" {
			entry.Filename = form.Filename(p.blobID)
			entry.UploadDate = now
		}
		out = append(out, entry)
	}
	return out, nil
}

func applyProgramText(form *ingest.Session, program *models.Program) {
	setString(form, "category", &program.Category)
	setString(form, "title", &program.Title)
	setString(form, "PSO", &program.PSO)
	setString(form, "PEO", &program.PEO)
	setString(form, "PO", &program.PO)
}

// applyProgramCounts reads student and seat counts from bracketed fields or
// from JSON objects. It reports whether both groups were present.
func applyProgramCounts(form *ingest.Session, program *models.Program) (bool, error) {
	students, err := setJSON(form, "no_of_students", &program.NoOfStudents)
	if err != nil {
		return false, err
	}
	seats, err := setJSON(form, "no_of_seats", &program.NoOfSeats)
	if err != nil {
		return false, err
	}
	bracketed := []struct {
		name string
		dst  *int
		seen *bool
	}{
		{"no_of_students[Male]", &program.NoOfStudents.Male, &students},
		{"no_of_students[Female]", &program.NoOfStudents.Female, &students},
		{"no_of_seats[josaa]", &program.NoOfSeats.JoSAA, &seats},
		{"no_of_seats[csab]", &program.NoOfSeats.CSAB, &seats},
		{"no_of_seats[dasa]", &program.NoOfSeats.DASA, &seats},
	}
	for _, field := range bracketed {
		if value, _ := form.Field(field.name); value == "" {
			continue
		}
		if err := setInt(form, field.name, field.dst); err != nil {
			return false, err
		}
		*field.seen = true
	}
	return students && seats, nil
}
