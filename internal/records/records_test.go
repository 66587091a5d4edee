package records

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"deptcms/internal/models"
	"deptcms/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := store.OpenDB(filepath.Join(t.TempDir(), "tenant.db"), store.TenantMigrations)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db)
}

func TestAboutLatestAndPull(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	latest, err := s.LatestAbout(ctx)
	require.NoError(t, err)
	require.Nil(t, latest)

	first := &models.About{HODName: "Dr. A", HODMessage: "hello", HODImageID: "img-1"}
	require.NoError(t, s.CreateAbout(ctx, first))
	second := &models.About{HODName: "Dr. B", HODMessage: "welcome", HODImageID: "img-2", CreatedAt: first.CreatedAt.Add(time.Second)}
	require.NoError(t, s.CreateAbout(ctx, second))

	latest, err = s.LatestAbout(ctx)
	require.NoError(t, err)
	require.Equal(t, second.ID, latest.ID)
	require.Equal(t, "img-2", latest.HODImageID)

	pulled, err := s.PullAboutImage(ctx, "img-2")
	require.NoError(t, err)
	require.EqualValues(t, 1, pulled)

	got, err := s.GetAbout(ctx, second.ID)
	require.NoError(t, err)
	require.Empty(t, got.HODImageID)

	require.NoError(t, s.DeleteAbout(ctx, second.ID))
	require.ErrorIs(t, s.DeleteAbout(ctx, second.ID), ErrRecordNotFound)
	_, err = s.GetAbout(ctx, second.ID)
	require.ErrorIs(t, err, ErrRecordNotFound)
}

func TestEventRoundTripAndPull(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	event := &models.Event{
		Title:         "Hackathon",
		Category:      "technical",
		Coordinators:  []string{"A", "B"},
		StartDate:     &start,
		Venue:         "Hall 1",
		Description:   "24h",
		BannerID:      "banner-1",
		EventImageIDs: []string{"a", "b", "c"},
	}
	require.NoError(t, s.CreateEvent(ctx, event))
	require.Equal(t, models.DefaultEventStatus, event.Status)

	other := &models.Event{Title: "Talk", Description: "x", EventImageIDs: []string{"b"}}
	require.NoError(t, s.CreateEvent(ctx, other))

	got, err := s.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B"}, got.Coordinators)
	require.Equal(t, []string{"a", "b", "c"}, got.EventImageIDs)
	require.True(t, start.Equal(*got.StartDate))
	require.Nil(t, got.LastDate)
	require.Empty(t, got.BrochureID)

	pulled, err := s.PullEventImage(ctx, "b")
	require.NoError(t, err)
	require.EqualValues(t, 2, pulled)

	got, err = s.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "c"}, got.EventImageIDs)
	got, err = s.GetEvent(ctx, other.ID)
	require.NoError(t, err)
	require.Empty(t, got.EventImageIDs)

	pulled, err = s.PullEventImage(ctx, "missing")
	require.NoError(t, err)
	require.Zero(t, pulled)

	pulled, err = s.PullEventImage(ctx, "banner-1")
	require.NoError(t, err)
	require.EqualValues(t, 1, pulled)
	got, err = s.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	require.Empty(t, got.BannerID)
	require.Equal(t, []string{"a", "c"}, got.EventImageIDs)

	events, err := s.ListEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, event.ID, events[0].ID)

	count, err := s.Count(ctx, models.RecordEvents)
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestUpdateMissingEvent(t *testing.T) {
	s := newTestStore(t)
	err := s.UpdateEvent(context.Background(), &models.Event{ID: "0192f3aa-0000-7000-8000-000000000001", Title: "x"})
	require.ErrorIs(t, err, ErrRecordNotFound)
}

func TestLabRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	lab := &models.Lab{
		Name:            "Networks Lab",
		Coordinators:    []string{"Dr. C"},
		TechnicalStaff:  []string{"T1", "T2"},
		Objectives:      []string{"learn", "build"},
		Capacity:        30,
		HardwareDetails: []models.LabComponent{{Component: "Router", Specifications: []string{"4 ports"}, Quantity: 3}},
		LabImageIDs:     []string{"x", "y"},
	}
	require.NoError(t, s.CreateLab(ctx, lab))

	lab.LabImageIDs = []string{"y", "x"}
	lab.WebpageURL = "https://lab.example.edu"
	require.NoError(t, s.UpdateLab(ctx, lab))

	got, err := s.GetLab(ctx, lab.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"y", "x"}, got.LabImageIDs)
	require.Equal(t, "https://lab.example.edu", got.WebpageURL)
	require.Len(t, got.HardwareDetails, 1)
	require.Equal(t, 3, got.HardwareDetails[0].Quantity)
	require.Empty(t, got.SoftwareDetails)

	pulled, err := s.PullLabImage(ctx, "x")
	require.NoError(t, err)
	require.EqualValues(t, 1, pulled)

	require.NoError(t, s.DeleteLab(ctx, lab.ID))
	_, err = s.GetLab(ctx, lab.ID)
	require.ErrorIs(t, err, ErrRecordNotFound)
}

func TestBannersAppendAndReorder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.AppendBanners(ctx, []string{"1-a.png", "2-b.png"})
	require.NoError(t, err)
	require.Equal(t, 1, first[0].Order)
	require.Equal(t, 2, first[1].Order)

	more, err := s.AppendBanners(ctx, []string{"3-c.png"})
	require.NoError(t, err)
	require.Equal(t, 3, more[0].Order)

	require.NoError(t, s.SetBannerOrders(ctx, []models.BannerOrder{
		{ID: more[0].ID, Order: 1},
		{ID: first[0].ID, Order: 3},
		{ID: first[1].ID, Order: 2},
	}))
	banners, err := s.ListBanners(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"3-c.png", "2-b.png", "1-a.png"}, []string{banners[0].Filename, banners[1].Filename, banners[2].Filename})

	err = s.SetBannerOrders(ctx, []models.BannerOrder{
		{ID: first[0].ID, Order: 9},
		{ID: "0192f3aa-0000-7000-8000-00000000dead", Order: 1},
	})
	require.ErrorIs(t, err, ErrRecordNotFound)
	got, err := s.GetBanner(ctx, first[0].ID)
	require.NoError(t, err)
	require.Equal(t, 3, got.Order)
}

func TestProgramSchemePull(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	program := &models.Program{
		Category:     "UG",
		Title:        "B.Tech CSE",
		NoOfStudents: models.StudentCounts{Male: 40, Female: 20},
		NoOfSeats:    models.SeatCounts{JoSAA: 50, CSAB: 8, DASA: 2},
		Scheme: []models.SchemeEntry{
			{Title: "Sem 1", BlobID: "s1", Filename: "1-sem1.pdf"},
			{Title: "Sem 2", BlobID: "s2", Filename: "2-sem2.pdf"},
		},
	}
	require.NoError(t, s.CreateProgram(ctx, program))

	pulled, err := s.PullSchemeEntry(ctx, "s1")
	require.NoError(t, err)
	require.EqualValues(t, 1, pulled)

	got, err := s.GetProgram(ctx, program.ID)
	require.NoError(t, err)
	require.Len(t, got.Scheme, 1)
	require.Equal(t, "s2", got.Scheme[0].BlobID)
	require.Equal(t, 8, got.NoOfSeats.CSAB)
}

func TestReferencedBlobs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateEvent(ctx, &models.Event{Title: "e", BannerID: "b1", BrochureID: "p1", EventImageIDs: []string{"i1"}}))
	_, err := s.AppendBanners(ctx, []string{"1-slide.png"})
	require.NoError(t, err)

	refs, err := s.ReferencedBlobs(ctx, models.RecordEvents)
	require.NoError(t, err)
	require.True(t, refs.Has("b1", ""))
	require.True(t, refs.Has("p1", ""))
	require.True(t, refs.Has("i1", ""))
	require.False(t, refs.Has("zz", "whatever"))

	bannerRefs, err := s.ReferencedBlobs(ctx, models.RecordBanners)
	require.NoError(t, err)
	require.True(t, bannerRefs.Has("any-id", "1-slide.png"))
	require.False(t, bannerRefs.Has("any-id", "2-gone.png"))

	_, err = s.ReferencedBlobs(ctx, models.RecordType("gallery"))
	require.Error(t, err)
}
