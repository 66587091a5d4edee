package models

import "testing"

func TestParseRecordType(t *testing.T) {
	got, err := ParseRecordType(" EVENTS ")
	if err != nil {
		t.Fatalf("parse record type: %v", err)
	}
	if got != RecordEvents {
		t.Fatalf("expected %q, got %q", RecordEvents, got)
	}
	if got.Bucket() != "events" {
		t.Fatalf("expected bucket events, got %q", got.Bucket())
	}

	if _, err := ParseRecordType("gallery"); err == nil {
		t.Fatal("expected invalid record type error")
	}
	if _, err := ParseRecordType(""); err == nil {
		t.Fatal("expected missing record type error")
	}
}

func TestAllRecordTypesIsACopy(t *testing.T) {
	types := AllRecordTypes()
	if len(types) != 5 {
		t.Fatalf("expected 5 record types, got %d", len(types))
	}
	types[0] = "mutated"
	if AllRecordTypes()[0] != RecordAbout {
		t.Fatal("expected AllRecordTypes to return an independent slice")
	}
}

func TestEventBlobRefs(t *testing.T) {
	event := &Event{
		BannerID:      "x",
		BrochureID:    "",
		EventImageIDs: []string{"a", "b"},
	}
	refs := event.BlobRefs()
	want := []string{"x", "a", "b"}
	if len(refs) != len(want) {
		t.Fatalf("expected %v, got %v", want, refs)
	}
	for i := range want {
		if refs[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, refs)
		}
	}

	var nilEvent *Event
	if nilEvent.BlobRefs() != nil {
		t.Fatal("expected nil refs for nil event")
	}
}

func TestProgramSchemeBlobIDsSkipsEmpty(t *testing.T) {
	program := &Program{Scheme: []SchemeEntry{{Title: "a", BlobID: "1"}, {Title: "b"}, {Title: "c", BlobID: "3"}}}
	ids := program.SchemeBlobIDs()
	if len(ids) != 2 || ids[0] != "1" || ids[1] != "3" {
		t.Fatalf("expected [1 3], got %v", ids)
	}
}
