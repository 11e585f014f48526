package repository

import (
	"context"
	"testing"
	"time"

	"ivdhub/internal/ports"
)

func TestRawInsertIgnoreDeduplicatesWithinRun(t *testing.T) {
	repo := NewRawRepository(openTestDB(t))
	ctx := context.Background()

	record := ports.RawRecord{
		SourceKey:     "nmpa_registry",
		SourceRunID:   "run-1",
		PayloadHash:   "abc123",
		EvidenceGrade: "A",
		Payload:       `{"registration_no":"A1"}`,
		ObservedAt:    time.Now().UTC(),
	}

	id1, created, err := repo.InsertIgnore(ctx, record)
	if err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if !created {
		t.Fatalf("first insert must create")
	}

	id2, created, err := repo.InsertIgnore(ctx, record)
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if created {
		t.Fatalf("duplicate (run, hash) must not create")
	}
	if id1 != id2 {
		t.Fatalf("duplicate insert returned id %d, want existing %d", id2, id1)
	}

	// same hash in a different run is a fresh record
	record.SourceRunID = "run-2"
	_, created, err = repo.InsertIgnore(ctx, record)
	if err != nil {
		t.Fatalf("other run insert: %v", err)
	}
	if !created {
		t.Fatalf("same hash in another run must create")
	}
}

func TestRawMarkAndStats(t *testing.T) {
	repo := NewRawRepository(openTestDB(t))
	ctx := context.Background()

	ids := make([]uint64, 0, 3)
	for _, hash := range []string{"h1", "h2", "h3"} {
		id, _, err := repo.InsertIgnore(ctx, ports.RawRecord{
			SourceKey:   "nmpa_registry",
			SourceRunID: "run-1",
			PayloadHash: hash,
			Payload:     "{}",
			ObservedAt:  time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("insert %s: %v", hash, err)
		}
		ids = append(ids, id)
	}

	if err := repo.MarkParsed(ctx, ids[0]); err != nil {
		t.Fatalf("mark parsed: %v", err)
	}
	if err := repo.MarkParseFailed(ctx, ids[1], "type_mismatch", "unknown status"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	stats, err := repo.RunStats(ctx, "run-1")
	if err != nil {
		t.Fatalf("run stats: %v", err)
	}
	if stats.Total != 3 || stats.Parsed != 1 || stats.Failed != 1 || stats.Pending != 1 {
		t.Fatalf("stats = %+v", stats)
	}

	failed, err := repo.Get(ctx, ids[1])
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if failed.ParseStatus != ports.ParseStatusFailed || failed.ParseErrClass != "type_mismatch" {
		t.Fatalf("failed record = %+v", failed)
	}
}
