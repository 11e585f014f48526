package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"ivdhub/internal/infrastructure/persistence/sqlite/model"
	"ivdhub/internal/ports"
)

func TestUpsertPendingItemKeepsOneOpenRow(t *testing.T) {
	repo := NewQueueRepository(openTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	first, created, err := repo.UpsertPendingItem(ctx, ports.PendingItem{
		Kind:       ports.PendingKindRecord,
		SourceKey:  "nhsa_codes",
		DedupeKey:  "nhsa_codes:GXZZ20240099",
		ReasonCode: "no_registration_match",
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if !created {
		t.Fatalf("first upsert must create")
	}

	second, created, err := repo.UpsertPendingItem(ctx, ports.PendingItem{
		Kind:       ports.PendingKindRecord,
		SourceKey:  "nhsa_codes",
		DedupeKey:  "nhsa_codes:GXZZ20240099",
		ReasonCode: "no_registration_match",
		CreatedAt:  now.Add(time.Hour),
		UpdatedAt:  now.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if created {
		t.Fatalf("re-ingesting the same failure must not open a second item")
	}
	if second.PendingItemID != first.PendingItemID {
		t.Fatalf("second id = %d, want %d", second.PendingItemID, first.PendingItemID)
	}

	open, err := repo.ListOpenPendingItems(ctx, 0)
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("open items = %d, want 1", len(open))
	}

	// after the item is resolved a new failure opens a fresh row
	if err := repo.SetPendingItemStatus(ctx, first.PendingItemID, ports.QueueStatusResolved, now); err != nil {
		t.Fatalf("set status: %v", err)
	}
	_, created, err = repo.UpsertPendingItem(ctx, ports.PendingItem{
		Kind:      ports.PendingKindRecord,
		SourceKey: "nhsa_codes",
		DedupeKey: "nhsa_codes:GXZZ20240099",
		CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("post-resolve upsert: %v", err)
	}
	if !created {
		t.Fatalf("closed item must not block a new one")
	}
}

func TestPendingItemRetryScheduling(t *testing.T) {
	repo := NewQueueRepository(openTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	item, _, err := repo.UpsertPendingItem(ctx, ports.PendingItem{
		Kind: ports.PendingKindRecord, SourceKey: "udi_device", DedupeKey: "k1",
		CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	due, err := repo.ListDuePendingItems(ctx, now, 0)
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("nil next_retry_at must be due, got %d", len(due))
	}

	future := now.Add(2 * time.Hour)
	if err := repo.ReschedulePendingItem(ctx, item.PendingItemID, 1, &future, false, now); err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	due, err = repo.ListDuePendingItems(ctx, now, 0)
	if err != nil {
		t.Fatalf("list due after reschedule: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("future retry must not be due, got %d", len(due))
	}

	// terminal items never come back
	if err := repo.ReschedulePendingItem(ctx, item.PendingItemID, 8, nil, true, now); err != nil {
		t.Fatalf("terminal reschedule: %v", err)
	}
	due, err = repo.ListDuePendingItems(ctx, now.Add(48*time.Hour), 0)
	if err != nil {
		t.Fatalf("list due terminal: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("terminal item must not be due, got %d", len(due))
	}

	if err := repo.ReschedulePendingItem(ctx, 9999, 1, nil, false, now); !errors.Is(err, ports.ErrPendingItemNotFound) {
		t.Fatalf("unknown id err = %v", err)
	}
}

func TestConflictCaseLifecycle(t *testing.T) {
	repo := NewQueueRepository(openTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	created, err := repo.CreateConflict(ctx, ports.ConflictCase{
		RegistrationID: 1, Field: "status", CreatedAt: now,
	})
	if err != nil {
		t.Fatalf("create conflict: %v", err)
	}

	incumbent, err := repo.AppendCandidate(ctx, ports.ConflictCandidate{
		ConflictCaseID: created.ConflictCaseID, Value: "ACTIVE", SourceKey: "nmpa_registry",
		EvidenceGrade: "A", Confidence: 1, ObservedAt: now,
	})
	if err != nil {
		t.Fatalf("append incumbent: %v", err)
	}
	challenger, err := repo.AppendCandidate(ctx, ports.ConflictCandidate{
		ConflictCaseID: created.ConflictCaseID, Value: "CANCELLED", SourceKey: "procurement",
		EvidenceGrade: "D", Confidence: 1, ObservedAt: now,
	})
	if err != nil {
		t.Fatalf("append challenger: %v", err)
	}
	if incumbent.Position != 1 || challenger.Position != 2 {
		t.Fatalf("positions = %d, %d", incumbent.Position, challenger.Position)
	}

	if err := repo.ResolveConflict(ctx, created.ConflictCaseID, incumbent, "system", "evidence grade dominance", now); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	resolved, err := repo.GetConflict(ctx, created.ConflictCaseID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resolved.Status != ports.QueueStatusResolved || resolved.WinningValue != "ACTIVE" || resolved.WinningSource != "nmpa_registry" {
		t.Fatalf("resolved case = %+v", resolved)
	}
	if resolved.ResolvedAt == nil {
		t.Fatalf("resolved_at must be stamped")
	}

	candidates, err := repo.ListCandidates(ctx, created.ConflictCaseID)
	if err != nil {
		t.Fatalf("list candidates: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("losing candidates must stay on record, got %d", len(candidates))
	}
	if candidates[0].Resolution != ports.CandidateApplied || candidates[1].Resolution != ports.CandidateRejected {
		t.Fatalf("resolutions = %s, %s", candidates[0].Resolution, candidates[1].Resolution)
	}

	// resolving again finds no open case
	if err := repo.ResolveConflict(ctx, created.ConflictCaseID, incumbent, "system", "again", now); !errors.Is(err, ports.ErrConflictCaseNotFound) {
		t.Fatalf("double resolve err = %v", err)
	}
}

func TestCreateOutlierReturnsExistingOpenCase(t *testing.T) {
	repo := NewQueueRepository(openTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	first, created, err := repo.CreateOutlier(ctx, ports.OutlierCase{
		RegistrationID: 42, DICount: 100, Threshold: 100, CreatedAt: now,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !created {
		t.Fatalf("first case must create")
	}

	second, created, err := repo.CreateOutlier(ctx, ports.OutlierCase{
		RegistrationID: 42, DICount: 101, Threshold: 100, CreatedAt: now,
	})
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if created || second.OutlierCaseID != first.OutlierCaseID {
		t.Fatalf("second create = (%+v, %t), want existing case", second, created)
	}

	if err := repo.ResolveOutlier(ctx, first.OutlierCaseID, "split registration verified", now); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	has, err := repo.HasOpenOutlier(ctx, 42)
	if err != nil {
		t.Fatalf("has open: %v", err)
	}
	if has {
		t.Fatalf("resolved case must not count as open")
	}

	cleared, err := repo.ClearedOutlierCount(ctx, 42)
	if err != nil {
		t.Fatalf("cleared count: %v", err)
	}
	if cleared != 100 {
		t.Fatalf("cleared count = %d, want 100", cleared)
	}
	cleared, err = repo.ClearedOutlierCount(ctx, 43)
	if err != nil {
		t.Fatalf("cleared count: %v", err)
	}
	if cleared != 0 {
		t.Fatalf("cleared count for fresh registration = %d, want 0", cleared)
	}
}

// The partial unique indexes back up the repository's lookup-then-insert:
// a second open row for the same logical key must fail at the schema level.
func TestPendingQueueSchemaRejectsDuplicateOpenRows(t *testing.T) {
	db := openTestDB(t)
	now := time.Now().UTC()

	item := model.PendingItem{
		Kind:       ports.PendingKindRecord,
		SourceKey:  "nhsa_codes",
		DedupeKey:  "nhsa_codes:GXZZ20240001",
		ReasonCode: "no_registration_match",
		Status:     ports.QueueStatusOpen,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := db.Create(&item).Error; err != nil {
		t.Fatalf("first open item: %v", err)
	}
	dup := item
	dup.PendingItemID = 0
	if err := db.Create(&dup).Error; err == nil {
		t.Fatal("second open item for the same (kind, dedupe_key) must be rejected")
	}

	closed := item
	closed.PendingItemID = 0
	closed.Status = ports.QueueStatusResolved
	if err := db.Create(&closed).Error; err != nil {
		t.Fatalf("closed row must not collide with the open one: %v", err)
	}

	link := model.PendingLink{
		DI:         "06901234000017",
		ReasonCode: "no_registration_match",
		Status:     ports.QueueStatusOpen,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := db.Create(&link).Error; err != nil {
		t.Fatalf("first open link: %v", err)
	}
	dupLink := link
	dupLink.PendingLinkID = 0
	if err := db.Create(&dupLink).Error; err == nil {
		t.Fatal("second open link for the same DI must be rejected")
	}
}
