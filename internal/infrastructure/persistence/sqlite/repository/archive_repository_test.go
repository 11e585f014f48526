package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"ivdhub/internal/domain/pipeline"
	"ivdhub/internal/ports"
)

func TestArchiveAndRestoreRoundTrip(t *testing.T) {
	db := openTestDB(t)
	products := NewProductRepository(db)
	history := NewHistoryRepository(db)
	archive := NewArchiveRepository(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	visible, err := products.Upsert(ctx, ports.Product{
		RegNo: "R1", SourceKey: "nmpa_registry", Name: "kit", CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("upsert visible: %v", err)
	}
	dup, err := products.Upsert(ctx, ports.Product{
		RegNo: "R1", SourceKey: "procurement", Name: "kit dup", CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("upsert dup: %v", err)
	}
	if err := products.Supersede(ctx, dup.ProductID, visible.ProductID); err != nil {
		t.Fatalf("supersede: %v", err)
	}
	if err := history.AppendChangeEvent(ctx, ports.ChangeEvent{
		EntityType: "product", EntityID: dup.ProductID, Kind: "update",
		Field: "hidden", After: "true", OccurredAt: now,
	}); err != nil {
		t.Fatalf("append event: %v", err)
	}

	filter := ports.ArchiveFilter{HiddenOnly: true}
	counts, err := archive.CountMatching(ctx, filter)
	if err != nil {
		t.Fatalf("count matching: %v", err)
	}
	if counts.Products != 1 || counts.ChangeEvents != 1 {
		t.Fatalf("counts = %+v", counts)
	}

	batch := ports.ArchiveBatch{BatchID: "batch-1", Reason: "dedupe cleanup", CreatedAt: now}
	executed, err := archive.ArchiveAndDelete(ctx, filter, batch)
	if err != nil {
		t.Fatalf("archive and delete: %v", err)
	}
	if executed != counts {
		t.Fatalf("dry-run counts %+v differ from executed %+v", counts, executed)
	}

	// originals gone, visible row untouched
	if _, err := products.GetByRegNo(ctx, "R1", "procurement"); !errors.Is(err, ports.ErrProductNotFound) {
		t.Fatalf("hidden product should be gone, err = %v", err)
	}
	if _, err := products.GetByRegNo(ctx, "R1", "nmpa_registry"); err != nil {
		t.Fatalf("visible product must survive: %v", err)
	}

	from, to, ok, err := archive.RestoredEventWindow(ctx, "batch-1")
	if err != nil {
		t.Fatalf("event window: %v", err)
	}
	if !ok || !from.Equal(now) || !to.Equal(now) {
		t.Fatalf("window = (%v, %v, %t), want (%v, %v, true)", from, to, ok, now, now)
	}

	if _, _, ok, err := archive.RestoredEventWindow(ctx, "no-such-batch"); err != nil || ok {
		t.Fatalf("empty window = %t err = %v, want absent", ok, err)
	}

	restored, err := archive.Restore(ctx, "batch-1", now.Add(time.Hour))
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored != executed {
		t.Fatalf("restored counts %+v, want %+v", restored, executed)
	}

	// original primary key preserved
	back, err := products.GetByRegNo(ctx, "R1", "procurement")
	if err != nil {
		t.Fatalf("restored product: %v", err)
	}
	if back.ProductID != dup.ProductID {
		t.Fatalf("restored id = %d, want original %d", back.ProductID, dup.ProductID)
	}

	if _, err := archive.Restore(ctx, "batch-1", now); !errors.Is(err, pipeline.ErrBatchAlreadyRestored) {
		t.Fatalf("double restore err = %v", err)
	}
	if _, err := archive.GetBatch(ctx, "no-such-batch"); !errors.Is(err, pipeline.ErrBatchNotFound) {
		t.Fatalf("unknown batch err = %v", err)
	}
}

func TestMetricsUpsertDayOverwrites(t *testing.T) {
	repo := NewMetricsRepository(openTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	if err := repo.UpsertDay(ctx, ports.DailyMetric{Day: "2026-04-01", NewRegistrations: 5, ComputedAt: now}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := repo.UpsertDay(ctx, ports.DailyMetric{Day: "2026-04-01", NewRegistrations: 2, Updates: 3, ComputedAt: now}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	day, found, err := repo.GetDay(ctx, "2026-04-01")
	if err != nil {
		t.Fatalf("get day: %v", err)
	}
	if !found || day.NewRegistrations != 2 || day.Updates != 3 {
		t.Fatalf("day = %+v found=%t, recompute must overwrite", day, found)
	}

	if err := repo.UpsertDay(ctx, ports.DailyMetric{Day: "2026-04-02", ComputedAt: now}); err != nil {
		t.Fatalf("zero day upsert: %v", err)
	}
	days, err := repo.ListDays(ctx, "2026-04-01", "2026-04-02")
	if err != nil {
		t.Fatalf("list days: %v", err)
	}
	if len(days) != 2 {
		t.Fatalf("days = %d, want 2", len(days))
	}
}
