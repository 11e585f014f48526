package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"ivdhub/internal/bootstrap/logging"
	domain "ivdhub/internal/domain/pipeline"
	"ivdhub/internal/errs"
	"ivdhub/internal/ports"
)

type CleanupInput struct {
	DryRun    bool
	Execute   bool
	SourceKey string
	Reason    string
	BatchID   string
	Before    time.Time
}

type CleanupResult struct {
	BatchID string
	Counts  ports.ArchiveCounts
	DryRun  bool
}

// Cleanup archives and deletes products (and their change events) matching
// the filter. Dry-run reports the exact counts execute would touch; execute
// copies first and deletes second inside one transaction.
func (s *Service) Cleanup(ctx context.Context, in CleanupInput) (CleanupResult, error) {
	if !in.DryRun && !in.Execute {
		return CleanupResult{}, domain.ErrExecuteNotConfirmed
	}

	filter := ports.ArchiveFilter{
		SourceKey:  in.SourceKey,
		HiddenOnly: true,
		Before:     in.Before,
	}

	if in.DryRun {
		counts, err := s.deps.Archive.CountMatching(ctx, filter)
		if err != nil {
			return CleanupResult{}, err
		}
		return CleanupResult{BatchID: in.BatchID, Counts: counts, DryRun: true}, nil
	}

	batchID := in.BatchID
	if batchID == "" {
		batchID = uuid.NewString()
	}

	scope, err := json.Marshal(map[string]any{
		"source_key":  in.SourceKey,
		"hidden_only": true,
		"before":      in.Before,
	})
	if err != nil {
		return CleanupResult{}, errs.Wrap(err, "marshal archive scope")
	}

	var counts ports.ArchiveCounts
	txErr := s.deps.UoW.WithTx(ctx, func(ctx context.Context) error {
		var err error
		counts, err = s.deps.Archive.ArchiveAndDelete(ctx, filter, ports.ArchiveBatch{
			BatchID:   batchID,
			Reason:    in.Reason,
			ScopeJSON: string(scope),
			CreatedAt: s.now(),
		})
		return err
	})
	if txErr != nil {
		return CleanupResult{}, txErr
	}

	logging.Info(ctx, "cleanup executed",
		slog.String("batch_id", batchID),
		slog.Int64("products", counts.Products),
		slog.Int64("change_events", counts.ChangeEvents),
	)
	return CleanupResult{BatchID: batchID, Counts: counts}, nil
}

type RollbackInput struct {
	DryRun        bool
	Execute       bool
	BatchID       string
	RecomputeDays int
}

type RollbackResult struct {
	BatchID string
	Counts  ports.ArchiveCounts
	DryRun  bool
}

// Rollback restores an archived batch. Unknown and already-restored batches
// are rejected before any mutation; after a restore the daily metrics for
// the affected event window are recomputed.
func (s *Service) Rollback(ctx context.Context, in RollbackInput) (RollbackResult, error) {
	if !in.DryRun && !in.Execute {
		return RollbackResult{}, domain.ErrExecuteNotConfirmed
	}

	batch, err := s.deps.Archive.GetBatch(ctx, in.BatchID)
	if err != nil {
		return RollbackResult{}, err
	}
	if batch.Status == ports.BatchStatusRestored {
		return RollbackResult{}, domain.ErrBatchAlreadyRestored
	}

	if in.DryRun {
		counts, err := s.deps.Archive.CountBatch(ctx, in.BatchID)
		if err != nil {
			return RollbackResult{}, err
		}
		return RollbackResult{BatchID: in.BatchID, Counts: counts, DryRun: true}, nil
	}

	var counts ports.ArchiveCounts
	txErr := s.deps.UoW.WithTx(ctx, func(ctx context.Context) error {
		var err error
		counts, err = s.deps.Archive.Restore(ctx, in.BatchID, s.now())
		return err
	})
	if txErr != nil {
		return RollbackResult{}, txErr
	}

	from, to, ok, err := s.deps.Archive.RestoredEventWindow(ctx, in.BatchID)
	if err != nil {
		return RollbackResult{}, err
	}
	if ok {
		if in.RecomputeDays > 0 {
			widened := s.now().AddDate(0, 0, -in.RecomputeDays)
			if widened.Before(from) {
				from = widened
			}
		}
		if err := s.RecomputeMetrics(ctx, from, to); err != nil {
			return RollbackResult{}, err
		}
	}

	logging.Info(ctx, "rollback executed",
		slog.String("batch_id", in.BatchID),
		slog.Int64("products", counts.Products),
		slog.Int64("change_events", counts.ChangeEvents),
	)
	return RollbackResult{BatchID: in.BatchID, Counts: counts}, nil
}
