package pipeline

import (
	"context"
	"errors"

	domain "ivdhub/internal/domain/pipeline"
	"ivdhub/internal/domain/source"
	"ivdhub/internal/errs"
	"ivdhub/internal/ports"
)

func (s *Service) ListPendingItems(ctx context.Context, limit int) ([]ports.PendingItem, error) {
	return s.deps.Queue.ListOpenPendingItems(ctx, limit)
}

// RetryPendingItems re-runs anchor resolution for due pending records from
// their stored raw payloads. An item whose registration has appeared gets
// fully applied and closed; the rest advance along the backoff schedule.
func (s *Service) RetryPendingItems(ctx context.Context, limit int) (resolved int, rescheduled int, err error) {
	now := s.now()
	due, err := s.deps.Queue.ListDuePendingItems(ctx, now, limit)
	if err != nil {
		return 0, 0, errs.Wrap(err, "list due pending items")
	}

	for _, item := range due {
		done, retryErr := s.retryPendingItem(ctx, item)
		if retryErr != nil {
			return resolved, rescheduled, retryErr
		}
		if done {
			resolved++
			continue
		}

		attempts := item.Attempts + 1
		next, terminal := s.retry.Next(attempts, now)
		if terminal {
			if err := s.deps.Queue.ReschedulePendingItem(ctx, item.PendingItemID, attempts, nil, true, now); err != nil {
				return resolved, rescheduled, err
			}
		} else {
			if err := s.deps.Queue.ReschedulePendingItem(ctx, item.PendingItemID, attempts, &next, false, now); err != nil {
				return resolved, rescheduled, err
			}
		}
		rescheduled++
	}
	return resolved, rescheduled, nil
}

func (s *Service) retryPendingItem(ctx context.Context, item ports.PendingItem) (bool, error) {
	if item.RawRecordID == nil {
		return false, nil
	}

	raw, err := s.deps.Raws.Get(ctx, *item.RawRecordID)
	if err != nil {
		return false, errs.Wrapf(err, "load raw record for pending item %d", item.PendingItemID)
	}
	def, err := source.ByKey(item.SourceKey)
	if err != nil {
		return false, err
	}
	strategy, err := s.deps.Parsers.Resolve(def.Parser)
	if err != nil {
		return false, errs.Wrap(err, "resolve parser")
	}
	payload, err := strategy.Parse(raw)
	if err != nil {
		// the payload was parseable when queued; a taxonomy failure now
		// means the record itself is bad and the item should age out
		return false, nil
	}

	reg, err := s.deps.Registrations.GetByRegNo(ctx, payload.RegistrationNo)
	if err != nil {
		if errors.Is(err, ports.ErrRegistrationNotFound) {
			return false, nil
		}
		return false, errs.Wrap(err, "lookup registration")
	}

	txErr := s.deps.UoW.WithTx(ctx, func(ctx context.Context) error {
		counters := ports.RunCounters{}
		if err := s.applyPayload(ctx, reg, def, raw.SourceRunID, payload, &counters); err != nil {
			return err
		}
		if payload.DeviceIdentifier != "" {
			if err := s.linkDevice(ctx, raw.SourceRunID, payload, &counters); err != nil {
				return err
			}
		}
		return s.deps.Queue.SetPendingItemStatus(ctx, item.PendingItemID, ports.QueueStatusResolved, s.now())
	})
	if txErr != nil {
		return false, txErr
	}
	return true, nil
}

// IgnorePendingItem closes an item without applying it.
func (s *Service) IgnorePendingItem(ctx context.Context, id uint64) error {
	return s.deps.Queue.SetPendingItemStatus(ctx, id, ports.QueueStatusIgnored, s.now())
}

func (s *Service) ListOpenOutliers(ctx context.Context, limit int) ([]ports.OutlierCase, error) {
	return s.deps.Queue.ListOpenOutliers(ctx, limit)
}

// ResolveOutlier closes the quarantine with an operator reason, re-enabling
// bindings for the registration.
func (s *Service) ResolveOutlier(ctx context.Context, id uint64, reason string) error {
	if reason == "" {
		return domain.ErrResolutionReasonRequired
	}
	return s.deps.Queue.ResolveOutlier(ctx, id, reason, s.now())
}
