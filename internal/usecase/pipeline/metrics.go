package pipeline

import (
	"context"
	"time"

	domain "ivdhub/internal/domain/pipeline"
	"ivdhub/internal/errs"
	"ivdhub/internal/ports"
)

const dayLayout = "2006-01-02"

// RecomputeMetrics rebuilds the daily aggregates for every day in [from,
// to] from the change trail. Days with no remaining events are written as
// zero rows so a recompute after archival overwrites stale values instead
// of leaving them behind.
func (s *Service) RecomputeMetrics(ctx context.Context, from, to time.Time) error {
	from = from.UTC().Truncate(24 * time.Hour)
	to = to.UTC().Truncate(24 * time.Hour)
	if to.Before(from) {
		from, to = to, from
	}

	events, err := s.deps.History.ListChangeEventsBetween(ctx, from, to.Add(24*time.Hour))
	if err != nil {
		return errs.Wrap(err, "list change events")
	}

	byDay := map[string]*ports.DailyMetric{}
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		key := day.Format(dayLayout)
		byDay[key] = &ports.DailyMetric{Day: key}
	}

	for _, ev := range events {
		metric, ok := byDay[ev.OccurredAt.UTC().Format(dayLayout)]
		if !ok {
			continue
		}
		switch ev.EntityType {
		case "registration":
			switch domain.ChangeKind(ev.Kind) {
			case domain.ChangeNew:
				metric.NewRegistrations++
			case domain.ChangeCancel:
				metric.Cancellations++
			case domain.ChangeExpire:
				metric.Expirations++
			default:
				metric.Updates++
			}
		case "conflict_case":
			metric.ConflictsOpened++
		case "pending_item", "pending_link":
			metric.PendingOpened++
		case "device":
			metric.DevicesBound++
		}
	}

	computedAt := s.now()
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		metric := byDay[day.Format(dayLayout)]
		metric.ComputedAt = computedAt
		if err := s.deps.Metrics.UpsertDay(ctx, *metric); err != nil {
			return errs.Wrapf(err, "upsert metrics for %s", metric.Day)
		}
	}
	return nil
}

// RecomputeMetricsSince recomputes from the given day through today.
func (s *Service) RecomputeMetricsSince(ctx context.Context, since time.Time) error {
	return s.RecomputeMetrics(ctx, since, s.now())
}

func (s *Service) ListMetrics(ctx context.Context, from, to string) ([]ports.DailyMetric, error) {
	return s.deps.Metrics.ListDays(ctx, from, to)
}
