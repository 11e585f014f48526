package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"ivdhub/internal/bootstrap/logging"
	domain "ivdhub/internal/domain/pipeline"
	"ivdhub/internal/domain/source"
	"ivdhub/internal/errs"
	"ivdhub/internal/infrastructure/feed"
	"ivdhub/internal/ports"
)

type RunInput struct {
	SourceKey   string
	SourceRunID string
	DryRun      bool
}

type RunResult struct {
	SourceRunID string
	SourceKey   string
	Status      string
	Counters    ports.RunCounters
}

// RunAll executes one sync pass over every enabled source. A failing source
// does not stop the others; its failure is carried in the result row.
func (s *Service) RunAll(ctx context.Context, dryRun bool) ([]RunResult, error) {
	configs, err := s.deps.Sources.List(ctx)
	if err != nil {
		return nil, errs.Wrap(err, "list source configs")
	}

	var results []RunResult
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		result, err := s.RunSource(ctx, RunInput{SourceKey: cfg.SourceKey, DryRun: dryRun})
		if err != nil {
			logging.Error(ctx, "source run failed",
				slog.String("source", cfg.SourceKey),
				slog.Any("err", errs.Loggable(err)))
		}
		if result.SourceRunID != "" || err == nil {
			results = append(results, result)
		}
	}
	return results, nil
}

// RunSource executes one full ingestion run for a single source: fetch,
// split, hash, parse, then the canonical anchor/upsert/link phase in one
// transaction. Raw records persist outside that transaction so a failed run
// keeps its evidence.
func (s *Service) RunSource(ctx context.Context, in RunInput) (RunResult, error) {
	def, err := source.ByKey(in.SourceKey)
	if err != nil {
		return RunResult{}, err
	}

	srcCfg, err := s.deps.Sources.Get(ctx, in.SourceKey)
	if err != nil {
		return RunResult{}, errs.Wrapf(err, "load source config %s", in.SourceKey)
	}
	if !srcCfg.Enabled {
		return RunResult{}, fmt.Errorf("%w: %s", domain.ErrSourceDisabled, in.SourceKey)
	}

	strategy, err := s.deps.Parsers.Resolve(def.Parser)
	if err != nil {
		return RunResult{}, errs.Wrap(err, "resolve parser")
	}

	runID := in.SourceRunID
	if runID == "" {
		runID = uuid.NewString()
	}

	ctx = logging.WithAttrs(ctx,
		slog.String("component", "pipeline.sync"),
		slog.String("source", in.SourceKey),
		slog.String("source_run_id", runID),
	)

	if in.DryRun {
		return s.dryRunSource(ctx, def, srcCfg, strategy, runID)
	}

	active, err := s.deps.Runs.HasActiveRun(ctx, in.SourceKey)
	if err != nil {
		return RunResult{}, errs.Wrap(err, "check active run")
	}
	if active {
		return RunResult{}, fmt.Errorf("%w: %s", domain.ErrRunAlreadyActive, in.SourceKey)
	}

	if err := s.deps.Runs.Create(ctx, ports.SourceRun{
		SourceRunID: runID,
		SourceKey:   in.SourceKey,
		Status:      ports.RunStatusRunning,
		StartedAt:   s.now(),
	}); err != nil {
		return RunResult{}, errs.Wrap(err, "create source run")
	}

	counters := ports.RunCounters{}
	status, runErr := s.executeRun(ctx, def, srcCfg, strategy, runID, &counters)

	failReason := ""
	if runErr != nil {
		failReason = runErr.Error()
	}
	if err := s.deps.Runs.Finish(ctx, runID, status, counters, failReason); err != nil {
		logging.Error(ctx, "finish source run failed", slog.Any("err", errs.Loggable(err)))
		if runErr == nil {
			runErr = err
		}
	}

	logging.Info(ctx, "source run finished",
		slog.String("status", status),
		slog.Int64("fetched", counters.Fetched),
		slog.Int64("parsed", counters.Parsed),
		slog.Int64("parse_failed", counters.ParseFailed),
		slog.Int64("anchored", counters.Anchored),
		slog.Int64("anchor_pending", counters.AnchorPending),
		slog.Int64("changes", counters.Changes),
		slog.Int64("conflicts", counters.Conflicts),
		slog.Int64("di_bound", counters.DIBound),
	)

	return RunResult{
		SourceRunID: runID,
		SourceKey:   in.SourceKey,
		Status:      status,
		Counters:    counters,
	}, runErr
}

// executeRun performs the fetch/parse phases with immediate persistence and
// then the canonical phase inside one transaction, returning the final run
// status.
func (s *Service) executeRun(
	ctx context.Context,
	def source.Definition,
	srcCfg ports.SourceConfig,
	strategy feed.Strategy,
	runID string,
	counters *ports.RunCounters,
) (string, error) {
	body, fetchedAt, err := s.deps.Fetcher.Fetch(ctx, srcCfg)
	if err != nil {
		counters.FetchFailed++
		return ports.RunStatusFailed, errs.Wrap(err, "fetch source feed")
	}

	records, err := strategy.Split(body, fetchedAt)
	if err != nil {
		return ports.RunStatusFailed, errs.Wrap(err, "split source document")
	}

	var stored []ports.RawRecord
	for _, rec := range records {
		counters.Fetched++
		raw := ports.RawRecord{
			SourceKey:     def.Key,
			SourceRunID:   runID,
			PayloadHash:   payloadHash(rec.Payload),
			EvidenceGrade: string(def.Grade),
			Payload:       rec.Payload,
			ObservedAt:    rec.ObservedAt,
			ParseStatus:   ports.ParseStatusPending,
		}
		id, created, err := s.deps.Raws.InsertIgnore(ctx, raw)
		if err != nil {
			return ports.RunStatusFailed, errs.Wrap(err, "persist raw record")
		}
		if !created {
			// identical payload already ingested in this run
			continue
		}
		raw.RawRecordID = id
		stored = append(stored, raw)
	}

	var payloads []domain.NormalizedPayload
	for _, raw := range stored {
		payload, err := strategy.Parse(raw)
		if err != nil {
			class := domain.ClassifyParseError(err)
			if markErr := s.deps.Raws.MarkParseFailed(ctx, raw.RawRecordID, string(class), err.Error()); markErr != nil {
				return ports.RunStatusFailed, errs.Wrap(markErr, "mark raw record failed")
			}
			counters.ParseFailed++
			continue
		}
		if err := s.deps.Raws.MarkParsed(ctx, raw.RawRecordID); err != nil {
			return ports.RunStatusFailed, errs.Wrap(err, "mark raw record parsed")
		}
		counters.Parsed++
		payloads = append(payloads, payload)
	}

	txErr := s.deps.UoW.WithTx(ctx, func(ctx context.Context) error {
		return s.applyRun(ctx, def, runID, payloads, counters)
	})
	if txErr != nil {
		// canonical writes rolled back; raw records stay for triage
		return ports.RunStatusFailed, txErr
	}

	status := ports.RunStatusSucceeded
	if counters.Fetched > 0 {
		failedRatio := float64(counters.ParseFailed) / float64(counters.Fetched)
		if failedRatio > s.cfg.Fetch.FailedRatio {
			status = ports.RunStatusPartial
		}
	}
	return status, nil
}

// applyRun is the canonical phase: anchor every payload, evaluate the
// anchor gate, then apply upserts and device links. Runs inside one
// transaction.
func (s *Service) applyRun(
	ctx context.Context,
	def source.Definition,
	runID string,
	payloads []domain.NormalizedPayload,
	counters *ports.RunCounters,
) error {
	sort.SliceStable(payloads, func(i, j int) bool {
		return payloads[i].ObservedAt.Before(payloads[j].ObservedAt)
	})

	type anchored struct {
		reg     ports.Registration
		payload domain.NormalizedPayload
	}

	var (
		resolved   []anchored
		deviceOnly []domain.NormalizedPayload
		attempted  int64
		failed     int64
	)

	for _, payload := range payloads {
		if payload.RegistrationNo == "" {
			if payload.DeviceIdentifier != "" {
				deviceOnly = append(deviceOnly, payload)
			}
			continue
		}

		attempted++
		reg, ok, err := s.resolveAnchor(ctx, def, runID, payload, counters)
		if err != nil {
			return err
		}
		if !ok {
			failed++
			continue
		}
		resolved = append(resolved, anchored{reg: reg, payload: payload})
	}

	if attempted > 0 && failed > 0 {
		ratio := float64(failed) / float64(attempted)
		if ratio > s.cfg.Anchor.GateRatio || failed > s.cfg.Anchor.GateMax {
			return fmt.Errorf("%w: %d of %d records failed to anchor",
				domain.ErrAnchorGateTripped, failed, attempted)
		}
	}

	for _, a := range resolved {
		if err := s.applyPayload(ctx, a.reg, def, runID, a.payload, counters); err != nil {
			return err
		}
		if a.payload.DeviceIdentifier != "" {
			if err := s.linkDevice(ctx, runID, a.payload, counters); err != nil {
				return err
			}
		}
	}
	for _, payload := range deviceOnly {
		if err := s.linkDevice(ctx, runID, payload, counters); err != nil {
			return err
		}
	}
	return nil
}

// dryRunSource exercises fetch, split and parse without touching the
// database, reporting the counters an execute pass would start from.
func (s *Service) dryRunSource(
	ctx context.Context,
	def source.Definition,
	srcCfg ports.SourceConfig,
	strategy feed.Strategy,
	runID string,
) (RunResult, error) {
	counters := ports.RunCounters{}

	body, fetchedAt, err := s.deps.Fetcher.Fetch(ctx, srcCfg)
	if err != nil {
		counters.FetchFailed++
		return RunResult{SourceRunID: runID, SourceKey: def.Key, Status: ports.RunStatusFailed, Counters: counters},
			errs.Wrap(err, "fetch source feed")
	}

	records, err := strategy.Split(body, fetchedAt)
	if err != nil {
		return RunResult{SourceRunID: runID, SourceKey: def.Key, Status: ports.RunStatusFailed, Counters: counters},
			errs.Wrap(err, "split source document")
	}

	seen := map[string]struct{}{}
	for _, rec := range records {
		counters.Fetched++
		hash := payloadHash(rec.Payload)
		if _, dup := seen[hash]; dup {
			continue
		}
		seen[hash] = struct{}{}

		if _, err := strategy.Parse(ports.RawRecord{
			SourceKey:     def.Key,
			SourceRunID:   runID,
			PayloadHash:   hash,
			EvidenceGrade: string(def.Grade),
			Payload:       rec.Payload,
			ObservedAt:    rec.ObservedAt,
		}); err != nil {
			counters.ParseFailed++
			continue
		}
		counters.Parsed++
	}

	logging.Info(ctx, "dry run completed",
		slog.Int64("fetched", counters.Fetched),
		slog.Int64("parsed", counters.Parsed),
		slog.Int64("parse_failed", counters.ParseFailed),
	)

	return RunResult{
		SourceRunID: runID,
		SourceKey:   def.Key,
		Status:      ports.RunStatusSucceeded,
		Counters:    counters,
	}, nil
}

func payloadHash(payload string) string {
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
