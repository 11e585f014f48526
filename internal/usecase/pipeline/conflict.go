package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ivdhub/internal/domain/evidence"
	domain "ivdhub/internal/domain/pipeline"
	"ivdhub/internal/domain/source"
	"ivdhub/internal/errs"
	"ivdhub/internal/ports"
)

const systemResolver = "system"

// routeConflict opens a case for the disputed field (or finds the open
// one), appends the new observation as a candidate, and attempts grade
// dominance auto-resolution. The first time a case opens, the incumbent
// canonical value is seeded as a candidate so the trail shows both sides.
func (s *Service) routeConflict(
	ctx context.Context,
	reg ports.Registration,
	field string,
	currentValue string,
	inc incumbent,
	runID string,
	payload domain.NormalizedPayload,
) error {
	now := s.now()

	conflictCase, err := s.deps.Queue.GetOpenConflict(ctx, reg.RegistrationID, field)
	switch {
	case errors.Is(err, ports.ErrConflictCaseNotFound):
		conflictCase, err = s.deps.Queue.CreateConflict(ctx, ports.ConflictCase{
			RegistrationID: reg.RegistrationID,
			Field:          field,
			CreatedAt:      now,
		})
		if err != nil {
			return errs.Wrap(err, "open conflict case")
		}
		if err := s.deps.History.AppendChangeEvent(ctx, ports.ChangeEvent{
			EntityType:  "conflict_case",
			EntityID:    conflictCase.ConflictCaseID,
			Kind:        string(domain.ChangeNew),
			Field:       field,
			SourceRunID: runID,
			OccurredAt:  now,
		}); err != nil {
			return errs.Wrap(err, "record conflict opening")
		}

		incumbentGrade := string(evidence.GradeD)
		if def, defErr := source.ByKey(inc.sourceKey); defErr == nil {
			incumbentGrade = string(def.Grade)
		}
		if _, err := s.deps.Queue.AppendCandidate(ctx, ports.ConflictCandidate{
			ConflictCaseID: conflictCase.ConflictCaseID,
			Value:          currentValue,
			SourceKey:      inc.sourceKey,
			EvidenceGrade:  incumbentGrade,
			Confidence:     1,
			SourceRunID:    inc.sourceRunID,
			ObservedAt:     now,
		}); err != nil {
			return errs.Wrap(err, "seed incumbent candidate")
		}
	case err != nil:
		return errs.Wrap(err, "lookup open conflict case")
	}

	rawID := payload.RawRecordID
	if _, err := s.deps.Queue.AppendCandidate(ctx, ports.ConflictCandidate{
		ConflictCaseID: conflictCase.ConflictCaseID,
		Value:          payload.Field(field),
		SourceKey:      payload.SourceKey,
		EvidenceGrade:  string(payload.Grade),
		Confidence:     1,
		SourceRunID:    runID,
		RawRecordID:    &rawID,
		ObservedAt:     payload.ObservedAt,
	}); err != nil {
		return errs.Wrap(err, "append conflict candidate")
	}

	return s.autoResolveConflict(ctx, conflictCase)
}

// autoResolveConflict closes the case when exactly one candidate's grade
// strictly dominates every other candidate's. Anything weaker stays open
// for manual triage.
func (s *Service) autoResolveConflict(ctx context.Context, conflictCase ports.ConflictCase) error {
	candidates, err := s.deps.Queue.ListCandidates(ctx, conflictCase.ConflictCaseID)
	if err != nil {
		return errs.Wrap(err, "list conflict candidates")
	}

	grades := make([]evidence.Grade, len(candidates))
	for i, c := range candidates {
		grades[i] = evidence.Grade(c.EvidenceGrade)
	}

	winnerIdx := s.policy.StrictWinner(grades)
	if winnerIdx < 0 {
		return nil
	}

	winner := candidates[winnerIdx]
	if err := s.deps.Queue.ResolveConflict(ctx, conflictCase.ConflictCaseID, winner,
		systemResolver, "evidence grade dominance", s.now()); err != nil {
		return errs.Wrap(err, "auto-resolve conflict")
	}
	return s.applyResolution(ctx, conflictCase, winner)
}

// applyResolution writes the winning value onto the canonical registration
// when it differs from the current one.
func (s *Service) applyResolution(ctx context.Context, conflictCase ports.ConflictCase, winner ports.ConflictCandidate) error {
	reg, err := s.deps.Registrations.Get(ctx, conflictCase.RegistrationID)
	if err != nil {
		return errs.Wrap(err, "load registration")
	}

	current := registrationField(reg, conflictCase.Field)
	if current == winner.Value {
		return nil
	}

	if err := s.deps.Registrations.UpdateFields(ctx, reg.RegistrationID,
		map[string]string{conflictCase.Field: winner.Value}, s.now()); err != nil {
		return errs.Wrap(err, "apply winning value")
	}

	kind := domain.KindForFieldChange(conflictCase.Field, current, winner.Value)
	if err := s.deps.History.AppendChangeEvent(ctx, ports.ChangeEvent{
		EntityType:  "registration",
		EntityID:    reg.RegistrationID,
		Kind:        string(kind),
		Field:       conflictCase.Field,
		Before:      current,
		After:       winner.Value,
		SourceRunID: winner.SourceRunID,
		OccurredAt:  s.now(),
	}); err != nil {
		return errs.Wrap(err, "record resolution change")
	}
	return nil
}

type ResolveConflictInput struct {
	CaseID     uint64
	Value      string
	ResolvedBy string
	Reason     string
}

// ResolveConflict is the manual path used by the console and the CLI. The
// chosen value must match one of the recorded candidates and the reason is
// mandatory.
func (s *Service) ResolveConflict(ctx context.Context, in ResolveConflictInput) error {
	if strings.TrimSpace(in.Reason) == "" {
		return domain.ErrResolutionReasonRequired
	}
	resolvedBy := in.ResolvedBy
	if resolvedBy == "" {
		resolvedBy = "operator"
	}

	return s.deps.UoW.WithTx(ctx, func(ctx context.Context) error {
		conflictCase, err := s.deps.Queue.GetConflict(ctx, in.CaseID)
		if err != nil {
			return err
		}
		if conflictCase.Status != ports.QueueStatusOpen {
			return domain.ErrConflictAlreadyResolved
		}

		candidates, err := s.deps.Queue.ListCandidates(ctx, in.CaseID)
		if err != nil {
			return errs.Wrap(err, "list conflict candidates")
		}
		var winner *ports.ConflictCandidate
		for i := range candidates {
			if candidates[i].Value == in.Value {
				winner = &candidates[i]
				break
			}
		}
		if winner == nil {
			return fmt.Errorf("value %q does not match any recorded candidate", in.Value)
		}

		if err := s.deps.Queue.ResolveConflict(ctx, in.CaseID, *winner, resolvedBy, in.Reason, s.now()); err != nil {
			return err
		}
		return s.applyResolution(ctx, conflictCase, *winner)
	})
}

// ListOpenConflicts surfaces open cases with their candidates for triage.
type ConflictView struct {
	Case       ports.ConflictCase
	Candidates []ports.ConflictCandidate
}

func (s *Service) ListOpenConflicts(ctx context.Context, limit int) ([]ConflictView, error) {
	cases, err := s.deps.Queue.ListOpenConflicts(ctx, limit)
	if err != nil {
		return nil, errs.Wrap(err, "list open conflicts")
	}

	views := make([]ConflictView, 0, len(cases))
	for _, c := range cases {
		candidates, err := s.deps.Queue.ListCandidates(ctx, c.ConflictCaseID)
		if err != nil {
			return nil, errs.Wrap(err, "list conflict candidates")
		}
		views = append(views, ConflictView{Case: c, Candidates: candidates})
	}
	return views, nil
}
