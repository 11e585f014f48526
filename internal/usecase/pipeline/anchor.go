package pipeline

import (
	"context"
	"encoding/json"
	"errors"

	domain "ivdhub/internal/domain/pipeline"
	"ivdhub/internal/domain/source"
	"ivdhub/internal/errs"
	"ivdhub/internal/ports"
)

// Pending-queue reason codes.
const (
	ReasonNoRegistrationMatch = "no_registration_match"
)

// resolveAnchor finds or, for the authoritative source only, creates the
// registration a payload belongs to. An unresolvable payload opens or
// refreshes a pending item and is excluded from the canonical phase.
func (s *Service) resolveAnchor(
	ctx context.Context,
	def source.Definition,
	runID string,
	payload domain.NormalizedPayload,
	counters *ports.RunCounters,
) (ports.Registration, bool, error) {
	reg, err := s.deps.Registrations.GetByRegNo(ctx, payload.RegistrationNo)
	if err == nil {
		counters.Anchored++
		return reg, true, nil
	}
	if !errors.Is(err, ports.ErrRegistrationNotFound) {
		return ports.Registration{}, false, errs.Wrap(err, "lookup registration")
	}

	if def.Authoritative {
		created, err := s.createRegistration(ctx, runID, payload)
		if err != nil {
			return ports.Registration{}, false, err
		}
		counters.Anchored++
		counters.Changes++
		return created, true, nil
	}

	if err := s.openPendingRecord(ctx, def, runID, payload); err != nil {
		return ports.Registration{}, false, err
	}
	counters.AnchorPending++
	return ports.Registration{}, false, nil
}

func (s *Service) createRegistration(ctx context.Context, runID string, payload domain.NormalizedPayload) (ports.Registration, error) {
	now := s.now()
	metaJSON, err := json.Marshal(payload.Fields)
	if err != nil {
		return ports.Registration{}, errs.Wrap(err, "marshal registration meta")
	}

	created, err := s.deps.Registrations.Create(ctx, ports.Registration{
		RegistrationNo: payload.RegistrationNo,
		Status:         payload.Field(domain.FieldStatus),
		ApprovedAt:     payload.Field(domain.FieldApprovedAt),
		ExpiresAt:      payload.Field(domain.FieldExpiresAt),
		ProductName:    payload.Field(domain.FieldProductName),
		CompanyName:    payload.Field(domain.FieldCompanyName),
		Category:       payload.Field(domain.FieldCategory),
		Model:          payload.Field(domain.FieldModel),
		Description:    payload.Field(domain.FieldDescription),
		MetaJSON:       string(metaJSON),
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		return ports.Registration{}, errs.Wrap(err, "create registration")
	}

	if err := s.deps.History.AppendChangeEvent(ctx, ports.ChangeEvent{
		EntityType:  "registration",
		EntityID:    created.RegistrationID,
		Kind:        string(domain.ChangeNew),
		SourceRunID: runID,
		OccurredAt:  payload.ObservedAt,
	}); err != nil {
		return ports.Registration{}, errs.Wrap(err, "record registration creation")
	}
	return created, nil
}

func (s *Service) openPendingRecord(ctx context.Context, def source.Definition, runID string, payload domain.NormalizedPayload) error {
	now := s.now()
	next, _ := s.retry.Next(0, now)

	body, err := json.Marshal(map[string]string{
		"registration_no": payload.RegistrationNo,
		"source_key":      def.Key,
	})
	if err != nil {
		return errs.Wrap(err, "marshal pending payload")
	}

	rawID := payload.RawRecordID
	item := ports.PendingItem{
		Kind:        ports.PendingKindRecord,
		SourceKey:   def.Key,
		DedupeKey:   def.Key + ":" + payload.RegistrationNo,
		ReasonCode:  ReasonNoRegistrationMatch,
		RawRecordID: &rawID,
		PayloadJSON: string(body),
		NextRetryAt: &next,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	saved, created, err := s.deps.Queue.UpsertPendingItem(ctx, item)
	if err != nil {
		return errs.Wrap(err, "queue pending record")
	}
	if created {
		if err := s.deps.History.AppendChangeEvent(ctx, ports.ChangeEvent{
			EntityType:  "pending_item",
			EntityID:    saved.PendingItemID,
			Kind:        string(domain.ChangeNew),
			SourceRunID: runID,
			OccurredAt:  now,
		}); err != nil {
			return errs.Wrap(err, "record pending item opening")
		}
	}
	return nil
}
