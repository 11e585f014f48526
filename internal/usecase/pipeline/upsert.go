package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"ivdhub/internal/domain/match"
	domain "ivdhub/internal/domain/pipeline"
	"ivdhub/internal/domain/source"
	"ivdhub/internal/errs"
	"ivdhub/internal/ports"
)

// applyPayload runs the change detector for one anchored payload: per-field
// compare against the canonical values, route cross-source disagreements to
// the conflict resolver, apply the clean changes, and write the run's
// snapshot. A snapshot lands even when nothing changed.
func (s *Service) applyPayload(
	ctx context.Context,
	reg ports.Registration,
	def source.Definition,
	runID string,
	payload domain.NormalizedPayload,
	counters *ports.RunCounters,
) error {
	updates := map[string]string{}
	var diffs []ports.FieldDiff

	for _, field := range domain.StructuredFields {
		newValue, present := payload.Fields[field]
		if !present {
			continue
		}
		current := registrationField(reg, field)
		if current == newValue {
			continue
		}

		conflicting, inc, err := s.crossSourceDisagreement(ctx, reg, field, current, payload)
		if err != nil {
			return err
		}
		if conflicting {
			// canonical value stays until the case resolves
			if err := s.routeConflict(ctx, reg, field, current, inc, runID, payload); err != nil {
				return err
			}
			counters.Conflicts++
			continue
		}

		kind := domain.KindForFieldChange(field, current, newValue)
		diffs = append(diffs, ports.FieldDiff{
			RegistrationID: reg.RegistrationID,
			Field:          field,
			Before:         current,
			After:          newValue,
			Kind:           string(kind),
			Severity:       string(domain.SeverityForField(field)),
			Confidence:     1,
		})
		updates[field] = newValue

		if err := s.deps.History.AppendChangeEvent(ctx, ports.ChangeEvent{
			EntityType:  "registration",
			EntityID:    reg.RegistrationID,
			Kind:        string(kind),
			Field:       field,
			Before:      current,
			After:       newValue,
			SourceRunID: runID,
			OccurredAt:  payload.ObservedAt,
		}); err != nil {
			return errs.Wrap(err, "append change event")
		}
		counters.Changes++
	}

	if len(updates) > 0 {
		if err := s.deps.Registrations.UpdateFields(ctx, reg.RegistrationID, updates, s.now()); err != nil {
			return errs.Wrap(err, "update registration")
		}
		for field, value := range updates {
			applyRegistrationField(&reg, field, value)
		}
	}

	fieldsJSON, err := json.Marshal(registrationFields(reg))
	if err != nil {
		return errs.Wrap(err, "marshal snapshot fields")
	}
	snapshotID, created, err := s.deps.History.InsertSnapshot(ctx, ports.Snapshot{
		RegistrationID: reg.RegistrationID,
		SourceRunID:    runID,
		SourceKey:      def.Key,
		FieldsJSON:     string(fieldsJSON),
		ObservedAt:     payload.ObservedAt,
	})
	if err != nil {
		return errs.Wrap(err, "insert snapshot")
	}
	if created && len(diffs) > 0 {
		for i := range diffs {
			diffs[i].SnapshotID = snapshotID
		}
		if err := s.deps.History.InsertFieldDiffs(ctx, diffs); err != nil {
			return errs.Wrap(err, "insert field diffs")
		}
	}

	if payload.Field(domain.FieldProductName) != "" {
		if err := s.upsertProduct(ctx, reg, def, runID, payload); err != nil {
			return err
		}
	}
	return nil
}

// incumbent identifies the source that last asserted the canonical value
// for a disputed field, with the run that carried the assertion.
type incumbent struct {
	sourceKey   string
	sourceRunID string
}

// crossSourceDisagreement reports whether the current canonical value was
// asserted by a different source within the retention window. A source
// revising a value it supplied itself is a plain update, never a dispute,
// so the latest event for the field decides who the incumbent is; the
// creation event stands in only when no field event exists yet.
func (s *Service) crossSourceDisagreement(
	ctx context.Context,
	reg ports.Registration,
	field string,
	current string,
	payload domain.NormalizedPayload,
) (bool, incumbent, error) {
	if current == "" {
		// a sparse source filling in a blank is an addition, not a dispute
		return false, incumbent{}, nil
	}

	events, err := s.deps.History.ListChangeEvents(ctx, "registration", reg.RegistrationID, 100)
	if err != nil {
		return false, incumbent{}, errs.Wrap(err, "list change events")
	}

	// events arrive newest first
	var last, created *ports.ChangeEvent
	for i := range events {
		ev := events[i]
		if ev.Field == field {
			last = &ev
			break
		}
		if created == nil && ev.Field == "" && ev.Kind == string(domain.ChangeNew) {
			created = &ev
		}
	}
	if last == nil {
		last = created
	}
	if last == nil {
		return false, incumbent{}, nil
	}

	run, err := s.deps.Runs.Get(ctx, last.SourceRunID)
	if err != nil {
		if errors.Is(err, ports.ErrRunNotFound) {
			return false, incumbent{}, nil
		}
		return false, incumbent{}, errs.Wrap(err, "resolve incumbent run")
	}

	if run.SourceKey == payload.SourceKey {
		return false, incumbent{}, nil
	}
	if payload.ObservedAt.Sub(last.OccurredAt) > s.retentionWindow() {
		// the prior observation aged out; treat as a plain update
		return false, incumbent{}, nil
	}
	return true, incumbent{sourceKey: run.SourceKey, sourceRunID: last.SourceRunID}, nil
}

func (s *Service) upsertProduct(ctx context.Context, reg ports.Registration, def source.Definition, runID string, payload domain.NormalizedPayload) error {
	now := s.now()
	regID := reg.RegistrationID
	rawID := payload.RawRecordID

	product := ports.Product{
		RegNo:          reg.RegistrationNo,
		RegistrationID: &regID,
		Name:           payload.Field(domain.FieldProductName),
		CompanyName:    payload.Field(domain.FieldCompanyName),
		SourceKey:      def.Key,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if !def.Authoritative {
		product.RawRecordID = &rawID
	}

	saved, err := s.deps.Products.Upsert(ctx, product)
	if err != nil {
		return errs.Wrap(err, "upsert product")
	}
	if def.Authoritative {
		return nil
	}
	return s.dedupeProduct(ctx, reg, saved, runID, payload.ObservedAt)
}

// dedupeProduct soft-hides a supplementary product row that duplicates the
// authoritative one for the same registration. The pointer walk in the
// repository keeps the superseded-by chain acyclic.
func (s *Service) dedupeProduct(ctx context.Context, reg ports.Registration, candidate ports.Product, runID string, observedAt time.Time) error {
	siblings, err := s.deps.Products.ListByRegistration(ctx, reg.RegistrationID)
	if err != nil {
		return errs.Wrap(err, "list sibling products")
	}

	for _, sibling := range siblings {
		if sibling.ProductID == candidate.ProductID || sibling.Hidden {
			continue
		}
		def, err := source.ByKey(sibling.SourceKey)
		if err != nil || !def.Authoritative {
			continue
		}
		if match.Similarity(sibling.Name, candidate.Name) < 0.9 {
			continue
		}
		if err := s.deps.Products.Supersede(ctx, candidate.ProductID, sibling.ProductID); err != nil {
			return errs.Wrap(err, "supersede duplicate product")
		}
		if err := s.deps.History.AppendChangeEvent(ctx, ports.ChangeEvent{
			EntityType:  "product",
			EntityID:    candidate.ProductID,
			Kind:        string(domain.ChangeUpdate),
			Field:       "superseded_by",
			After:       strconv.FormatUint(sibling.ProductID, 10),
			SourceRunID: runID,
			OccurredAt:  observedAt,
		}); err != nil {
			return errs.Wrap(err, "record product supersede")
		}
		break
	}
	return nil
}

func applyRegistrationField(reg *ports.Registration, field, value string) {
	switch field {
	case domain.FieldStatus:
		reg.Status = value
	case domain.FieldApprovedAt:
		reg.ApprovedAt = value
	case domain.FieldExpiresAt:
		reg.ExpiresAt = value
	case domain.FieldProductName:
		reg.ProductName = value
	case domain.FieldCompanyName:
		reg.CompanyName = value
	case domain.FieldCategory:
		reg.Category = value
	case domain.FieldModel:
		reg.Model = value
	case domain.FieldDescription:
		reg.Description = value
	}
}
