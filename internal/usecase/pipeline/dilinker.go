package pipeline

import (
	"context"
	"encoding/json"
	"errors"

	"ivdhub/internal/domain/match"
	domain "ivdhub/internal/domain/pipeline"
	"ivdhub/internal/errs"
	"ivdhub/internal/ports"
)

// Match reasons stamped on device bindings.
const (
	MatchReasonExactRegNo = "exact_regno"
	MatchReasonFuzzyName  = "fuzzy_name"
)

// linkDevice binds a device identifier to a registration: exact
// registration-number match first, name similarity second. Weak matches
// bind reversibly; unmatched DIs join the pending-link queue; registrations
// at the outlier threshold are quarantined instead of accreting bindings.
func (s *Service) linkDevice(ctx context.Context, runID string, payload domain.NormalizedPayload, counters *ports.RunCounters) error {
	var (
		target     ports.Registration
		matched    bool
		confidence float64
		reason     string
	)

	if payload.RegistrationNo != "" {
		reg, err := s.deps.Registrations.GetByRegNo(ctx, payload.RegistrationNo)
		switch {
		case err == nil:
			target, matched, confidence, reason = reg, true, 1, MatchReasonExactRegNo
		case !errors.Is(err, ports.ErrRegistrationNotFound):
			return errs.Wrap(err, "lookup registration by regno")
		}
	}

	if !matched {
		reg, score, err := s.fuzzyMatch(ctx, payload)
		if err != nil {
			return err
		}
		if score >= s.cfg.Linker.FuzzyMinimum {
			target, matched, confidence, reason = reg, true, score, MatchReasonFuzzyName
		}
	}

	if !matched {
		if err := s.openPendingLink(ctx, runID, payload); err != nil {
			return err
		}
		counters.DIPending++
		return nil
	}

	quarantined, err := s.deps.Queue.HasOpenOutlier(ctx, target.RegistrationID)
	if err != nil {
		return errs.Wrap(err, "check outlier quarantine")
	}
	if quarantined {
		counters.DISkipped++
		return nil
	}

	alreadyBound := false
	if existing, err := s.deps.Devices.GetByDI(ctx, payload.DeviceIdentifier); err == nil {
		alreadyBound = existing.RegistrationID != nil && *existing.RegistrationID == target.RegistrationID
	} else if !errors.Is(err, ports.ErrDeviceNotFound) {
		return errs.Wrap(err, "lookup device variant")
	}

	if !alreadyBound {
		bound, err := s.deps.Devices.CountBound(ctx, target.RegistrationID)
		if err != nil {
			return errs.Wrap(err, "count bound devices")
		}
		cleared := int64(0)
		if bound+1 >= s.cfg.Linker.OutlierThreshold {
			cleared, err = s.deps.Queue.ClearedOutlierCount(ctx, target.RegistrationID)
			if err != nil {
				return errs.Wrap(err, "check cleared outlier count")
			}
		}
		if bound+1 >= s.cfg.Linker.OutlierThreshold && bound+1 > cleared {
			if _, _, err := s.deps.Queue.CreateOutlier(ctx, ports.OutlierCase{
				RegistrationID: target.RegistrationID,
				DICount:        bound + 1,
				Threshold:      s.cfg.Linker.OutlierThreshold,
				CreatedAt:      s.now(),
			}); err != nil {
				return errs.Wrap(err, "open outlier case")
			}
			counters.DISkipped++
			return nil
		}
	}

	now := s.now()
	regID := target.RegistrationID
	rawID := payload.RawRecordID
	variant, err := s.deps.Devices.Upsert(ctx, ports.DeviceVariant{
		DI:              payload.DeviceIdentifier,
		RegistrationID:  &regID,
		Model:           payload.Field(domain.FieldModel),
		MatchConfidence: confidence,
		MatchReason:     reason,
		Reversible:      confidence < s.cfg.Linker.ConfidenceFloor,
		RawRecordID:     &rawID,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		return errs.Wrap(err, "upsert device variant")
	}
	counters.DIBound++

	if !alreadyBound {
		if err := s.deps.History.AppendChangeEvent(ctx, ports.ChangeEvent{
			EntityType:  "device",
			EntityID:    variant.DeviceVariantID,
			Kind:        string(domain.ChangeNew),
			Field:       "registration_id",
			After:       target.RegistrationNo,
			SourceRunID: runID,
			OccurredAt:  payload.ObservedAt,
		}); err != nil {
			return errs.Wrap(err, "record device binding")
		}
	}
	return nil
}

// fuzzyMatch scores every registration by company and product name
// similarity and returns the best. Names the payload does not carry are
// excluded from the average rather than scored as zero.
func (s *Service) fuzzyMatch(ctx context.Context, payload domain.NormalizedPayload) (ports.Registration, float64, error) {
	company := payload.Field(domain.FieldCompanyName)
	product := payload.Field(domain.FieldProductName)
	if company == "" && product == "" {
		return ports.Registration{}, 0, nil
	}

	regs, err := s.deps.Registrations.List(ctx, 0)
	if err != nil {
		return ports.Registration{}, 0, errs.Wrap(err, "list registrations")
	}

	var (
		best      ports.Registration
		bestScore float64
	)
	for _, reg := range regs {
		var sum float64
		var n int
		if company != "" && reg.CompanyName != "" {
			sum += match.Similarity(company, reg.CompanyName)
			n++
		}
		if product != "" && reg.ProductName != "" {
			sum += match.Similarity(product, reg.ProductName)
			n++
		}
		if n == 0 {
			continue
		}
		score := sum / float64(n)
		if score > bestScore {
			best, bestScore = reg, score
		}
	}
	return best, bestScore, nil
}

func (s *Service) openPendingLink(ctx context.Context, runID string, payload domain.NormalizedPayload) error {
	now := s.now()
	next, _ := s.retry.Next(0, now)

	body, err := json.Marshal(map[string]string{
		"di":              payload.DeviceIdentifier,
		"registration_no": payload.RegistrationNo,
		"product_name":    payload.Field(domain.FieldProductName),
		"company_name":    payload.Field(domain.FieldCompanyName),
	})
	if err != nil {
		return errs.Wrap(err, "marshal pending link payload")
	}

	rawID := payload.RawRecordID
	saved, created, err := s.deps.Queue.UpsertPendingLink(ctx, ports.PendingLink{
		DI:          payload.DeviceIdentifier,
		ReasonCode:  ReasonNoRegistrationMatch,
		RawRecordID: &rawID,
		PayloadJSON: string(body),
		NextRetryAt: &next,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return errs.Wrap(err, "queue pending link")
	}
	if created {
		if err := s.deps.History.AppendChangeEvent(ctx, ports.ChangeEvent{
			EntityType:  "pending_link",
			EntityID:    saved.PendingLinkID,
			Kind:        string(domain.ChangeNew),
			Field:       "di",
			After:       payload.DeviceIdentifier,
			SourceRunID: runID,
			OccurredAt:  now,
		}); err != nil {
			return errs.Wrap(err, "record pending link opening")
		}
	}
	return nil
}

// RetryPendingLinks re-attempts due pending links from their stored
// payloads. Resolved links close; the rest move along the backoff schedule
// until terminal.
func (s *Service) RetryPendingLinks(ctx context.Context, limit int) (resolved int, rescheduled int, err error) {
	now := s.now()
	due, err := s.deps.Queue.ListDuePendingLinks(ctx, now, limit)
	if err != nil {
		return 0, 0, errs.Wrap(err, "list due pending links")
	}

	for _, link := range due {
		var stored struct {
			DI             string `json:"di"`
			RegistrationNo string `json:"registration_no"`
			ProductName    string `json:"product_name"`
			CompanyName    string `json:"company_name"`
		}
		if err := json.Unmarshal([]byte(link.PayloadJSON), &stored); err != nil {
			return resolved, rescheduled, errs.Wrapf(err, "decode pending link %d", link.PendingLinkID)
		}

		payload := domain.NormalizedPayload{
			RegistrationNo:   stored.RegistrationNo,
			DeviceIdentifier: stored.DI,
			Fields: map[string]string{
				domain.FieldProductName: stored.ProductName,
				domain.FieldCompanyName: stored.CompanyName,
			},
			ObservedAt: now,
		}
		if link.RawRecordID != nil {
			payload.RawRecordID = *link.RawRecordID
		}

		linkResolved := false
		txErr := s.deps.UoW.WithTx(ctx, func(ctx context.Context) error {
			counters := ports.RunCounters{}
			if err := s.linkDevice(ctx, "", payload, &counters); err != nil {
				return err
			}
			if counters.DIBound > 0 {
				linkResolved = true
				return s.deps.Queue.SetPendingLinkStatus(ctx, link.PendingLinkID, ports.QueueStatusResolved, now)
			}
			return nil
		})
		if txErr != nil {
			return resolved, rescheduled, txErr
		}

		if linkResolved {
			resolved++
			continue
		}

		attempts := link.Attempts + 1
		next, terminal := s.retry.Next(attempts, now)
		if terminal {
			if err := s.deps.Queue.ReschedulePendingLink(ctx, link.PendingLinkID, attempts, nil, true, now); err != nil {
				return resolved, rescheduled, err
			}
		} else {
			if err := s.deps.Queue.ReschedulePendingLink(ctx, link.PendingLinkID, attempts, &next, false, now); err != nil {
				return resolved, rescheduled, err
			}
		}
		rescheduled++
	}
	return resolved, rescheduled, nil
}
