package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	domain "ivdhub/internal/domain/pipeline"
	"ivdhub/internal/domain/regnum"
	"ivdhub/internal/errs"
	"ivdhub/internal/ports"
)

type UDIInput struct {
	DryRun      bool
	Execute     bool
	SourceRunID string
}

type UDIPromoteResult struct {
	Checked  int64
	Promoted int64
	DryRun   bool
}

// PromoteUDI upgrades reversible bindings from a run whose claimed
// registration number now resolves exactly: the binding becomes an exact,
// irreversible match.
func (s *Service) PromoteUDI(ctx context.Context, in UDIInput) (UDIPromoteResult, error) {
	if !in.DryRun && !in.Execute {
		return UDIPromoteResult{}, domain.ErrExecuteNotConfirmed
	}

	result := UDIPromoteResult{DryRun: in.DryRun}

	raws, err := s.deps.Raws.ListByRun(ctx, in.SourceRunID)
	if err != nil {
		return result, errs.Wrap(err, "list raw records")
	}

	txErr := s.deps.UoW.WithTx(ctx, func(ctx context.Context) error {
		for _, raw := range raws {
			if raw.ParseStatus != ports.ParseStatusParsed {
				continue
			}
			di, claim, err := udiPayloadIdentity(raw.Payload)
			if err != nil || di == "" || claim == "" {
				continue
			}

			device, err := s.deps.Devices.GetByDI(ctx, di)
			if err != nil {
				if errors.Is(err, ports.ErrDeviceNotFound) {
					continue
				}
				return errs.Wrap(err, "lookup device variant")
			}
			if !device.Reversible || device.RegistrationID == nil {
				continue
			}
			result.Checked++

			reg, err := s.deps.Registrations.GetByRegNo(ctx, claim)
			if err != nil {
				if errors.Is(err, ports.ErrRegistrationNotFound) {
					continue
				}
				return errs.Wrap(err, "lookup claimed registration")
			}
			if reg.RegistrationID != *device.RegistrationID {
				continue
			}

			result.Promoted++
			if in.DryRun {
				continue
			}

			device.MatchConfidence = 1
			device.MatchReason = MatchReasonExactRegNo
			device.Reversible = false
			device.UpdatedAt = s.now()
			if _, err := s.deps.Devices.Upsert(ctx, device); err != nil {
				return errs.Wrap(err, "promote device binding")
			}
		}
		return nil
	})
	if txErr != nil {
		return result, txErr
	}
	return result, nil
}

type UDIAuditResult struct {
	Checked         int64
	MissingEvidence int64
	Mismatched      int64
	Unbound         int64
	DryRun          bool
}

// AuditUDI verifies every device binding produced by a run: the evidence
// back-pointer must be present and the bound registration must agree with
// the record's claimed registration number. Execute unbinds reversible
// mismatches; irreversible mismatches are only reported.
func (s *Service) AuditUDI(ctx context.Context, in UDIInput) (UDIAuditResult, error) {
	if !in.DryRun && !in.Execute {
		return UDIAuditResult{}, domain.ErrExecuteNotConfirmed
	}

	result := UDIAuditResult{DryRun: in.DryRun}

	raws, err := s.deps.Raws.ListByRun(ctx, in.SourceRunID)
	if err != nil {
		return result, errs.Wrap(err, "list raw records")
	}

	txErr := s.deps.UoW.WithTx(ctx, func(ctx context.Context) error {
		for _, raw := range raws {
			if raw.ParseStatus != ports.ParseStatusParsed {
				continue
			}
			di, claim, err := udiPayloadIdentity(raw.Payload)
			if err != nil || di == "" {
				continue
			}

			device, err := s.deps.Devices.GetByDI(ctx, di)
			if err != nil {
				if errors.Is(err, ports.ErrDeviceNotFound) {
					continue
				}
				return errs.Wrap(err, "lookup device variant")
			}
			result.Checked++

			if device.RawRecordID == nil {
				result.MissingEvidence++
			}
			if claim == "" || device.RegistrationID == nil {
				continue
			}

			reg, err := s.deps.Registrations.Get(ctx, *device.RegistrationID)
			if err != nil {
				return errs.Wrap(err, "load bound registration")
			}
			if reg.RegistrationNo == claim {
				continue
			}

			result.Mismatched++
			if in.DryRun || !device.Reversible {
				continue
			}
			if err := s.deps.Devices.Unbind(ctx, device.DeviceVariantID,
				"audit: bound registration disagrees with claimed "+claim, s.now()); err != nil {
				return errs.Wrap(err, "unbind mismatched device")
			}
			result.Unbound++
		}
		return nil
	})
	if txErr != nil {
		return result, txErr
	}
	return result, nil
}

type UDIParamsResult struct {
	Scanned int64
	Updated int64
	Resumed bool
	DryRun  bool
}

// ExtractUDIParams copies allowlisted structured attributes from a run's
// raw UDI payloads onto the matching device variants, always with the raw
// record as evidence. Progress checkpoints after every record so an
// interrupted extraction resumes instead of rescanning.
func (s *Service) ExtractUDIParams(ctx context.Context, in UDIInput) (UDIParamsResult, error) {
	if !in.DryRun && !in.Execute {
		return UDIParamsResult{}, domain.ErrExecuteNotConfirmed
	}

	result := UDIParamsResult{DryRun: in.DryRun}
	checkpointKey := "udi_params:" + in.SourceRunID

	var cursor uint64
	if !in.DryRun {
		value, found, err := s.deps.Checkpoints.Get(ctx, checkpointKey)
		if err != nil {
			return result, errs.Wrap(err, "read checkpoint")
		}
		if found {
			parsed, err := strconv.ParseUint(value, 10, 64)
			if err != nil {
				return result, errs.Wrapf(err, "corrupt checkpoint %q", checkpointKey)
			}
			cursor = parsed
			result.Resumed = true
		}
	}

	raws, err := s.deps.Raws.ListByRun(ctx, in.SourceRunID)
	if err != nil {
		return result, errs.Wrap(err, "list raw records")
	}

	allowlist := map[string]struct{}{}
	for _, key := range s.cfg.UDI.ParamAllowlist {
		allowlist[key] = struct{}{}
	}

	for _, raw := range raws {
		if raw.ParseStatus != ports.ParseStatusParsed || raw.RawRecordID <= cursor {
			continue
		}
		result.Scanned++

		attrs, di, err := extractAllowlisted(raw.Payload, allowlist)
		if err != nil || di == "" || len(attrs) == 0 {
			continue
		}

		device, err := s.deps.Devices.GetByDI(ctx, di)
		if err != nil {
			if errors.Is(err, ports.ErrDeviceNotFound) {
				continue
			}
			return result, errs.Wrap(err, "lookup device variant")
		}

		merged, err := mergeAttrs(device.AttrsJSON, attrs)
		if err != nil {
			return result, errs.Wrapf(err, "merge attrs for di %s", di)
		}

		result.Updated++
		if in.DryRun {
			continue
		}

		if err := s.deps.Devices.UpdateAttrs(ctx, device.DeviceVariantID, merged, raw.RawRecordID, s.now()); err != nil {
			return result, errs.Wrap(err, "update device attrs")
		}
		if err := s.deps.Checkpoints.Set(ctx, checkpointKey, strconv.FormatUint(raw.RawRecordID, 10)); err != nil {
			return result, errs.Wrap(err, "write checkpoint")
		}
	}

	if !in.DryRun {
		if err := s.deps.Checkpoints.Delete(ctx, checkpointKey); err != nil {
			return result, errs.Wrap(err, "clear checkpoint")
		}
	}
	return result, nil
}

func udiPayloadIdentity(payload string) (di string, claim string, err error) {
	var rec struct {
		DI             string `json:"di"`
		RegistrationNo string `json:"registration_no"`
	}
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return "", "", err
	}
	claimNormalized := ""
	if rec.RegistrationNo != "" {
		if normalized, err := regnum.Normalize(rec.RegistrationNo); err == nil {
			claimNormalized = normalized
		}
	}
	return rec.DI, claimNormalized, nil
}

func extractAllowlisted(payload string, allowlist map[string]struct{}) (map[string]string, string, error) {
	var generic map[string]any
	if err := json.Unmarshal([]byte(payload), &generic); err != nil {
		return nil, "", err
	}

	di, _ := generic["di"].(string)
	attrs := map[string]string{}
	for key := range allowlist {
		switch v := generic[key].(type) {
		case string:
			if v != "" {
				attrs[key] = v
			}
		case float64:
			attrs[key] = strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			attrs[key] = strconv.FormatBool(v)
		}
	}
	return attrs, di, nil
}

func mergeAttrs(existingJSON string, extra map[string]string) (string, error) {
	merged := map[string]string{}
	if existingJSON != "" && existingJSON != "{}" {
		if err := json.Unmarshal([]byte(existingJSON), &merged); err != nil {
			return "", fmt.Errorf("existing attrs: %w", err)
		}
	}
	for k, v := range extra {
		merged[k] = v
	}
	out, err := json.Marshal(merged)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
