package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	domain "ivdhub/internal/domain/pipeline"
	"ivdhub/internal/domain/source"
	"ivdhub/internal/ports"
)

// seedParsedRaw stores one already-parsed raw record for a synthetic run so
// the UDI maintenance commands have evidence to walk.
func (h *harness) seedParsedRaw(runID, payload string) uint64 {
	h.t.Helper()
	ctx := context.Background()
	id, created, err := h.svc.deps.Raws.InsertIgnore(ctx, ports.RawRecord{
		SourceKey:     source.KeyUDI,
		SourceRunID:   runID,
		PayloadHash:   payloadHash(payload),
		EvidenceGrade: "B",
		Payload:       payload,
		ObservedAt:    h.now,
		ParseStatus:   ports.ParseStatusPending,
	})
	if err != nil || !created {
		h.t.Fatalf("insert raw: created=%v err=%v", created, err)
	}
	if err := h.svc.deps.Raws.MarkParsed(ctx, id); err != nil {
		h.t.Fatalf("mark parsed: %v", err)
	}
	return id
}

func TestPromoteUDIUpgradesReversibleBinding(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.run(source.KeyRegistry, registryBody)
	reg, err := h.svc.deps.Registrations.GetByRegNo(ctx, "GXZZ20240001")
	if err != nil {
		t.Fatalf("get registration: %v", err)
	}

	rawID := h.seedParsedRaw("udi-run-1", `{"di":"06977777000012","registration_no":"GXZZ20240001"}`)
	regID := reg.RegistrationID
	if _, err := h.svc.deps.Devices.Upsert(ctx, ports.DeviceVariant{
		DI:              "06977777000012",
		RegistrationID:  &regID,
		MatchConfidence: 0.7,
		MatchReason:     MatchReasonFuzzyName,
		Reversible:      true,
		RawRecordID:     &rawID,
		CreatedAt:       h.now,
		UpdatedAt:       h.now,
	}); err != nil {
		t.Fatalf("upsert device: %v", err)
	}

	if _, err := h.svc.PromoteUDI(ctx, UDIInput{SourceRunID: "udi-run-1"}); !errors.Is(err, domain.ErrExecuteNotConfirmed) {
		t.Fatalf("err = %v, want execute not confirmed", err)
	}

	dry, err := h.svc.PromoteUDI(ctx, UDIInput{DryRun: true, SourceRunID: "udi-run-1"})
	if err != nil {
		t.Fatalf("promote dry run: %v", err)
	}
	if dry.Checked != 1 || dry.Promoted != 1 {
		t.Fatalf("dry run = %+v", dry)
	}
	device, err := h.svc.deps.Devices.GetByDI(ctx, "06977777000012")
	if err != nil {
		t.Fatalf("get device: %v", err)
	}
	if !device.Reversible {
		t.Fatal("dry run must not mutate the binding")
	}

	result, err := h.svc.PromoteUDI(ctx, UDIInput{Execute: true, SourceRunID: "udi-run-1"})
	if err != nil {
		t.Fatalf("promote: %v", err)
	}
	if result.Promoted != 1 {
		t.Fatalf("result = %+v", result)
	}
	device, err = h.svc.deps.Devices.GetByDI(ctx, "06977777000012")
	if err != nil {
		t.Fatalf("get device: %v", err)
	}
	if device.Reversible || device.MatchReason != MatchReasonExactRegNo || device.MatchConfidence != 1 {
		t.Fatalf("device = %+v", device)
	}
}

func TestAuditUDIUnbindsReversibleMismatch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.run(source.KeyRegistry, registryBody)
	reg, err := h.svc.deps.Registrations.GetByRegNo(ctx, "GXZZ20240001")
	if err != nil {
		t.Fatalf("get registration: %v", err)
	}

	// the record claims a different registration than the binding holds
	rawID := h.seedParsedRaw("udi-run-2", `{"di":"06988888000019","registration_no":"GXZZ20241111"}`)
	regID := reg.RegistrationID
	if _, err := h.svc.deps.Devices.Upsert(ctx, ports.DeviceVariant{
		DI:              "06988888000019",
		RegistrationID:  &regID,
		MatchConfidence: 0.7,
		MatchReason:     MatchReasonFuzzyName,
		Reversible:      true,
		RawRecordID:     &rawID,
		CreatedAt:       h.now,
		UpdatedAt:       h.now,
	}); err != nil {
		t.Fatalf("upsert device: %v", err)
	}

	dry, err := h.svc.AuditUDI(ctx, UDIInput{DryRun: true, SourceRunID: "udi-run-2"})
	if err != nil {
		t.Fatalf("audit dry run: %v", err)
	}
	if dry.Checked != 1 || dry.Mismatched != 1 || dry.Unbound != 0 {
		t.Fatalf("dry run = %+v", dry)
	}

	result, err := h.svc.AuditUDI(ctx, UDIInput{Execute: true, SourceRunID: "udi-run-2"})
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	if result.Mismatched != 1 || result.Unbound != 1 {
		t.Fatalf("result = %+v", result)
	}

	device, err := h.svc.deps.Devices.GetByDI(ctx, "06988888000019")
	if err != nil {
		t.Fatalf("get device: %v", err)
	}
	if device.RegistrationID != nil || device.Reversible {
		t.Fatalf("device = %+v", device)
	}
}

func TestExtractUDIParamsCheckpointsProgress(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.run(source.KeyRegistry, registryBody)
	reg, err := h.svc.deps.Registrations.GetByRegNo(ctx, "GXZZ20240001")
	if err != nil {
		t.Fatalf("get registration: %v", err)
	}

	payload := `{"di":"06999999000016","registration_no":"GXZZ20240001","packaging_level":"box/50","specimen_type":"serum","storage_condition":"2-8C"}`
	rawID := h.seedParsedRaw("udi-run-3", payload)
	regID := reg.RegistrationID
	if _, err := h.svc.deps.Devices.Upsert(ctx, ports.DeviceVariant{
		DI:             "06999999000016",
		RegistrationID: &regID,
		CreatedAt:      h.now,
		UpdatedAt:      h.now,
	}); err != nil {
		t.Fatalf("upsert device: %v", err)
	}

	result, err := h.svc.ExtractUDIParams(ctx, UDIInput{Execute: true, SourceRunID: "udi-run-3"})
	if err != nil {
		t.Fatalf("extract params: %v", err)
	}
	if result.Scanned != 1 || result.Updated != 1 || result.Resumed {
		t.Fatalf("result = %+v", result)
	}

	device, err := h.svc.deps.Devices.GetByDI(ctx, "06999999000016")
	if err != nil {
		t.Fatalf("get device: %v", err)
	}
	var attrs map[string]string
	if err := json.Unmarshal([]byte(device.AttrsJSON), &attrs); err != nil {
		t.Fatalf("decode attrs: %v", err)
	}
	if attrs["packaging_level"] != "box/50" || attrs["specimen_type"] != "serum" {
		t.Fatalf("attrs = %v", attrs)
	}
	if _, ok := attrs["storage_condition"]; ok {
		t.Fatal("non-allowlisted attribute must not be copied")
	}
	if device.RawRecordID == nil || *device.RawRecordID != rawID {
		t.Fatalf("evidence pointer = %v, want %d", device.RawRecordID, rawID)
	}

	// a checkpoint left by an interrupted pass skips already-handled rows
	if err := h.svc.deps.Checkpoints.Set(ctx, "udi_params:udi-run-3", "18446744073709551615"); err != nil {
		t.Fatalf("set checkpoint: %v", err)
	}
	resumed, err := h.svc.ExtractUDIParams(ctx, UDIInput{Execute: true, SourceRunID: "udi-run-3"})
	if err != nil {
		t.Fatalf("resume extract: %v", err)
	}
	if !resumed.Resumed || resumed.Scanned != 0 {
		t.Fatalf("resumed result = %+v", resumed)
	}

	// the completed pass clears its checkpoint
	if _, found, err := h.svc.deps.Checkpoints.Get(ctx, "udi_params:udi-run-3"); err != nil || found {
		t.Fatalf("checkpoint leftover: found=%v err=%v", found, err)
	}

	if _, err := h.svc.ExtractUDIParams(ctx, UDIInput{SourceRunID: "udi-run-3"}); !errors.Is(err, domain.ErrExecuteNotConfirmed) {
		t.Fatalf("err = %v, want execute not confirmed", err)
	}
}
