package pipeline

import (
	"context"
	"testing"
	"time"

	"ivdhub/internal/domain/source"
	"ivdhub/internal/infrastructure/persistence/sqlite/model"
	"ivdhub/internal/ports"
)

func TestRetryPendingItemsResolvesAfterRegistrationAppears(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	result := h.run(source.KeyUDI, `[{"di":"06911111000013","registration_no":"GXZZ20248888","model":"U-9"}]`)
	if result.Counters.AnchorPending != 1 {
		t.Fatalf("counters = %+v", result.Counters)
	}

	// nothing is due before the backoff window passes
	resolved, rescheduled, err := h.svc.RetryPendingItems(ctx, 10)
	if err != nil {
		t.Fatalf("early retry: %v", err)
	}
	if resolved != 0 || rescheduled != 0 {
		t.Fatalf("early retry = %d/%d, want 0/0", resolved, rescheduled)
	}

	h.now = h.now.Add(time.Hour)
	h.run(source.KeyRegistry, `[{"registration_no":"GXZZ20248888","status":"在册","product_name":"尿液分析仪","company_name":"明州医械"}]`)

	h.now = h.now.Add(2 * time.Hour)
	resolved, rescheduled, err = h.svc.RetryPendingItems(ctx, 10)
	if err != nil {
		t.Fatalf("retry pending items: %v", err)
	}
	if resolved != 1 || rescheduled != 0 {
		t.Fatalf("retry = %d resolved, %d rescheduled", resolved, rescheduled)
	}

	if n := h.count(&model.PendingItem{}, "status = ?", ports.QueueStatusResolved); n != 1 {
		t.Fatalf("resolved pending items = %d, want 1", n)
	}

	// the stored record was applied in full, device binding included
	device, err := h.svc.deps.Devices.GetByDI(ctx, "06911111000013")
	if err != nil {
		t.Fatalf("get device: %v", err)
	}
	reg, err := h.svc.deps.Registrations.GetByRegNo(ctx, "GXZZ20248888")
	if err != nil {
		t.Fatalf("get registration: %v", err)
	}
	if device.RegistrationID == nil || *device.RegistrationID != reg.RegistrationID {
		t.Fatalf("device bound to %v, want %d", device.RegistrationID, reg.RegistrationID)
	}
	if reg.Model != "U-9" {
		t.Fatalf("model = %s, sparse source must fill the blank", reg.Model)
	}
}

func TestRetryPendingItemsBacksOffUntilTerminal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.run(source.KeyUDI, `[{"di":"06922222000010","registration_no":"GXZZ20247777"}]`)

	for attempt := 1; attempt <= 3; attempt++ {
		h.now = h.now.Add(8 * time.Hour)
		resolved, rescheduled, err := h.svc.RetryPendingItems(ctx, 10)
		if err != nil {
			t.Fatalf("retry %d: %v", attempt, err)
		}
		if resolved != 0 || rescheduled != 1 {
			t.Fatalf("retry %d = %d resolved, %d rescheduled", attempt, resolved, rescheduled)
		}
	}

	var item model.PendingItem
	if err := h.db.Take(&item).Error; err != nil {
		t.Fatalf("load pending item: %v", err)
	}
	if item.Attempts != 3 || !item.Terminal {
		t.Fatalf("item = attempts %d terminal %v", item.Attempts, item.Terminal)
	}

	items, err := h.svc.ListPendingItems(ctx, 10)
	if err != nil {
		t.Fatalf("list pending items: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("terminal item must stay visible for triage, got %d", len(items))
	}
}

func TestIgnorePendingItemUnblocksReingestion(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.run(source.KeyUDI, `[{"di":"06933333000017","registration_no":"GXZZ20246666"}]`)
	items, err := h.svc.ListPendingItems(ctx, 10)
	if err != nil || len(items) != 1 {
		t.Fatalf("pending items = %d err = %v", len(items), err)
	}

	if err := h.svc.IgnorePendingItem(ctx, items[0].PendingItemID); err != nil {
		t.Fatalf("ignore: %v", err)
	}
	left, err := h.svc.ListPendingItems(ctx, 10)
	if err != nil {
		t.Fatalf("list pending items: %v", err)
	}
	if len(left) != 0 {
		t.Fatalf("open items = %d, want 0", len(left))
	}

	// the next observation opens a fresh row instead of touching the closed one
	h.now = h.now.Add(time.Hour)
	h.run(source.KeyUDI, `[{"di":"06933333000017","registration_no":"GXZZ20246666"}]`)
	if n := h.count(&model.PendingItem{}, ""); n != 2 {
		t.Fatalf("pending item rows = %d, want 2", n)
	}
}
