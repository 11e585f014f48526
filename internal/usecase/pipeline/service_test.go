package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"ivdhub/internal/bootstrap/config"
	domain "ivdhub/internal/domain/pipeline"
	"ivdhub/internal/domain/source"
	"ivdhub/internal/infrastructure/feed"
	"ivdhub/internal/infrastructure/persistence/sqlite/model"
	"ivdhub/internal/infrastructure/persistence/sqlite/repository"
	"ivdhub/internal/infrastructure/persistence/sqlite/uow"
	"ivdhub/internal/ports"
)

// stubFetcher serves canned documents per source key so runs are
// deterministic and never touch the network.
type stubFetcher struct {
	bodies map[string]string
	at     time.Time
	err    error
}

func (f *stubFetcher) Fetch(_ context.Context, cfg ports.SourceConfig) ([]byte, time.Time, error) {
	if f.err != nil {
		return nil, time.Time{}, f.err
	}
	body, ok := f.bodies[cfg.SourceKey]
	if !ok {
		return nil, time.Time{}, fmt.Errorf("no fixture for source %s", cfg.SourceKey)
	}
	return []byte(body), f.at, nil
}

type harness struct {
	t       *testing.T
	svc     *Service
	db      *gorm.DB
	fetcher *stubFetcher
	now     time.Time
}

func newHarness(t *testing.T, tweak ...func(*config.Config)) *harness {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "pipeline.sqlite")
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&model.SourceConfig{},
		&model.SourceRun{},
		&model.RawRecord{},
		&model.Registration{},
		&model.Product{},
		&model.DeviceVariant{},
		&model.Snapshot{},
		&model.FieldDiff{},
		&model.ChangeEvent{},
		&model.PendingItem{},
		&model.PendingLink{},
		&model.ConflictCase{},
		&model.ConflictCandidate{},
		&model.OutlierCase{},
		&model.ArchiveBatch{},
		&model.ArchivedProduct{},
		&model.ArchivedChangeEvent{},
		&model.DailyMetric{},
		&model.PipelineKV{},
		&model.SchemaLog{},
	); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}

	cfg := config.Config{
		Fetch:    config.FetchConfig{FailedRatio: 0.5},
		Anchor:   config.AnchorConfig{GateRatio: 1, GateMax: 500},
		Conflict: config.ConflictConfig{GradeOrder: []string{"A", "B", "C", "D"}, RetentionDays: 30},
		Linker:   config.LinkerConfig{ConfidenceFloor: 0.85, FuzzyMinimum: 0.6, OutlierThreshold: 3},
		Retry:    config.RetryConfig{Base: time.Hour, Factor: 2, MaxAttempts: 3},
		UDI:      config.UDIConfig{ParamAllowlist: []string{"packaging_level", "specimen_type"}},
	}
	for _, fn := range tweak {
		fn(&cfg)
	}

	fetcher := &stubFetcher{bodies: map[string]string{}}
	deps := Deps{
		UoW:           uow.NewUnitOfWork(db),
		Raws:          repository.NewRawRepository(db),
		Runs:          repository.NewRunRepository(db),
		Sources:       repository.NewSourceConfigRepository(db),
		Registrations: repository.NewRegistrationRepository(db),
		Products:      repository.NewProductRepository(db),
		Devices:       repository.NewDeviceRepository(db),
		History:       repository.NewHistoryRepository(db),
		Queue:         repository.NewQueueRepository(db),
		Archive:       repository.NewArchiveRepository(db),
		Metrics:       repository.NewMetricsRepository(db),
		Checkpoints:   repository.NewCheckpointStore(db),
		Fetcher:       fetcher,
		Parsers: feed.NewRegistry(
			feed.NewRegistryJSON(),
			feed.NewUDIJSON(),
			feed.NewNHSACSV(),
			feed.NewProcurementHTML(),
		),
	}

	svc, err := NewService(cfg, deps)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	h := &harness{
		t:       t,
		svc:     svc,
		db:      db,
		fetcher: fetcher,
		now:     time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
	}
	svc.WithClock(func() time.Time { return h.now })

	if err := svc.SeedSources(context.Background()); err != nil {
		t.Fatalf("seed sources: %v", err)
	}
	return h
}

// run executes one source run against a fixture body and fails the test on
// any error.
func (h *harness) run(sourceKey, body string) RunResult {
	h.t.Helper()
	h.fetcher.bodies[sourceKey] = body
	h.fetcher.at = h.now
	result, err := h.svc.RunSource(context.Background(), RunInput{SourceKey: sourceKey})
	if err != nil {
		h.t.Fatalf("run %s: %v", sourceKey, err)
	}
	return result
}

func (h *harness) count(value any, query string, args ...any) int64 {
	h.t.Helper()
	var n int64
	q := h.db.Model(value)
	if query != "" {
		q = q.Where(query, args...)
	}
	if err := q.Count(&n).Error; err != nil {
		h.t.Fatalf("count rows: %v", err)
	}
	return n
}

const registryBody = `[{"registration_no":"GXZZ20240001","status":"在册","approved_date":"2024-03-05","expiry_date":"2029-03-04","product_name":"血糖检测试剂盒","company_name":"华瑞诊断","category":"6840","model":"HR-100"}]`

func TestRunSourceCreatesRegistration(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	result := h.run(source.KeyRegistry, registryBody)

	if result.Status != ports.RunStatusSucceeded {
		t.Fatalf("status = %s, want %s", result.Status, ports.RunStatusSucceeded)
	}
	c := result.Counters
	if c.Fetched != 1 || c.Parsed != 1 || c.Anchored != 1 || c.Changes != 1 {
		t.Fatalf("counters = %+v", c)
	}

	reg, err := h.svc.deps.Registrations.GetByRegNo(ctx, "GXZZ20240001")
	if err != nil {
		t.Fatalf("get registration: %v", err)
	}
	if reg.Status != domain.StatusActive {
		t.Fatalf("status = %s, want %s", reg.Status, domain.StatusActive)
	}
	if reg.ApprovedAt != "2024-03-05" || reg.ExpiresAt != "2029-03-04" {
		t.Fatalf("dates = %s / %s", reg.ApprovedAt, reg.ExpiresAt)
	}
	if reg.CompanyName != "华瑞诊断" {
		t.Fatalf("company = %s", reg.CompanyName)
	}

	run, err := h.svc.deps.Runs.Get(ctx, result.SourceRunID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if run.Status != ports.RunStatusSucceeded {
		t.Fatalf("run status = %s", run.Status)
	}

	if n := h.count(&model.Snapshot{}, ""); n != 1 {
		t.Fatalf("snapshots = %d, want 1", n)
	}
	if n := h.count(&model.Product{}, ""); n != 1 {
		t.Fatalf("products = %d, want 1", n)
	}
}

func TestRunSourceReingestionIsIdempotent(t *testing.T) {
	h := newHarness(t)

	h.run(source.KeyRegistry, registryBody)
	h.now = h.now.Add(24 * time.Hour)
	second := h.run(source.KeyRegistry, registryBody)

	if second.Counters.Changes != 0 {
		t.Fatalf("second run changes = %d, want 0", second.Counters.Changes)
	}
	if n := h.count(&model.Registration{}, ""); n != 1 {
		t.Fatalf("registrations = %d, want 1", n)
	}
	if n := h.count(&model.ChangeEvent{}, "entity_type = ?", "registration"); n != 1 {
		t.Fatalf("registration change events = %d, want 1", n)
	}
	// every run leaves its snapshot even when nothing changed
	if n := h.count(&model.Snapshot{}, ""); n != 2 {
		t.Fatalf("snapshots = %d, want 2", n)
	}
	if n := h.count(&model.Product{}, ""); n != 1 {
		t.Fatalf("products = %d, want 1", n)
	}
}

func TestRunSourceStatusChangeEmitsCancelEvent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.run(source.KeyRegistry, registryBody)
	h.now = h.now.Add(24 * time.Hour)
	cancelled := `[{"registration_no":"GXZZ20240001","status":"注销","approved_date":"2024-03-05","expiry_date":"2029-03-04","product_name":"血糖检测试剂盒","company_name":"华瑞诊断","category":"6840","model":"HR-100"}]`
	result := h.run(source.KeyRegistry, cancelled)

	if result.Counters.Changes != 1 {
		t.Fatalf("changes = %d, want 1", result.Counters.Changes)
	}
	reg, err := h.svc.deps.Registrations.GetByRegNo(ctx, "GXZZ20240001")
	if err != nil {
		t.Fatalf("get registration: %v", err)
	}
	if reg.Status != domain.StatusCancelled {
		t.Fatalf("status = %s, want %s", reg.Status, domain.StatusCancelled)
	}
	if n := h.count(&model.ChangeEvent{}, "kind = ? AND field = ?", string(domain.ChangeCancel), domain.FieldStatus); n != 1 {
		t.Fatalf("cancel events = %d, want 1", n)
	}
	if n := h.count(&model.FieldDiff{}, "field = ?", domain.FieldStatus); n != 1 {
		t.Fatalf("status diffs = %d, want 1", n)
	}
}

func TestRunSourceUnresolvedAnchorOpensPendingItem(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	result := h.run(source.KeyUDI, `[{"di":"06901234000017","registration_no":"GXZZ20249999","model":"U-1"}]`)

	if result.Status != ports.RunStatusSucceeded {
		t.Fatalf("status = %s", result.Status)
	}
	if result.Counters.AnchorPending != 1 || result.Counters.Anchored != 0 {
		t.Fatalf("counters = %+v", result.Counters)
	}
	if n := h.count(&model.Registration{}, ""); n != 0 {
		t.Fatalf("registrations = %d, want 0", n)
	}

	items, err := h.svc.ListPendingItems(ctx, 10)
	if err != nil {
		t.Fatalf("list pending items: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("pending items = %d, want 1", len(items))
	}
	item := items[0]
	if item.Kind != ports.PendingKindRecord || item.ReasonCode != ReasonNoRegistrationMatch {
		t.Fatalf("item = %+v", item)
	}
	if item.DedupeKey != source.KeyUDI+":GXZZ20249999" {
		t.Fatalf("dedupe key = %s", item.DedupeKey)
	}
	if item.NextRetryAt == nil || !item.NextRetryAt.Equal(h.now.Add(time.Hour)) {
		t.Fatalf("next retry = %v, want %v", item.NextRetryAt, h.now.Add(time.Hour))
	}
}

func TestRunSourceAnchorGateRollsBackCanonicalPhase(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Anchor.GateRatio = 0.25
	})
	ctx := context.Background()

	body := `[{"di":"06901234000017","registration_no":"GXZZ20249998"},{"di":"06901234000024","registration_no":"GXZZ20249999"}]`
	h.fetcher.bodies[source.KeyUDI] = body
	h.fetcher.at = h.now

	result, err := h.svc.RunSource(ctx, RunInput{SourceKey: source.KeyUDI})
	if !errors.Is(err, domain.ErrAnchorGateTripped) {
		t.Fatalf("err = %v, want anchor gate", err)
	}
	if result.Status != ports.RunStatusFailed {
		t.Fatalf("status = %s, want failed", result.Status)
	}

	// raw evidence survives the rollback, queue writes do not
	if n := h.count(&model.RawRecord{}, ""); n != 2 {
		t.Fatalf("raw records = %d, want 2", n)
	}
	if n := h.count(&model.PendingItem{}, ""); n != 0 {
		t.Fatalf("pending items = %d, want 0", n)
	}

	run, err := h.svc.deps.Runs.Get(ctx, result.SourceRunID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if run.Status != ports.RunStatusFailed {
		t.Fatalf("run status = %s", run.Status)
	}
}

func TestRunSourceDisabled(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.svc.SetSourceEnabled(ctx, source.KeyRegistry, false); err != nil {
		t.Fatalf("disable source: %v", err)
	}
	_, err := h.svc.RunSource(ctx, RunInput{SourceKey: source.KeyRegistry})
	if !errors.Is(err, domain.ErrSourceDisabled) {
		t.Fatalf("err = %v, want source disabled", err)
	}
}

func TestRunSourceRejectsConcurrentRun(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.svc.deps.Runs.Create(ctx, ports.SourceRun{
		SourceRunID: "in-flight",
		SourceKey:   source.KeyRegistry,
		Status:      ports.RunStatusRunning,
		StartedAt:   h.now,
	}); err != nil {
		t.Fatalf("create run: %v", err)
	}

	_, err := h.svc.RunSource(ctx, RunInput{SourceKey: source.KeyRegistry})
	if !errors.Is(err, domain.ErrRunAlreadyActive) {
		t.Fatalf("err = %v, want run already active", err)
	}
}

func TestDryRunTouchesNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	rec := `{"registration_no":"GXZZ20240001","status":"在册","product_name":"血糖检测试剂盒"}`
	h.fetcher.bodies[source.KeyRegistry] = "[" + rec + "," + rec + "]"
	h.fetcher.at = h.now

	result, err := h.svc.RunSource(ctx, RunInput{SourceKey: source.KeyRegistry, DryRun: true})
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if result.Counters.Fetched != 2 || result.Counters.Parsed != 1 {
		t.Fatalf("counters = %+v", result.Counters)
	}

	if n := h.count(&model.RawRecord{}, ""); n != 0 {
		t.Fatalf("raw records = %d, want 0", n)
	}
	if n := h.count(&model.SourceRun{}, ""); n != 0 {
		t.Fatalf("source runs = %d, want 0", n)
	}
	if n := h.count(&model.Registration{}, ""); n != 0 {
		t.Fatalf("registrations = %d, want 0", n)
	}
}

func TestRunSourcePartialWhenParseFailuresExceedRatio(t *testing.T) {
	h := newHarness(t)

	body := `[{"registration_no":"GXZZ20240001","status":"在册","product_name":"血糖检测试剂盒"},{"registration_no":"GXZZ20240002","status":"somehow"},{"registration_no":"GXZZ20240003","status":"illegible"}]`
	result := h.run(source.KeyRegistry, body)

	if result.Counters.ParseFailed != 2 {
		t.Fatalf("parse failed = %d, want 2", result.Counters.ParseFailed)
	}
	if result.Status != ports.RunStatusPartial {
		t.Fatalf("status = %s, want partial", result.Status)
	}
	if n := h.count(&model.RawRecord{}, "parse_status = ?", ports.ParseStatusFailed); n != 2 {
		t.Fatalf("failed raws = %d, want 2", n)
	}
}

func TestCrossSourceConflictAutoResolvesByGrade(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.run(source.KeyRegistry, registryBody)
	h.now = h.now.Add(24 * time.Hour)

	csv := "registration_no,product_name,company_name,category\nGXZZ20240001,血糖检测试剂盒,瑞华诊断,6840\n"
	result := h.run(source.KeyNHSACodes, csv)

	if result.Counters.Conflicts != 1 {
		t.Fatalf("conflicts = %d, want 1", result.Counters.Conflicts)
	}

	// the A-grade incumbent dominates the C-grade challenger outright
	reg, err := h.svc.deps.Registrations.GetByRegNo(ctx, "GXZZ20240001")
	if err != nil {
		t.Fatalf("get registration: %v", err)
	}
	if reg.CompanyName != "华瑞诊断" {
		t.Fatalf("company = %s, canonical value must hold", reg.CompanyName)
	}

	var cases []model.ConflictCase
	if err := h.db.Find(&cases).Error; err != nil {
		t.Fatalf("load cases: %v", err)
	}
	if len(cases) != 1 {
		t.Fatalf("cases = %d, want 1", len(cases))
	}
	c := cases[0]
	if c.Status != ports.QueueStatusResolved || c.ResolvedBy != "system" {
		t.Fatalf("case = %+v", c)
	}
	if c.WinningValue != "华瑞诊断" {
		t.Fatalf("winning value = %s", c.WinningValue)
	}

	candidates, err := h.svc.deps.Queue.ListCandidates(ctx, c.ConflictCaseID)
	if err != nil {
		t.Fatalf("list candidates: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("candidates = %d, want 2", len(candidates))
	}
	// both sides of the case trace back to the run that asserted them
	for _, cand := range candidates {
		if cand.SourceRunID == "" {
			t.Fatalf("candidate %s/%s has no source run", cand.SourceKey, cand.Value)
		}
	}
}

func TestSameSourceRevisionAppliesWithoutConflict(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// the registry never asserted a company for this registration
	h.run(source.KeyRegistry, `[{"registration_no":"GXZZ20240005","status":"在册","product_name":"凝血试剂"}]`)

	h.now = h.now.Add(24 * time.Hour)
	h.run(source.KeyNHSACodes, "registration_no,product_name,company_name,category\nGXZZ20240005,凝血试剂,初始公司,6840\n")

	// the supplier revising its own value is an update, not a dispute
	h.now = h.now.Add(24 * time.Hour)
	result := h.run(source.KeyNHSACodes, "registration_no,product_name,company_name,category\nGXZZ20240005,凝血试剂,修订公司,6840\n")

	if result.Counters.Conflicts != 0 || result.Counters.Changes != 1 {
		t.Fatalf("counters = %+v, want the revision applied cleanly", result.Counters)
	}
	reg, err := h.svc.deps.Registrations.GetByRegNo(ctx, "GXZZ20240005")
	if err != nil {
		t.Fatalf("get registration: %v", err)
	}
	if reg.CompanyName != "修订公司" {
		t.Fatalf("company = %s, want 修订公司", reg.CompanyName)
	}
	if n := h.count(&model.ConflictCase{}, ""); n != 0 {
		t.Fatalf("conflict cases = %d, want 0", n)
	}

	// a different source disputing the field answers to the last supplier,
	// not to the registry
	h.now = h.now.Add(24 * time.Hour)
	listing := `<table><tr><td>GXZZ20240005</td><td>凝血试剂</td><td>别家公司</td><td>江苏</td><td>88.00</td></tr></table>`
	disputed := h.run(source.KeyProcurement, listing)

	if disputed.Counters.Conflicts != 1 {
		t.Fatalf("conflicts = %d, want 1", disputed.Counters.Conflicts)
	}
	var c model.ConflictCase
	if err := h.db.Where("field = ?", domain.FieldCompanyName).Take(&c).Error; err != nil {
		t.Fatalf("load case: %v", err)
	}
	if c.Status != ports.QueueStatusResolved || c.WinningSource != source.KeyNHSACodes {
		t.Fatalf("case = %+v, want the C-grade incumbent to hold", c)
	}
	if c.WinningValue != "修订公司" {
		t.Fatalf("winning value = %s", c.WinningValue)
	}
}

func TestManualConflictResolution(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.run(source.KeyRegistry, registryBody)
	reg, err := h.svc.deps.Registrations.GetByRegNo(ctx, "GXZZ20240001")
	if err != nil {
		t.Fatalf("get registration: %v", err)
	}

	// two D-grade observations tie, so the case stays open for an operator
	c, err := h.svc.deps.Queue.CreateConflict(ctx, ports.ConflictCase{
		RegistrationID: reg.RegistrationID,
		Field:          domain.FieldStatus,
		CreatedAt:      h.now,
	})
	if err != nil {
		t.Fatalf("create conflict: %v", err)
	}
	for _, value := range []string{domain.StatusActive, domain.StatusCancelled} {
		if _, err := h.svc.deps.Queue.AppendCandidate(ctx, ports.ConflictCandidate{
			ConflictCaseID: c.ConflictCaseID,
			Value:          value,
			SourceKey:      source.KeyProcurement,
			EvidenceGrade:  "D",
			Confidence:     1,
			ObservedAt:     h.now,
		}); err != nil {
			t.Fatalf("append candidate: %v", err)
		}
	}

	err = h.svc.ResolveConflict(ctx, ResolveConflictInput{CaseID: c.ConflictCaseID, Value: domain.StatusCancelled})
	if !errors.Is(err, domain.ErrResolutionReasonRequired) {
		t.Fatalf("err = %v, want reason required", err)
	}

	err = h.svc.ResolveConflict(ctx, ResolveConflictInput{
		CaseID: c.ConflictCaseID, Value: "EXPIRED", Reason: "guess",
	})
	if err == nil {
		t.Fatal("resolving with a non-candidate value must fail")
	}

	if err := h.svc.ResolveConflict(ctx, ResolveConflictInput{
		CaseID:     c.ConflictCaseID,
		Value:      domain.StatusCancelled,
		ResolvedBy: "alice",
		Reason:     "vendor cancellation letter",
	}); err != nil {
		t.Fatalf("resolve conflict: %v", err)
	}

	reg, err = h.svc.deps.Registrations.GetByRegNo(ctx, "GXZZ20240001")
	if err != nil {
		t.Fatalf("get registration: %v", err)
	}
	if reg.Status != domain.StatusCancelled {
		t.Fatalf("status = %s, want %s", reg.Status, domain.StatusCancelled)
	}

	err = h.svc.ResolveConflict(ctx, ResolveConflictInput{
		CaseID: c.ConflictCaseID, Value: domain.StatusCancelled, Reason: "again",
	})
	if !errors.Is(err, domain.ErrConflictAlreadyResolved) {
		t.Fatalf("err = %v, want already resolved", err)
	}

	views, err := h.svc.ListOpenConflicts(ctx, 10)
	if err != nil {
		t.Fatalf("list open conflicts: %v", err)
	}
	if len(views) != 0 {
		t.Fatalf("open conflicts = %d, want 0", len(views))
	}
}
