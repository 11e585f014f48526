package pipeline

import (
	"time"

	"ivdhub/internal/bootstrap/config"
	"ivdhub/internal/domain/evidence"
	domain "ivdhub/internal/domain/pipeline"
	"ivdhub/internal/errs"
	"ivdhub/internal/infrastructure/feed"
	"ivdhub/internal/ports"
)

// Deps groups the service's collaborators; everything is an interface so
// usecase tests run against the real sqlite repositories or fakes alike.
type Deps struct {
	UoW           ports.UnitOfWork
	Raws          ports.RawRepository
	Runs          ports.RunRepository
	Sources       ports.SourceConfigRepository
	Registrations ports.RegistrationRepository
	Products      ports.ProductRepository
	Devices       ports.DeviceRepository
	History       ports.HistoryRepository
	Queue         ports.QueueRepository
	Archive       ports.ArchiveRepository
	Metrics       ports.MetricsRepository
	Checkpoints   ports.CheckpointStore
	Fetcher       feed.Fetcher
	Parsers       *feed.Registry
}

// Service runs the aggregation pipeline: sync runs, conflict and pending
// triage, DI linking, archival and metrics. All canonical mutations go
// through the unit of work.
type Service struct {
	cfg    config.Config
	deps   Deps
	policy evidence.DominancePolicy
	retry  domain.RetrySchedule
	now    func() time.Time
}

func NewService(cfg config.Config, deps Deps) (*Service, error) {
	policy, err := evidence.NewDominancePolicy(cfg.Conflict.GradeOrder)
	if err != nil {
		return nil, errs.Wrap(err, "build dominance policy")
	}

	retry := domain.DefaultRetrySchedule()
	if cfg.Retry.Base > 0 {
		retry.Base = cfg.Retry.Base
	}
	if cfg.Retry.Factor >= 2 {
		retry.Factor = int(cfg.Retry.Factor)
	}
	if cfg.Retry.MaxAttempts > 0 {
		retry.MaxAttempts = cfg.Retry.MaxAttempts
	}

	return &Service{
		cfg:    cfg,
		deps:   deps,
		policy: policy,
		retry:  retry,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithClock fixes the service clock; tests use it to make retry windows and
// day bucketing deterministic.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) retentionWindow() time.Duration {
	days := s.cfg.Conflict.RetentionDays
	if days <= 0 {
		days = 30
	}
	return time.Duration(days) * 24 * time.Hour
}

// registrationField reads one canonical-vocabulary field off the anchor.
func registrationField(reg ports.Registration, field string) string {
	switch field {
	case domain.FieldStatus:
		return reg.Status
	case domain.FieldApprovedAt:
		return reg.ApprovedAt
	case domain.FieldExpiresAt:
		return reg.ExpiresAt
	case domain.FieldProductName:
		return reg.ProductName
	case domain.FieldCompanyName:
		return reg.CompanyName
	case domain.FieldCategory:
		return reg.Category
	case domain.FieldModel:
		return reg.Model
	case domain.FieldDescription:
		return reg.Description
	}
	return ""
}

func registrationFields(reg ports.Registration) map[string]string {
	fields := make(map[string]string, len(domain.StructuredFields))
	for _, f := range domain.StructuredFields {
		if v := registrationField(reg, f); v != "" {
			fields[f] = v
		}
	}
	return fields
}
