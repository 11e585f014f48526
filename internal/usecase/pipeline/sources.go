package pipeline

import (
	"context"

	"ivdhub/internal/domain/source"
	"ivdhub/internal/errs"
	"ivdhub/internal/ports"
)

// SeedSources inserts a runtime row for every catalog source that lacks
// one, taking feed endpoints from config. Existing rows keep their runtime
// state.
func (s *Service) SeedSources(ctx context.Context) error {
	now := s.now()
	var configs []ports.SourceConfig
	for _, def := range source.Catalog() {
		cfg := ports.SourceConfig{
			SourceKey: def.Key,
			Enabled:   true,
			UpdatedAt: now,
		}
		if feedCfg, ok := s.cfg.Sources[def.Key]; ok {
			cfg.FeedURL = feedCfg.URL
			cfg.Schedule = feedCfg.Schedule
		}
		configs = append(configs, cfg)
	}

	if err := s.deps.Sources.Seed(ctx, configs); err != nil {
		return errs.Wrap(err, "seed source configs")
	}
	return nil
}

// SourceView joins the static catalog definition with the runtime row.
type SourceView struct {
	Definition source.Definition
	Config     ports.SourceConfig
}

func (s *Service) ListSources(ctx context.Context) ([]SourceView, error) {
	configs, err := s.deps.Sources.List(ctx)
	if err != nil {
		return nil, errs.Wrap(err, "list source configs")
	}

	byKey := make(map[string]ports.SourceConfig, len(configs))
	for _, cfg := range configs {
		byKey[cfg.SourceKey] = cfg
	}

	var views []SourceView
	for _, def := range source.Catalog() {
		views = append(views, SourceView{Definition: def, Config: byKey[def.Key]})
	}
	return views, nil
}

func (s *Service) SetSourceEnabled(ctx context.Context, key string, enabled bool) error {
	if _, err := source.ByKey(key); err != nil {
		return err
	}
	return s.deps.Sources.SetEnabled(ctx, key, enabled)
}
