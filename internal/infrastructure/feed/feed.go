package feed

import (
	"fmt"
	"time"

	"ivdhub/internal/domain/pipeline"
	"ivdhub/internal/ports"
)

// Record is one logical record carved out of a fetched document. The
// payload is hashed and persisted verbatim before any parser touches it.
type Record struct {
	Payload    string
	ObservedAt time.Time
}

// Strategy is one per-source feed implementation: it knows how to carve a
// document into records and how to translate a stored record into the
// canonical vocabulary.
type Strategy interface {
	ID() string
	Split(body []byte, fetchedAt time.Time) ([]Record, error)
	Parse(raw ports.RawRecord) (pipeline.NormalizedPayload, error)
}

// Registry maps parser ids from the source catalog to strategies.
type Registry struct {
	strategies map[string]Strategy
}

func NewRegistry(strategies ...Strategy) *Registry {
	r := &Registry{strategies: map[string]Strategy{}}
	for _, s := range strategies {
		r.Register(s)
	}
	return r
}

func (r *Registry) Register(s Strategy) {
	if r.strategies == nil {
		r.strategies = map[string]Strategy{}
	}
	r.strategies[s.ID()] = s
}

func (r *Registry) Resolve(id string) (Strategy, error) {
	if s, ok := r.strategies[id]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("parser %q is not registered", id)
}
