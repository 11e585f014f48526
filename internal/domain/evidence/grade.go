package evidence

import (
	"errors"
	"fmt"
	"strings"
)

// Grade ranks how authoritative a source is for a given fact, A strongest.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
)

var ErrInvalidGrade = errors.New("invalid evidence grade")

func ParseGrade(raw string) (Grade, error) {
	switch Grade(strings.ToUpper(strings.TrimSpace(raw))) {
	case GradeA:
		return GradeA, nil
	case GradeB:
		return GradeB, nil
	case GradeC:
		return GradeC, nil
	case GradeD:
		return GradeD, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidGrade, raw)
}

// DominancePolicy decides conflict auto-resolution. The ordering is
// configuration-driven rather than hard-coded; the default is A>B>C>D.
type DominancePolicy struct {
	rank map[Grade]int
}

func DefaultDominancePolicy() DominancePolicy {
	policy, _ := NewDominancePolicy([]string{"A", "B", "C", "D"})
	return policy
}

// NewDominancePolicy builds a policy from a strongest-first grade order.
func NewDominancePolicy(order []string) (DominancePolicy, error) {
	if len(order) == 0 {
		return DominancePolicy{}, errors.New("grade order is empty")
	}

	rank := make(map[Grade]int, len(order))
	for i, raw := range order {
		grade, err := ParseGrade(raw)
		if err != nil {
			return DominancePolicy{}, err
		}
		if _, dup := rank[grade]; dup {
			return DominancePolicy{}, fmt.Errorf("duplicate grade %q in order", grade)
		}
		rank[grade] = i
	}
	return DominancePolicy{rank: rank}, nil
}

// Dominates reports whether a strictly outranks b. Unknown grades never
// dominate and are never dominated.
func (p DominancePolicy) Dominates(a, b Grade) bool {
	ra, okA := p.rank[a]
	rb, okB := p.rank[b]
	if !okA || !okB {
		return false
	}
	return ra < rb
}

// StrictWinner returns the index of the single candidate whose grade
// strictly dominates every other candidate, or -1 when no such candidate
// exists (tie or unknown grades), in which case the case stays open for a
// manual decision.
func (p DominancePolicy) StrictWinner(grades []Grade) int {
	winner := -1
	for i, g := range grades {
		dominatesAll := true
		for j, other := range grades {
			if i == j {
				continue
			}
			if !p.Dominates(g, other) {
				dominatesAll = false
				break
			}
		}
		if dominatesAll {
			winner = i
			break
		}
	}
	return winner
}
