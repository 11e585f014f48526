package evidence

import (
	"errors"
	"testing"
)

func TestParseGrade(t *testing.T) {
	for raw, want := range map[string]Grade{
		"A": GradeA, "b": GradeB, " c ": GradeC, "D": GradeD,
	} {
		got, err := ParseGrade(raw)
		if err != nil {
			t.Fatalf("ParseGrade(%q): %v", raw, err)
		}
		if got != want {
			t.Fatalf("ParseGrade(%q) = %q, want %q", raw, got, want)
		}
	}

	if _, err := ParseGrade("E"); !errors.Is(err, ErrInvalidGrade) {
		t.Fatalf("ParseGrade(E) err = %v, want ErrInvalidGrade", err)
	}
}

func TestNewDominancePolicyRejectsBadOrder(t *testing.T) {
	if _, err := NewDominancePolicy(nil); err == nil {
		t.Fatalf("empty order should fail")
	}
	if _, err := NewDominancePolicy([]string{"A", "A"}); err == nil {
		t.Fatalf("duplicate grade should fail")
	}
	if _, err := NewDominancePolicy([]string{"A", "X"}); err == nil {
		t.Fatalf("unknown grade should fail")
	}
}

func TestStrictWinner(t *testing.T) {
	policy := DefaultDominancePolicy()

	if got := policy.StrictWinner([]Grade{GradeB, GradeA, GradeC}); got != 1 {
		t.Fatalf("StrictWinner = %d, want 1", got)
	}
	// a tie at the top keeps the case open
	if got := policy.StrictWinner([]Grade{GradeA, GradeA, GradeC}); got != -1 {
		t.Fatalf("tied grades: StrictWinner = %d, want -1", got)
	}
	if got := policy.StrictWinner([]Grade{GradeD}); got != 0 {
		t.Fatalf("single candidate: StrictWinner = %d, want 0", got)
	}
	// unknown grades never dominate
	if got := policy.StrictWinner([]Grade{GradeA, Grade("X")}); got != -1 {
		t.Fatalf("unknown grade: StrictWinner = %d, want -1", got)
	}
}

func TestCustomOrderInvertsDominance(t *testing.T) {
	policy, err := NewDominancePolicy([]string{"D", "C", "B", "A"})
	if err != nil {
		t.Fatalf("NewDominancePolicy: %v", err)
	}
	if !policy.Dominates(GradeD, GradeA) {
		t.Fatalf("inverted order: D should dominate A")
	}
}
