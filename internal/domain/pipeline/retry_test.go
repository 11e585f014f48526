package pipeline

import (
	"testing"
	"time"
)

func TestRetryScheduleDoublesDelay(t *testing.T) {
	schedule := RetrySchedule{Base: time.Hour, Factor: 2, MaxAttempts: 8}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	next, terminal := schedule.Next(0, now)
	if terminal {
		t.Fatalf("first attempt must not be terminal")
	}
	if want := now.Add(time.Hour); !next.Equal(want) {
		t.Fatalf("attempt 0 next = %v, want %v", next, want)
	}

	next, _ = schedule.Next(3, now)
	if want := now.Add(8 * time.Hour); !next.Equal(want) {
		t.Fatalf("attempt 3 next = %v, want %v", next, want)
	}
}

func TestRetryScheduleTerminalAtCeiling(t *testing.T) {
	schedule := RetrySchedule{Base: time.Hour, Factor: 2, MaxAttempts: 3}
	now := time.Now()

	if _, terminal := schedule.Next(2, now); terminal {
		t.Fatalf("attempt below ceiling must not be terminal")
	}
	if _, terminal := schedule.Next(3, now); !terminal {
		t.Fatalf("attempt at ceiling must be terminal")
	}
}

func TestRetryScheduleZeroValuesFallBack(t *testing.T) {
	var schedule RetrySchedule
	now := time.Now()

	next, terminal := schedule.Next(1, now)
	if terminal {
		t.Fatalf("no ceiling configured, must not be terminal")
	}
	if want := now.Add(2 * time.Hour); !next.Equal(want) {
		t.Fatalf("fallback next = %v, want %v", next, want)
	}
}
