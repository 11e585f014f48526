package pipeline

import "time"

// RetrySchedule is the backoff policy owned by pending items and pending
// links: attempt counter plus next-eligible timestamp, with a terminal
// attempt ceiling instead of infinite rescans.
type RetrySchedule struct {
	Base        time.Duration
	Factor      int
	MaxAttempts int
}

func DefaultRetrySchedule() RetrySchedule {
	return RetrySchedule{
		Base:        time.Hour,
		Factor:      2,
		MaxAttempts: 8,
	}
}

// Next returns when the attempt after `attempts` completed ones becomes
// eligible. terminal reports that the ceiling is reached and the item
// should stop being rescheduled.
func (s RetrySchedule) Next(attempts int, now time.Time) (next time.Time, terminal bool) {
	if s.MaxAttempts > 0 && attempts >= s.MaxAttempts {
		return time.Time{}, true
	}

	delay := s.Base
	if delay <= 0 {
		delay = time.Hour
	}
	factor := s.Factor
	if factor < 2 {
		factor = 2
	}
	for i := 0; i < attempts; i++ {
		delay *= time.Duration(factor)
	}
	return now.Add(delay), false
}
