package progress

import (
	"fmt"
	"time"
)

// Estimator derives elapsed and remaining time from the progress percentage. The estimation is
// a linear extrapolation, it's only a hint.
type Estimator struct {
	start time.Time
}

// Observe fixes the start time with the first observed timestamp, later calls are ignored.
func (e *Estimator) Observe(t time.Time) {
	if e.start.IsZero() && !t.IsZero() {
		e.start = t
	}
}

// Start returns the fixed start time, zero if nothing was observed.
func (e *Estimator) Start() time.Time { return e.start }

// Estimate returns the elapsed time and the remaining time at now. Remaining is nil when it
// can't be estimated.
func (e *Estimator) Estimate(progress int, now time.Time) (elapsed time.Duration, remaining *time.Duration) {
	if e.start.IsZero() {
		return 0, nil
	}

	elapsed = now.Sub(e.start)
	if elapsed < 0 {
		elapsed = 0
	}

	return elapsed, Remaining(progress, elapsed)
}

// Remaining returns the estimated remaining time for a progress percentage after elapsed time.
func Remaining(progress int, elapsed time.Duration) *time.Duration {
	if progress <= 0 || progress >= 100 {
		return nil
	}

	total := time.Duration(float64(elapsed) * 100 / float64(progress))
	r := total - elapsed
	if r < 0 {
		r = 0
	}

	return &r
}

// FormatDuration formats a duration rounded to whole seconds as minutes and seconds.
func FormatDuration(d time.Duration) string {
	secs := int64(d.Round(time.Second) / time.Second)
	if secs < 0 {
		secs = 0
	}
	if secs < 60 {
		return fmt.Sprintf("%ds", secs)
	}
	return fmt.Sprintf("%dm%02ds", secs/60, secs%60)
}
