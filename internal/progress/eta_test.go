package progress_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/restorewatch/internal/progress"
)

func TestRemaining(t *testing.T) {
	tests := map[string]struct {
		progress     int
		elapsed      time.Duration
		expRemaining *time.Duration
	}{
		"Half way after 10s should have 10s remaining.": {
			progress:     50,
			elapsed:      10 * time.Second,
			expRemaining: durationPtr(10 * time.Second),
		},
		"A quarter after 30s should have 90s remaining.": {
			progress:     25,
			elapsed:      30 * time.Second,
			expRemaining: durationPtr(90 * time.Second),
		},
		"Zero progress should not have remaining.": {
			progress: 0,
			elapsed:  10 * time.Second,
		},
		"Completed progress should not have remaining.": {
			progress: 100,
			elapsed:  10 * time.Second,
		},
		"Progress over 100 should not have remaining.": {
			progress: 120,
			elapsed:  10 * time.Second,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			got := progress.Remaining(test.progress, test.elapsed)
			if test.expRemaining == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *test.expRemaining, *got)
		})
	}
}

func TestEstimator(t *testing.T) {
	start := time.Date(2024, 9, 1, 8, 0, 0, 0, time.UTC)

	e := progress.Estimator{}
	elapsed, remaining := e.Estimate(50, start)
	assert.Zero(t, elapsed)
	assert.Nil(t, remaining)

	e.Observe(start)
	e.Observe(start.Add(5 * time.Second)) // Ignored, start is fixed.

	elapsed, remaining = e.Estimate(50, start.Add(10*time.Second))
	assert.Equal(t, 10*time.Second, elapsed)
	require.NotNil(t, remaining)
	assert.Equal(t, 10*time.Second, *remaining)

	elapsed, remaining = e.Estimate(100, start.Add(20*time.Second))
	assert.Equal(t, 20*time.Second, elapsed)
	assert.Nil(t, remaining)
}

func TestFormatDuration(t *testing.T) {
	tests := map[string]struct {
		d   time.Duration
		exp string
	}{
		"Seconds only.":                  {d: 42 * time.Second, exp: "42s"},
		"Minutes and seconds.":           {d: 125 * time.Second, exp: "2m05s"},
		"Sub second values are rounded.": {d: 59*time.Second + 600*time.Millisecond, exp: "1m00s"},
		"Negative values are clamped.":   {d: -3 * time.Second, exp: "0s"},
		"Zero.":                          {d: 0, exp: "0s"},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.exp, progress.FormatDuration(test.d))
		})
	}
}

func durationPtr(d time.Duration) *time.Duration { return &d }
