package printer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimeAgo(t *testing.T) {
	now := time.Date(2026, 1, 30, 10, 0, 0, 0, time.UTC)

	tests := map[string]struct {
		time     time.Time
		expected string
	}{
		"just now":       {time: now, expected: "0 seconds ago (UTC)"},
		"1 second ago":   {time: now.Add(-1 * time.Second), expected: "1 second ago (UTC)"},
		"30 seconds ago": {time: now.Add(-30 * time.Second), expected: "30 seconds ago (UTC)"},
		"1 minute ago":   {time: now.Add(-1 * time.Minute), expected: "1 minute ago (UTC)"},
		"45 minutes ago": {time: now.Add(-45 * time.Minute), expected: "45 minutes ago (UTC)"},
		"2 hours ago":    {time: now.Add(-2 * time.Hour), expected: "2 hours ago (UTC)"},
		"1 day ago":      {time: now.Add(-25 * time.Hour), expected: "1 day ago (UTC)"},
		"3 days ago":     {time: now.Add(-72 * time.Hour), expected: "3 days ago (UTC)"},
		"future":         {time: now.Add(time.Hour), expected: "in the future (UTC)"},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.expected, timeAgo(now, test.time))
		})
	}
}

func TestFormatBytes(t *testing.T) {
	tests := map[string]struct {
		bytes    int64
		expected string
	}{
		"negative":  {bytes: -1, expected: "0 B"},
		"zero":      {bytes: 0, expected: "0 B"},
		"bytes":     {bytes: 512, expected: "512 B"},
		"kilobytes": {bytes: 1536, expected: "1.5 KB"},
		"megabytes": {bytes: 700 * 1024 * 1024, expected: "700.0 MB"},
		"gigabytes": {bytes: 10 * 1024 * 1024 * 1024, expected: "10.0 GB"},
		"terabytes": {bytes: 2 * 1024 * 1024 * 1024 * 1024, expected: "2.0 TB"},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.expected, FormatBytes(test.bytes))
		})
	}
}

func TestFormatETA(t *testing.T) {
	d := 125 * time.Second
	assert.Equal(t, "2m05s", FormatETA(&d))
	assert.Equal(t, "-", FormatETA(nil))
}

func TestFormatDetails(t *testing.T) {
	assert.Equal(t, "a=1 b=2", FormatDetails(map[string]string{"b": "2", "a": "1"}))
	assert.Equal(t, "", FormatDetails(nil))
}
