package api_test

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/restorewatch/internal/api"
)

func TestSSEScanner(t *testing.T) {
	tests := map[string]struct {
		stream    string
		expEvents []api.SSEEvent
	}{
		"A single event should be parsed.": {
			stream:    "event: progress\ndata: {\"a\":1}\n\n",
			expEvents: []api.SSEEvent{{Type: "progress", Data: `{"a":1}`}},
		},
		"Multiple data lines should be joined.": {
			stream:    "data: a\ndata: b\n\n",
			expEvents: []api.SSEEvent{{Data: "a\nb"}},
		},
		"Comments and unknown fields should be ignored.": {
			stream:    ": ping\n\nretry: 10\nid: 7\ndata:x\n\n",
			expEvents: []api.SSEEvent{{ID: "7", Data: "x"}},
		},
		"A last event without blank line should be emitted.": {
			stream:    "data: 1\n\ndata: 2",
			expEvents: []api.SSEEvent{{Data: "1"}, {Data: "2"}},
		},
		"CRLF line endings should be supported.": {
			stream:    "event: error\r\ndata: x\r\n\r\n",
			expEvents: []api.SSEEvent{{Type: "error", Data: "x"}},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			s := api.NewSSEScanner(strings.NewReader(test.stream))
			var got []api.SSEEvent
			for s.Next() {
				got = append(got, s.Event())
			}
			require.NoError(t, s.Err())
			assert.Equal(t, test.expEvents, got)
		})
	}
}

func TestSSEWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := api.NewSSEWriter(rec)
	require.NoError(t, err)

	require.NoError(t, w.Write(api.SSEEventProgress, "3", map[string]string{"stage": "uploaded"}))
	require.NoError(t, w.Ping())

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "id: 3\nevent: progress\ndata: {\"stage\":\"uploaded\"}\n\n: ping\n\n", rec.Body.String())

	s := api.NewSSEScanner(strings.NewReader(rec.Body.String()))
	require.True(t, s.Next())
	assert.Equal(t, api.SSEEvent{Type: "progress", ID: "3", Data: `{"stage":"uploaded"}`}, s.Event())
	assert.False(t, s.Next())
}
