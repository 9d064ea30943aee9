package api

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// SSE event types used on the progress channel.
const (
	SSEEventProgress  = "progress"
	SSEEventCompleted = "completed"
	SSEEventError     = "error"
)

// SSEEvent is a single Server-Sent Event.
type SSEEvent struct {
	Type string
	ID   string
	Data string
}

// SSEScanner reads Server-Sent Events from a reader. Comments and unknown fields are ignored,
// multiple data lines are joined with new lines.
type SSEScanner struct {
	reader  *bufio.Reader
	current SSEEvent
	err     error
}

func NewSSEScanner(r io.Reader) *SSEScanner {
	return &SSEScanner{reader: bufio.NewReaderSize(r, 64*1024)}
}

// Next advances to the next event, returns false on the end of the stream or error.
func (s *SSEScanner) Next() bool {
	if s.err != nil {
		return false
	}

	var (
		data    []string
		hasData bool
		ev      SSEEvent
	)
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil && line == "" {
			s.err = err
			if err == io.EOF && hasData {
				ev.Data = strings.Join(data, "\n")
				s.current = ev
				return true
			}
			return false
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if hasData {
				ev.Data = strings.Join(data, "\n")
				s.current = ev
				return true
			}
			ev = SSEEvent{}
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "data":
			data = append(data, value)
			hasData = true
		case "event":
			ev.Type = value
		case "id":
			ev.ID = value
		}
	}
}

func (s *SSEScanner) Event() SSEEvent { return s.current }

// Err returns the scanning error, nil on a clean end of stream.
func (s *SSEScanner) Err() error {
	if s.err == io.EOF {
		return nil
	}
	return s.err
}

// SSEWriter writes Server-Sent Events on an HTTP response, flushing every event.
type SSEWriter struct {
	w http.ResponseWriter
	f http.Flusher
}

// NewSSEWriter prepares the response for streaming and sends the headers.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	f.Flush()

	return &SSEWriter{w: w, f: f}, nil
}

// Write sends a JSON encoded event.
func (s *SSEWriter) Write(eventType, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("could not marshal event: %w", err)
	}

	var b strings.Builder
	if id != "" {
		fmt.Fprintf(&b, "id: %s\n", id)
	}
	if eventType != "" {
		fmt.Fprintf(&b, "event: %s\n", eventType)
	}
	fmt.Fprintf(&b, "data: %s\n\n", data)

	if _, err := io.WriteString(s.w, b.String()); err != nil {
		return err
	}
	s.f.Flush()

	return nil
}

// Ping sends a comment to keep the connection alive.
func (s *SSEWriter) Ping() error {
	if _, err := io.WriteString(s.w, ": ping\n\n"); err != nil {
		return err
	}
	s.f.Flush()
	return nil
}
