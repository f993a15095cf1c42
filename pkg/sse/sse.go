// Package sse implements the push channel between the turn engine and the
// client: a long-lived text/event-stream response carrying discrete named
// frames. Writer is the server half, Scanner the client half. One channel
// serves exactly one turn; no framing state is reused across turns.
package sse

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrStreamingUnsupported is returned when the ResponseWriter cannot flush.
var ErrStreamingUnsupported = errors.New("sse: response writer does not support flushing")

// Frame is one named event on the channel.
type Frame struct {
	Name string
	Data []byte
}

// Writer encodes frames onto an HTTP response. Each frame is flushed
// immediately; intermediary buffering is disabled via headers so deltas
// reach the client with no added latency.
type Writer struct {
	w io.Writer
	f http.Flusher
}

// NewWriter prepares w for event streaming and writes the stream headers.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	// Tells nginx-style proxies not to buffer this response.
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	f.Flush()
	return &Writer{w: w, f: f}, nil
}

// WriteFrame writes one named frame with a JSON payload and flushes it.
func (w *Writer) WriteFrame(name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("sse: marshal %s payload: %w", name, err)
	}
	if _, err := fmt.Fprintf(w.w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return fmt.Errorf("sse: write %s frame: %w", name, err)
	}
	w.f.Flush()
	return nil
}

// Scanner parses frames from an event-stream body. It tolerates CRLF line
// endings, comment lines, and multi-line data fields.
type Scanner struct {
	r *bufio.Reader
}

// NewScanner wraps an event-stream reader.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{r: bufio.NewReader(r)}
}

// Next returns the next complete frame. io.EOF signals a cleanly drained
// stream; any other error means the stream broke mid-frame.
func (s *Scanner) Next() (Frame, error) {
	var (
		name     string
		data     [][]byte
		sawField bool
	)
	for {
		line, err := s.r.ReadString('\n')
		if err != nil {
			// A partial frame at EOF is a broken stream, not a frame.
			if err == io.EOF && !sawField && strings.TrimSpace(line) == "" {
				return Frame{}, io.EOF
			}
			if err == io.EOF {
				return Frame{}, io.ErrUnexpectedEOF
			}
			return Frame{}, err
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if !sawField {
				continue // stray blank line between frames
			}
			return Frame{Name: name, Data: bytes.Join(data, []byte("\n"))}, nil
		}
		if strings.HasPrefix(line, ":") {
			continue // comment / keep-alive
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			name = value
			sawField = true
		case "data":
			data = append(data, []byte(value))
			sawField = true
		default:
			// id, retry and unknown fields are ignored.
		}
	}
}
