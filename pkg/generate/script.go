package generate

import (
	"context"
	"io"
	"sync"
)

// Script is a Generator that replays a fixed chunk sequence. It exists for
// tests and for the demo mode of the server: the chunk partitioning is
// preserved exactly, so marker-splitting behavior can be exercised
// deterministically.
type Script struct {
	// Chunks are yielded in order, one per Next call.
	Chunks []string

	// Err, if set, is returned after FailAfter chunks instead of the
	// remaining ones, simulating a mid-stream generation failure.
	Err       error
	FailAfter int

	// LastRequest records the most recent request, for assertions.
	mu          sync.Mutex
	lastRequest Request
}

var _ Generator = (*Script)(nil)

func (s *Script) GenerateStream(_ context.Context, req Request) (Stream, error) {
	s.mu.Lock()
	s.lastRequest = req
	s.mu.Unlock()
	return &scriptStream{script: s}, nil
}

// LastRequest returns the request passed to the most recent GenerateStream.
func (s *Script) LastRequest() Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRequest
}

type scriptStream struct {
	script *Script
	pos    int
}

func (s *scriptStream) Next() (string, error) {
	sc := s.script
	if sc.Err != nil && s.pos >= sc.FailAfter {
		return "", sc.Err
	}
	if s.pos >= len(sc.Chunks) {
		return "", io.EOF
	}
	chunk := sc.Chunks[s.pos]
	s.pos++
	return chunk, nil
}

func (s *scriptStream) Close() error {
	return nil
}
