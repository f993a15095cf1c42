// Package generate abstracts the token-producing backend. The turn engine
// treats it as an opaque service: it opens a stream and reads raw text
// chunks with no semantic boundary guarantees.
//
// Two remote implementations are provided ([OpenAI], [Gemini]) plus a
// scripted in-process one ([Script]) for tests.
package generate

import "context"

// Message roles in conversation context.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one prior conversation entry included in the request context.
type Message struct {
	Role string
	Text string
}

// Request describes one generation call.
type Request struct {
	// Instructions is the system preamble, including the section-marker
	// format the model must follow.
	Instructions string

	// Messages is the bounded window of prior conversation, oldest first,
	// ending with the current user message.
	Messages []Message

	// MaxTokens bounds the output size. Zero means provider default.
	MaxTokens int
}

// Stream yields raw text chunks in order. Next returns io.EOF after the
// last chunk; any other error means generation failed mid-stream.
type Stream interface {
	Next() (string, error)
	Close() error
}

// Generator opens a token stream for a request.
type Generator interface {
	GenerateStream(ctx context.Context, req Request) (Stream, error)
}
