package generate

import (
	"context"
	"fmt"
	"io"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/packages/ssestream"
)

// OpenAI implements Generator using the OpenAI chat completions API, or
// any OpenAI-compatible provider via WithBaseURL.
type OpenAI struct {
	client *openai.Client
	model  string
}

var _ Generator = (*OpenAI)(nil)

// NewOpenAI creates an OpenAI generator. baseURL may be empty for the
// default endpoint.
func NewOpenAI(apiKey, model, baseURL string) *OpenAI {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	return &OpenAI{client: &client, model: model}
}

func (g *OpenAI) GenerateStream(ctx context.Context, req Request) (Stream, error) {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.Instructions != "" {
		msgs = append(msgs, openai.SystemMessage(req.Instructions))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Text))
		default:
			msgs = append(msgs, openai.UserMessage(m.Text))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(g.model),
		Messages: msgs,
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}

	return &openaiStream{s: g.client.Chat.Completions.NewStreaming(ctx, params)}, nil
}

type openaiStream struct {
	s *ssestream.Stream[openai.ChatCompletionChunk]
}

func (s *openaiStream) Next() (string, error) {
	for s.s.Next() {
		chunk := s.s.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			return delta, nil
		}
	}
	if err := s.s.Err(); err != nil {
		return "", fmt.Errorf("generate: openai stream: %w", err)
	}
	return "", io.EOF
}

func (s *openaiStream) Close() error {
	return s.s.Close()
}
