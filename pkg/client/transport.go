package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// HTTPTransport opens the push channel by POSTing the turn request to
// the server's turn endpoint and returning the response body as the
// event stream.
type HTTPTransport struct {
	// URL of the turn endpoint, e.g. "http://127.0.0.1:8600/v1/turn".
	URL string

	// Client to use; defaults to one with no overall timeout, since the
	// body outlives the request for the length of the turn.
	Client *http.Client
}

type wireContext struct {
	Mode      string `json:"mode,omitempty"`
	CaseID    string `json:"case_id,omitempty"`
	InquiryID string `json:"inquiry_id,omitempty"`
}

type wirePayload struct {
	Text    string      `json:"text"`
	Context wireContext `json:"context"`
}

func (h *HTTPTransport) Open(ctx context.Context, req TurnRequest) (io.ReadCloser, error) {
	body, err := json.Marshal(wirePayload{
		Text: req.Text,
		Context: wireContext{
			Mode:      req.Mode,
			CaseID:    req.CaseID,
			InquiryID: req.InquiryID,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encode turn request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build turn request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	client := h.Client
	if client == nil {
		client = &http.Client{Timeout: 0}
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("open turn channel: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		resp.Body.Close()
		return nil, fmt.Errorf("turn endpoint returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return resp.Body, nil
}

var _ Transport = (*HTTPTransport)(nil)
