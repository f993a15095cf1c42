// Package api exposes turn initiation over HTTP. POST /v1/turns opens the
// per-turn push channel: the request body names the user text and context,
// the response is a text/event-stream carrying the turn's typed events.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/inquest-app/inquest/pkg/demux"
	"github.com/inquest-app/inquest/pkg/sse"
	"github.com/inquest-app/inquest/pkg/turn"
)

// TurnContext scopes a turn to a workspace location.
type TurnContext struct {
	Mode      string `json:"mode"`
	CaseID    string `json:"case_id,omitempty"`
	InquiryID string `json:"inquiry_id,omitempty"`
}

// TurnPayload is the turn initiation request body.
type TurnPayload struct {
	Text    string      `json:"text"`
	Context TurnContext `json:"context"`
}

// Handler serves the streaming turn endpoint.
type Handler struct {
	Engine *turn.Engine
	Log    *slog.Logger
}

// NewHandler wires the engine into an http.Handler.
func NewHandler(e *turn.Engine, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{Engine: e, Log: log}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var payload TurnPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	text := strings.TrimSpace(payload.Text)
	if text == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}

	req := turn.Request{
		ConvID:    convID(payload.Context),
		Text:      text,
		Mode:      payload.Context.Mode,
		CaseID:    payload.Context.CaseID,
		InquiryID: payload.Context.InquiryID,
	}

	sw, err := sse.NewWriter(w)
	if err != nil {
		h.Log.Error("streaming unsupported", "error", err)
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	// The handler goroutine is the turn's execution context; emission
	// order is preserved because it is the only writer.
	h.Engine.Run(r.Context(), req, func(ev demux.Event) error {
		return sse.EncodeEvent(sw, ev)
	})
}

// convID derives the conversation identity from the turn context. An
// inquiry is the narrowest scope, then a case; bare turns share the
// mode-wide conversation.
func convID(tc TurnContext) string {
	switch {
	case tc.InquiryID != "":
		return "inquiry:" + tc.InquiryID
	case tc.CaseID != "":
		return "case:" + tc.CaseID
	case tc.Mode != "":
		return "mode:" + tc.Mode
	default:
		return "general"
	}
}
