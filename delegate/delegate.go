package delegate

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/flowkit/flowkit/logger"
	"github.com/flowkit/flowkit/model"
	"go.uber.org/zap"
)

// HandoffMarker separates the user-visible part of an agent reply from the
// structured hand-off payload. Everything after the marker is parsed as
// JSON; end users never see the marker or anything behind it.
const HandoffMarker string = "---HANDOFF---"

const closingDirective string = "System: you have reached the maximum number of turns for this conversation. Produce a single short closing message and do not ask further questions."

const DefaultFallbackMessage string = "Sorry, I could not process your message right now. Please try again in a moment."

const DefaultMaxTurns int = 10
const DefaultHistoryWindow int = 20

type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type CompletionRequest struct {
	AgentId      string
	SessionId    string
	SystemPrompt string
	History      []Turn
	Message      string
}

type CompletionResponse struct {
	Reply     string
	AgentName string
}

// CompletionService is the external collaborator producing agent replies.
type CompletionService interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// Notifier receives hand-off payloads for human follow-up. A malformed
// payload is still delivered as raw text, never dropped.
type Notifier interface {
	NotifyHandoff(ctx context.Context, address string, payload map[string]any, raw string) error
}

type Delegate struct {
	completions CompletionService
	notifier    Notifier
	window      int
	fallback    string
}

func New(completions CompletionService, notifier Notifier) *Delegate {
	return &Delegate{
		completions: completions,
		notifier:    notifier,
		window:      DefaultHistoryWindow,
		fallback:    DefaultFallbackMessage,
	}
}

// Handle forwards one inbound message of an AI-assigned session to the
// completion service and turns the reply into actions. The second return
// reports whether AI assignment ended (hand-off payload or turn cap); the
// caller clears the assignee and resumes normal flow execution.
//
// On completion failure the fallback message is emitted and the session is
// left untouched so the next message retries cleanly.
func (d *Delegate) Handle(ctx context.Context, session *model.Session, agent *model.AgentDef, text string) ([]model.Action, bool, error) {
	maxTurns := agent.MaxTurns
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	closing := session.AiTurns+1 >= maxTurns
	systemPrompt := agent.SystemPrompt
	if closing {
		systemPrompt = systemPrompt + "\n\n" + closingDirective
	}
	resp, err := d.completions.Complete(ctx, CompletionRequest{
		AgentId:      agent.Id,
		SessionId:    session.Id,
		SystemPrompt: systemPrompt,
		History:      historyWindow(session, d.window),
		Message:      text,
	})
	if err != nil {
		logger.Error("completion service failed, sending fallback", zap.String("agent", agent.Id), zap.String("session", session.Id), zap.Error(err))
		return []model.Action{{
			Type:    model.ACTION_SEND_MESSAGE,
			Address: session.Address,
			Text:    d.fallback,
		}}, false, nil
	}
	visible, payload, rawPayload, handedOff := splitHandoff(resp.Reply)
	appendHistory(session, Turn{Role: "user", Content: text})
	appendHistory(session, Turn{Role: "assistant", Content: visible})
	session.AiTurns++
	session.LastReply = text
	released := closing
	if handedOff {
		released = true
		if err := d.notifier.NotifyHandoff(ctx, session.Address, payload, rawPayload); err != nil {
			logger.Error("handoff notification failed", zap.String("session", session.Id), zap.Error(err))
		}
	}
	var actions []model.Action
	if len(visible) > 0 {
		actions = append(actions, model.Action{
			Type:    model.ACTION_SEND_MESSAGE,
			Address: session.Address,
			Text:    visible,
		})
	}
	return actions, released, nil
}

// splitHandoff splits an agent reply at the hand-off marker. payload is nil
// when the trailing JSON is malformed; rawPayload carries the trailing text
// either way so the notification can fall back to it.
func splitHandoff(reply string) (visible string, payload map[string]any, rawPayload string, handedOff bool) {
	idx := strings.Index(reply, HandoffMarker)
	if idx < 0 {
		return strings.TrimSpace(reply), nil, "", false
	}
	visible = strings.TrimSpace(reply[:idx])
	rawPayload = strings.TrimSpace(reply[idx+len(HandoffMarker):])
	if len(rawPayload) > 0 {
		var parsed map[string]any
		if err := json.Unmarshal([]byte(rawPayload), &parsed); err == nil {
			payload = parsed
		} else {
			logger.Warn("malformed handoff payload, notifying raw text", zap.Error(err))
		}
	}
	return visible, payload, rawPayload, true
}
