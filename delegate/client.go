package delegate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/flowkit/flowkit/logger"
	"go.uber.org/zap"
)

// HttpCompletionService asks an external completion endpoint for the agent
// reply. The endpoint owns the model call; this client only ships the prompt,
// the history window and the user message.
type HttpCompletionService struct {
	endpoint string
	client   *http.Client
}

func NewHttpCompletionService(endpoint string) *HttpCompletionService {
	return &HttpCompletionService{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

var _ CompletionService = new(HttpCompletionService)

type completionPayload struct {
	AgentId      string `json:"agentId"`
	SessionId    string `json:"sessionId"`
	SystemPrompt string `json:"systemPrompt"`
	History      []Turn `json:"history"`
	Message      string `json:"message"`
}

type completionReply struct {
	Reply     string `json:"reply"`
	AgentName string `json:"agentName"`
}

func (c *HttpCompletionService) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	body, err := json.Marshal(completionPayload{
		AgentId:      req.AgentId,
		SessionId:    req.SessionId,
		SystemPrompt: req.SystemPrompt,
		History:      req.History,
		Message:      req.Message,
	})
	if err != nil {
		return nil, fmt.Errorf("error encoding completion request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("error calling completion endpoint: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("completion endpoint returned status %d", resp.StatusCode)
	}
	var reply completionReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, fmt.Errorf("error decoding completion response: %w", err)
	}
	return &CompletionResponse{Reply: reply.Reply, AgentName: reply.AgentName}, nil
}

// HttpNotifier forwards hand-off summaries to an operator endpoint.
type HttpNotifier struct {
	endpoint string
	client   *http.Client
}

func NewHttpNotifier(endpoint string) *HttpNotifier {
	return &HttpNotifier{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

var _ Notifier = new(HttpNotifier)

func (n *HttpNotifier) NotifyHandoff(ctx context.Context, address string, payload map[string]any, raw string) error {
	body, err := json.Marshal(map[string]any{
		"address": address,
		"payload": payload,
		"raw":     raw,
	})
	if err != nil {
		return fmt.Errorf("error encoding handoff notification: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("error calling handoff endpoint: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("handoff endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// LogNotifier writes hand-off summaries to the log. Useful when no operator
// endpoint is configured.
type LogNotifier struct{}

var _ Notifier = new(LogNotifier)

func (n *LogNotifier) NotifyHandoff(ctx context.Context, address string, payload map[string]any, raw string) error {
	logger.Info("conversation handed off", zap.String("address", address), zap.Any("payload", payload), zap.String("raw", raw))
	return nil
}
