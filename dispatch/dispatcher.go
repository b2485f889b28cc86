package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/flowkit/flowkit/logger"
	"github.com/flowkit/flowkit/model"
	"go.uber.org/zap"
)

// Dispatcher performs one action on the messaging channel. Delivery is
// at-least-once and best effort: a failure is reported per action and never
// rolls back prior actions in the same batch.
type Dispatcher interface {
	Dispatch(ctx context.Context, action model.Action) error
}

// HttpDispatcher posts actions to a provider-agnostic channel endpoint.
type HttpDispatcher struct {
	endpoint string
	client   *http.Client
}

func NewHttpDispatcher(endpoint string) *HttpDispatcher {
	return &HttpDispatcher{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (d *HttpDispatcher) Dispatch(ctx context.Context, action model.Action) error {
	body, err := json.Marshal(action)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("channel endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// LogDispatcher logs actions instead of sending them, for development
// setups without a channel endpoint.
type LogDispatcher struct{}

func NewLogDispatcher() *LogDispatcher {
	return &LogDispatcher{}
}

func (d *LogDispatcher) Dispatch(ctx context.Context, action model.Action) error {
	logger.Info("dispatching action", zap.String("type", string(action.Type)), zap.String("address", action.Address), zap.String("text", action.Text))
	return nil
}
