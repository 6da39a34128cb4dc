package natsbus

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Event is the JSON envelope of every pipeline event.
type Event struct {
	Type      string         `json:"type"`
	RunID     string         `json:"run_id"`
	Timestamp string         `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// Events publishes pipeline events on the bus. Publishing is best effort:
// a run never fails because the bus is unavailable.
type Events struct {
	client *Client
	now    func() time.Time
}

func NewEvents(client *Client) *Events {
	return &Events{client: client, now: time.Now}
}

func (e *Events) Emit(runID, eventType string, data map[string]any) {
	if e == nil || e.client == nil {
		return
	}
	event := Event{
		Type:      eventType,
		RunID:     runID,
		Timestamp: e.now().UTC().Format(time.RFC3339),
		Data:      data,
	}
	if err := e.client.PublishJSON(TopicEventsRun(runID), event); err != nil {
		slog.Warn("publish pipeline event failed", "run", runID, "type", eventType, "error", err)
	}
}

// DecodeEvent parses a published event.
func DecodeEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	return ev, nil
}
