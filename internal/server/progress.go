package server

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/deepdive/internal/agent/core"
)

// ProgressStream publishes a run's progress events and lets subscribers
// follow them. Satisfied by ProgressBroker.
type ProgressStream interface {
	Reporter(runID string) core.ProgressReporter
	Subscribe(ctx context.Context, runID string) (<-chan RawEvent, func())
}

// ProgressBroker fans pipeline progress events out through Redis pub/sub so
// SSE subscribers can follow a run from any API replica.
type ProgressBroker struct {
	rdb    *redis.Client
	logger *log.Logger
}

func NewProgressBroker(rdb *redis.Client) *ProgressBroker {
	return &ProgressBroker{
		rdb:    rdb,
		logger: log.New(log.Writer(), "[PROGRESS] ", log.LstdFlags),
	}
}

func runChannel(runID string) string { return "deepdive:run:" + runID + ":events" }

// Reporter returns a core.ProgressReporter that publishes every event of one
// run to its Redis channel. Publish failures are logged and dropped; progress
// delivery must never interfere with the run itself.
func (b *ProgressBroker) Reporter(runID string) core.ProgressReporter {
	return &brokerReporter{broker: b, runID: runID}
}

type brokerReporter struct {
	broker *ProgressBroker
	runID  string
}

func (r *brokerReporter) Report(eventType string, payload interface{}) {
	evt := core.ProgressEvent{Type: eventType, Payload: payload}
	data, err := json.Marshal(evt)
	if err != nil {
		// payloads are either strings or JSON-shaped structs; fall back to type only
		data, _ = json.Marshal(core.ProgressEvent{Type: eventType})
	}
	if err := r.broker.rdb.Publish(context.Background(), runChannel(r.runID), data).Err(); err != nil {
		r.broker.logger.Printf("publish %s for run %s failed: %v", eventType, r.runID, err)
	}
}

// RawEvent is a progress event as read back from Redis; the payload stays raw
// because subscribers forward it verbatim.
type RawEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Subscribe follows a run's event channel until ctx is cancelled. The returned
// channel closes when the subscription ends.
func (b *ProgressBroker) Subscribe(ctx context.Context, runID string) (<-chan RawEvent, func()) {
	sub := b.rdb.Subscribe(ctx, runChannel(runID))
	out := make(chan RawEvent, 16)
	go func() {
		defer close(out)
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var evt RawEvent
				if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
					b.logger.Printf("malformed event on %s: %v", runChannel(runID), err)
					continue
				}
				select {
				case out <- evt:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	cancel := func() { _ = sub.Close() }
	return out, cancel
}
