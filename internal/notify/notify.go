// Package notify publishes preview lifecycle events to EventBridge.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	eventbridgetypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/rs/zerolog/log"
)

const (
	Source              = "object-previews"
	DetailTypeGenerated = "PreviewGenerated"
)

// Generated describes a completed preview.
type Generated struct {
	Provider  string    `json:"provider"`
	Bucket    string    `json:"bucket"`
	Key       string    `json:"key"`
	Method    string    `json:"method"`
	Location  string    `json:"location"`
	Artifacts []string  `json:"artifacts"`
	Tagged    bool      `json:"tagged"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier is implemented by anything that can announce a finished preview.
type Notifier interface {
	PreviewGenerated(ctx context.Context, ev Generated) error
}

// EventBridgeAPI is the subset of the EventBridge client used here.
type EventBridgeAPI interface {
	PutEvents(ctx context.Context, in *eventbridge.PutEventsInput, opts ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

type EventBridge struct {
	client EventBridgeAPI
	bus    string
}

// NewEventBridge returns a Notifier for the named bus. An empty bus name
// targets the account's default bus.
func NewEventBridge(client EventBridgeAPI, bus string) *EventBridge {
	return &EventBridge{client: client, bus: bus}
}

func (e *EventBridge) PreviewGenerated(ctx context.Context, ev Generated) error {
	detail, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", DetailTypeGenerated, err)
	}

	entry := eventbridgetypes.PutEventsRequestEntry{
		Source:     aws.String(Source),
		DetailType: aws.String(DetailTypeGenerated),
		Detail:     aws.String(string(detail)),
		Resources:  []string{ev.Location},
	}
	if e.bus != "" {
		entry.EventBusName = aws.String(e.bus)
	}

	result, err := e.client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []eventbridgetypes.PutEventsRequestEntry{entry},
	})
	if err != nil {
		log.Error().Err(err).Str("key", ev.Key).Msg("EventBridge PutEvents failed")
		return fmt.Errorf("PutEvents: %w", err)
	}
	if result.FailedEntryCount > 0 {
		for i, entry := range result.Entries {
			if entry.ErrorCode != nil || entry.ErrorMessage != nil {
				return fmt.Errorf("PutEvents entry %d failed: %s - %s", i, aws.ToString(entry.ErrorCode), aws.ToString(entry.ErrorMessage))
			}
		}
	}

	log.Debug().Str("key", ev.Key).Str("location", ev.Location).Msg("PreviewGenerated emitted")
	return nil
}

// Nop discards every event.
type Nop struct{}

func (Nop) PreviewGenerated(context.Context, Generated) error { return nil }
