// Package events decodes the payloads that start an invocation: S3
// notification records, flat object events published by the worker
// transport, and scan checkpoints.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	lambdaevents "github.com/aws/aws-lambda-go/events"
)

// Action is what happened to an object.
type Action string

const (
	ActionCreated Action = "created"
	ActionRemoved Action = "removed"
)

// ObjectEvent is a provider-neutral object notification.
type ObjectEvent struct {
	Action    Action `json:"eventType"`
	Container string `json:"bucket"`
	Key       string `json:"key"`
	Size      int64  `json:"size"`
}

// ErrNoRecords is returned for payloads that carry no object event.
var ErrNoRecords = errors.New("event contains no object records")

type envelope struct {
	Records []json.RawMessage `json:"Records"`
}

// Parse decodes either an S3 notification (with URL-encoded keys) or a flat
// ObjectEvent. Flat events without an eventType are treated as creations.
func Parse(raw []byte) ([]ObjectEvent, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid event payload: %w", err)
	}
	if len(env.Records) > 0 {
		return parseS3(raw)
	}

	var flat ObjectEvent
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, fmt.Errorf("invalid object event: %w", err)
	}
	if flat.Container == "" || flat.Key == "" {
		return nil, ErrNoRecords
	}
	if flat.Action == "" {
		flat.Action = ActionCreated
	}
	return []ObjectEvent{flat}, nil
}

func parseS3(raw []byte) ([]ObjectEvent, error) {
	var s3Event lambdaevents.S3Event
	if err := json.Unmarshal(raw, &s3Event); err != nil {
		return nil, fmt.Errorf("invalid S3 event: %w", err)
	}

	out := make([]ObjectEvent, 0, len(s3Event.Records))
	for _, rec := range s3Event.Records {
		key, err := url.QueryUnescape(rec.S3.Object.Key)
		if err != nil {
			return nil, fmt.Errorf("invalid object key %q: %w", rec.S3.Object.Key, err)
		}
		action := ActionCreated
		if strings.Contains(rec.EventName, "ObjectRemoved") {
			action = ActionRemoved
		}
		out = append(out, ObjectEvent{
			Action:    action,
			Container: rec.S3.Bucket.Name,
			Key:       key,
			Size:      rec.S3.Object.Size,
		})
	}
	if len(out) == 0 {
		return nil, ErrNoRecords
	}
	return out, nil
}

// Notification re-encodes ev as a single-record S3 notification, the shape
// the generator receives for both live and backfill events.
func Notification(ev ObjectEvent) lambdaevents.S3Event {
	name := "ObjectCreated:Put"
	if ev.Action == ActionRemoved {
		name = "ObjectRemoved:Delete"
	}
	return lambdaevents.S3Event{
		Records: []lambdaevents.S3EventRecord{{
			EventSource: "aws:s3",
			EventName:   name,
			S3: lambdaevents.S3Entity{
				Bucket: lambdaevents.S3Bucket{Name: ev.Container},
				Object: lambdaevents.S3Object{
					Key:  url.QueryEscape(ev.Key),
					Size: ev.Size,
				},
			},
		}},
	}
}
