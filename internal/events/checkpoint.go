package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Checkpoint describes one chunk of a backfill scan. Marker is a strict
// resume point: listing continues with keys greater than it. StartTime is
// fixed for the whole logical scan so later chunks apply the same cutoff.
type Checkpoint struct {
	Bucket    string `json:"bucket"`
	Path      string `json:"path"`
	Marker    string `json:"marker,omitempty"`
	StartTime string `json:"start_time,omitempty"`
}

// ErrMissingParams is returned when bucket or path is absent.
var ErrMissingParams = errors.New("missing required params, either path or bucket")

var startTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseCheckpoint decodes a scan request. An empty path is valid (whole
// bucket) but the field must be present.
func ParseCheckpoint(raw []byte) (Checkpoint, error) {
	var in struct {
		Bucket    string  `json:"bucket"`
		Path      *string `json:"path"`
		Marker    string  `json:"marker"`
		StartTime string  `json:"start_time"`
	}
	if err := json.Unmarshal(raw, &in); err != nil {
		return Checkpoint{}, fmt.Errorf("invalid checkpoint: %w", err)
	}
	if in.Bucket == "" || in.Path == nil {
		return Checkpoint{}, ErrMissingParams
	}
	cp := Checkpoint{Bucket: in.Bucket, Path: *in.Path, Marker: in.Marker, StartTime: in.StartTime}
	if _, err := cp.Start(time.Now()); err != nil {
		return Checkpoint{}, err
	}
	return cp, nil
}

// Start returns the scan cutoff in UTC, or now when none was recorded.
// Timestamps without a zone are read as UTC.
func (c Checkpoint) Start(now time.Time) (time.Time, error) {
	if c.StartTime == "" {
		return now.UTC(), nil
	}
	for _, layout := range startTimeLayouts {
		if t, err := time.Parse(layout, c.StartTime); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid start_time %q", c.StartTime)
}

// Next returns the checkpoint for the following chunk.
func (c Checkpoint) Next(marker string, start time.Time) Checkpoint {
	return Checkpoint{
		Bucket:    c.Bucket,
		Path:      c.Path,
		Marker:    marker,
		StartTime: start.UTC().Format(time.RFC3339Nano),
	}
}
