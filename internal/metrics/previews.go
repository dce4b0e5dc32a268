package metrics

import (
	"time"

	"github.com/rs/zerolog/log"
)

// Metric names.
const (
	PreviewMs         = "PreviewMs"
	ObjectSize        = "ObjectSize"
	PreviewsGenerated = "PreviewsGenerated"
	PreviewFailures   = "PreviewFailures"
	TagWriteFailures  = "TagWriteFailures"
	EventsRouted      = "EventsRouted"
	TagsCleared       = "TagsCleared"
	ObjectsVisited    = "ObjectsVisited"
	ObjectsDispatched = "ObjectsDispatched"
	ObjectsSkipped    = "ObjectsSkipped"
	ScanContinuations = "ScanContinuations"
)

func emit(e *Event) {
	if err := e.Emit(); err != nil {
		log.Warn().Err(err).Msg("Failed to write metrics")
	}
}

// Generated records a successful preview run.
func (s *Sink) Generated(kind, method, key string, elapsed time.Duration, size int64) {
	emit(s.Event().
		With(DimKind, kind).
		With(DimMethod, method).
		Elapsed(PreviewMs, elapsed).
		Add(ObjectSize, float64(size), Bytes).
		Inc(PreviewsGenerated).
		Note("key", key))
}

// Failed records a run that ended with reason. kind may be empty when the
// object was rejected before classification.
func (s *Sink) Failed(kind, reason string) {
	e := s.Event().With(DimReason, reason).Inc(PreviewFailures)
	if kind != "" {
		e.Note("kind", kind)
	}
	emit(e)
}

// TagWriteFailed records completion tags that could not be written.
func (s *Sink) TagWriteFailed(key string) {
	emit(s.Event().Inc(TagWriteFailures).Note("key", key))
}

// Routed records an object handed to a generator target.
func (s *Sink) Routed(kind, target string) {
	emit(s.Event().With(DimKind, kind).Inc(EventsRouted).Note("target", target))
}

// Cleared records completion tags removed after an artifact deletion.
func (s *Sink) Cleared(key string) {
	emit(s.Event().Inc(TagsCleared).Note("key", key))
}

// Scanned records one scanner chunk.
func (s *Sink) Scanned(bucket string, visited, dispatched, skipped int, continued bool) {
	e := s.Event().
		Add(ObjectsVisited, float64(visited), Count).
		Add(ObjectsDispatched, float64(dispatched), Count).
		Add(ObjectsSkipped, float64(skipped), Count).
		Note("bucket", bucket)
	if continued {
		e.Inc(ScanContinuations)
	}
	emit(e)
}
