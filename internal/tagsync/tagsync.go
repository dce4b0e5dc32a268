// Package tagsync reacts to storage notifications. Created objects are routed
// to a generator target sized for their kind; removed artifacts clear the
// completion tags of the object they were generated for.
package tagsync

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"

	"github.com/fpang/object-previews/internal/artifact"
	"github.com/fpang/object-previews/internal/events"
	"github.com/fpang/object-previews/internal/failure"
	"github.com/fpang/object-previews/internal/formats"
	"github.com/fpang/object-previews/internal/invoke"
	"github.com/fpang/object-previews/internal/metrics"
	"github.com/fpang/object-previews/internal/objstore"
)

// Outcome actions.
const (
	ActionRouted    = "routed"
	ActionCleared   = "cleared"
	ActionUntagged  = "untagged"
	ActionMissing   = "missing"
	ActionIgnored   = "ignored"
	ActionTagFailed = "tag-write-failed"
)

// Outcome reports what happened to one event record.
type Outcome struct {
	Key    string `json:"key"`
	Action string `json:"action"`
	Target string `json:"target,omitempty"`
}

type Synchronizer struct {
	store   objstore.Store
	inv     invoke.Invoker
	formats *formats.Table
	high    string
	low     string
	metrics *metrics.Sink
}

// New builds a Synchronizer. high and low name the two generator targets;
// which one receives video is decided from their memory sizes.
func New(store objstore.Store, inv invoke.Invoker, table *formats.Table, high, low string) *Synchronizer {
	return &Synchronizer{store: store, inv: inv, formats: table, high: high, low: low, metrics: metrics.Stdout()}
}

// WithMetricsWriter redirects EMF output.
func (s *Synchronizer) WithMetricsWriter(w io.Writer) *Synchronizer {
	s.metrics = metrics.NewSink(w)
	return s
}

// Handle processes every record of a notification in order and stops at the
// first routing error.
func (s *Synchronizer) Handle(ctx context.Context, raw []byte) ([]Outcome, error) {
	evs, err := events.Parse(raw)
	if err != nil {
		return nil, err
	}

	var (
		router   invoke.Router
		resolved bool
		out      = make([]Outcome, 0, len(evs))
	)
	for _, ev := range evs {
		if ev.Action == events.ActionRemoved {
			out = append(out, s.Removed(ctx, ev))
			continue
		}
		if !resolved && !artifact.IsReserved(ev.Key) && s.formats.Supported(ev.Key) {
			if router, err = invoke.NewRouter(ctx, s.inv, s.high, s.low); err != nil {
				return out, err
			}
			resolved = true
		}
		o, err := s.Created(ctx, router, ev)
		if err != nil {
			return out, err
		}
		out = append(out, o)
	}
	return out, nil
}

// Created routes a new object to the generator target for its kind.
func (s *Synchronizer) Created(ctx context.Context, router invoke.Router, ev events.ObjectEvent) (Outcome, error) {
	if artifact.IsReserved(ev.Key) {
		return Outcome{}, fmt.Errorf("%w: %s", failure.ErrPreviewIgnored, ev.Key)
	}
	kind := s.formats.Classify(ev.Key)
	if kind == formats.KindUnknown {
		return Outcome{}, fmt.Errorf("%w: %s", failure.ErrUnsupportedExtension, ev.Key)
	}

	target, err := router.Dispatch(ctx, s.inv, kind, events.Notification(ev))
	if err != nil {
		log.Error().Err(err).Str("key", ev.Key).Str("target", target).Msg("Failed to route object")
		return Outcome{}, err
	}
	log.Info().Str("bucket", ev.Container).Str("key", ev.Key).Str("kind", string(kind)).Str("target", target).Msg("Object routed")
	s.metrics.Routed(string(kind), target)
	return Outcome{Key: ev.Key, Action: ActionRouted, Target: target}, nil
}

// Removed clears the completion tags of the object a deleted artifact belonged
// to. It never fails: a missing object, missing tags or a failed tag write
// are logged and reported in the outcome.
func (s *Synchronizer) Removed(ctx context.Context, ev events.ObjectEvent) Outcome {
	original, ok := artifact.OriginalKey(ev.Key)
	if !ok {
		log.Debug().Str("key", ev.Key).Msg("Removed object carries no source key, ignoring")
		return Outcome{Key: ev.Key, Action: ActionIgnored}
	}
	logger := log.With().Str("bucket", ev.Container).Str("key", original).Str("artifact", ev.Key).Logger()

	tags, err := s.store.GetTags(ctx, ev.Container, original)
	if errors.Is(err, objstore.ErrNotFound) {
		logger.Info().Msg("Source object no longer exists, nothing to clear")
		return Outcome{Key: original, Action: ActionMissing}
	}
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to read tags")
		return Outcome{Key: original, Action: ActionTagFailed}
	}

	kept, changed := artifact.ClearCompletion(tags)
	if !changed {
		logger.Info().Msg("Source object has no completion tags")
		return Outcome{Key: original, Action: ActionUntagged}
	}
	if err := s.store.PutTags(ctx, ev.Container, original, kept); err != nil {
		if errors.Is(err, objstore.ErrNotFound) {
			logger.Info().Msg("Source object removed while clearing tags")
			return Outcome{Key: original, Action: ActionMissing}
		}
		logger.Warn().Err(fmt.Errorf("%w: %w", failure.ErrTagWriteFailed, err)).Msg("Failed to clear completion tags")
		return Outcome{Key: original, Action: ActionTagFailed}
	}

	logger.Info().Msg("Completion tags cleared")
	s.metrics.Cleared(original)
	return Outcome{Key: original, Action: ActionCleared}
}
