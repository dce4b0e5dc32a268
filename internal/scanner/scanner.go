// Package scanner backfills previews for objects that existed before live
// processing was enabled.
//
// A scan walks a prefix in key order and dispatches every eligible object to
// a generator target. When the invocation is about to run out of time it
// stops, and re-invokes its own target with a Checkpoint carrying the last
// visited key and the original scan start time. One logical scan may span
// any number of such chunks.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/object-previews/internal/artifact"
	"github.com/fpang/object-previews/internal/events"
	"github.com/fpang/object-previews/internal/failure"
	"github.com/fpang/object-previews/internal/formats"
	"github.com/fpang/object-previews/internal/invoke"
	"github.com/fpang/object-previews/internal/metrics"
	"github.com/fpang/object-previews/internal/objstore"
)

// DefaultThreshold is the remaining time below which a chunk stops.
const DefaultThreshold = 5 * time.Second

// Summary describes one chunk.
type Summary struct {
	Bucket     string `json:"bucket"`
	Path       string `json:"path"`
	StartTime  string `json:"start_time"`
	Visited    int    `json:"visited"`
	Dispatched int    `json:"dispatched"`
	Skipped    int    `json:"skipped"`
	Continued  bool   `json:"continued"`
	Marker     string `json:"marker,omitempty"`
}

type Scanner struct {
	store   objstore.Store
	inv     invoke.Invoker
	formats *formats.Table
	high    string
	low     string

	threshold time.Duration
	remaining func(context.Context) time.Duration
	now       func() time.Time
	pageSize  int
	metrics   *metrics.Sink
}

type Option func(*Scanner)

func WithThreshold(d time.Duration) Option {
	return func(s *Scanner) { s.threshold = d }
}

// WithRemainingTime replaces invoke.RemainingTime.
func WithRemainingTime(fn func(context.Context) time.Duration) Option {
	return func(s *Scanner) { s.remaining = fn }
}

func WithClock(fn func() time.Time) Option {
	return func(s *Scanner) { s.now = fn }
}

// WithPageSize sets the listing page size.
func WithPageSize(n int) Option {
	return func(s *Scanner) { s.pageSize = n }
}

func WithMetricsWriter(w io.Writer) Option {
	return func(s *Scanner) { s.metrics = metrics.NewSink(w) }
}

// New builds a Scanner dispatching to the high and low generator targets.
func New(store objstore.Store, inv invoke.Invoker, table *formats.Table, high, low string, opts ...Option) *Scanner {
	s := &Scanner{
		store:     store,
		inv:       inv,
		formats:   table,
		high:      high,
		low:       low,
		threshold: DefaultThreshold,
		remaining: invoke.RemainingTime,
		now:       time.Now,
		metrics:   metrics.Stdout(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle decodes a checkpoint payload and scans one chunk.
func (s *Scanner) Handle(ctx context.Context, raw []byte) (*Summary, error) {
	cp, err := events.ParseCheckpoint(raw)
	if err != nil {
		return nil, err
	}
	return s.Scan(ctx, cp)
}

// chunk is the state of one Scan call.
type chunk struct {
	cp       events.Checkpoint
	start    time.Time
	router   invoke.Router
	resolved bool
	summary  *Summary
}

// Scan processes objects after cp.Marker until the listing ends or time runs
// low. At least one object is visited per chunk so every chunk makes progress.
func (s *Scanner) Scan(ctx context.Context, cp events.Checkpoint) (*Summary, error) {
	start, err := cp.Start(s.now())
	if err != nil {
		return nil, err
	}
	c := &chunk{
		cp:    cp,
		start: start,
		summary: &Summary{
			Bucket:    cp.Bucket,
			Path:      cp.Path,
			StartTime: start.Format(time.RFC3339Nano),
		},
	}
	logger := log.With().Str("bucket", cp.Bucket).Str("path", cp.Path).Str("marker", cp.Marker).Logger()
	logger.Info().Time("startTime", start).Msg("Scan chunk started")

	last := cp.Marker
	opts := objstore.ListOptions{Prefix: cp.Path, StartAfter: cp.Marker, MaxKeys: s.pageSize}
	err = objstore.Walk(ctx, s.store, cp.Bucket, opts, func(obj objstore.ObjectInfo) (bool, error) {
		if c.summary.Visited > 0 && s.remaining(ctx) < s.threshold {
			c.summary.Continued = true
			return false, nil
		}
		if err := s.visit(ctx, c, obj); err != nil {
			return false, err
		}
		c.summary.Visited++
		last = obj.Key
		return true, nil
	})
	if err != nil {
		logger.Error().Err(err).Str("lastKey", last).Msg("Scan chunk failed")
		return c.summary, err
	}

	if c.summary.Continued {
		if err := s.continueFrom(ctx, c.cp.Next(last, start)); err != nil {
			return c.summary, err
		}
		c.summary.Marker = last
	}

	s.emit(c.summary)
	logger.Info().
		Int("visited", c.summary.Visited).
		Int("dispatched", c.summary.Dispatched).
		Int("skipped", c.summary.Skipped).
		Bool("continued", c.summary.Continued).
		Str("nextMarker", c.summary.Marker).
		Msg("Scan chunk finished")
	return c.summary, nil
}

// visit dispatches obj unless it is ineligible.
func (s *Scanner) visit(ctx context.Context, c *chunk, obj objstore.ObjectInfo) error {
	skip := func(reason string) error {
		c.summary.Skipped++
		log.Debug().Str("key", obj.Key).Str("reason", reason).Msg("Skipping object")
		return nil
	}

	if obj.LastModified.After(c.start) {
		return skip("modified after scan start")
	}
	if artifact.IsReserved(obj.Key) {
		return skip("preview artifact")
	}
	kind := s.formats.Classify(obj.Key)
	if kind == formats.KindUnknown {
		return skip("unsupported extension")
	}

	tags, err := s.store.GetTags(ctx, c.cp.Bucket, obj.Key)
	if errors.Is(err, objstore.ErrNotFound) {
		return skip("deleted during scan")
	}
	if err != nil {
		return fmt.Errorf("%w: tags of %s: %w", failure.ErrFetchFailed, obj.Key, err)
	}
	if artifact.IsComplete(tags) {
		return skip("already previewed")
	}

	if !c.resolved {
		if c.router, err = invoke.NewRouter(ctx, s.inv, s.high, s.low); err != nil {
			return err
		}
		c.resolved = true
	}
	payload := events.Notification(events.ObjectEvent{
		Action:    events.ActionCreated,
		Container: c.cp.Bucket,
		Key:       obj.Key,
		Size:      obj.Size,
	})
	target, err := c.router.Dispatch(ctx, s.inv, kind, payload)
	if err != nil {
		return err
	}
	c.summary.Dispatched++
	log.Debug().Str("key", obj.Key).Str("target", target).Msg("Object dispatched")
	return nil
}

// continueFrom re-invokes the running target with the next checkpoint.
func (s *Scanner) continueFrom(ctx context.Context, next events.Checkpoint) error {
	self := invoke.SelfName(ctx)
	if self == "" {
		return fmt.Errorf("%w: cannot resolve own target name to continue the scan", failure.ErrRoutingFailed)
	}
	if err := s.inv.InvokeAsync(ctx, self, next); err != nil {
		return fmt.Errorf("%w: continue scan: %w", failure.ErrRoutingFailed, err)
	}
	log.Info().Str("target", self).Str("marker", next.Marker).Msg("Scan continued in a new invocation")
	return nil
}

func (s *Scanner) emit(sum *Summary) {
	s.metrics.Scanned(sum.Bucket, sum.Visited, sum.Dispatched, sum.Skipped, sum.Continued)
}
