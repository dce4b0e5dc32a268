// Package preview generates thumbnail and clip artifacts for one source object.
//
// A run moves through validate, choose strategy, fetch, transcode, verify,
// upload, tag and cleanup. Validation failures return before any storage
// call. Every later failure leaves an error.json in the run's namespace.
package preview

import (
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/fpang/object-previews/internal/budget"
	"github.com/fpang/object-previews/internal/formats"
	"github.com/fpang/object-previews/internal/metrics"
	"github.com/fpang/object-previews/internal/notify"
	"github.com/fpang/object-previews/internal/objstore"
	"github.com/fpang/object-previews/internal/transcode"
)

// DefaultURLExpiry bounds pre-signed URLs handed to the transcoder.
const DefaultURLExpiry = 10 * time.Minute

// Settings are resolved once at cold start.
type Settings struct {
	PreviewDuration int
	PreviewAudio    bool
	URLExpiry       time.Duration
	Ceilings        budget.Ceilings
}

// Generator runs preview generation against one store.
type Generator struct {
	store    objstore.Store
	tx       transcode.Transcoder
	formats  *formats.Table
	settings Settings

	tempDir  string
	freeDisk func(dir string) (int64, error)
	newID    func() string
	now      func() time.Time
	notifier notify.Notifier
	metrics  *metrics.Sink
}

type Option func(*Generator)

// WithTempDir sets the parent of per-run work directories.
func WithTempDir(dir string) Option {
	return func(g *Generator) { g.tempDir = dir }
}

// WithDiskMeasure re-reads free disk space under the temp dir before every
// run, replacing the disk ceiling measured at cold start. Warm containers
// may still hold files left behind by earlier invocations.
func WithDiskMeasure(fn func(dir string) (int64, error)) Option {
	return func(g *Generator) { g.freeDisk = fn }
}

// WithIDGenerator replaces uuid.NewString for artifact namespace ids.
func WithIDGenerator(fn func() string) Option {
	return func(g *Generator) { g.newID = fn }
}

func WithClock(fn func() time.Time) Option {
	return func(g *Generator) { g.now = fn }
}

// WithNotifier announces each completed preview.
func WithNotifier(n notify.Notifier) Option {
	return func(g *Generator) { g.notifier = n }
}

// WithMetricsWriter redirects EMF output, which defaults to stdout.
func WithMetricsWriter(w io.Writer) Option {
	return func(g *Generator) { g.metrics = metrics.NewSink(w) }
}

func New(store objstore.Store, tx transcode.Transcoder, table *formats.Table, settings Settings, opts ...Option) *Generator {
	if settings.URLExpiry <= 0 {
		settings.URLExpiry = DefaultURLExpiry
	}
	g := &Generator{
		store:    store,
		tx:       tx,
		formats:  table,
		settings: settings,
		tempDir:  os.TempDir(),
		newID:    uuid.NewString,
		now:      time.Now,
		notifier: notify.Nop{},
		metrics:  metrics.Stdout(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}
