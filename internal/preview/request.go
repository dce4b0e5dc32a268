package preview

import (
	"fmt"
	"time"

	"github.com/fpang/object-previews/internal/artifact"
	"github.com/fpang/object-previews/internal/budget"
	"github.com/fpang/object-previews/internal/events"
	"github.com/fpang/object-previews/internal/failure"
	"github.com/fpang/object-previews/internal/formats"
)

// Request is the immutable context of one run. It is built once by
// NewRequest and passed by value.
type Request struct {
	Container string
	Key       string
	// Size is zero when the event did not carry it; the run then reads it with Head.
	Size      int64
	Kind      formats.Kind
	ID        string
	Namespace artifact.Namespace
	Budget    budget.Budget
	// Duration is the clamped configured clip length in seconds.
	Duration int
	Audio    bool
	Received time.Time
}

// NewRequest validates ev and builds its Request. It makes no storage calls.
func (g *Generator) NewRequest(ev events.ObjectEvent) (Request, error) {
	if artifact.IsReserved(ev.Key) {
		return Request{}, fmt.Errorf("%w: %s", failure.ErrPreviewIgnored, ev.Key)
	}
	kind := g.formats.Classify(ev.Key)
	if kind == formats.KindUnknown {
		return Request{}, fmt.Errorf("%w: %s", failure.ErrUnsupportedExtension, ev.Key)
	}

	id := g.newID()
	return Request{
		Container: ev.Container,
		Key:       ev.Key,
		Size:      ev.Size,
		Kind:      kind,
		ID:        id,
		Namespace: artifact.NewNamespace(id),
		Budget:    budget.Effective(g.settings.Ceilings),
		Duration:  budget.ClampPreviewDuration(g.settings.PreviewDuration),
		Audio:     g.settings.PreviewAudio,
		Received:  g.now(),
	}, nil
}

func (r Request) withSize(size int64) Request {
	r.Size = size
	return r
}

// withDisk returns a copy whose disk budget derives from freeBytes.
func (r Request) withDisk(freeBytes int64) Request {
	r.Budget.Disk = budget.Effective(budget.Ceilings{DiskBytes: freeBytes}).Disk
	return r
}
