package preview

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fpang/object-previews/internal/artifact"
	"github.com/fpang/object-previews/internal/budget"
	"github.com/fpang/object-previews/internal/events"
	"github.com/fpang/object-previews/internal/failure"
	"github.com/fpang/object-previews/internal/formats"
	"github.com/fpang/object-previews/internal/notify"
	"github.com/fpang/object-previews/internal/objstore"
	"github.com/fpang/object-previews/internal/transcode"
)

// Result is returned to the invoker after a successful run.
type Result struct {
	Provider  string   `json:"provider"`
	Method    string   `json:"method"`
	Location  string   `json:"location"`
	Artifacts []string `json:"artifacts"`
	Tagged    bool     `json:"tagged"`
}

// ErrorRecord is stored as error.json in the namespace of a failed run.
type ErrorRecord struct {
	File      string    `json:"file"`
	Timestamp time.Time `json:"timestamp"`
	Method    string    `json:"method"`
	Error     string    `json:"error"`
	Reason    string    `json:"reason"`
}

// run carries the mutable progress of one Request.
type run struct {
	g      *Generator
	req    Request
	method string
	logger zerolog.Logger
}

// output is one rendered file and where it is uploaded.
type output struct {
	local       string
	key         string
	contentType string
	tool        string
}

// HandleEvent processes every created-object record in a raw notification.
// Removal records are not the generator's concern and are skipped.
func (g *Generator) HandleEvent(ctx context.Context, raw []byte) ([]Result, error) {
	evs, err := events.Parse(raw)
	if err != nil {
		return nil, err
	}
	var results []Result
	for _, ev := range evs {
		if ev.Action != events.ActionCreated {
			log.Debug().Str("key", ev.Key).Msg("Skipping non-create event")
			continue
		}
		res, err := g.Generate(ctx, ev)
		if err != nil {
			return results, err
		}
		results = append(results, *res)
	}
	return results, nil
}

// Generate validates ev and runs it.
func (g *Generator) Generate(ctx context.Context, ev events.ObjectEvent) (*Result, error) {
	req, err := g.NewRequest(ev)
	if err != nil {
		log.Warn().Err(err).Str("bucket", ev.Container).Str("key", ev.Key).Msg("Object rejected")
		g.emitFailure(formats.KindUnknown, err)
		return nil, err
	}
	return g.Run(ctx, req)
}

// Run executes a validated request.
func (g *Generator) Run(ctx context.Context, req Request) (*Result, error) {
	r := &run{
		g:      g,
		req:    req,
		method: budget.Stream.Method(),
		logger: log.With().
			Str("bucket", req.Container).
			Str("key", req.Key).
			Str("previewId", req.ID).
			Str("kind", string(req.Kind)).
			Logger(),
	}
	r.logger.Info().Int64("size", req.Size).Msg("Generating preview")

	start := g.now()
	res, err := r.execute(ctx)
	if err != nil {
		r.logger.Error().Err(err).Str("reason", failure.Reason(err)).Str("method", r.method).Msg("Preview generation failed")
		r.writeErrorRecord(ctx, err)
		g.emitFailure(req.Kind, err)
		return nil, err
	}
	elapsed := g.now().Sub(start)

	g.metrics.Generated(string(req.Kind), res.Method, req.Key, elapsed, r.req.Size)
	r.logger.Info().
		Str("method", res.Method).
		Str("location", res.Location).
		Bool("tagged", res.Tagged).
		Dur("duration", elapsed).
		Msg("Preview generated")
	return res, nil
}

func (r *run) execute(ctx context.Context) (*Result, error) {
	if r.req.Size <= 0 {
		info, err := r.g.store.Head(ctx, r.req.Container, r.req.Key)
		if err != nil {
			return nil, fmt.Errorf("%w: head %s: %w", failure.ErrFetchFailed, r.req.Key, err)
		}
		r.req = r.req.withSize(info.Size)
	}
	r.measureDisk()

	dir, err := os.MkdirTemp(r.g.tempDir, "preview-*")
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	defer r.cleanup(dir)

	in, err := r.fetch(ctx, dir)
	if err != nil {
		return nil, err
	}
	r.logger.Debug().Str("source", in.src.Kind()).Str("method", r.method).Int("clip", in.clip).Msg("Source fetched")
	outputs, err := r.render(ctx, dir, in)
	if err != nil {
		return nil, err
	}
	keys, err := r.upload(ctx, outputs)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Provider:  r.g.store.Provider().String(),
		Method:    r.method,
		Location:  r.req.Namespace.String(),
		Artifacts: keys,
	}
	if err := r.tag(ctx); err != nil {
		if failure.Fatal(err) {
			return nil, err
		}
		r.logger.Warn().Err(err).Msg("Completion tags not written, object stays eligible for reprocessing")
		r.g.metrics.TagWriteFailed(r.req.Key)
	} else {
		res.Tagged = true
	}

	if err := r.g.notifier.PreviewGenerated(ctx, notify.Generated{
		Provider:  res.Provider,
		Bucket:    r.req.Container,
		Key:       r.req.Key,
		Method:    res.Method,
		Location:  res.Location,
		Artifacts: res.Artifacts,
		Tagged:    res.Tagged,
		Timestamp: r.g.now().UTC(),
	}); err != nil {
		r.logger.Warn().Err(err).Msg("Preview notification failed")
	}
	return res, nil
}

// measureDisk refreshes the disk budget when a measure is configured. A
// failed measurement keeps the cold-start value.
func (r *run) measureDisk() {
	if r.g.freeDisk == nil {
		return
	}
	free, err := r.g.freeDisk(r.g.tempDir)
	if err != nil {
		r.logger.Warn().Err(err).Msg("Disk measurement failed, keeping cold-start ceiling")
		return
	}
	r.req = r.req.withDisk(free)
	r.logger.Debug().Int64("freeBytes", free).Int64("diskBudget", r.req.Budget.Disk).Msg("Disk budget refreshed")
}

// render runs the transcoder and verifies every expected file.
func (r *run) render(ctx context.Context, dir string, in input) ([]output, error) {
	thumb := output{
		local:       filepath.Join(dir, artifact.ThumbnailName),
		key:         r.req.Namespace.Thumbnail(),
		contentType: "image/png",
	}

	var outputs []output
	switch r.req.Kind {
	case formats.KindVideo:
		clip := output{
			local:       filepath.Join(dir, artifact.ClipName),
			key:         r.req.Namespace.Clip(),
			contentType: "video/mp4",
			tool:        "ffmpeg",
		}
		opts := transcode.ClipOptions{Duration: in.clip, Audio: r.req.Audio}
		if err := r.g.tx.Clip(ctx, in.src, clip.local, opts); err != nil {
			return nil, err
		}
		thumb.tool = "ffmpeg"
		if err := r.g.tx.Frame(ctx, in.src, thumb.local); err != nil {
			return nil, err
		}
		outputs = []output{thumb, clip}
	default:
		thumb.tool = "ImageMagick"
		if err := r.g.tx.Thumbnail(ctx, r.req.Kind, in.src, thumb.local); err != nil {
			return nil, err
		}
		outputs = []output{thumb}
	}

	for _, o := range outputs {
		if err := transcode.Verify(o.local, o.tool); err != nil {
			return nil, err
		}
	}
	return outputs, nil
}

// upload writes the rendered files and both lookup objects.
func (r *run) upload(ctx context.Context, outputs []output) ([]string, error) {
	keys := make([]string, 0, len(outputs)+2)
	for _, o := range outputs {
		if err := objstore.PutFile(ctx, r.g.store, r.req.Container, o.key, o.local, o.contentType); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", failure.ErrUploadFailed, o.key, err)
		}
		keys = append(keys, o.key)
	}

	lookups := []struct {
		key  string
		body string
	}{
		{r.req.Namespace.PathRecord(), r.req.Key},
		{r.req.Namespace.Location(r.req.Key), ""},
	}
	for _, l := range lookups {
		if err := r.g.store.Put(ctx, r.req.Container, l.key, strings.NewReader(l.body), "text/plain"); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", failure.ErrUploadFailed, l.key, err)
		}
		keys = append(keys, l.key)
	}
	return keys, nil
}

// tag merges the completion tags into the source object's tag set.
func (r *run) tag(ctx context.Context) error {
	tags, err := r.g.store.GetTags(ctx, r.req.Container, r.req.Key)
	if err != nil {
		return fmt.Errorf("%w: read tags of %s: %w", failure.ErrTagWriteFailed, r.req.Key, err)
	}
	if err := r.g.store.PutTags(ctx, r.req.Container, r.req.Key, artifact.MarkComplete(tags, r.req.Namespace)); err != nil {
		return fmt.Errorf("%w: %s: %w", failure.ErrTagWriteFailed, r.req.Key, err)
	}
	return nil
}

func (r *run) cleanup(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		r.logger.Warn().Err(err).Str("dir", dir).Msg("Failed to remove work dir")
		return
	}
	r.logger.Debug().Str("dir", dir).Msg("Work dir removed")
}

// writeErrorRecord stores the diagnostic for a failed run. Failures here are logged only.
func (r *run) writeErrorRecord(ctx context.Context, cause error) {
	record := ErrorRecord{
		File:      r.req.Key,
		Timestamp: r.g.now().UTC(),
		Method:    r.method,
		Error:     cause.Error(),
		Reason:    failure.Reason(cause),
	}
	data, err := json.Marshal(record)
	if err != nil {
		r.logger.Warn().Err(err).Msg("Failed to encode error record")
		return
	}
	key := r.req.Namespace.ErrorRecord()
	// The run context may already be past its deadline.
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
	}
	if err := r.g.store.Put(ctx, r.req.Container, key, bytes.NewReader(data), "application/json"); err != nil {
		r.logger.Warn().Err(err).Str("errorRecord", key).Msg("Failed to write error record")
		return
	}
	r.logger.Debug().Str("errorRecord", key).Msg("Error record written")
}

func (g *Generator) emitFailure(kind formats.Kind, err error) {
	reason := failure.Reason(err)
	if errors.Is(err, failure.ErrPreviewIgnored) {
		reason = "PreviewIgnored"
	}
	g.metrics.Failed(string(kind), reason)
}
