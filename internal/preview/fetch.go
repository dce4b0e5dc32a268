package preview

import (
	"context"
	"fmt"
	"path"
	"path/filepath"

	"github.com/fpang/object-previews/internal/budget"
	"github.com/fpang/object-previews/internal/failure"
	"github.com/fpang/object-previews/internal/formats"
	"github.com/fpang/object-previews/internal/objstore"
	"github.com/fpang/object-previews/internal/transcode"
)

// input is what the fetch step hands to the transcoder.
type input struct {
	strategy budget.Strategy
	src      transcode.Source
	// clip is the clip length in seconds, video only.
	clip int
}

// fetch chooses a strategy and obtains the source content.
func (r *run) fetch(ctx context.Context, dir string) (input, error) {
	if r.req.Kind == formats.KindVideo {
		if signer, ok := r.g.store.(objstore.URLSigner); ok {
			return r.fetchSigned(ctx, dir, signer)
		}
		return r.fetchByHeader(ctx, dir)
	}

	strategy, err := budget.Decide(r.req.Size, r.req.Budget)
	if err != nil {
		return input{}, err
	}
	r.method = strategy.Method()
	if strategy == budget.Disk {
		return r.download(ctx, dir)
	}
	data, err := r.g.store.GetRange(ctx, r.req.Container, r.req.Key, 0, r.req.Size)
	if err != nil {
		return input{}, fmt.Errorf("%w: range read %s: %w", failure.ErrFetchFailed, r.req.Key, err)
	}
	return input{strategy: budget.Stream, src: transcode.Source{Data: data}}, nil
}

// fetchSigned lets the transcoder read the object through a pre-signed URL.
func (r *run) fetchSigned(ctx context.Context, dir string, signer objstore.URLSigner) (input, error) {
	strategy, err := budget.Decide(r.req.Size, r.req.Budget)
	if err != nil {
		return input{}, err
	}
	r.method = strategy.Method()
	if strategy == budget.Disk {
		in, err := r.download(ctx, dir)
		in.clip = r.req.Duration
		return in, err
	}

	url, err := signer.PresignGet(ctx, r.req.Container, r.req.Key, r.g.settings.URLExpiry)
	if err != nil {
		return input{}, fmt.Errorf("%w: presign %s: %w", failure.ErrFetchFailed, r.req.Key, err)
	}
	return input{strategy: budget.Stream, src: transcode.Source{URL: url}, clip: r.req.Duration}, nil
}

// fetchByHeader reads the header window to decide whether a prefix of the video
// is enough, then shortens the clip to what that prefix covers.
func (r *run) fetchByHeader(ctx context.Context, dir string) (input, error) {
	header, err := r.g.store.GetRange(ctx, r.req.Container, r.req.Key, 0, budget.HeaderProbeBytes)
	if err != nil {
		return input{}, fmt.Errorf("%w: read header of %s: %w", failure.ErrFetchFailed, r.req.Key, err)
	}
	indexNearStart := budget.HasIndexNearStart(header)
	strategy, err := budget.DecideVideo(r.req.Size, r.req.Budget, indexNearStart)
	if err != nil {
		return input{}, err
	}
	r.method = strategy.Method()
	r.logger.Debug().Bool("indexNearStart", indexNearStart).Str("strategy", string(strategy)).Msg("Video header read")
	if strategy == budget.Disk {
		in, err := r.download(ctx, dir)
		in.clip = r.req.Duration
		return in, err
	}

	n := budget.StreamLength(r.req.Size, r.req.Budget)
	data := header
	if int64(len(header)) >= n {
		data = header[:n]
	} else {
		data, err = r.g.store.GetRange(ctx, r.req.Container, r.req.Key, 0, n)
		if err != nil {
			return input{}, fmt.Errorf("%w: range read %s: %w", failure.ErrFetchFailed, r.req.Key, err)
		}
	}
	src := transcode.Source{Data: data}

	full, err := r.g.tx.Duration(ctx, src)
	if err != nil {
		r.logger.Warn().Err(err).Msg("Duration lookup failed, assuming configured duration")
		full = float64(r.req.Duration)
	}
	clip := budget.ClipDuration(r.req.Size, r.req.Budget.Memory, full, r.req.Duration)
	r.logger.Debug().Float64("fullDuration", full).Int("clipDuration", clip).Int64("bytes", n).Msg("Clip duration capped to memory budget")
	return input{strategy: budget.Stream, src: src, clip: clip}, nil
}

func (r *run) download(ctx context.Context, dir string) (input, error) {
	local := filepath.Join(dir, "source"+path.Ext(r.req.Key))
	if err := r.g.store.Download(ctx, r.req.Container, r.req.Key, local); err != nil {
		return input{}, fmt.Errorf("%w: download %s: %w", failure.ErrFetchFailed, r.req.Key, err)
	}
	return input{strategy: budget.Disk, src: transcode.Source{Path: local}}, nil
}
