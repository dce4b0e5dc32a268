package invoke

import (
	"context"
	"fmt"

	"github.com/fpang/object-previews/internal/failure"
	"github.com/fpang/object-previews/internal/formats"
	"github.com/rs/zerolog/log"
)

// Router sends video work to the larger-memory target and images and
// documents to the smaller one.
type Router struct {
	Video string
	Light string
}

// NewRouter compares the memory sizes of the two configured targets. Which
// name is "high" or "low" in configuration does not matter; only the
// reported sizes do.
func NewRouter(ctx context.Context, inv Invoker, high, low string) (Router, error) {
	highMem, err := inv.MemorySize(ctx, high)
	if err != nil {
		return Router{}, fmt.Errorf("%w: %v", failure.ErrRoutingFailed, err)
	}
	lowMem, err := inv.MemorySize(ctx, low)
	if err != nil {
		return Router{}, fmt.Errorf("%w: %v", failure.ErrRoutingFailed, err)
	}

	r := Router{Video: low, Light: high}
	if highMem > lowMem {
		r = Router{Video: high, Light: low}
	}
	log.Debug().
		Str("video", r.Video).
		Str("light", r.Light).
		Int64(high, highMem).
		Int64(low, lowMem).
		Msg("Resolved routing targets")
	return r, nil
}

// Target returns the target for kind.
func (r Router) Target(kind formats.Kind) (string, error) {
	switch kind {
	case formats.KindVideo:
		return r.Video, nil
	case formats.KindImage, formats.KindDocument:
		return r.Light, nil
	default:
		return "", failure.ErrUnsupportedExtension
	}
}

// Dispatch invokes the target for kind with payload.
func (r Router) Dispatch(ctx context.Context, inv Invoker, kind formats.Kind, payload any) (string, error) {
	target, err := r.Target(kind)
	if err != nil {
		return "", err
	}
	if err := inv.InvokeAsync(ctx, target, payload); err != nil {
		return target, fmt.Errorf("%w: %v", failure.ErrRoutingFailed, err)
	}
	return target, nil
}
