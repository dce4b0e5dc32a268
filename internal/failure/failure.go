// Package failure defines the error taxonomy shared by the preview generator,
// the tag synchronizer and the scanner.
//
// Callers wrap a sentinel with context (fmt.Errorf("...: %w", failure.ErrFetchFailed))
// and consumers classify with errors.Is or Reason.
package failure

import (
	"errors"
	"fmt"
)

// Sentinel errors, one per failure reason.
var (
	ErrUnsupportedExtension = errors.New("file extension not supported")
	ErrResourceExceeded     = errors.New("file exceeds memory and disk budget")
	ErrFetchFailed          = errors.New("failed to fetch object")
	ErrTranscodeFailed      = errors.New("transcode failed")
	ErrUploadFailed         = errors.New("failed to upload artifact")
	ErrTagWriteFailed       = errors.New("failed to write tags")
	ErrRoutingFailed        = errors.New("failed to route invocation")
)

// ErrPreviewIgnored is returned for keys inside the artifact namespace.
// It is classified as UnsupportedExtension.
var ErrPreviewIgnored = fmt.Errorf("preview files are ignored: %w", ErrUnsupportedExtension)

// Reason values used in error records and metric dimensions.
const (
	ReasonUnsupportedExtension = "UnsupportedExtension"
	ReasonResourceExceeded     = "ResourceExceeded"
	ReasonFetchFailed          = "FetchFailed"
	ReasonTranscodeFailed      = "TranscodeFailed"
	ReasonUploadFailed         = "UploadFailed"
	ReasonTagWriteFailed       = "TagWriteFailed"
	ReasonRoutingFailed        = "InvocationRoutingFailed"
	ReasonUnknown              = "Unknown"
)

var reasons = []struct {
	err    error
	reason string
}{
	{ErrUnsupportedExtension, ReasonUnsupportedExtension},
	{ErrResourceExceeded, ReasonResourceExceeded},
	{ErrFetchFailed, ReasonFetchFailed},
	{ErrTranscodeFailed, ReasonTranscodeFailed},
	{ErrUploadFailed, ReasonUploadFailed},
	{ErrTagWriteFailed, ReasonTagWriteFailed},
	{ErrRoutingFailed, ReasonRoutingFailed},
}

// Reason returns the stable reason name for err, or ReasonUnknown.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return ReasonUnknown
}

// Fatal reports whether err should fail the invocation. Tag write failures
// after a successful upload are logged but do not abort the run.
func Fatal(err error) bool {
	return err != nil && !errors.Is(err, ErrTagWriteFailed)
}
