package failure

import (
	"errors"
	"fmt"
	"testing"
)

func TestReason(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"unsupported", ErrUnsupportedExtension, ReasonUnsupportedExtension},
		{"preview ignored", ErrPreviewIgnored, ReasonUnsupportedExtension},
		{"wrapped fetch", fmt.Errorf("range get: %w", ErrFetchFailed), ReasonFetchFailed},
		{"budget", fmt.Errorf("video.mp4: %w", ErrResourceExceeded), ReasonResourceExceeded},
		{"transcode", fmt.Errorf("ffmpeg: %w", ErrTranscodeFailed), ReasonTranscodeFailed},
		{"upload", fmt.Errorf("put preview.png: %w", ErrUploadFailed), ReasonUploadFailed},
		{"tags", ErrTagWriteFailed, ReasonTagWriteFailed},
		{"routing", ErrRoutingFailed, ReasonRoutingFailed},
		{"other", errors.New("boom"), ReasonUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Reason(tt.err); got != tt.want {
				t.Errorf("Reason(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

func TestPreviewIgnoredMessage(t *testing.T) {
	if got := ErrPreviewIgnored.Error(); got != "preview files are ignored: file extension not supported" {
		t.Errorf("unexpected message %q", got)
	}
}

func TestFatal(t *testing.T) {
	if Fatal(nil) {
		t.Error("nil must not be fatal")
	}
	if Fatal(fmt.Errorf("put tagging: %w", ErrTagWriteFailed)) {
		t.Error("tag write failure must not be fatal")
	}
	if !Fatal(ErrTranscodeFailed) {
		t.Error("transcode failure must be fatal")
	}
}
