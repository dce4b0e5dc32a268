package scanner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"testing"
	"time"

	lambdaevents "github.com/aws/aws-lambda-go/events"

	"github.com/fpang/object-previews/internal/artifact"
	"github.com/fpang/object-previews/internal/events"
	"github.com/fpang/object-previews/internal/failure"
	"github.com/fpang/object-previews/internal/formats"
	"github.com/fpang/object-previews/internal/invoke"
	"github.com/fpang/object-previews/internal/objstore"
)

const (
	bucket  = "media"
	checker = "previews-checker"
)

var scanStart = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

type invocation struct {
	target  string
	payload any
}

type fakeInvoker struct {
	calls []invocation
	err   error
}

func (f *fakeInvoker) InvokeAsync(ctx context.Context, target string, payload any) error {
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, invocation{target, payload})
	return nil
}

func (f *fakeInvoker) MemorySize(ctx context.Context, target string) (int64, error) {
	return map[string]int64{"previews-video": 3008, "previews-image": 1024}[target], nil
}

// dispatched returns the keys sent to generator targets.
func (f *fakeInvoker) dispatched(t *testing.T) []string {
	t.Helper()
	var keys []string
	for _, call := range f.calls {
		if call.target == checker {
			continue
		}
		ev, ok := call.payload.(lambdaevents.S3Event)
		if !ok {
			t.Fatalf("unexpected payload %T", call.payload)
		}
		raw, _ := json.Marshal(ev)
		parsed, err := events.Parse(raw)
		if err != nil {
			t.Fatal(err)
		}
		keys = append(keys, parsed[0].Key)
	}
	return keys
}

// continuation returns the self re-invocation payload, if any.
func (f *fakeInvoker) continuation() (events.Checkpoint, bool) {
	for _, call := range f.calls {
		if call.target == checker {
			return call.payload.(events.Checkpoint), true
		}
	}
	return events.Checkpoint{}, false
}

func seedBucket() *objstore.Memory {
	mem := objstore.NewMemory()
	old := scanStart.Add(-24 * time.Hour)
	done := artifact.MarkComplete(nil, artifact.NewNamespace("done"))

	for i := range 12 {
		mem.Seed(bucket, fmt.Sprintf("photos/img-%02d.jpg", i), []byte("x"), old, nil)
	}
	mem.Seed(bucket, "photos/clip a+b.MP4", []byte("x"), old, nil)
	mem.Seed(bucket, "photos/report.pdf", []byte("x"), old, nil)
	mem.Seed(bucket, "photos/done.png", []byte("x"), old, done)
	mem.Seed(bucket, "photos/notes.asd", []byte("x"), old, nil)
	mem.Seed(bucket, "photos/new.jpg", []byte("x"), scanStart.Add(time.Minute), nil)
	mem.Seed(bucket, "photos/thumbs.asp-preview/preview.png", []byte("x"), old, nil)
	mem.Seed(bucket, "previews/abc.asp-preview/preview.png", []byte("x"), old, nil)
	mem.Seed(bucket, "other/img.jpg", []byte("x"), old, nil)
	return mem
}

func newTestScanner(store objstore.Store, inv invoke.Invoker, remaining func(context.Context) time.Duration) *Scanner {
	return New(store, inv, formats.Default(), "previews-video", "previews-image",
		WithRemainingTime(remaining),
		WithClock(func() time.Time { return scanStart }),
		WithPageSize(4),
		WithMetricsWriter(io.Discard),
	)
}

func plenty(context.Context) time.Duration { return time.Hour }

// allowing returns a remaining-time function that reports enough time for n
// checks and then too little.
func allowing(n int) func(context.Context) time.Duration {
	calls := 0
	return func(context.Context) time.Duration {
		calls++
		if calls <= n {
			return time.Minute
		}
		return time.Second
	}
}

func TestScanSinglePass(t *testing.T) {
	inv := &fakeInvoker{}
	sum, err := newTestScanner(seedBucket(), inv, plenty).Scan(context.Background(), events.Checkpoint{Bucket: bucket, Path: "photos/"})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	got := inv.dispatched(t)
	if len(got) != 14 {
		t.Fatalf("dispatched %d keys: %v", len(got), got)
	}
	for _, key := range got {
		switch key {
		case "photos/done.png", "photos/notes.asd", "photos/new.jpg", "photos/thumbs.asp-preview/preview.png":
			t.Errorf("ineligible key dispatched: %s", key)
		}
	}
	if sum.Continued || sum.Marker != "" {
		t.Errorf("single pass must not continue: %+v", sum)
	}
	if sum.Visited != 18 || sum.Dispatched != 14 || sum.Skipped != 4 {
		t.Errorf("summary = %+v", sum)
	}

	keys := inv.dispatched(t)
	for i, call := range inv.calls {
		want := "previews-image"
		if keys[i] == "photos/clip a+b.MP4" {
			want = "previews-video"
		}
		if call.target != want {
			t.Errorf("%s routed to %s, want %s", keys[i], call.target, want)
		}
	}
}

func TestScanChunksMatchSinglePass(t *testing.T) {
	single := &fakeInvoker{}
	if _, err := newTestScanner(seedBucket(), single, plenty).Scan(context.Background(), events.Checkpoint{Bucket: bucket, Path: "photos/"}); err != nil {
		t.Fatal(err)
	}
	want := single.dispatched(t)

	for _, perChunk := range []int{0, 1, 3, 5} {
		t.Run(fmt.Sprintf("allow %d", perChunk), func(t *testing.T) {
			mem := seedBucket()
			ctx := invoke.WithSelf(context.Background(), checker)
			raw := []byte(`{"bucket":"media","path":"photos/"}`)

			var got []string
			startTimes := map[string]bool{}
			for chunks := 0; ; chunks++ {
				if chunks > 50 {
					t.Fatal("scan did not terminate")
				}
				inv := &fakeInvoker{}
				sum, err := newTestScanner(mem, inv, allowing(perChunk)).Handle(ctx, raw)
				if err != nil {
					t.Fatalf("chunk %d: %v", chunks, err)
				}
				if sum.Visited == 0 && sum.Continued {
					t.Fatal("chunk made no progress")
				}
				startTimes[sum.StartTime] = true
				got = append(got, inv.dispatched(t)...)

				next, ok := inv.continuation()
				if !ok {
					break
				}
				if next.Marker != sum.Marker || next.StartTime == "" {
					t.Fatalf("bad checkpoint %+v for summary %+v", next, sum)
				}
				raw, _ = json.Marshal(next)
			}

			if len(startTimes) != 1 {
				t.Errorf("start time changed across chunks: %v", startTimes)
			}
			sort.Strings(got)
			sortedWant := append([]string(nil), want...)
			sort.Strings(sortedWant)
			if fmt.Sprint(got) != fmt.Sprint(sortedWant) {
				t.Errorf("chunked dispatch\n got %v\nwant %v", got, sortedWant)
			}
		})
	}
}

func TestScanStartTimeIsFixed(t *testing.T) {
	mem := objstore.NewMemory()
	mem.Seed(bucket, "a.jpg", []byte("x"), scanStart.Add(-time.Hour), nil)
	mem.Seed(bucket, "b.jpg", []byte("x"), scanStart.Add(time.Hour), nil)

	inv := &fakeInvoker{}
	cp := events.Checkpoint{Bucket: bucket, Path: "", StartTime: scanStart.Add(-2 * time.Hour).Format(time.RFC3339)}
	sum, err := newTestScanner(mem, inv, plenty).Scan(context.Background(), cp)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Dispatched != 0 || sum.Skipped != 2 {
		t.Errorf("objects newer than the recorded start must be skipped: %+v", sum)
	}
}

func TestScanErrors(t *testing.T) {
	t.Run("missing params", func(t *testing.T) {
		_, err := newTestScanner(objstore.NewMemory(), &fakeInvoker{}, plenty).Handle(context.Background(), []byte(`{"bucket":"media"}`))
		if !errors.Is(err, events.ErrMissingParams) {
			t.Errorf("expected ErrMissingParams, got %v", err)
		}
	})

	t.Run("dispatch failure", func(t *testing.T) {
		inv := &fakeInvoker{err: errors.New("throttled")}
		_, err := newTestScanner(seedBucket(), inv, plenty).Scan(context.Background(), events.Checkpoint{Bucket: bucket, Path: "photos/"})
		if !errors.Is(err, failure.ErrRoutingFailed) {
			t.Errorf("expected routing failure, got %v", err)
		}
	})

	t.Run("no self name", func(t *testing.T) {
		_, err := newTestScanner(seedBucket(), &fakeInvoker{}, allowing(0)).Scan(context.Background(), events.Checkpoint{Bucket: bucket, Path: "photos/"})
		if !errors.Is(err, failure.ErrRoutingFailed) {
			t.Errorf("expected routing failure, got %v", err)
		}
	})

	t.Run("listing failure", func(t *testing.T) {
		mem := seedBucket()
		boom := errors.New("AccessDenied")
		mem.Fail("List", boom)
		_, err := newTestScanner(mem, &fakeInvoker{}, plenty).Scan(context.Background(), events.Checkpoint{Bucket: bucket, Path: "photos/"})
		if !errors.Is(err, boom) {
			t.Errorf("expected list error, got %v", err)
		}
	})
}
