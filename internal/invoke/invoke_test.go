package invoke

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/aws/aws-sdk-go-v2/aws"
	lambdasvc "github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"

	"github.com/fpang/object-previews/internal/failure"
	"github.com/fpang/object-previews/internal/formats"
)

type fakeLambda struct {
	memory  map[string]int32
	invoked []*lambdasvc.InvokeInput
	err     error
}

func (f *fakeLambda) Invoke(ctx context.Context, in *lambdasvc.InvokeInput, opts ...func(*lambdasvc.Options)) (*lambdasvc.InvokeOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.invoked = append(f.invoked, in)
	return &lambdasvc.InvokeOutput{StatusCode: 202}, nil
}

func (f *fakeLambda) GetFunctionConfiguration(ctx context.Context, in *lambdasvc.GetFunctionConfigurationInput, opts ...func(*lambdasvc.Options)) (*lambdasvc.GetFunctionConfigurationOutput, error) {
	mem, ok := f.memory[aws.ToString(in.FunctionName)]
	if !ok {
		return nil, errors.New("ResourceNotFoundException")
	}
	return &lambdasvc.GetFunctionConfigurationOutput{MemorySize: aws.Int32(mem)}, nil
}

func TestLambdaInvokeAsync(t *testing.T) {
	fake := &fakeLambda{}
	inv := NewLambda(fake)

	if err := inv.InvokeAsync(context.Background(), "previews-image", map[string]string{"bucket": "media"}); err != nil {
		t.Fatalf("InvokeAsync: %v", err)
	}
	if len(fake.invoked) != 1 {
		t.Fatalf("expected 1 invocation, got %d", len(fake.invoked))
	}
	in := fake.invoked[0]
	if aws.ToString(in.FunctionName) != "previews-image" {
		t.Errorf("FunctionName = %q", aws.ToString(in.FunctionName))
	}
	if in.InvocationType != lambdatypes.InvocationTypeEvent {
		t.Errorf("InvocationType = %q, want Event", in.InvocationType)
	}
	var payload map[string]string
	if err := json.Unmarshal(in.Payload, &payload); err != nil || payload["bucket"] != "media" {
		t.Errorf("payload = %s (%v)", in.Payload, err)
	}

	fake.err = errors.New("throttled")
	if err := inv.InvokeAsync(context.Background(), "x", nil); err == nil {
		t.Error("expected error from client")
	}
}

func TestLambdaMemorySize(t *testing.T) {
	inv := NewLambda(&fakeLambda{memory: map[string]int32{"video": 3008}})

	got, err := inv.MemorySize(context.Background(), "video")
	if err != nil || got != 3008 {
		t.Errorf("MemorySize = %d, %v", got, err)
	}
	if _, err := inv.MemorySize(context.Background(), "missing"); err == nil {
		t.Error("expected error for unknown function")
	}
}

type fakePublisher struct {
	subjects []string
	data     [][]byte
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	f.subjects = append(f.subjects, subject)
	f.data = append(f.data, data)
	return nil
}

func TestNATSInvoker(t *testing.T) {
	pub := &fakePublisher{}
	inv := NewNATS(pub, map[string]int64{"video": 4096})

	if err := inv.InvokeAsync(context.Background(), "video", map[string]int{"n": 1}); err != nil {
		t.Fatalf("InvokeAsync: %v", err)
	}
	if len(pub.subjects) != 1 || pub.subjects[0] != "previews.invoke.video" {
		t.Errorf("subjects = %v", pub.subjects)
	}
	if string(pub.data[0]) != `{"n":1}` {
		t.Errorf("data = %s", pub.data[0])
	}
	if err := inv.InvokeAsync(context.Background(), "", nil); err == nil {
		t.Error("expected error for empty target")
	}

	if mem, err := inv.MemorySize(context.Background(), "video"); err != nil || mem != 4096 {
		t.Errorf("MemorySize = %d, %v", mem, err)
	}
	if _, err := inv.MemorySize(context.Background(), "image"); err == nil {
		t.Error("expected error for unconfigured target")
	}
}

func TestNewRouter(t *testing.T) {
	tests := []struct {
		name      string
		memory    map[string]int64
		wantVideo string
		wantLight string
	}{
		{"high is larger", map[string]int64{"hi": 3008, "lo": 1024}, "hi", "lo"},
		{"names swapped in config", map[string]int64{"hi": 512, "lo": 2048}, "lo", "hi"},
		{"equal sizes", map[string]int64{"hi": 1024, "lo": 1024}, "lo", "hi"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewRouter(context.Background(), NewNATS(&fakePublisher{}, tt.memory), "hi", "lo")
			if err != nil {
				t.Fatalf("NewRouter: %v", err)
			}
			if r.Video != tt.wantVideo || r.Light != tt.wantLight {
				t.Errorf("router = %+v, want video=%s light=%s", r, tt.wantVideo, tt.wantLight)
			}
		})
	}

	_, err := NewRouter(context.Background(), NewNATS(&fakePublisher{}, nil), "hi", "lo")
	if !errors.Is(err, failure.ErrRoutingFailed) {
		t.Errorf("expected ErrRoutingFailed, got %v", err)
	}
}

func TestRouterTarget(t *testing.T) {
	r := Router{Video: "big", Light: "small"}

	tests := []struct {
		kind    formats.Kind
		want    string
		wantErr bool
	}{
		{formats.KindVideo, "big", false},
		{formats.KindImage, "small", false},
		{formats.KindDocument, "small", false},
		{formats.KindUnknown, "", true},
	}
	for _, tt := range tests {
		got, err := r.Target(tt.kind)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("Target(%q) = (%q, %v), want %q", tt.kind, got, err, tt.want)
		}
	}

	pub := &fakePublisher{}
	target, err := r.Dispatch(context.Background(), NewNATS(pub, nil), formats.KindDocument, "x")
	if err != nil || target != "small" || pub.subjects[0] != Subject("small") {
		t.Errorf("Dispatch = (%q, %v), subjects %v", target, err, pub.subjects)
	}
}

func TestRemainingTime(t *testing.T) {
	if RemainingTime(context.Background()) < 24*time.Hour {
		t.Error("expected effectively unbounded time without deadline")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	got := RemainingTime(ctx)
	if got <= 5*time.Second || got > 10*time.Second {
		t.Errorf("RemainingTime = %v", got)
	}
}

func TestSelfName(t *testing.T) {
	prev := lambdacontext.FunctionName
	lambdacontext.FunctionName = "previews-checker"
	defer func() { lambdacontext.FunctionName = prev }()

	if got := SelfName(context.Background()); got != "previews-checker" {
		t.Errorf("SelfName = %q", got)
	}
	if got := SelfName(WithSelf(context.Background(), "scanner")); got != "scanner" {
		t.Errorf("SelfName with override = %q", got)
	}
}
