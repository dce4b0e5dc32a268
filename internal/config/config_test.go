package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"github.com/fpang/object-previews/internal/formats"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	if cfg.PreviewDuration != 10 || cfg.PreviewAudio {
		t.Errorf("unexpected preview settings: %d %v", cfg.PreviewDuration, cfg.PreviewAudio)
	}
	if cfg.HighResourceTarget != "previews-video" || cfg.LowResourceTarget != "previews-image" {
		t.Errorf("unexpected targets: %s %s", cfg.HighResourceTarget, cfg.LowResourceTarget)
	}
	if len(cfg.Encoders) != 4 || cfg.Encoders[0] != "libx264" {
		t.Errorf("encoders = %v", cfg.Encoders)
	}
	if got := cfg.Limits("gcs"); got.MaxMemoryMB != 2048 {
		t.Errorf("gcs limits = %+v", got)
	}
	if got := cfg.TargetMemory()["previews-video"]; got != 3008 {
		t.Errorf("video target memory = %d", got)
	}

	table := cfg.FormatTable()
	for key, want := range map[string]formats.Kind{
		"clip.mpeg":  formats.KindVideo,
		"photo.HEIC": formats.KindImage,
		"report.pdf": formats.KindDocument,
		"notes.asd":  formats.KindUnknown,
	} {
		if got := table.Classify(key); got != want {
			t.Errorf("Classify(%q) = %q, want %q", key, got, want)
		}
	}
}

func TestParseOverlaysDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
preview_duration: 30
preview_audio: true
formats:
  video: [.mp4]
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.PreviewDuration != 30 || !cfg.PreviewAudio {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.ThumbnailMaxDimension != 800 {
		t.Errorf("default lost: %d", cfg.ThumbnailMaxDimension)
	}
	if len(cfg.Formats.Video) != 1 || len(cfg.Formats.Image) == 0 {
		t.Errorf("formats = %+v", cfg.Formats)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"bad yaml", "preview_duration: [oops"},
		{"empty target", "high_resource_target: \"\""},
		{"bad role", "targets:\n  x:\n    role: painter\n"},
		{"no formats", "formats:\n  video: []\n  image: []\n  document: []\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.data)); err == nil {
				t.Error("expected error")
			}
		})
	}

	cfg, err := Parse(nil)
	if err != nil || cfg.PreviewDuration != 10 {
		t.Errorf("empty document should yield defaults: %v", err)
	}
}

func TestValidateTargets(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantMsg string
	}{
		{
			name:    "zero timeout",
			data:    "targets:\n  slow:\n    memory_mb: 256\n    timeout_seconds: 0\n    role: scanner\n",
			wantMsg: "target slow: timeout_seconds must be positive",
		},
		{
			name:    "missing memory",
			data:    "targets:\n  tiny:\n    timeout_seconds: 60\n    role: tagsync\n",
			wantMsg: "target tiny: memory_mb must be positive",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			if err == nil || !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("expected %q, got %v", tt.wantMsg, err)
			}
		})
	}

	for name, target := range Default().Targets {
		if target.TimeoutSeconds <= 0 || target.MemoryMB <= 0 {
			t.Errorf("default target %s = %+v", name, target)
		}
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte("preview_duration: 5\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil || cfg.PreviewDuration != 5 {
		t.Errorf("Load = %+v, %v", cfg, err)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Error("expected error for missing file")
	}
	if cfg, err := Load(""); err != nil || cfg.PreviewDuration != 10 {
		t.Errorf("empty path should return defaults: %v", err)
	}
}

type fakeSSM struct {
	value string
	err   error
	asked string
}

func (f *fakeSSM) GetParameter(ctx context.Context, in *ssm.GetParameterInput, opts ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.asked = aws.ToString(in.Name)
	if f.err != nil {
		return nil, f.err
	}
	return &ssm.GetParameterOutput{Parameter: &ssmtypes.Parameter{Value: aws.String(f.value)}}, nil
}

func TestFromEnvironment(t *testing.T) {
	t.Run("ssm", func(t *testing.T) {
		t.Setenv(EnvSSMParam, "/previews/config")
		t.Setenv(EnvHighTarget, "big-fn")
		client := &fakeSSM{value: "preview_duration: 45\n"}

		cfg, err := FromEnvironment(context.Background(), client)
		if err != nil {
			t.Fatalf("FromEnvironment: %v", err)
		}
		if client.asked != "/previews/config" {
			t.Errorf("asked for %q", client.asked)
		}
		if cfg.PreviewDuration != 45 || cfg.HighResourceTarget != "big-fn" {
			t.Errorf("cfg = %+v", cfg)
		}
	})

	t.Run("ssm error", func(t *testing.T) {
		t.Setenv(EnvSSMParam, "/previews/config")
		boom := errors.New("AccessDenied")
		if _, err := FromEnvironment(context.Background(), &fakeSSM{err: boom}); !errors.Is(err, boom) {
			t.Errorf("expected SSM error, got %v", err)
		}
		if _, err := FromEnvironment(context.Background(), nil); err == nil {
			t.Error("expected error without SSM client")
		}
	})

	t.Run("file and env", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "c.yml")
		if err := os.WriteFile(path, []byte("low_resource_target: small-fn\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		t.Setenv(EnvSSMParam, "")
		t.Setenv(EnvFile, path)
		t.Setenv(EnvDuration, "90")
		t.Setenv(EnvAudio, "true")

		cfg, err := FromEnvironment(context.Background(), nil)
		if err != nil {
			t.Fatalf("FromEnvironment: %v", err)
		}
		if cfg.LowResourceTarget != "small-fn" || cfg.PreviewDuration != 90 || !cfg.PreviewAudio {
			t.Errorf("cfg = %+v", cfg)
		}
	})

	t.Run("bad env", func(t *testing.T) {
		t.Setenv(EnvSSMParam, "")
		t.Setenv(EnvFile, "")
		t.Setenv(EnvAudio, "sometimes")
		if _, err := FromEnvironment(context.Background(), nil); err == nil {
			t.Error("expected error for invalid PREVIEW_AUDIO")
		}
	})
}
