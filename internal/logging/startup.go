package logging

import (
	"os"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// StartupLogger collects a function's identity, the parameters and invocation
// targets it talks to, and its resolved configuration, then emits one
// structured event describing the cold start.
type StartupLogger struct {
	name         string
	commitHash   string
	buildTime    string
	initDuration time.Duration

	ssmParams map[string]string
	targets   map[string]string
	features  map[string]bool
	config    map[string]string
}

// NewStartupLogger creates a StartupLogger for the given entry point
// (e.g. "preview-lambda", "preview-worker").
func NewStartupLogger(name string) *StartupLogger {
	return &StartupLogger{
		name:      name,
		ssmParams: make(map[string]string),
		targets:   make(map[string]string),
		features:  make(map[string]bool),
		config:    make(map[string]string),
	}
}

// CommitHash sets the git commit hash baked into the binary at build time.
func (s *StartupLogger) CommitHash(hash string) *StartupLogger {
	s.commitHash = hash
	return s
}

// BuildTime sets the UTC build timestamp baked into the binary at build time.
func (s *StartupLogger) BuildTime(t string) *StartupLogger {
	s.buildTime = t
	return s
}

// SSMParam registers an SSM parameter path. Only the path is logged.
func (s *StartupLogger) SSMParam(label, path string) *StartupLogger {
	s.ssmParams[label] = path
	return s
}

// Target registers an invocation target this function may dispatch to.
func (s *StartupLogger) Target(label, name string) *StartupLogger {
	s.targets[label] = name
	return s
}

func (s *StartupLogger) Feature(name string, enabled bool) *StartupLogger {
	s.features[name] = enabled
	return s
}

// Config registers a non-sensitive configuration key-value pair.
func (s *StartupLogger) Config(key, value string) *StartupLogger {
	s.config[key] = value
	return s
}

func (s *StartupLogger) InitDuration(d time.Duration) *StartupLogger {
	s.initDuration = d
	return s
}

// EnvOrDefault returns the named environment variable, or defaultVal when unset.
func EnvOrDefault(envVar, defaultVal string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return defaultVal
}

// Log emits the collected information as a single INFO event.
func (s *StartupLogger) Log() {
	s.event(log.Info()).Msg("Cold start complete")
}

func (s *StartupLogger) event(evt *zerolog.Event) *zerolog.Event {
	identity := zerolog.Dict().
		Str("name", s.name).
		Str("functionName", os.Getenv("AWS_LAMBDA_FUNCTION_NAME")).
		Str("version", os.Getenv("AWS_LAMBDA_FUNCTION_VERSION")).
		Str("region", os.Getenv("AWS_REGION")).
		Str("memoryMB", os.Getenv("AWS_LAMBDA_FUNCTION_MEMORY_SIZE")).
		Str("goVersion", runtime.Version()).
		Str("arch", runtime.GOARCH).
		Str("logLevel", os.Getenv(EnvLevel))
	if s.commitHash != "" {
		identity = identity.Str("commitHash", s.commitHash)
	}
	if s.buildTime != "" {
		identity = identity.Str("buildTime", s.buildTime)
	}
	evt = evt.Dict("function", identity)

	resources := zerolog.Dict()
	hasResources := false
	for label, m := range map[string]map[string]string{
		"ssmParams": s.ssmParams,
		"targets":   s.targets,
	} {
		if len(m) > 0 {
			resources = resources.Dict(label, dictFromMap(m))
			hasResources = true
		}
	}
	if hasResources {
		evt = evt.Dict("resources", resources)
	}

	if len(s.features) > 0 {
		d := zerolog.Dict()
		for k, v := range s.features {
			d = d.Bool(k, v)
		}
		evt = evt.Dict("features", d)
	}
	if len(s.config) > 0 {
		evt = evt.Dict("config", dictFromMap(s.config))
	}
	if s.initDuration > 0 {
		evt = evt.Dur("initDuration", s.initDuration)
	}
	return evt
}

func dictFromMap(m map[string]string) *zerolog.Event {
	d := zerolog.Dict()
	for k, v := range m {
		d = d.Str(k, v)
	}
	return d
}
