// Package metrics writes preview pipeline metrics as CloudWatch Embedded
// Metric Format lines. CloudWatch Logs extracts the metrics from the function
// output, so emitting one costs a write and no API call.
//
// See: https://docs.aws.amazon.com/AmazonCloudWatch/latest/monitoring/CloudWatch_Embedded_Metric_Format_Specification.html
package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"
)

// Namespace is the CloudWatch namespace for every preview metric.
const Namespace = "ObjectPreviews"

// Unit is a CloudWatch metric unit.
type Unit string

const (
	Milliseconds Unit = "Milliseconds"
	Count        Unit = "Count"
	Bytes        Unit = "Bytes"
)

// Dimension keys.
const (
	DimFunction = "FunctionName"
	DimKind     = "Kind"
	DimMethod   = "Method"
	DimReason   = "Reason"
)

// Sink writes EMF lines for one process. Lines from concurrent events are
// never interleaved.
type Sink struct {
	mu       sync.Mutex
	out      io.Writer
	function string
	now      func() time.Time
}

// NewSink writes to out and tags every event with the Lambda function name
// when one is set.
func NewSink(out io.Writer) *Sink {
	return &Sink{out: out, function: os.Getenv("AWS_LAMBDA_FUNCTION_NAME"), now: time.Now}
}

// Stdout is the sink Lambda functions use.
func Stdout() *Sink { return NewSink(os.Stdout) }

// Event starts a document. Nothing is written until Emit.
func (s *Sink) Event() *Event {
	e := &Event{
		sink:   s,
		dims:   make(map[string]string),
		values: make(map[string]sample),
		notes:  make(map[string]any),
	}
	if s.function != "" {
		e.dims[DimFunction] = s.function
	}
	return e
}

type sample struct {
	value float64
	unit  Unit
}

// Event is one EMF document. It is not safe for concurrent use.
type Event struct {
	sink   *Sink
	dims   map[string]string
	values map[string]sample
	notes  map[string]any
}

// With sets a dimension.
func (e *Event) With(key, value string) *Event {
	e.dims[key] = value
	return e
}

// Add records a metric value.
func (e *Event) Add(name string, value float64, unit Unit) *Event {
	e.values[name] = sample{value: value, unit: unit}
	return e
}

// Inc records a count of one.
func (e *Event) Inc(name string) *Event { return e.Add(name, 1, Count) }

// Elapsed records d in milliseconds.
func (e *Event) Elapsed(name string, d time.Duration) *Event {
	return e.Add(name, float64(d.Milliseconds()), Milliseconds)
}

// Note adds a log field that is searchable but not a metric.
func (e *Event) Note(key string, value any) *Event {
	e.notes[key] = value
	return e
}

type definition struct {
	Name string `json:"Name"`
	Unit Unit   `json:"Unit"`
}

type directive struct {
	Timestamp         int64            `json:"Timestamp"`
	CloudWatchMetrics []metricsSection `json:"CloudWatchMetrics"`
}

type metricsSection struct {
	Namespace  string       `json:"Namespace"`
	Dimensions [][]string   `json:"Dimensions"`
	Metrics    []definition `json:"Metrics"`
}

// Emit writes the event as one line. An event without metrics writes nothing.
func (e *Event) Emit() error {
	if len(e.values) == 0 {
		return nil
	}

	doc := make(map[string]any, len(e.notes)+len(e.dims)+len(e.values)+1)
	for k, v := range e.notes {
		doc[k] = v
	}
	keys := make([]string, 0, len(e.dims))
	for k, v := range e.dims {
		doc[k] = v
		keys = append(keys, k)
	}
	sort.Strings(keys)
	defs := make([]definition, 0, len(e.values))
	for name, s := range e.values {
		doc[name] = s.value
		defs = append(defs, definition{Name: name, Unit: s.unit})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	doc["_aws"] = directive{
		Timestamp: e.sink.now().UnixMilli(),
		CloudWatchMetrics: []metricsSection{{
			Namespace:  Namespace,
			Dimensions: [][]string{keys},
			Metrics:    defs,
		}},
	}

	line, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode metrics: %w", err)
	}
	e.sink.mu.Lock()
	defer e.sink.mu.Unlock()
	_, err = e.sink.out.Write(append(line, '\n'))
	return err
}
