// Package invoke dispatches work to other compute targets asynchronously.
//
// On AWS a target is a Lambda function name; on the worker transport it is a
// NATS subject suffix served by cmd/preview-worker. Both expose the memory
// size of a target so routing can send heavy work to the larger one.
package invoke

import (
	"context"
	"math"
	"time"

	"github.com/aws/aws-lambda-go/lambdacontext"
)

// Invoker starts a target without waiting for it to finish.
type Invoker interface {
	InvokeAsync(ctx context.Context, target string, payload any) error
	// MemorySize returns the memory ceiling of target in MiB.
	MemorySize(ctx context.Context, target string) (int64, error)
}

// RemainingTime is how long the current invocation may still run, taken from
// the context deadline. Without a deadline it is effectively unbounded.
func RemainingTime(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return time.Duration(math.MaxInt64)
	}
	return time.Until(deadline)
}

type selfKey struct{}

// WithSelf records the target name of the running invocation.
func WithSelf(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, selfKey{}, name)
}

// SelfName returns the target name of the running invocation: the value set
// by WithSelf, else the Lambda function name.
func SelfName(ctx context.Context) string {
	if name, ok := ctx.Value(selfKey{}).(string); ok && name != "" {
		return name
	}
	return lambdacontext.FunctionName
}
