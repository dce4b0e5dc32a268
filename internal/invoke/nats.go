package invoke

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// SubjectPrefix namespaces invocation subjects.
const SubjectPrefix = "previews.invoke."

// Subject returns the NATS subject serving target.
func Subject(target string) string {
	return SubjectPrefix + target
}

// Publisher is the subset of *nats.Conn used for dispatch.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATS dispatches by publishing to a per-target subject. Memory sizes are
// not discoverable over the bus and come from configuration.
type NATS struct {
	pub    Publisher
	memory map[string]int64
}

// NewNATS builds a NATS invoker. memoryMiB maps target names to their
// configured memory ceilings.
func NewNATS(pub Publisher, memoryMiB map[string]int64) *NATS {
	return &NATS{pub: pub, memory: memoryMiB}
}

// InvokeAsync implements Invoker.
func (n *NATS) InvokeAsync(ctx context.Context, target string, payload any) error {
	if target == "" {
		return errors.New("empty target")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload for %s: %w", target, err)
	}
	if err := n.pub.Publish(Subject(target), data); err != nil {
		return fmt.Errorf("publish to %s: %w", Subject(target), err)
	}
	log.Debug().Str("subject", Subject(target)).Int("payloadSize", len(data)).Msg("Published invocation")
	return nil
}

// MemorySize implements Invoker.
func (n *NATS) MemorySize(ctx context.Context, target string) (int64, error) {
	mem, ok := n.memory[target]
	if !ok {
		return 0, fmt.Errorf("no memory size configured for target %s", target)
	}
	return mem, nil
}

// Connect dials NATS with reconnect handling suited to a long-running worker.
func Connect(url, name string) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn().Err(err).Msg("Disconnected from NATS")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("Reconnected to NATS")
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Info().Msg("NATS connection closed")
		}),
	}
	return nats.Connect(url, opts...)
}

// Handler processes one invocation payload.
type Handler func(ctx context.Context, payload []byte) error

// Serve queue-subscribes to target so that each message is handled by one
// worker. Each message runs with a fresh deadline of timeout and with
// SelfName set to target. Messages are handled one at a time per subscription.
func Serve(ctx context.Context, nc *nats.Conn, target string, timeout time.Duration, handle Handler) (*nats.Subscription, error) {
	if target == "" {
		return nil, errors.New("empty target")
	}
	queue := "previews-" + target
	return nc.QueueSubscribe(Subject(target), queue, func(msg *nats.Msg) {
		runCtx, cancel := context.WithTimeout(WithSelf(ctx, target), timeout)
		defer cancel()

		start := time.Now()
		if err := handle(runCtx, msg.Data); err != nil {
			log.Error().Err(err).Str("target", target).Dur("duration", time.Since(start)).Msg("Invocation failed")
			return
		}
		log.Info().Str("target", target).Dur("duration", time.Since(start)).Msg("Invocation complete")
	})
}
