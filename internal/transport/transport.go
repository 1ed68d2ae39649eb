// Package transport defines the relay transport the nip46 bunker and
// client depend on, plus a gorilla/websocket-backed default
// implementation adapted from the teacher's relay_pool.go connection
// pool and read-loop design.
package transport

import (
	"context"

	"github.com/nostrkit/remotesign/nostrevent"
)

// RelayTransport is the upward interface the nip46 core consumes from
// its environment: connect, publish, subscribe/unsubscribe, and a clean
// shutdown. Implementations may invoke Subscribe's handler from their
// own goroutines, including concurrently for events from different
// relays. The nip46 core does not serialize these calls: each piece of
// shared state it touches (sessions, replay ledger, rate-limit budgets,
// pending requests) is guarded by its own lock.
type RelayTransport interface {
	Connect(ctx context.Context, relays []string) error
	Publish(ctx context.Context, event *nostrevent.Event) error
	Subscribe(ctx context.Context, filter map[string]any, handler func(*nostrevent.Event)) (string, error)
	Unsubscribe(subID string) error
	DisconnectAll()
}
