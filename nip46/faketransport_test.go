package nip46

import (
	"context"
	"sync"

	"github.com/nostrkit/remotesign/nostrevent"
)

// fakeBus is an in-process RelayTransport shared by a signer and a
// client in tests, standing in for a real relay: Publish delivers
// directly to every other subscriber's handler, synchronously.
type fakeBus struct {
	mu   sync.Mutex
	subs map[string]func(*nostrevent.Event)
	next int
}

func newFakeBus() *fakeBus {
	return &fakeBus{subs: make(map[string]func(*nostrevent.Event))}
}

// endpoint returns a transport.RelayTransport-shaped handle bound to
// this bus; multiple endpoints on the same bus see each other's publishes.
func (b *fakeBus) endpoint() *fakeTransport {
	return &fakeTransport{bus: b}
}

type fakeTransport struct {
	bus    *fakeBus
	mu     sync.Mutex
	subIDs []string
}

func (t *fakeTransport) Connect(ctx context.Context, relays []string) error {
	return nil
}

func (t *fakeTransport) Publish(ctx context.Context, event *nostrevent.Event) error {
	t.bus.mu.Lock()
	handlers := make([]func(*nostrevent.Event), 0, len(t.bus.subs))
	for id, h := range t.bus.subs {
		if !t.owns(id) {
			handlers = append(handlers, h)
		}
	}
	t.bus.mu.Unlock()
	for _, h := range handlers {
		h(event)
	}
	return nil
}

func (t *fakeTransport) owns(subID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range t.subIDs {
		if id == subID {
			return true
		}
	}
	return false
}

func (t *fakeTransport) Subscribe(ctx context.Context, filter map[string]any, handler func(*nostrevent.Event)) (string, error) {
	t.bus.mu.Lock()
	t.bus.next++
	id := "sub" + string(rune('0'+t.bus.next))
	t.bus.subs[id] = handler
	t.bus.mu.Unlock()

	t.mu.Lock()
	t.subIDs = append(t.subIDs, id)
	t.mu.Unlock()
	return id, nil
}

func (t *fakeTransport) Unsubscribe(subID string) error {
	t.bus.mu.Lock()
	delete(t.bus.subs, subID)
	t.bus.mu.Unlock()
	return nil
}

func (t *fakeTransport) DisconnectAll() {
	t.mu.Lock()
	ids := t.subIDs
	t.subIDs = nil
	t.mu.Unlock()

	t.bus.mu.Lock()
	for _, id := range ids {
		delete(t.bus.subs, id)
	}
	t.bus.mu.Unlock()
}
