package nip46

import (
	"context"
	"sync"
	"time"
)

// replayStore is satisfied by both ReplayLedger (in-process, single
// bunker instance) and RedisReplayLedger (shared across instances behind
// the same signing key, store_redis.go). Signer.replay holds one of these,
// selected by Policy.ReplayStoreURL.
type replayStore interface {
	CheckAndInsert(ctx context.Context, id string) (isReplay bool, err error)
	Close() error
}

// ReplayLedger tracks recently seen request ids to reject duplicates
// within the replay window, with a periodic sweep reclaiming entries
// once they age out.
type ReplayLedger struct {
	mu     sync.Mutex
	window time.Duration
	seen   map[string]time.Time

	stop chan struct{}
	once sync.Once
}

// NewReplayLedger starts the ledger's background sweep goroutine, which
// runs until Close is called.
func NewReplayLedger(window time.Duration) *ReplayLedger {
	l := &ReplayLedger{
		window: window,
		seen:   make(map[string]time.Time),
		stop:   make(chan struct{}),
	}
	go l.sweepLoop()
	return l
}

// CheckAndInsert reports whether id has already been seen within the
// window. If not, it records id as seen at the current time and returns
// false (not a replay). ctx is accepted to satisfy replayStore alongside
// RedisReplayLedger but is unused: the in-memory map never blocks.
func (l *ReplayLedger) CheckAndInsert(ctx context.Context, id string) (isReplay bool, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if seenAt, ok := l.seen[id]; ok && time.Since(seenAt) < l.window {
		return true, nil
	}
	l.seen[id] = time.Now()
	return false, nil
}

func (l *ReplayLedger) sweepLoop() {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-l.stop:
			return
		}
	}
}

func (l *ReplayLedger) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	for id, seenAt := range l.seen {
		if now.Sub(seenAt) > l.window {
			delete(l.seen, id)
		}
	}
}

// Clear empties the ledger.
func (l *ReplayLedger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen = make(map[string]time.Time)
}

// Close stops the sweep goroutine. Safe to call more than once.
func (l *ReplayLedger) Close() error {
	l.once.Do(func() { close(l.stop) })
	return nil
}
