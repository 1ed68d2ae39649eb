package transport

import (
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nostrkit/remotesign/internal/netutil"
	"github.com/nostrkit/remotesign/nostrevent"
)

const (
	idleConnTimeout  = 2 * time.Minute
	cleanupInterval  = 60 * time.Second
	dialTimeout      = 10 * time.Second
	writeTimeout     = 10 * time.Second
)

type subscription struct {
	id      string
	handler func(*nostrevent.Event)
	relay   string
}

type relayConn struct {
	conn         *websocket.Conn
	relayURL     string
	mu           sync.Mutex
	writeMu      sync.Mutex
	subs         map[string]*subscription
	closed       bool
	lastActivity time.Time
}

// WebsocketTransport is the default RelayTransport, pooling one
// connection per relay URL and fanning inbound EVENT messages out to
// the subscription that requested them.
type WebsocketTransport struct {
	mu    sync.RWMutex
	conns map[string]*relayConn

	stopCleanup chan struct{}
	once        sync.Once
}

// NewWebsocketTransport creates a transport with its idle-connection
// cleanup loop already running.
func NewWebsocketTransport() *WebsocketTransport {
	t := &WebsocketTransport{
		conns:       make(map[string]*relayConn),
		stopCleanup: make(chan struct{}),
	}
	go t.cleanupLoop()
	return t
}

func (t *WebsocketTransport) Connect(ctx context.Context, relays []string) error {
	for _, r := range relays {
		if _, err := t.getOrCreateConn(ctx, r); err != nil {
			slog.Warn("transport: connect failed", "relay", r, "error", err)
		}
	}
	return nil
}

func (t *WebsocketTransport) getOrCreateConn(ctx context.Context, relayURL string) (*relayConn, error) {
	if !netutil.IsRelayURLSafe(relayURL) {
		return nil, errors.New("transport: relay URL blocked")
	}

	t.mu.RLock()
	rc := t.conns[relayURL]
	t.mu.RUnlock()
	if rc != nil && !rc.isClosed() {
		return rc, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	rc = t.conns[relayURL]
	if rc != nil && !rc.isClosed() {
		return rc, nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, relayURL, nil)
	if err != nil {
		return nil, err
	}

	rc = &relayConn{
		conn:         conn,
		relayURL:     relayURL,
		subs:         make(map[string]*subscription),
		lastActivity: time.Now(),
	}
	t.conns[relayURL] = rc
	go t.readLoop(rc)
	return rc, nil
}

func (rc *relayConn) isClosed() bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.closed
}

func (rc *relayConn) markClosed() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.closed {
		return
	}
	rc.closed = true
	rc.conn.Close()
	rc.subs = make(map[string]*subscription)
}

func (t *WebsocketTransport) readLoop(rc *relayConn) {
	defer rc.markClosed()
	for {
		var msg []json.RawMessage
		if err := rc.conn.ReadJSON(&msg); err != nil {
			if !rc.isClosed() {
				slog.Debug("transport: read error", "relay", rc.relayURL, "error", err)
			}
			return
		}
		if len(msg) < 2 {
			continue
		}

		var msgType string
		if err := json.Unmarshal(msg[0], &msgType); err != nil {
			continue
		}

		rc.mu.Lock()
		rc.lastActivity = time.Now()
		rc.mu.Unlock()

		switch msgType {
		case "EVENT":
			if len(msg) < 3 {
				continue
			}
			var subID string
			if err := json.Unmarshal(msg[1], &subID); err != nil {
				continue
			}
			var evt nostrevent.Event
			if err := json.Unmarshal(msg[2], &evt); err != nil {
				continue
			}

			rc.mu.Lock()
			sub := rc.subs[subID]
			rc.mu.Unlock()
			if sub != nil && sub.handler != nil {
				sub.handler(&evt)
			}

		case "NOTICE":
			var notice string
			if len(msg) >= 2 {
				json.Unmarshal(msg[1], &notice)
			}
			slog.Debug("transport: relay notice", "relay", rc.relayURL, "notice", notice)
		}
	}
}

func (t *WebsocketTransport) Publish(ctx context.Context, event *nostrevent.Event) error {
	t.mu.RLock()
	conns := make([]*relayConn, 0, len(t.conns))
	for _, rc := range t.conns {
		conns = append(conns, rc)
	}
	t.mu.RUnlock()

	if len(conns) == 0 {
		return errors.New("transport: not connected to any relay")
	}

	var lastErr error
	for _, rc := range conns {
		rc.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		rc.writeMu.Lock()
		err := rc.conn.WriteJSON([]any{"EVENT", event})
		rc.writeMu.Unlock()
		if err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}

func (t *WebsocketTransport) Subscribe(ctx context.Context, filter map[string]any, handler func(*nostrevent.Event)) (string, error) {
	t.mu.RLock()
	conns := make([]*relayConn, 0, len(t.conns))
	for _, rc := range t.conns {
		conns = append(conns, rc)
	}
	t.mu.RUnlock()
	if len(conns) == 0 {
		return "", errors.New("transport: not connected to any relay")
	}

	subID := subscriptionID()
	for _, rc := range conns {
		rc.mu.Lock()
		rc.subs[subID] = &subscription{id: subID, handler: handler, relay: rc.relayURL}
		rc.mu.Unlock()

		req := []any{"REQ", subID, filter}
		rc.writeMu.Lock()
		err := rc.conn.WriteJSON(req)
		rc.writeMu.Unlock()
		if err != nil {
			slog.Warn("transport: subscribe failed", "relay", rc.relayURL, "error", err)
		}
	}
	return subID, nil
}

func (t *WebsocketTransport) Unsubscribe(subID string) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, rc := range t.conns {
		rc.mu.Lock()
		_, exists := rc.subs[subID]
		if exists {
			delete(rc.subs, subID)
		}
		rc.mu.Unlock()
		if exists {
			rc.writeMu.Lock()
			rc.conn.WriteJSON([]any{"CLOSE", subID})
			rc.writeMu.Unlock()
		}
	}
	return nil
}

func (t *WebsocketTransport) DisconnectAll() {
	t.once.Do(func() { close(t.stopCleanup) })

	t.mu.Lock()
	defer t.mu.Unlock()
	for url, rc := range t.conns {
		rc.markClosed()
		delete(t.conns, url)
	}
}

func (t *WebsocketTransport) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.cleanupIdle()
		case <-t.stopCleanup:
			return
		}
	}
}

func (t *WebsocketTransport) cleanupIdle() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	for url, rc := range t.conns {
		rc.mu.Lock()
		idle := len(rc.subs) == 0 && now.Sub(rc.lastActivity) > idleConnTimeout
		rc.mu.Unlock()
		if rc.isClosed() || idle {
			rc.markClosed()
			delete(t.conns, url)
		}
	}
}

func subscriptionID() string {
	b := make([]byte, 8)
	if _, err := crand.Read(b); err != nil {
		return fmt.Sprintf("%x", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
