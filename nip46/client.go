package nip46

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"golang.org/x/sync/singleflight"

	"github.com/nostrkit/remotesign/internal/transport"
	"github.com/nostrkit/remotesign/nip44"
	"github.com/nostrkit/remotesign/nostrevent"
)

// ConnState is the lifecycle state of a RemoteSignerClient.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

// AuthURLHandler is invoked when a response carries an auth_url; hosts
// use it to open the URL in a browser or surface it to the operator.
type AuthURLHandler func(authURL string)

type pendingRequest struct {
	id      string
	method  string
	resolve chan Response
	timer   *time.Timer
	once    sync.Once
}

func (p *pendingRequest) complete(resp Response) {
	p.once.Do(func() {
		p.timer.Stop()
		p.resolve <- resp
		close(p.resolve)
	})
}

// RemoteSignerClient is the client side of the protocol: it connects to
// a bunker via a pairing URI, tracks pending requests by id, and routes
// inbound kind-24133 responses back to their waiters. Grounded on the
// teacher's BunkerSession (nip46.go) and nostrconnect.go's pending
// connection / request-response plumbing, generalized into a reusable
// client rather than one baked into the HTTP handlers.
type RemoteSignerClient struct {
	clientSK []byte
	clientPK string
	signerPK string
	relays   []string

	transport transport.RelayTransport
	subID     string

	requestTimeout time.Duration
	authTimeout    time.Duration
	authURLHandler AuthURLHandler
	domainWhitelist []string

	pendingMu sync.Mutex
	pending   map[string]*pendingRequest

	group singleflight.Group

	stateMu sync.Mutex
	state   ConnState
}

// NewRemoteSignerClientFromBunkerURI parses a bunker:// URI and prepares
// a client ready to Connect.
func NewRemoteSignerClientFromBunkerURI(raw string, t transport.RelayTransport) (*RemoteSignerClient, string, error) {
	uri, err := ParseBunkerURI(raw)
	if err != nil {
		return nil, "", err
	}
	c, err := newClient(uri.SignerPubkey, uri.Relays, t)
	if err != nil {
		return nil, "", err
	}
	return c, uri.Secret, nil
}

func newClient(signerPK string, relays []string, t transport.RelayTransport) (*RemoteSignerClient, error) {
	sk, err := generateEphemeralKey()
	if err != nil {
		return nil, err
	}
	pk, err := derivePubkeyHex(sk)
	if err != nil {
		return nil, err
	}

	return &RemoteSignerClient{
		clientSK:       sk,
		clientPK:       pk,
		signerPK:       signerPK,
		relays:         relays,
		transport:      t,
		requestTimeout: 30 * time.Second,
		authTimeout:    5 * time.Minute,
		pending:        make(map[string]*pendingRequest),
	}, nil
}

func generateEphemeralKey() ([]byte, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, err
	}
	return priv.Serialize(), nil
}

// SetRequestTimeout overrides the default 30s per-request deadline.
func (c *RemoteSignerClient) SetRequestTimeout(d time.Duration) { c.requestTimeout = d }

// SetAuthURLHandler installs the callback invoked for auth_url challenges.
func (c *RemoteSignerClient) SetAuthURLHandler(h AuthURLHandler) { c.authURLHandler = h }

// SetAuthDomainWhitelist restricts accepted auth_url hosts to this list;
// empty means any HTTPS host passing the syntactic checks is accepted.
func (c *RemoteSignerClient) SetAuthDomainWhitelist(domains []string) { c.domainWhitelist = domains }

// ClientPubkey returns the ephemeral client pubkey used to tag outbound
// and filter inbound events. It is distinct from the user pubkey.
func (c *RemoteSignerClient) ClientPubkey() string { return c.clientPK }

// Connect dials the relays, subscribes for responses, and sends the
// connect handshake. It returns the literal connect result ("ack" or
// the echoed secret), not the user pubkey.
func (c *RemoteSignerClient) Connect(ctx context.Context, secret string, perms []string) (string, error) {
	c.setState(StateConnecting)

	if err := c.transport.Connect(ctx, c.relays); err != nil {
		c.setState(StateDisconnected)
		return "", err
	}

	filter := map[string]any{
		"kinds":   []int{24133},
		"#p":      []string{c.clientPK},
		"authors": []string{c.signerPK},
	}
	subID, err := c.transport.Subscribe(ctx, filter, c.handleInbound)
	if err != nil {
		c.setState(StateDisconnected)
		return "", err
	}
	c.subID = subID

	params := []string{c.signerPK}
	if secret != "" {
		params = append(params, secret)
	}
	if len(perms) > 0 {
		params = append(params, strings.Join(perms, ","))
	}

	result, err := c.call(ctx, string(MethodConnect), params)
	if err != nil {
		c.setState(StateDisconnected)
		return "", err
	}
	c.setState(StateConnected)
	return result, nil
}

func (c *RemoteSignerClient) setState(s ConnState) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
}

// State returns the client's current connection state.
func (c *RemoteSignerClient) State() ConnState {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

// GetPublicKey asks the bunker for the user's actual pubkey.
func (c *RemoteSignerClient) GetPublicKey(ctx context.Context) (string, error) {
	return c.call(ctx, string(MethodGetPublicKey), nil)
}

// Ping round-trips a ping/pong.
func (c *RemoteSignerClient) Ping(ctx context.Context) error {
	result, err := c.call(ctx, string(MethodPing), nil)
	if err != nil {
		return err
	}
	if result != "pong" {
		return ErrInvalidRequest
	}
	return nil
}

// SignEvent requests a signature over an unsigned event and returns the
// fully signed event.
func (c *RemoteSignerClient) SignEvent(ctx context.Context, unsigned *nostrevent.Unsigned) (*nostrevent.Event, error) {
	payload, err := json.Marshal(unsigned)
	if err != nil {
		return nil, err
	}
	result, err := c.call(ctx, string(MethodSignEvent), []string{string(payload)})
	if err != nil {
		return nil, err
	}
	var evt nostrevent.Event
	if err := json.Unmarshal([]byte(result), &evt); err != nil {
		return nil, ErrInvalidRequest
	}
	return &evt, nil
}

// Nip44Encrypt / Nip44Decrypt / Nip04Encrypt / Nip04Decrypt proxy the
// corresponding bunker-side NIP-44/NIP-04 methods, operating on the
// connected user's key without ever exposing it to this process.
func (c *RemoteSignerClient) Nip44Encrypt(ctx context.Context, peerPubkey, plaintext string) (string, error) {
	return c.call(ctx, string(MethodNip44Encrypt), []string{peerPubkey, plaintext})
}

func (c *RemoteSignerClient) Nip44Decrypt(ctx context.Context, peerPubkey, ciphertext string) (string, error) {
	return c.call(ctx, string(MethodNip44Decrypt), []string{peerPubkey, ciphertext})
}

func (c *RemoteSignerClient) Nip04Encrypt(ctx context.Context, peerPubkey, plaintext string) (string, error) {
	return c.call(ctx, string(MethodNip04Encrypt), []string{peerPubkey, plaintext})
}

func (c *RemoteSignerClient) Nip04Decrypt(ctx context.Context, peerPubkey, ciphertext string) (string, error) {
	return c.call(ctx, string(MethodNip04Decrypt), []string{peerPubkey, ciphertext})
}

// GetRelays returns the bunker's configured relay list.
func (c *RemoteSignerClient) GetRelays(ctx context.Context) ([]string, error) {
	// Deduplicate concurrent callers asking for the same static info.
	v, err, _ := c.group.Do("get_relays", func() (any, error) {
		return c.call(ctx, string(MethodGetRelays), nil)
	})
	if err != nil {
		return nil, err
	}
	var relays []string
	if err := json.Unmarshal([]byte(v.(string)), &relays); err != nil {
		return nil, ErrInvalidRequest
	}
	return relays, nil
}

// Disconnect flips state to Disconnected before any teardown, so a
// racing inbound response sees the client as already gone, then
// unsubscribes, rejects all pending requests exactly once, and clears
// auth challenge state. Safe to call more than once.
func (c *RemoteSignerClient) Disconnect() {
	c.stateMu.Lock()
	alreadyDisconnected := c.state == StateDisconnected
	c.state = StateDisconnected
	c.stateMu.Unlock()
	if alreadyDisconnected {
		return
	}

	if c.subID != "" {
		c.transport.Unsubscribe(c.subID)
	}
	c.transport.DisconnectAll()

	c.pendingMu.Lock()
	toReject := make([]*pendingRequest, 0, len(c.pending))
	for id, p := range c.pending {
		toReject = append(toReject, p)
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()

	for _, p := range toReject {
		p.complete(Response{ID: p.id, Error: "DISCONNECTED"})
	}
}

func (c *RemoteSignerClient) call(ctx context.Context, method string, params []string) (string, error) {
	req := Request{ID: NewRequestID(), Method: method, Params: params}
	reqJSON, err := req.Marshal()
	if err != nil {
		return "", err
	}

	ciphertext, err := nip44.Encrypt(string(reqJSON), hex.EncodeToString(c.clientSK), c.signerPK, nil)
	if err != nil {
		return "", err
	}

	signer := nostrevent.SchnorrSigner{}
	unsigned := &nostrevent.Unsigned{
		Kind:      24133,
		Content:   ciphertext,
		Tags:      [][]string{{"p", c.signerPK}},
		CreatedAt: time.Now().Unix(),
	}
	evt, err := signer.SignEvent(unsigned, c.clientPK, c.clientSK)
	if err != nil {
		return "", err
	}

	p := &pendingRequest{id: req.ID, method: method, resolve: make(chan Response, 1)}
	p.timer = time.AfterFunc(c.requestTimeout, func() {
		c.completePending(req.ID, Response{ID: req.ID, Error: "TIMEOUT"})
	})

	c.pendingMu.Lock()
	c.pending[req.ID] = p
	c.pendingMu.Unlock()

	if err := c.transport.Publish(ctx, evt); err != nil {
		c.completePending(req.ID, Response{ID: req.ID, Error: "INTERNAL_ERROR"})
		return "", err
	}

	select {
	case resp := <-p.resolve:
		return c.resolveResponse(ctx, resp)
	case <-ctx.Done():
		c.completePending(req.ID, Response{ID: req.ID, Error: "INTERNAL_ERROR"})
		return "", ctx.Err()
	}
}

func (c *RemoteSignerClient) completePending(id string, resp Response) {
	c.pendingMu.Lock()
	p, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()
	if ok {
		p.complete(resp)
	}
}

func (c *RemoteSignerClient) resolveResponse(ctx context.Context, resp Response) (string, error) {
	switch resp.Error {
	case "":
		return resp.Result, nil
	case "TIMEOUT":
		return "", ErrRequestTimeout
	case "DISCONNECTED":
		return "", ErrDisconnected
	case ErrTokenPermissionDenied:
		return "", ErrPermissionDenied
	case ErrTokenRateLimited:
		return "", ErrRateLimited
	default:
		return "", errors.New("nip46: " + resp.Error)
	}
}

func (c *RemoteSignerClient) isAuthURLAllowed(raw string) bool {
	if containsInjection(raw) {
		return false
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme != "https" {
		return false
	}
	if len(parsed.Hostname()) < 3 {
		return false
	}
	if len(c.domainWhitelist) == 0 {
		return true
	}
	for _, d := range c.domainWhitelist {
		if parsed.Hostname() == d {
			return true
		}
	}
	return false
}

func (c *RemoteSignerClient) handleInbound(evt *nostrevent.Event) {
	if evt.PubKey != c.signerPK {
		return
	}

	plaintext, err := nip44.Decrypt(evt.Content, hex.EncodeToString(c.clientSK), evt.PubKey)
	if err != nil {
		return
	}

	resp, err := ParseResponse([]byte(plaintext))
	if err != nil {
		slog.Debug("client: failed to parse response", "error", err)
		return
	}

	// An auth_url carries no final result: the request stays pending and
	// the bunker is expected to send the real result once the challenge
	// resolves. Surface the URL to the host but do not complete the
	// waiter yet.
	if resp.AuthURL != "" && resp.Result == "" && resp.Error == "" {
		c.pendingMu.Lock()
		p, stillPending := c.pending[resp.ID]
		if stillPending {
			p.timer.Stop()
			p.timer = time.AfterFunc(c.authTimeout, func() {
				c.completePending(resp.ID, Response{ID: resp.ID, Error: "TIMEOUT"})
			})
		}
		c.pendingMu.Unlock()
		if stillPending && c.isAuthURLAllowed(resp.AuthURL) && c.authURLHandler != nil {
			c.authURLHandler(resp.AuthURL)
		}
		return
	}

	c.pendingMu.Lock()
	p, ok := c.pending[resp.ID]
	if ok {
		delete(c.pending, resp.ID)
	}
	c.pendingMu.Unlock()

	if ok {
		p.complete(*resp)
	}
}
