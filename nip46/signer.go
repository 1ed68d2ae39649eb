package nip46

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/nostrkit/remotesign/internal/obslog"
	"github.com/nostrkit/remotesign/internal/transport"
	"github.com/nostrkit/remotesign/nip44"
	"github.com/nostrkit/remotesign/nostrevent"
)

// derivePubkeyHex returns the x-only hex public key for the given
// private key scalar.
func derivePubkeyHex(sk []byte) (string, error) {
	priv, pub := btcec.PrivKeyFromBytes(sk)
	if priv == nil || pub == nil {
		return "", nip44.ErrInvalidPrivateKey
	}
	return hex.EncodeToString(pub.SerializeCompressed()[1:]), nil
}

// authChallenge holds a method call parked behind an auth-URL prompt
// until the host resolves or the timeout elapses.
type authChallenge struct {
	clientPubkey string
	deadline     *time.Timer
	resolved     chan bool
	once         sync.Once
}

func (c *authChallenge) resolve(ok bool) {
	c.once.Do(func() {
		c.deadline.Stop()
		c.resolved <- ok
		close(c.resolved)
	})
}

// Signer is the bunker side of the protocol: it owns the user's signing
// key, subscribes to inbound kind-24133 events, and dispatches requests
// under session, permission, rate-limit, and replay controls. Grounded
// on the teacher's nip46.go/nostrconnect.go listener goroutines,
// generalized from a single hardcoded client flow into the full bunker
// role.
type Signer struct {
	userSK []byte
	userPK string // hex

	transport transport.RelayTransport
	policy    *Policy

	sessions *SessionStore
	limiter  *RateLimiter
	replay   replayStore
	hook     PermissionHook

	challengesMu sync.Mutex
	challenges   map[string]*authChallenge
	authURLFunc  func(clientPubkey, method string) (authURL string, ok bool)

	subID string

	mu      sync.Mutex
	running bool
}

// NewSigner constructs a bunker signer for the given user private key
// (hex) and policy. Pass nil for policy to use DefaultPolicy().
func NewSigner(userSKHex string, t transport.RelayTransport, policy *Policy) (*Signer, error) {
	if !nip44.IsValidPrivateKey(userSKHex) {
		return nil, nip44.ErrInvalidPrivateKey
	}
	sk, err := hex.DecodeString(userSKHex)
	if err != nil {
		return nil, nip44.ErrInvalidPrivateKey
	}

	if policy == nil {
		policy = DefaultPolicy()
	}

	pk, err := derivePubkeyHex(sk)
	if err != nil {
		return nil, err
	}

	var replay replayStore
	if policy.ReplayStoreURL != "" {
		replay, err = NewRedisReplayLedger(policy.ReplayStoreURL, "bunker:"+pk+":", policy.ReplayWindow)
		if err != nil {
			return nil, err
		}
	} else {
		replay = NewReplayLedger(policy.ReplayWindow)
	}

	return &Signer{
		userSK:     sk,
		userPK:     pk,
		transport:  t,
		policy:     policy,
		sessions:   NewSessionStore(),
		limiter:    NewRateLimiter(policy),
		replay:     replay,
		challenges: make(map[string]*authChallenge),
	}, nil
}

// SetPermissionHook installs an optional host-provided permission
// override, called before the default policy on every request.
func (s *Signer) SetPermissionHook(hook PermissionHook) {
	s.hook = hook
}

// SetAuthURLFunc installs a callback that, given a client pubkey and
// method, optionally returns an auth_url challenge instead of letting
// the request proceed directly.
func (s *Signer) SetAuthURLFunc(f func(clientPubkey, method string) (string, bool)) {
	s.authURLFunc = f
}

// Start subscribes to inbound NIP-46 events across the policy's relays.
func (s *Signer) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	if err := s.transport.Connect(ctx, s.policy.Relays); err != nil {
		return err
	}

	filter := map[string]any{
		"kinds": []int{24133},
		"#p":    []string{s.userPK},
	}
	subID, err := s.transport.Subscribe(ctx, filter, func(evt *nostrevent.Event) {
		s.handleInbound(ctx, evt)
	})
	if err != nil {
		return err
	}
	s.subID = subID
	s.running = true
	activeSessions.Set(0)
	slog.Info("bunker signer started", "pubkey", s.userPK)
	return nil
}

// Stop unsubscribes, clears all session/rate-limit/replay state, and
// cancels the replay sweep timer.
func (s *Signer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	if s.subID != "" {
		s.transport.Unsubscribe(s.subID)
	}
	s.transport.DisconnectAll()
	s.sessions.Clear()
	s.limiter.Clear()
	s.replay.Close()
	if ledger, ok := s.replay.(*ReplayLedger); ok {
		ledger.Clear()
	}

	s.challengesMu.Lock()
	for _, c := range s.challenges {
		c.resolve(false)
	}
	s.challenges = make(map[string]*authChallenge)
	s.challengesMu.Unlock()

	s.running = false
	activeSessions.Set(0)
	slog.Info("bunker signer stopped")
}

// ResolveAuthChallenge signals that a previously issued auth_url
// challenge for clientPubkey has been approved (ok=true) or denied.
func (s *Signer) ResolveAuthChallenge(clientPubkey string, ok bool) {
	s.challengesMu.Lock()
	c := s.challenges[clientPubkey]
	s.challengesMu.Unlock()
	if c != nil {
		c.resolve(ok)
	}
}

func (s *Signer) handleInbound(ctx context.Context, evt *nostrevent.Event) {
	ctx, reqID := obslog.WithRequestID(ctx)
	log := obslog.FromContext(ctx)

	if !s.limiter.Allow(evt.PubKey) {
		rateLimitedTotal.Inc()
		s.publishResponse(ctx, evt.PubKey, Response{Error: ErrTokenRateLimited})
		return
	}

	plaintext, err := nip44.Decrypt(evt.Content, hex.EncodeToString(s.userSK), evt.PubKey)
	if err != nil {
		log.Debug("bunker: drop undecryptable event", "from", nostrevent.ShortID(evt.PubKey))
		return
	}

	req, err := ParseRequest([]byte(plaintext))
	if err != nil {
		requestsTotal.WithLabelValues("unknown", "invalid").Inc()
		s.publishResponse(ctx, evt.PubKey, errorResponse("", err))
		return
	}

	isReplay, err := s.replay.CheckAndInsert(ctx, req.ID)
	if err != nil {
		log.Error("bunker: replay store unavailable", "error", err)
		s.publishResponse(ctx, evt.PubKey, errorResponse(req.ID, ErrInternal))
		return
	}
	if isReplay {
		replayedTotal.Inc()
		requestsTotal.WithLabelValues(req.Method, "replay").Inc()
		s.publishResponse(ctx, evt.PubKey, Response{ID: req.ID, Error: ErrTokenInvalidRequest})
		return
	}

	log.Debug("bunker: dispatching request", "method", req.Method, "request_id", reqID, "from", nostrevent.ShortID(evt.PubKey))

	resp, _ := s.dispatch(ctx, evt.PubKey, req)
	s.publishResponse(ctx, evt.PubKey, resp)
}

// dispatch resolves a request to a response for the caller to publish.
// When async is true, resp is an interim auth_url challenge; the
// terminal response follows later, published directly by the
// goroutine beginAuthChallenge spawns once the challenge resolves.
func (s *Signer) dispatch(ctx context.Context, clientPubkey string, req *Request) (resp Response, async bool) {
	if req.Method == string(MethodConnect) {
		return s.handleConnect(clientPubkey, req), false
	}

	sess := s.sessions.Get(clientPubkey)
	if sess == nil {
		requestsTotal.WithLabelValues(req.Method, "unauthorized").Inc()
		return errorResponse(req.ID, ErrUnauthorized), false
	}
	sess.touch()

	signEventKind := 0
	if req.Method == string(MethodSignEvent) && len(req.Params) > 0 {
		signEventKind = peekEventKind(req.Params[0])
	}

	if !checkPermission(sess, s.hook, req.Method, req.Params, signEventKind) {
		requestsTotal.WithLabelValues(req.Method, "denied").Inc()
		return errorResponse(req.ID, ErrPermissionDenied), false
	}

	if s.authURLFunc != nil {
		if authURL, ok := s.authURLFunc(clientPubkey, req.Method); ok {
			s.beginAuthChallenge(ctx, clientPubkey, authURL, sess, req)
			return Response{ID: req.ID, AuthURL: authURL}, true
		}
	}

	resp = s.dispatchMethod(ctx, clientPubkey, sess, req)
	requestsTotal.WithLabelValues(req.Method, outcomeLabel(resp)).Inc()
	return resp, false
}

func outcomeLabel(resp Response) string {
	if resp.Error != "" {
		return "error"
	}
	return "ok"
}

// beginAuthChallenge registers a pending challenge and returns immediately;
// the caller publishes the interim auth_url response. Once the challenge
// resolves (approval, denial, or AuthTimeout), the goroutine below resumes
// the held request and publishes the terminal response on its own.
func (s *Signer) beginAuthChallenge(ctx context.Context, clientPubkey, authURL string, sess *Session, req *Request) {
	challenge := &authChallenge{
		clientPubkey: clientPubkey,
		resolved:     make(chan bool, 1),
	}
	challenge.deadline = time.AfterFunc(s.policy.AuthTimeout, func() {
		challenge.resolve(false)
	})

	s.challengesMu.Lock()
	s.challenges[clientPubkey] = challenge
	s.challengesMu.Unlock()

	go func() {
		ok := <-challenge.resolved

		s.challengesMu.Lock()
		delete(s.challenges, clientPubkey)
		s.challengesMu.Unlock()

		var resp Response
		if !ok {
			resp = errorResponse(req.ID, ErrUnauthorized)
		} else {
			resp = s.dispatchMethod(ctx, clientPubkey, sess, req)
		}
		requestsTotal.WithLabelValues(req.Method, outcomeLabel(resp)).Inc()
		s.publishResponse(ctx, clientPubkey, resp)
	}()
}

func (s *Signer) handleConnect(clientPubkey string, req *Request) Response {
	if len(req.Params) == 0 || req.Params[0] != s.userPK {
		return errorResponse(req.ID, ErrUnauthorized)
	}

	secret := ""
	if len(req.Params) > 1 {
		secret = req.Params[1]
	}

	perms := append([]string{}, s.policy.DefaultPermissions...)
	if len(req.Params) > 2 {
		perms = append(perms, filterPerms(req.Params[2])...)
	}

	sess := newSession(clientPubkey, perms)
	s.sessions.Set(sess)
	activeSessions.Inc()

	result := "ack"
	if secret != "" {
		result = secret
	}
	return Response{ID: req.ID, Result: result}
}

func (s *Signer) dispatchMethod(ctx context.Context, clientPubkey string, sess *Session, req *Request) Response {
	switch MethodTag(req.Method) {
	case MethodGetPublicKey:
		return Response{ID: req.ID, Result: s.userPK}

	case MethodPing:
		return Response{ID: req.ID, Result: "pong"}

	case MethodSignEvent:
		return s.handleSignEvent(req)

	case MethodNip44Encrypt:
		return s.handleNip44Encrypt(req)

	case MethodNip44Decrypt:
		return s.handleNip44Decrypt(req)

	case MethodNip04Encrypt:
		return s.handleNip04Encrypt(req)

	case MethodNip04Decrypt:
		return s.handleNip04Decrypt(req)

	case MethodGetRelays:
		relaysJSON, err := json.Marshal(s.policy.Relays)
		if err != nil {
			return errorResponse(req.ID, ErrInternal)
		}
		return Response{ID: req.ID, Result: string(relaysJSON)}

	case MethodDisconnect:
		s.sessions.Delete(clientPubkey)
		activeSessions.Dec()
		return Response{ID: req.ID, Result: "ack"}

	default:
		return errorResponse(req.ID, ErrMethodNotSupported)
	}
}

func (s *Signer) handleSignEvent(req *Request) Response {
	if len(req.Params) != 1 {
		return errorResponse(req.ID, ErrInvalidParameters)
	}

	var unsigned nostrevent.Unsigned
	if err := json.Unmarshal([]byte(req.Params[0]), &unsigned); err != nil {
		return errorResponse(req.ID, ErrInvalidParameters)
	}
	if unsigned.Kind < 0 || unsigned.Kind > 65535 {
		return errorResponse(req.ID, ErrInvalidParameters)
	}
	if len(unsigned.Content) > maxContentBytes {
		return errorResponse(req.ID, ErrInvalidParameters)
	}
	if len(unsigned.Tags) > maxTagCount {
		return errorResponse(req.ID, ErrInvalidParameters)
	}
	for _, tag := range unsigned.Tags {
		for _, elem := range tag {
			if len(elem) > maxTagElemBytes {
				return errorResponse(req.ID, ErrInvalidParameters)
			}
		}
	}

	timer := prometheusTimer()
	defer timer()

	signer := nostrevent.SchnorrSigner{}
	signed, err := signer.SignEvent(&unsigned, s.userPK, s.userSK)
	if err != nil {
		return Response{ID: req.ID, Error: ErrTokenSigningFailed}
	}

	signedJSON, err := json.Marshal(signed)
	if err != nil {
		return errorResponse(req.ID, ErrInternal)
	}
	return Response{ID: req.ID, Result: string(signedJSON)}
}

func prometheusTimer() func() {
	start := time.Now()
	return func() { signDuration.Observe(time.Since(start).Seconds()) }
}

func (s *Signer) handleNip44Encrypt(req *Request) Response {
	if len(req.Params) != 2 {
		return errorResponse(req.ID, ErrInvalidParameters)
	}
	ct, err := nip44.Encrypt(req.Params[1], hex.EncodeToString(s.userSK), req.Params[0], nil)
	if err != nil {
		return Response{ID: req.ID, Error: ErrTokenEncryptionFailed}
	}
	return Response{ID: req.ID, Result: ct}
}

func (s *Signer) handleNip44Decrypt(req *Request) Response {
	if len(req.Params) != 2 {
		return errorResponse(req.ID, ErrInvalidParameters)
	}
	pt, err := nip44.Decrypt(req.Params[1], hex.EncodeToString(s.userSK), req.Params[0])
	if err != nil {
		return Response{ID: req.ID, Error: ErrTokenDecryptionFailed}
	}
	return Response{ID: req.ID, Result: pt}
}

func (s *Signer) handleNip04Encrypt(req *Request) Response {
	if len(req.Params) != 2 {
		return errorResponse(req.ID, ErrInvalidParameters)
	}
	ct, err := nip44.Nip04Encrypt(req.Params[1], hex.EncodeToString(s.userSK), req.Params[0])
	if err != nil {
		return Response{ID: req.ID, Error: ErrTokenEncryptionFailed}
	}
	return Response{ID: req.ID, Result: ct}
}

func (s *Signer) handleNip04Decrypt(req *Request) Response {
	if len(req.Params) != 2 {
		return errorResponse(req.ID, ErrInvalidParameters)
	}
	pt, err := nip44.Nip04Decrypt(req.Params[1], hex.EncodeToString(s.userSK), req.Params[0])
	if err != nil {
		return Response{ID: req.ID, Error: ErrTokenDecryptionFailed}
	}
	return Response{ID: req.ID, Result: pt}
}

func (s *Signer) publishResponse(ctx context.Context, clientPubkey string, resp Response) {
	log := obslog.FromContext(ctx)

	respJSON, err := resp.Marshal()
	if err != nil {
		log.Error("bunker: marshal response failed", "error", err)
		return
	}

	ciphertext, err := nip44.Encrypt(string(respJSON), hex.EncodeToString(s.userSK), clientPubkey, nil)
	if err != nil {
		log.Error("bunker: encrypt response failed", "error", err)
		return
	}

	signer := nostrevent.SchnorrSigner{}
	unsigned := &nostrevent.Unsigned{
		Kind:      24133,
		Content:   ciphertext,
		Tags:      [][]string{{"p", clientPubkey}},
		CreatedAt: time.Now().Unix(),
	}
	evt, err := signer.SignEvent(unsigned, s.userPK, s.userSK)
	if err != nil {
		log.Error("bunker: sign response event failed", "error", err)
		return
	}

	if err := s.transport.Publish(ctx, evt); err != nil {
		log.Warn("bunker: publish response failed", "error", err)
	}
}

// peekEventKind extracts the "kind" field from a sign_event params[0]
// payload without fully validating it, purely to resolve which
// sign_event:<kind> permission token applies.
func peekEventKind(eventJSON string) int {
	var partial struct {
		Kind int `json:"kind"`
	}
	if err := json.Unmarshal([]byte(eventJSON), &partial); err != nil {
		return -1
	}
	return partial.Kind
}
