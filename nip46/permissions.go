package nip46

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

// permissionVocabulary lists every permission token accepted outside the
// parameterized sign_event:<kind> form.
var permissionVocabulary = map[string]bool{
	"connect":        true,
	"get_public_key": true,
	"get_relays":     true,
	"ping":           true,
	"disconnect":     true,
	"sign_event":     true,
	"nip04_encrypt":  true,
	"nip04_decrypt":  true,
	"nip44_encrypt":  true,
	"nip44_decrypt":  true,
}

// IsValidPermissionToken reports whether tok is a recognized permission:
// either an exact vocabulary entry or "sign_event:<kind>" with kind in
// [0, 65535].
func IsValidPermissionToken(tok string) bool {
	if permissionVocabulary[tok] {
		return true
	}
	kindStr, ok := strings.CutPrefix(tok, "sign_event:")
	if !ok {
		return false
	}
	kind, err := strconv.Atoi(kindStr)
	if err != nil || kind < 0 || kind > 65535 {
		return false
	}
	return true
}

// PermissionHook lets a host override the default permission decision.
// Returning a non-nil bool overrides; nil falls through to the default
// policy. Hooks must not mutate session state.
type PermissionHook func(clientPubkey string, method string, params []string) *bool

// Session tracks a connected client's granted permissions.
type Session struct {
	ClientPubkey string
	Permissions  map[string]bool
	CreatedAt    time.Time
	LastSeen     time.Time

	mu sync.Mutex
}

func newSession(clientPubkey string, perms []string) *Session {
	set := make(map[string]bool, len(perms))
	for _, p := range perms {
		if IsValidPermissionToken(p) {
			set[p] = true
		}
	}
	now := time.Now()
	return &Session{
		ClientPubkey: clientPubkey,
		Permissions:  set,
		CreatedAt:    now,
		LastSeen:     now,
	}
}

func (s *Session) touch() {
	s.mu.Lock()
	s.LastSeen = time.Now()
	s.mu.Unlock()
}

// AddPermission grants tok to the session.
func (s *Session) AddPermission(tok string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Permissions[tok] = true
}

// RemovePermission revokes tok from the session.
func (s *Session) RemovePermission(tok string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.Permissions, tok)
}

// has scans the whole permission set and reports whether tok (or, for
// sign_event, the matching sign_event:<kind> token) is present. The scan
// always walks every entry rather than returning on first match, so its
// runtime does not depend on where in the set the match happened to be.
func (s *Session) has(tok string, signEventKind int, isSignEvent bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	kindTok := "sign_event:" + strconv.Itoa(signEventKind)
	for k := range s.Permissions {
		match := k == tok
		if isSignEvent {
			match = match || k == kindTok
		}
		if match {
			found = true
		}
	}
	return found
}

// SessionStore holds active sessions keyed by client pubkey, in-process
// only. A bunker fronted by several instances needs sessions affinity-
// routed to whichever instance handled the connect call, or a shared
// store added the same way RedisReplayLedger shares replay state.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*Session)}
}

func (s *SessionStore) Get(clientPubkey string) *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[clientPubkey]
}

func (s *SessionStore) Set(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ClientPubkey] = sess
}

func (s *SessionStore) Delete(clientPubkey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, clientPubkey)
}

func (s *SessionStore) All() []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out
}

func (s *SessionStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]*Session)
}

// checkPermission implements the §4.10 decision procedure: hook first,
// then the default policy. connect, get_public_key, ping and disconnect
// are allowed without consulting the set; every other method scans the
// full permission set.
func checkPermission(sess *Session, hook PermissionHook, method string, params []string, signEventKind int) bool {
	if hook != nil {
		if decision := hook(sess.ClientPubkey, method, params); decision != nil {
			return *decision
		}
	}

	switch MethodTag(method) {
	case MethodConnect, MethodGetPublicKey, MethodPing, MethodDisconnect:
		return true
	case MethodSignEvent:
		return sess.has("sign_event", signEventKind, true)
	default:
		return sess.has(method, 0, false)
	}
}
