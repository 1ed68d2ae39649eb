package nip46

import (
	"crypto/rand"
	"encoding/hex"
	"net/url"
	"strings"

	"github.com/nostrkit/remotesign/internal/netutil"
	"github.com/nostrkit/remotesign/nip44"
)

const (
	maxConnectionStringLen = 8192
	minSecretLen           = 8
	maxSecretLen           = 128
	maxMetadataLen         = 1000
)

var injectionChars = []string{"<", ">", "\"", "'"}

func containsInjection(s string) bool {
	for _, c := range injectionChars {
		if strings.Contains(s, c) {
			return true
		}
	}
	return false
}

// BunkerURI is the parsed form of a bunker:// pairing string, emitted by
// a bunker for clients to consume.
type BunkerURI struct {
	SignerPubkey string
	Relays       []string
	Secret       string
}

// NostrConnectURI is the parsed form of a nostrconnect:// pairing
// string, emitted by a client for a bunker to consume.
type NostrConnectURI struct {
	ClientPubkey string
	Relays       []string
	Secret       string
	Perms        []string
	Name         string
	URL          string
	Image        string
}

func validateHostAsPubkey(host string) bool {
	return nip44.IsValidPublicKeyFormat(host)
}

func filterRelays(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if netutil.IsRelayURLFormatValid(r) {
			out = append(out, r)
		}
	}
	return out
}

func filterPerms(csv string) []string {
	if csv == "" {
		return nil
	}
	tokens := strings.Split(csv, ",")
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		tok = strings.TrimSpace(tok)
		if IsValidPermissionToken(tok) {
			out = append(out, tok)
		}
	}
	return out
}

func sanitizeMetadata(s string) string {
	s = strings.NewReplacer("<", "", ">", "", "\"", "", "'", "", "&", "").Replace(s)
	if len(s) > maxMetadataLen {
		s = s[:maxMetadataLen]
	}
	return s
}

func sanitizeMetadataURL(s string) string {
	s = sanitizeMetadata(s)
	if s == "" {
		return ""
	}
	parsed, err := url.Parse(s)
	if err != nil || !parsed.IsAbs() {
		return ""
	}
	return s
}

// ParseBunkerURI parses a bunker://<signer_pubkey>?relay=...&secret=...
// string per the pairing-URI parse rules.
func ParseBunkerURI(raw string) (*BunkerURI, error) {
	if len(raw) > maxConnectionStringLen || containsInjection(raw) {
		return nil, ErrInvalidConnectionString
	}
	if !strings.HasPrefix(raw, "bunker://") {
		return nil, ErrInvalidConnectionString
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, ErrInvalidConnectionString
	}
	if !validateHostAsPubkey(u.Host) {
		return nil, ErrInvalidConnectionString
	}

	q := u.Query()
	relays := filterRelays(q["relay"])
	if len(relays) == 0 {
		return nil, ErrInvalidConnectionString
	}

	secret := q.Get("secret")
	if secret != "" && (len(secret) < minSecretLen || len(secret) > maxSecretLen) {
		return nil, ErrInvalidConnectionString
	}

	return &BunkerURI{
		SignerPubkey: u.Host,
		Relays:       relays,
		Secret:       secret,
	}, nil
}

// ParseNostrConnectURI parses a nostrconnect://<client_pubkey>?... string.
func ParseNostrConnectURI(raw string) (*NostrConnectURI, error) {
	if len(raw) > maxConnectionStringLen || containsInjection(raw) {
		return nil, ErrInvalidConnectionString
	}
	if !strings.HasPrefix(raw, "nostrconnect://") {
		return nil, ErrInvalidConnectionString
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, ErrInvalidConnectionString
	}
	if !validateHostAsPubkey(u.Host) {
		return nil, ErrInvalidConnectionString
	}

	q := u.Query()
	relays := filterRelays(q["relay"])
	if len(relays) == 0 {
		return nil, ErrInvalidConnectionString
	}

	secret := q.Get("secret")
	if len(secret) < minSecretLen || len(secret) > maxSecretLen {
		return nil, ErrInvalidConnectionString
	}

	return &NostrConnectURI{
		ClientPubkey: u.Host,
		Relays:       relays,
		Secret:       secret,
		Perms:        filterPerms(q.Get("perms")),
		Name:         sanitizeMetadata(q.Get("name")),
		URL:          sanitizeMetadataURL(q.Get("url")),
		Image:        sanitizeMetadataURL(q.Get("image")),
	}, nil
}

// FormatBunkerURI renders a BunkerURI back to its wire form.
func FormatBunkerURI(u *BunkerURI) string {
	v := url.Values{}
	for _, r := range u.Relays {
		v.Add("relay", r)
	}
	if u.Secret != "" {
		v.Set("secret", u.Secret)
	}
	return "bunker://" + u.SignerPubkey + "?" + v.Encode()
}

// FormatNostrConnectURI renders a NostrConnectURI back to its wire form.
func FormatNostrConnectURI(u *NostrConnectURI) string {
	v := url.Values{}
	for _, r := range u.Relays {
		v.Add("relay", r)
	}
	v.Set("secret", u.Secret)
	if len(u.Perms) > 0 {
		v.Set("perms", strings.Join(u.Perms, ","))
	}
	if u.Name != "" {
		v.Set("name", u.Name)
	}
	if u.URL != "" {
		v.Set("url", u.URL)
	}
	if u.Image != "" {
		v.Set("image", u.Image)
	}
	return "nostrconnect://" + u.ClientPubkey + "?" + v.Encode()
}

// GenerateSecret returns a random hex secret within the valid length
// bounds for pairing URIs.
func GenerateSecret() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
