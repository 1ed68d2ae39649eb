// Package nostrevent provides the minimal Nostr event model and Schnorr
// signing/verification the NIP-44/NIP-46 engine needs to wrap its requests
// and responses. Relay transport lives in internal/transport and general
// event construction is out of scope; this package only covers what the
// engine itself signs, verifies, and serializes.
package nostrevent

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Event is a Nostr event (NIP-01).
type Event struct {
	ID        string     `json:"id"`
	PubKey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      int        `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig"`
}

// Unsigned is the subset of fields a caller supplies before signing.
type Unsigned struct {
	Kind      int        `json:"kind"`
	Content   string     `json:"content"`
	Tags      [][]string `json:"tags"`
	CreatedAt int64      `json:"created_at"`
}

// ShortID truncates an id/pubkey to 12 chars for log lines.
func ShortID(id string) string {
	if len(id) >= 12 {
		return id[:12]
	}
	return id
}

// GetTagValue returns the first value for the given tag name.
func GetTagValue(tags [][]string, name string) string {
	for _, tag := range tags {
		if len(tag) >= 2 && tag[0] == name {
			return tag[1]
		}
	}
	return ""
}

// HasTagValue reports whether any tag named name carries value v.
func HasTagValue(tags [][]string, name, v string) bool {
	for _, tag := range tags {
		if len(tag) >= 2 && tag[0] == name && tag[1] == v {
			return true
		}
	}
	return false
}

// CanonicalSerialization produces the NIP-01 serialization used for the
// event id: [0, pubkey, created_at, kind, tags, content].
func CanonicalSerialization(e *Event) ([]byte, error) {
	tagsJSON, err := json.Marshal(e.Tags)
	if err != nil {
		return nil, fmt.Errorf("marshal tags: %w", err)
	}
	contentJSON, err := json.Marshal(e.Content)
	if err != nil {
		return nil, fmt.Errorf("marshal content: %w", err)
	}
	serialized := fmt.Sprintf(`[0,"%s",%d,%d,%s,%s]`,
		e.PubKey, e.CreatedAt, e.Kind, tagsJSON, contentJSON)
	return []byte(serialized), nil
}

// decodeHexID decodes a 64-hex-character event id, rejecting any other
// length.
func decodeHexID(id string) ([]byte, error) {
	if len(id) != 64 {
		return nil, fmt.Errorf("invalid id length %d", len(id))
	}
	return hex.DecodeString(id)
}
