package nip44

import "github.com/nostrkit/remotesign/crypto"

// messageKeys holds the per-message key material derived from the
// conversation key and a unique 32-byte nonce. Callers must Zero() it
// once the message has been sealed or opened.
type messageKeys struct {
	chachaKey   []byte // 32 bytes
	chachaNonce []byte // 12 bytes
	hmacKey     []byte // 32 bytes
}

func (k *messageKeys) zero() {
	crypto.Zero(k.chachaKey)
	crypto.Zero(k.chachaNonce)
	crypto.Zero(k.hmacKey)
}

// deriveMessageKeys expands the conversation key with the message nonce
// as HKDF info, producing 76 bytes split into chacha_key(32) ||
// chacha_nonce(12) || hmac_key(32).
func deriveMessageKeys(conversationKey, nonce []byte) (*messageKeys, error) {
	if len(conversationKey) != 32 {
		return nil, ErrInvalidPrivateKey
	}
	if len(nonce) != 32 {
		return nil, ErrInvalidNonce
	}

	raw, err := crypto.HKDFExpand(conversationKey, nonce, 76)
	if err != nil {
		return nil, err
	}

	return &messageKeys{
		chachaKey:   raw[0:32],
		chachaNonce: raw[32:44],
		hmacKey:     raw[44:76],
	}, nil
}
