package nostrevent

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// Signer is the upward interface the engine consumes to turn an Unsigned
// event plus a private key into a fully signed Event. The default
// SchnorrSigner below is grounded on the teacher's createNIP46Event /
// calculateEventID / signEvent trio; hosts may substitute their own
// implementation (e.g. one backed by a hardware signer).
type Signer interface {
	SignEvent(unsigned *Unsigned, pubKeyHex string, privKey []byte) (*Event, error)
}

// SchnorrSigner signs events with BIP-340 Schnorr signatures over
// secp256k1, matching NIP-01's signature scheme.
type SchnorrSigner struct{}

// SignEvent computes the event id (sha256 of the canonical serialization)
// and a Schnorr signature over it, producing a fully populated Event.
func (SchnorrSigner) SignEvent(unsigned *Unsigned, pubKeyHex string, privKey []byte) (*Event, error) {
	evt := &Event{
		PubKey:    pubKeyHex,
		CreatedAt: unsigned.CreatedAt,
		Kind:      unsigned.Kind,
		Tags:      unsigned.Tags,
		Content:   unsigned.Content,
	}
	if evt.Tags == nil {
		evt.Tags = [][]string{}
	}

	serialized, err := CanonicalSerialization(evt)
	if err != nil {
		return nil, fmt.Errorf("serialize event: %w", err)
	}
	id := sha256.Sum256(serialized)
	evt.ID = hex.EncodeToString(id[:])

	priv, _ := btcec.PrivKeyFromBytes(privKey)
	if priv == nil {
		return nil, fmt.Errorf("invalid private key")
	}
	sig, err := schnorr.Sign(priv, id[:])
	if err != nil {
		return nil, fmt.Errorf("sign event: %w", err)
	}
	evt.Sig = hex.EncodeToString(sig.Serialize())

	return evt, nil
}

// ValidateSignature verifies the Schnorr signature on evt against its
// own pubkey and id, recomputing the id to rule out tampering with any
// signed field.
func ValidateSignature(evt *Event) bool {
	if len(evt.Sig) != 128 || len(evt.PubKey) != 64 {
		return false
	}

	sigBytes, err := hex.DecodeString(evt.Sig)
	if err != nil {
		return false
	}
	pubKeyBytes, err := hex.DecodeString(evt.PubKey)
	if err != nil {
		return false
	}

	serialized, err := CanonicalSerialization(evt)
	if err != nil {
		return false
	}
	id := sha256.Sum256(serialized)
	if hex.EncodeToString(id[:]) != evt.ID {
		return false
	}

	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return false
	}
	pubKey, err := schnorr.ParsePubKey(pubKeyBytes)
	if err != nil {
		return false
	}

	return sig.Verify(id[:], pubKey)
}
