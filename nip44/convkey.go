package nip44

import (
	"github.com/nostrkit/remotesign/crypto"
)

// conversationSalt is fixed at "nip44-v2" for every accepted version,
// including v0 and v1 on decryption. This is a deliberate reading of an
// underspecified area of the NIP-44 standard: rather than invent
// distinct per-version KDFs for the deprecated versions, every version
// this engine will decrypt derives its conversation key exactly the way
// v2 does. See SPEC_FULL.md / DESIGN.md for the rationale.
const conversationSalt = "nip44-v2"

// ConversationKey derives the 32-byte conversation key shared by the
// holder of skHex and the holder of pkHex. It is symmetric:
// ConversationKey(skA, pkB) == ConversationKey(skB, pkA).
func ConversationKey(skHex, pkHex string) ([]byte, error) {
	sk, pk, err := ValidateKeyPair(skHex, pkHex)
	if err != nil {
		return nil, err
	}
	defer crypto.Zero(sk)

	point, err := crypto.ECDHSharedPoint(sk, pk)
	if err != nil {
		return nil, ErrInvalidPublicKey
	}
	defer crypto.Zero(point)

	sharedX := point[1:33]
	return crypto.HKDFExtract([]byte(conversationSalt), sharedX), nil
}
