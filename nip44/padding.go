package nip44

import (
	"encoding/binary"
	"math/bits"
	"unicode/utf8"
)

const (
	minPlaintextLen = 1
	maxPlaintextLen = 65535
)

// padBucket returns the padded length NIP-44 uses for an unpadded
// plaintext of length l (1 <= l <= 65535). Buckets below 256 bytes step
// by 32; above that they step by the next power of two divided by 8.
// This table is reproduced exactly as the NIP-44 reference implements
// it rather than re-derived from prose (see SPEC_FULL.md §9, Open
// Question on padding buckets).
func padBucket(l int) int {
	if l <= 32 {
		return 32
	}

	// nextPower = 1 << (floor(log2(l-1)) + 1)
	nextPower := 1 << (bits.Len(uint(l-1)) )
	var chunk int
	if nextPower <= 256 {
		chunk = 32
	} else {
		chunk = nextPower / 8
	}

	return chunk * ((l-1)/chunk + 1)
}

// pad prepends a big-endian u16 length prefix to plaintext and zero-fills
// out to 2+padBucket(len(plaintext)) bytes.
func pad(plaintext []byte) ([]byte, error) {
	l := len(plaintext)
	if l < minPlaintextLen || l > maxPlaintextLen {
		return nil, ErrInvalidPlaintextLen
	}

	out := make([]byte, 2+padBucket(l))
	binary.BigEndian.PutUint16(out[0:2], uint16(l))
	copy(out[2:], plaintext)
	return out, nil
}

// unpad reverses pad, requiring the total length to match the bucket
// schedule exactly: a buffer that merely "fits" a shorter declared
// length is still rejected.
func unpad(padded []byte) ([]byte, error) {
	if len(padded) < 2 {
		return nil, ErrInvalidPadding
	}

	l := int(binary.BigEndian.Uint16(padded[0:2]))
	if l < minPlaintextLen || l > maxPlaintextLen {
		return nil, ErrInvalidPadding
	}
	if len(padded) < 2+l {
		return nil, ErrInvalidPadding
	}
	if len(padded) != 2+padBucket(l) {
		return nil, ErrInvalidPadding
	}

	plaintext := padded[2 : 2+l]
	if !utf8.Valid(plaintext) {
		return nil, ErrInvalidPadding
	}
	return plaintext, nil
}
