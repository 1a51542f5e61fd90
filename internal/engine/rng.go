package engine

import (
	"encoding/binary"

	"golang.org/x/crypto/sha3"

	"github.com/MJE43/wheel8/internal/wheel"
)

// EntropyLen is the size of the hashed buffer: requester ‖ anchor ‖ client seed.
const EntropyLen = RequesterIDLen + 8 + 8

func init() {
	// Reducing one digest byte stays uniform only while the segment count divides 256.
	if 256%wheel.Segments != 0 {
		panic("engine: wheel segment count must divide 256")
	}
}

// EntropyBuffer assembles the bytes that are hashed for a spin. The order and
// little-endian encoding are fixed; verifiers must rebuild it byte for byte.
func EntropyBuffer(req SpinRequest) []byte {
	buf := make([]byte, EntropyLen)
	copy(buf, req.Requester[:])
	binary.LittleEndian.PutUint64(buf[RequesterIDLen:], req.Anchor)
	binary.LittleEndian.PutUint64(buf[RequesterIDLen+8:], req.ClientSeed)
	return buf
}

// Hash returns the legacy Keccak-256 digest of buf.
func Hash(buf []byte) Digest {
	h := sha3.NewLegacyKeccak256()
	h.Write(buf)
	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}

// Reduce maps a digest to a wheel index using its first byte.
func Reduce(d Digest) uint8 {
	return d[0] % wheel.Segments
}
