package engine

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// RequesterIDLen is the size of a requester's public identifier.
const RequesterIDLen = 32

// DigestLen is the size of the keccak-256 output.
const DigestLen = 32

// RequesterID is the fixed-size public identity of whoever asked for a spin.
type RequesterID [RequesterIDLen]byte

// ParseRequesterID decodes 64 hex characters, with or without a 0x prefix.
func ParseRequesterID(s string) (RequesterID, error) {
	var id RequesterID
	raw, err := decodeFixedHex(s, RequesterIDLen)
	if err != nil {
		return id, fmt.Errorf("requester id: %w", err)
	}
	copy(id[:], raw)
	return id, nil
}

func (id RequesterID) String() string { return hex.EncodeToString(id[:]) }

func (id RequesterID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *RequesterID) UnmarshalText(text []byte) error {
	parsed, err := ParseRequesterID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Digest is the raw randomness a spin was derived from.
type Digest [DigestLen]byte

// ParseDigest decodes 64 hex characters, with or without a 0x prefix.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	raw, err := decodeFixedHex(s, DigestLen)
	if err != nil {
		return d, fmt.Errorf("digest: %w", err)
	}
	copy(d[:], raw)
	return d, nil
}

func (d Digest) String() string { return hex.EncodeToString(d[:]) }

func (d Digest) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Digest) UnmarshalText(text []byte) error {
	parsed, err := ParseDigest(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// SpinRequest carries every input of a spin. Requester and Anchor are supplied
// by the calling environment, ClientSeed by the player.
type SpinRequest struct {
	Requester  RequesterID `json:"requester"`
	Anchor     uint64      `json:"anchor"`
	ClientSeed uint64      `json:"client_seed"`
}

// SpinResult is the outcome of one spin.
type SpinResult struct {
	Requester  RequesterID `json:"requester"`
	Index      uint8       `json:"index"`
	Multiplier uint16      `json:"multiplier"`
	Digest     Digest      `json:"digest"`
}

func decodeFixedHex(s string, n int) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if len(s) != n*2 {
		return nil, fmt.Errorf("want %d hex characters, got %d", n*2, len(s))
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return raw, nil
}
