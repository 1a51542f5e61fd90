package engine

import (
	"encoding/binary"
	"fmt"

	"github.com/MJE43/wheel8/internal/wheel"
)

// EventLen is the size of an emitted spin result:
// requester (32) ‖ index (1) ‖ multiplier (2, LE) ‖ digest (32).
const EventLen = RequesterIDLen + 1 + 2 + DigestLen

// EncodeEvent serializes a result in the emitted layout.
func EncodeEvent(r SpinResult) []byte {
	buf := make([]byte, EventLen)
	copy(buf, r.Requester[:])
	buf[RequesterIDLen] = r.Index
	binary.LittleEndian.PutUint16(buf[RequesterIDLen+1:], r.Multiplier)
	copy(buf[RequesterIDLen+3:], r.Digest[:])
	return buf
}

// DecodeEvent parses the emitted layout.
func DecodeEvent(data []byte) (SpinResult, error) {
	if len(data) != EventLen {
		return SpinResult{}, fmt.Errorf("spin event is %d bytes, want %d", len(data), EventLen)
	}
	var r SpinResult
	copy(r.Requester[:], data[:RequesterIDLen])
	r.Index = data[RequesterIDLen]
	if int(r.Index) >= wheel.Segments {
		return SpinResult{}, fmt.Errorf("spin event index %d out of range", r.Index)
	}
	r.Multiplier = binary.LittleEndian.Uint16(data[RequesterIDLen+1:])
	copy(r.Digest[:], data[RequesterIDLen+3:])
	return r, nil
}
