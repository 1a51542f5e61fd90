package engine

import (
	"errors"
	"testing"

	"github.com/MJE43/wheel8/internal/wheel"
)

func testConfig(t *testing.T) wheel.Config {
	t.Helper()
	cfg, err := wheel.NewConfig([]uint16{0, 10, 20, 30, 40, 50, 60, 70})
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	return cfg
}

func TestReduceCoversEveryByte(t *testing.T) {
	counts := make([]int, wheel.Segments)
	for b := 0; b < 256; b++ {
		var d Digest
		d[0] = byte(b)
		idx := Reduce(d)
		if int(idx) >= wheel.Segments {
			t.Fatalf("byte %d reduced to %d, outside [0,%d)", b, idx, wheel.Segments)
		}
		counts[idx]++
	}
	// 256 / 8 values land on each index.
	for i, c := range counts {
		if c != 32 {
			t.Errorf("index %d hit %d times, want 32", i, c)
		}
	}
}

func TestReduceUsesFirstByteOnly(t *testing.T) {
	var a, b Digest
	a[0], b[0] = 0x0d, 0x0d
	for i := 1; i < DigestLen; i++ {
		b[i] = 0xff
	}
	if Reduce(a) != Reduce(b) {
		t.Error("trailing digest bytes must not affect the index")
	}
	if Reduce(a) != 5 {
		t.Errorf("Reduce(0x0d...) = %d, want 5", Reduce(a))
	}
}

func TestSpinDeterminism(t *testing.T) {
	cfg := testConfig(t)
	req := SpinRequest{Requester: RequesterID{0xaa, 0xbb}, Anchor: 1_700_000_000, ClientSeed: 987654321}

	first, err := Spin(&cfg, req)
	if err != nil {
		t.Fatalf("Spin: %v", err)
	}
	for i := 0; i < 100; i++ {
		again, err := Spin(&cfg, req)
		if err != nil {
			t.Fatalf("Spin: %v", err)
		}
		if again != first {
			t.Fatalf("determinism failed on iteration %d: %v != %v", i, again, first)
		}
	}
}

func TestSpinNeverMutatesConfig(t *testing.T) {
	cfg := testConfig(t)
	before := cfg

	for seed := uint64(0); seed < 500; seed++ {
		result, err := Spin(&cfg, SpinRequest{Anchor: seed * 7, ClientSeed: seed})
		if err != nil {
			t.Fatalf("Spin: %v", err)
		}
		if result.Multiplier != cfg.Multipliers[result.Index] {
			t.Fatalf("seed %d: multiplier %d != config[%d] %d", seed, result.Multiplier, result.Index, cfg.Multipliers[result.Index])
		}
	}

	if cfg != before {
		t.Errorf("config changed: %v -> %v", before, cfg)
	}
}

func TestSpinUninitialized(t *testing.T) {
	result, err := Spin(nil, SpinRequest{ClientSeed: 42})
	if !errors.Is(err, wheel.ErrUninitialized) {
		t.Fatalf("expected ErrUninitialized, got %v", err)
	}
	if result != (SpinResult{}) {
		t.Errorf("expected zero result, got %v", result)
	}
}

func TestSpinIndexDistribution(t *testing.T) {
	cfg := testConfig(t)
	counts := make([]int, wheel.Segments)
	const spins = 16000
	for seed := uint64(0); seed < spins; seed++ {
		r, err := Spin(&cfg, SpinRequest{Anchor: 1000, ClientSeed: seed})
		if err != nil {
			t.Fatalf("Spin: %v", err)
		}
		counts[r.Index]++
	}
	// Expect ~2000 each; a 15% band is far outside random fluctuation.
	for i, c := range counts {
		if c < 1700 || c > 2300 {
			t.Errorf("index %d drawn %d times out of %d", i, c, spins)
		}
	}
}

func TestVerify(t *testing.T) {
	cfg := testConfig(t)
	req := SpinRequest{Requester: RequesterID{1}, Anchor: 5, ClientSeed: 6}
	claimed, err := Spin(&cfg, req)
	if err != nil {
		t.Fatalf("Spin: %v", err)
	}

	if _, err := Verify(&cfg, req, claimed); err != nil {
		t.Fatalf("Verify of honest result failed: %v", err)
	}

	tampered := claimed
	tampered.Multiplier++
	if _, err := Verify(&cfg, req, tampered); !errors.Is(err, wheel.ErrVerificationMismatch) {
		t.Errorf("expected mismatch for tampered multiplier, got %v", err)
	}

	tampered = claimed
	tampered.Digest[31] ^= 1
	if _, err := Verify(&cfg, req, tampered); !errors.Is(err, wheel.ErrVerificationMismatch) {
		t.Errorf("expected mismatch for tampered digest, got %v", err)
	}

	if _, err := Verify(nil, req, claimed); !errors.Is(err, wheel.ErrUninitialized) {
		t.Errorf("expected ErrUninitialized, got %v", err)
	}
}

func TestEventLayout(t *testing.T) {
	cfg := testConfig(t)
	result, _ := Spin(&cfg, SpinRequest{Requester: RequesterID{0x11}, Anchor: 1000, ClientSeed: 42})

	data := EncodeEvent(result)
	if len(data) != 67 {
		t.Fatalf("event length = %d, want 67", len(data))
	}
	if data[0] != 0x11 || data[32] != result.Index {
		t.Errorf("unexpected header bytes %x", data[:35])
	}
	if uint16(data[33])|uint16(data[34])<<8 != result.Multiplier {
		t.Errorf("multiplier bytes %x do not encode %d", data[33:35], result.Multiplier)
	}

	decoded, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}
	if decoded != result {
		t.Errorf("decoded %v, want %v", decoded, result)
	}

	if _, err := DecodeEvent(data[:66]); err == nil {
		t.Error("expected length error")
	}
	data[32] = 9
	if _, err := DecodeEvent(data); err == nil {
		t.Error("expected index range error")
	}
}

func TestParseRequesterID(t *testing.T) {
	id, err := ParseRequesterID("0x" + "ab" + "00000000000000000000000000000000000000000000000000000000000000")
	if err != nil {
		t.Fatalf("ParseRequesterID: %v", err)
	}
	if id[0] != 0xab {
		t.Errorf("first byte = %x, want ab", id[0])
	}
	if _, err := ParseRequesterID("abcd"); err == nil {
		t.Error("expected length error")
	}
	if _, err := ParseRequesterID(string(make([]byte, 64))); err == nil {
		t.Error("expected hex error")
	}
}
