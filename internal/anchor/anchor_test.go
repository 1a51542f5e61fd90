package anchor

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/MJE43/wheel8/internal/wheel"
)

func TestClock(t *testing.T) {
	fixed := time.Unix(1_700_000_000, 500)
	c := NewClock(func() time.Time { return fixed })

	got, err := c.Anchor(context.Background())
	if err != nil {
		t.Fatalf("Anchor: %v", err)
	}
	if got != 1_700_000_000 {
		t.Errorf("Anchor = %d, want 1700000000", got)
	}
}

func TestClockUnavailable(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
	}{
		{"zero time", time.Time{}},
		{"before epoch", time.Unix(-10, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClock(func() time.Time { return tt.now })
			_, err := c.Anchor(context.Background())
			if !errors.Is(err, wheel.ErrEntropySourceUnavailable) {
				t.Fatalf("expected ErrEntropySourceUnavailable, got %v", err)
			}
		})
	}
}

func TestSequence(t *testing.T) {
	s := NewSequence(0)
	for want := uint64(0); want < 5; want++ {
		got, err := s.Anchor(context.Background())
		if err != nil {
			t.Fatalf("Anchor: %v", err)
		}
		if got != want {
			t.Errorf("Anchor = %d, want %d", got, want)
		}
	}
	if s.Peek() != 5 {
		t.Errorf("Peek = %d, want 5", s.Peek())
	}
}

func TestSequenceExhausted(t *testing.T) {
	s := NewSequence(math.MaxUint64 - 1)
	if _, err := s.Anchor(context.Background()); err != nil {
		t.Fatalf("last value should be handed out: %v", err)
	}
	if _, err := s.Anchor(context.Background()); !errors.Is(err, wheel.ErrEntropySourceUnavailable) {
		t.Fatalf("expected ErrEntropySourceUnavailable, got %v", err)
	}
}

func TestSequenceConcurrent(t *testing.T) {
	s := NewSequence(100)
	const workers, per = 8, 250

	var mu sync.Mutex
	seen := make(map[uint64]bool)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < per; i++ {
				v, err := s.Anchor(context.Background())
				if err != nil {
					t.Errorf("Anchor: %v", err)
					return
				}
				mu.Lock()
				if seen[v] {
					t.Errorf("value %d handed out twice", v)
				}
				seen[v] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != workers*per {
		t.Errorf("got %d distinct values, want %d", len(seen), workers*per)
	}
}

func TestFunc(t *testing.T) {
	cause := errors.New("ledger offline")
	f := Func(func(context.Context) (uint64, error) { return 0, cause })

	_, err := f.Anchor(context.Background())
	if !errors.Is(err, wheel.ErrEntropySourceUnavailable) {
		t.Fatalf("expected ErrEntropySourceUnavailable, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Error("cause should be preserved")
	}

	ok := Func(func(context.Context) (uint64, error) { return 7, nil })
	if v, err := ok.Anchor(context.Background()); err != nil || v != 7 {
		t.Errorf("Anchor = %d, %v; want 7, nil", v, err)
	}
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sources := map[string]Source{
		"clock":    NewClock(nil),
		"sequence": NewSequence(1),
		"func":     Func(func(context.Context) (uint64, error) { return 1, nil }),
	}
	for name, src := range sources {
		_, err := src.Anchor(ctx)
		if !errors.Is(err, wheel.ErrEntropySourceUnavailable) {
			t.Errorf("%s: expected ErrEntropySourceUnavailable, got %v", name, err)
		}
		if !errors.Is(err, context.Canceled) {
			t.Errorf("%s: expected context.Canceled in chain, got %v", name, err)
		}
	}
}
