// Package anchor supplies the entropy anchor mixed into every spin: a value
// that keeps changing so outcomes cannot be precomputed before submission.
package anchor

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/MJE43/wheel8/internal/wheel"
)

// Source reads the current anchor value.
type Source interface {
	Anchor(ctx context.Context) (uint64, error)
}

// Func adapts a plain function to Source. Errors it returns are reported as
// wheel.ErrEntropySourceUnavailable with the underlying error as cause.
type Func func(ctx context.Context) (uint64, error)

func (f Func) Anchor(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, unavailable("context done", err)
	}
	v, err := f(ctx)
	if err != nil {
		return 0, unavailable("anchor func", err)
	}
	return v, nil
}

// Clock anchors spins to unix seconds.
type Clock struct {
	now func() time.Time
}

// NewClock returns a Clock reading now. A nil now uses time.Now.
func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now}
}

func (c *Clock) Anchor(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, unavailable("context done", err)
	}
	t := c.now()
	if t.IsZero() {
		return 0, unavailable("clock returned zero time", nil)
	}
	ts := t.Unix()
	if ts < 0 {
		return 0, unavailable(fmt.Sprintf("clock is before the unix epoch: %s", t.UTC().Format(time.RFC3339)), nil)
	}
	return uint64(ts), nil
}

// Sequence is a monotonic counter. Each call returns the next value.
type Sequence struct {
	next atomic.Uint64
}

// NewSequence starts the counter at start.
func NewSequence(start uint64) *Sequence {
	s := &Sequence{}
	s.next.Store(start)
	return s
}

func (s *Sequence) Anchor(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, unavailable("context done", err)
	}
	for {
		cur := s.next.Load()
		if cur == math.MaxUint64 {
			return 0, unavailable("sequence exhausted", nil)
		}
		if s.next.CompareAndSwap(cur, cur+1) {
			return cur, nil
		}
	}
}

// Peek returns the value the next Anchor call would hand out.
func (s *Sequence) Peek() uint64 {
	return s.next.Load()
}

func unavailable(message string, err error) error {
	return wheel.Wrap(wheel.KindEntropySourceUnavailable, message, err)
}
