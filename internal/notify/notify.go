// Package notify publishes committed spin results to interested parties.
// Every payload uses the fixed 67-byte event layout from engine.EncodeEvent.
package notify

import (
	"context"
	"encoding/hex"
	"errors"

	"go.uber.org/zap"

	"github.com/MJE43/wheel8/internal/engine"
)

// Event is one committed spin.
type Event struct {
	WheelID string
	SpinID  string
	Result  engine.SpinResult
}

// Payload returns the emitted event bytes.
func (e Event) Payload() []byte {
	return engine.EncodeEvent(e.Result)
}

// Notifier delivers events. Implementations must be safe for concurrent use.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// LogNotifier writes each event as a structured log line.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(_ context.Context, ev Event) error {
	n.log.Info("spin result",
		zap.String("wheel_id", ev.WheelID),
		zap.String("spin_id", ev.SpinID),
		zap.Stringer("requester", ev.Result.Requester),
		zap.Uint8("index", ev.Result.Index),
		zap.Uint16("multiplier", ev.Result.Multiplier),
		zap.Stringer("digest", ev.Result.Digest),
		zap.String("event", hex.EncodeToString(ev.Payload())),
	)
	return nil
}

// Multi fans an event out to every notifier, even after one fails.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, ev Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
