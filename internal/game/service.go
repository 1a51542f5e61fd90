// Package game dispatches wheel operations: it injects the requester identity
// and entropy anchor, runs the engine, records the audit log, and emits events.
package game

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/MJE43/wheel8/internal/anchor"
	"github.com/MJE43/wheel8/internal/engine"
	"github.com/MJE43/wheel8/internal/notify"
	"github.com/MJE43/wheel8/internal/store"
	"github.com/MJE43/wheel8/internal/wheel"
)

const tracerName = "github.com/MJE43/wheel8/internal/game"

// Service is safe for concurrent use.
type Service struct {
	db       store.DB
	anchor   anchor.Source
	notifier notify.Notifier
	log      *zap.Logger
	tracer   trace.Tracer
}

// NewService wires the collaborators. A nil notifier drops events and a nil
// logger discards output.
func NewService(db store.DB, src anchor.Source, n notify.Notifier, log *zap.Logger) *Service {
	if n == nil {
		n = notify.Multi{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		db:       db,
		anchor:   src,
		notifier: n,
		log:      log.Named("game"),
		tracer:   otel.Tracer(tracerName),
	}
}

// Summary is a wheel's config with its observed statistics.
type Summary struct {
	WheelID            string           `json:"wheel_id"`
	Config             wheel.Config     `json:"config"`
	Stats              store.WheelStats `json:"stats"`
	ExpectedMultiplier decimal.Decimal  `json:"expected_multiplier"`
	ObservedMultiplier *decimal.Decimal `json:"observed_multiplier,omitempty"`
}

// Initialize stores the multiplier table of wheelID. It succeeds once per wheel.
func (s *Service) Initialize(ctx context.Context, wheelID string, multipliers []uint16) (cfg wheel.Config, err error) {
	ctx, span := s.start(ctx, "game.Initialize", attribute.String("wheel.id", wheelID))
	defer func() { end(span, err) }()

	if err := wheel.ValidateID(wheelID); err != nil {
		return wheel.Config{}, err
	}
	cfg, err = wheel.NewConfig(multipliers)
	if err != nil {
		return wheel.Config{}, err
	}
	if err := s.db.InitializeConfig(ctx, wheelID, cfg); err != nil {
		return wheel.Config{}, err
	}

	s.log.Info("wheel initialized",
		zap.String("wheel_id", wheelID),
		zap.Uint16s("multipliers", cfg.Slice()),
	)
	return cfg, nil
}

// Spin runs one spin for requester. The config is loaded before the anchor is
// read, and nothing is written unless the engine succeeds. Notification
// failures are logged; the committed record is returned regardless.
func (s *Service) Spin(ctx context.Context, wheelID string, requester engine.RequesterID, clientSeed uint64) (rec *store.SpinRecord, err error) {
	ctx, span := s.start(ctx, "game.Spin",
		attribute.String("wheel.id", wheelID),
		attribute.String("wheel.requester", requester.String()),
	)
	defer func() { end(span, err) }()

	if err := wheel.ValidateID(wheelID); err != nil {
		return nil, err
	}
	cfg, err := s.db.GetConfig(ctx, wheelID)
	if err != nil {
		return nil, err
	}
	a, err := s.anchor.Anchor(ctx)
	if err != nil {
		return nil, err
	}

	req := engine.SpinRequest{Requester: requester, Anchor: a, ClientSeed: clientSeed}
	res, err := engine.Spin(&cfg, req)
	if err != nil {
		return nil, err
	}

	rec = store.NewSpinRecord(wheelID, req, res, engine.Version)
	if err := s.db.SaveSpin(ctx, rec); err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("wheel.spin_id", rec.ID),
		attribute.Int("wheel.index", int(res.Index)),
		attribute.Int("wheel.multiplier", int(res.Multiplier)),
	)

	s.log.Debug("spin inputs",
		zap.String("spin_id", rec.ID),
		zap.Uint64("anchor", a),
		zap.Uint64("client_seed", clientSeed),
	)
	s.log.Info("spin",
		zap.String("wheel_id", wheelID),
		zap.String("spin_id", rec.ID),
		zap.Stringer("requester", requester),
		zap.Uint8("index", res.Index),
		zap.Uint16("multiplier", res.Multiplier),
	)

	ev := notify.Event{WheelID: wheelID, SpinID: rec.ID, Result: res}
	if nerr := s.notifier.Notify(ctx, ev); nerr != nil {
		span.AddEvent("notify failed", trace.WithAttributes(attribute.String("error", nerr.Error())))
		s.log.Warn("spin notification failed", zap.String("spin_id", rec.ID), zap.Error(nerr))
	}
	return rec, nil
}

// Config returns the stored config of wheelID.
func (s *Service) Config(ctx context.Context, wheelID string) (cfg wheel.Config, err error) {
	ctx, span := s.start(ctx, "game.Config", attribute.String("wheel.id", wheelID))
	defer func() { end(span, err) }()

	if err := wheel.ValidateID(wheelID); err != nil {
		return wheel.Config{}, err
	}
	return s.db.GetConfig(ctx, wheelID)
}

// Verify recomputes req against the stored config of wheelID. With a claimed
// result it also reports the first field that differs.
func (s *Service) Verify(ctx context.Context, wheelID string, req engine.SpinRequest, claimed *engine.SpinResult) (res engine.SpinResult, err error) {
	ctx, span := s.start(ctx, "game.Verify", attribute.String("wheel.id", wheelID))
	defer func() { end(span, err) }()

	cfg, err := s.Config(ctx, wheelID)
	if err != nil {
		return engine.SpinResult{}, err
	}
	if claimed == nil {
		return engine.Spin(&cfg, req)
	}
	return engine.Verify(&cfg, req, *claimed)
}

// Audit replays a stored spin against its wheel's config.
func (s *Service) Audit(ctx context.Context, spinID string) (rec *store.SpinRecord, err error) {
	ctx, span := s.start(ctx, "game.Audit", attribute.String("wheel.spin_id", spinID))
	defer func() { end(span, err) }()

	rec, err = s.db.GetSpin(ctx, spinID)
	if err != nil {
		return nil, err
	}
	result := rec.Result()
	if _, err := s.Verify(ctx, rec.WheelID, rec.Request(), &result); err != nil {
		return rec, fmt.Errorf("spin %s: %w", spinID, err)
	}
	return rec, nil
}

// Spins pages through the audit log.
func (s *Service) Spins(ctx context.Context, q store.SpinsQuery) (list *store.SpinsList, err error) {
	ctx, span := s.start(ctx, "game.Spins", attribute.String("wheel.id", q.WheelID))
	defer func() { end(span, err) }()

	if q.WheelID != "" {
		if err := wheel.ValidateID(q.WheelID); err != nil {
			return nil, err
		}
	}
	return s.db.ListSpins(ctx, q)
}

// SpinByID returns one audited spin.
func (s *Service) SpinByID(ctx context.Context, id string) (rec *store.SpinRecord, err error) {
	ctx, span := s.start(ctx, "game.SpinByID", attribute.String("wheel.spin_id", id))
	defer func() { end(span, err) }()

	return s.db.GetSpin(ctx, id)
}

// Stats summarizes a wheel: its table, expected multiplier, and what it has
// actually paid out so far.
func (s *Service) Stats(ctx context.Context, wheelID string) (sum *Summary, err error) {
	ctx, span := s.start(ctx, "game.Stats", attribute.String("wheel.id", wheelID))
	defer func() { end(span, err) }()

	cfg, err := s.Config(ctx, wheelID)
	if err != nil {
		return nil, err
	}
	stats, err := s.db.GetStats(ctx, wheelID)
	if err != nil {
		return nil, err
	}

	sum = &Summary{
		WheelID:            wheelID,
		Config:             cfg,
		Stats:              *stats,
		ExpectedMultiplier: cfg.ExpectedMultiplier(),
	}
	if stats.SpinCount > 0 {
		observed := decimal.NewFromInt(int64(stats.MultiplierSum)).
			DivRound(decimal.NewFromInt(int64(stats.SpinCount)), 4)
		sum.ObservedMultiplier = &observed
	}
	return sum, nil
}

// Wheels lists every initialized wheel.
func (s *Service) Wheels(ctx context.Context) (wheels []store.WheelRecord, err error) {
	ctx, span := s.start(ctx, "game.Wheels")
	defer func() { end(span, err) }()

	return s.db.ListWheels(ctx)
}

func (s *Service) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if kind := wheel.KindOf(err); kind != "" {
			span.SetAttributes(attribute.String("wheel.error_kind", string(kind)))
		}
	}
	span.End()
}
