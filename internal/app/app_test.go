package app

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/MJE43/wheel8/internal/anchor"
	"github.com/MJE43/wheel8/internal/config"
	"github.com/MJE43/wheel8/internal/engine"
	"github.com/MJE43/wheel8/internal/store"
	"github.com/MJE43/wheel8/internal/wheel"
)

func testConfig() config.Config {
	return config.Config{
		Env:            "local",
		HTTPAddr:       "127.0.0.1:0",
		ReadTimeout:    time.Second,
		WriteTimeout:   time.Second,
		IdleTimeout:    time.Second,
		RequestTimeout: time.Second,
		Store:          config.StoreSQLite,
		SQLitePath:     ":memory:",
		JWTSecret:      "secret",
		JWTIssuer:      "wheel8",
		Anchor:         config.AnchorSequence,
		SequenceStart:  1000,
	}
}

func newTestApp(t *testing.T, cfg config.Config) *App {
	t.Helper()
	a, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestNewAnchor(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	db := newTestApp(t, cfg).Store()

	src, err := NewAnchor(ctx, cfg, db, nil)
	if err != nil {
		t.Fatalf("NewAnchor: %v", err)
	}
	seq, ok := src.(*anchor.Sequence)
	if !ok {
		t.Fatalf("expected *anchor.Sequence, got %T", src)
	}
	if seq.Peek() != 1000 {
		t.Errorf("sequence starts at %d, want 1000", seq.Peek())
	}

	cfg.Anchor = config.AnchorClock
	if src, err = NewAnchor(ctx, cfg, db, nil); err != nil {
		t.Fatalf("NewAnchor: %v", err)
	}
	if _, ok := src.(*anchor.Clock); !ok {
		t.Errorf("expected *anchor.Clock, got %T", src)
	}

	cfg.Anchor = "dice"
	if _, err := NewAnchor(ctx, cfg, db, nil); err == nil {
		t.Error("expected error for unknown anchor")
	}
}

func TestSequenceResumesAfterRestart(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.SQLitePath = filepath.Join(t.TempDir(), "wheel8.db")

	var requester engine.RequesterID
	for i := range requester {
		requester[i] = 0x01
	}

	a, err := New(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := a.Service().Initialize(ctx, "main", []uint16{0, 10, 20, 30, 40, 50, 60, 70}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	first, err := a.Service().Spin(ctx, "main", requester, 42)
	if err != nil {
		t.Fatalf("Spin: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	a, err = New(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer a.Close()
	second, err := a.Service().Spin(ctx, "main", requester, 42)
	if err != nil {
		t.Fatalf("Spin after reopen: %v", err)
	}

	if second.Anchor <= first.Anchor {
		t.Fatalf("anchor went from %d to %d across restart", first.Anchor, second.Anchor)
	}
	if second.Digest == first.Digest {
		t.Error("same seed produced the same digest after restart")
	}
}

func TestSequenceStartAboveStoredAnchors(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	a := newTestApp(t, cfg)
	if _, err := a.Service().Initialize(ctx, "main", []uint16{1, 2, 3, 4, 5, 6, 7, 8}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if _, err := a.Service().Spin(ctx, "main", engine.RequesterID{}, 1); err != nil {
		t.Fatalf("Spin: %v", err)
	}

	// A configured start above the stored anchors wins.
	cfg.SequenceStart = 5000
	src, err := NewAnchor(ctx, cfg, a.Store(), nil)
	if err != nil {
		t.Fatalf("NewAnchor: %v", err)
	}
	if got := src.(*anchor.Sequence).Peek(); got != 5000 {
		t.Errorf("start = %d, want 5000", got)
	}

	// Otherwise the sequence continues after the stored maximum (1000).
	cfg.SequenceStart = 0
	if src, err = NewAnchor(ctx, cfg, a.Store(), nil); err != nil {
		t.Fatalf("NewAnchor: %v", err)
	}
	if got := src.(*anchor.Sequence).Peek(); got != 1001 {
		t.Errorf("start = %d, want 1001", got)
	}

	// Nothing is left above a stored maximum anchor.
	cfgMain, err := a.Service().Config(ctx, "main")
	if err != nil {
		t.Fatalf("Config: %v", err)
	}
	req := engine.SpinRequest{Anchor: math.MaxUint64, ClientSeed: 1}
	res, err := engine.Spin(&cfgMain, req)
	if err != nil {
		t.Fatalf("engine.Spin: %v", err)
	}
	if err := a.Store().SaveSpin(ctx, store.NewSpinRecord("main", req, res, engine.Version)); err != nil {
		t.Fatalf("SaveSpin: %v", err)
	}
	if _, err := NewAnchor(ctx, cfg, a.Store(), nil); !errors.Is(err, wheel.ErrEntropySourceUnavailable) {
		t.Errorf("expected ErrEntropySourceUnavailable, got %v", err)
	}
}

func TestOpenStoreUnknown(t *testing.T) {
	cfg := testConfig()
	cfg.Store = "mongo"
	if _, err := OpenStore(context.Background(), cfg); err == nil {
		t.Fatal("expected error for unknown store")
	}
}

func TestSeedWheels(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t, testConfig())

	defs := []config.WheelDef{
		{ID: "main", Multipliers: []int{0, 10, 20, 30, 40, 50, 60, 70}},
		{ID: "flat", Multipliers: []int{1, 1, 1, 1, 1, 1, 1, 1}},
	}
	created, err := a.SeedWheels(ctx, defs)
	if err != nil {
		t.Fatalf("SeedWheels: %v", err)
	}
	if created != 2 {
		t.Errorf("created = %d, want 2", created)
	}

	// Seeding again keeps existing wheels.
	defs[0].Multipliers = []int{9, 9, 9, 9, 9, 9, 9, 9}
	created, err = a.SeedWheels(ctx, defs)
	if err != nil {
		t.Fatalf("SeedWheels: %v", err)
	}
	if created != 0 {
		t.Errorf("created = %d, want 0", created)
	}
	cfg, err := a.Service().Config(ctx, "main")
	if err != nil {
		t.Fatalf("Config: %v", err)
	}
	if cfg.Multipliers[7] != 70 {
		t.Errorf("seeding overwrote the existing table: %v", cfg.Multipliers)
	}

	_, err = a.SeedWheels(ctx, []config.WheelDef{{ID: "short", Multipliers: []int{1}}})
	if !errors.Is(err, wheel.ErrInvalidMultiplierCount) {
		t.Errorf("expected ErrInvalidMultiplierCount, got %v", err)
	}
}

func TestSpinUsesSequenceAnchor(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t, testConfig())
	if _, err := a.Service().Initialize(ctx, "main", []uint16{0, 10, 20, 30, 40, 50, 60, 70}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	var requester engine.RequesterID
	for i := range requester {
		requester[i] = 0x01
	}
	rec, err := a.Service().Spin(ctx, "main", requester, 42)
	if err != nil {
		t.Fatalf("Spin: %v", err)
	}
	if rec.Anchor != 1000 || rec.Index != 4 || rec.Multiplier != 40 {
		t.Errorf("unexpected spin: %+v", rec)
	}
	next, err := a.Service().Spin(ctx, "main", requester, 42)
	if err != nil {
		t.Fatalf("Spin: %v", err)
	}
	if next.Anchor != 1001 {
		t.Errorf("second anchor = %d, want 1001", next.Anchor)
	}
}

func TestHandler(t *testing.T) {
	a := newTestApp(t, testConfig())
	h, err := a.Handler()
	if err != nil {
		t.Fatalf("Handler: %v", err)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/health/live", nil))
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	cfg := testConfig()
	cfg.JWTSecret = ""
	if _, err := newTestApp(t, cfg).Handler(); err == nil {
		t.Error("expected Handler to require a JWT secret")
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	a := newTestApp(t, testConfig())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	a, err := New(context.Background(), testConfig(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
