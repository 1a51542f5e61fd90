package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MJE43/wheel8/internal/engine"
	"github.com/MJE43/wheel8/internal/wheel"
)

// DB is the persistence collaborator for wheel configs and the spin audit log.
type DB interface {
	Close() error
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error

	// InitializeConfig stores cfg for wheelID exactly once. A second call fails
	// with wheel.ErrAlreadyInitialized and leaves the stored config untouched.
	InitializeConfig(ctx context.Context, wheelID string, cfg wheel.Config) error
	// GetConfig fails with wheel.ErrUninitialized when wheelID has no config.
	GetConfig(ctx context.Context, wheelID string) (wheel.Config, error)
	ListWheels(ctx context.Context) ([]WheelRecord, error)

	// SaveSpin appends rec to the audit log and updates the wheel's stats atomically.
	SaveSpin(ctx context.Context, rec *SpinRecord) error
	GetSpin(ctx context.Context, id string) (*SpinRecord, error)
	ListSpins(ctx context.Context, query SpinsQuery) (*SpinsList, error)
	GetStats(ctx context.Context, wheelID string) (*WheelStats, error)
	// MaxAnchor returns the largest anchor recorded by any spin. ok is false
	// when no spin has been saved.
	MaxAnchor(ctx context.Context) (largest uint64, ok bool, err error)
}

// maxAnchorQuery finds the largest anchor as an unsigned value. Anchors are
// stored bit-cast to int64, so negative values are the upper half of the range.
const maxAnchorQuery = `SELECT COALESCE(MAX(CASE WHEN anchor < 0 THEN anchor END), MAX(anchor)) FROM spins`

// WheelRecord is an initialized wheel.
type WheelRecord struct {
	ID        string       `json:"id"`
	Config    wheel.Config `json:"config"`
	CreatedAt time.Time    `json:"created_at"`
}

// SpinRecord is one audited spin: every input and the full result.
type SpinRecord struct {
	ID            string             `json:"id"`
	WheelID       string             `json:"wheel_id"`
	Requester     engine.RequesterID `json:"requester"`
	Anchor        uint64             `json:"anchor"`
	ClientSeed    uint64             `json:"client_seed"`
	Index         uint8              `json:"index"`
	Multiplier    uint16             `json:"multiplier"`
	Digest        engine.Digest      `json:"digest"`
	EngineVersion string             `json:"engine_version"`
	CreatedAt     time.Time          `json:"created_at"`
}

// NewSpinRecord combines the inputs and outcome of a spin.
func NewSpinRecord(wheelID string, req engine.SpinRequest, res engine.SpinResult, engineVersion string) *SpinRecord {
	return &SpinRecord{
		WheelID:       wheelID,
		Requester:     req.Requester,
		Anchor:        req.Anchor,
		ClientSeed:    req.ClientSeed,
		Index:         res.Index,
		Multiplier:    res.Multiplier,
		Digest:        res.Digest,
		EngineVersion: engineVersion,
	}
}

// Request returns the inputs the spin was computed from.
func (r *SpinRecord) Request() engine.SpinRequest {
	return engine.SpinRequest{Requester: r.Requester, Anchor: r.Anchor, ClientSeed: r.ClientSeed}
}

// Result returns the spin outcome.
func (r *SpinRecord) Result() engine.SpinResult {
	return engine.SpinResult{Requester: r.Requester, Index: r.Index, Multiplier: r.Multiplier, Digest: r.Digest}
}

// SpinsQuery represents query parameters for listing spins
type SpinsQuery struct {
	WheelID   string `json:"wheel_id,omitempty"`
	Requester string `json:"requester,omitempty"` // hex; empty for all requesters
	Page      int    `json:"page"`
	PerPage   int    `json:"perPage"`
}

func (q *SpinsQuery) normalize() {
	if q.PerPage <= 0 {
		q.PerPage = 50
	}
	if q.PerPage > 500 {
		q.PerPage = 500
	}
	if q.Page <= 0 {
		q.Page = 1
	}
	q.Requester = strings.ToLower(strings.TrimPrefix(strings.TrimPrefix(q.Requester, "0x"), "0X"))
}

func (q SpinsQuery) offset() int { return (q.Page - 1) * q.PerPage }

// SpinsList represents a paginated spins response
type SpinsList struct {
	Spins      []SpinRecord `json:"spins"`
	TotalCount int          `json:"totalCount"`
	Page       int          `json:"page"`
	PerPage    int          `json:"perPage"`
	TotalPages int          `json:"totalPages"`
}

func newSpinsList(spins []SpinRecord, total int, q SpinsQuery) *SpinsList {
	if spins == nil {
		spins = []SpinRecord{}
	}
	return &SpinsList{
		Spins:      spins,
		TotalCount: total,
		Page:       q.Page,
		PerPage:    q.PerPage,
		TotalPages: (total + q.PerPage - 1) / q.PerPage,
	}
}

// WheelStats aggregates delivered multipliers per wheel.
type WheelStats struct {
	WheelID       string     `json:"wheel_id"`
	SpinCount     uint64     `json:"spin_count"`
	MultiplierSum uint64     `json:"multiplier_sum"`
	LastSpinAt    *time.Time `json:"last_spin_at,omitempty"`
}

type scanner interface {
	Scan(dest ...any) error
}

// scanSpin reads the columns listed in spinColumns.
func scanSpin(row scanner) (*SpinRecord, error) {
	var (
		rec                SpinRecord
		requester, digest  string
		anchor, clientSeed int64
		index, multiplier  int64
	)
	err := row.Scan(&rec.ID, &rec.WheelID, &requester, &anchor, &clientSeed,
		&index, &multiplier, &digest, &rec.EngineVersion, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}

	if rec.Requester, err = engine.ParseRequesterID(requester); err != nil {
		return nil, fmt.Errorf("spin %s: %w", rec.ID, err)
	}
	if rec.Digest, err = engine.ParseDigest(digest); err != nil {
		return nil, fmt.Errorf("spin %s: %w", rec.ID, err)
	}
	rec.Anchor = uint64(anchor)
	rec.ClientSeed = uint64(clientSeed)
	rec.Index = uint8(index)
	rec.Multiplier = uint16(multiplier)
	rec.CreatedAt = rec.CreatedAt.UTC()
	return &rec, nil
}

const spinColumns = `id, wheel_id, requester, anchor, client_seed, idx, multiplier, digest, engine_version, created_at`

// spinArgs orders values for spinColumns. SQL integers are signed, so the
// 64-bit anchor and seed are stored with their bits reinterpreted as int64.
func spinArgs(rec *SpinRecord) []any {
	return []any{
		rec.ID, rec.WheelID, rec.Requester.String(), int64(rec.Anchor), int64(rec.ClientSeed),
		int64(rec.Index), int64(rec.Multiplier), rec.Digest.String(), rec.EngineVersion, rec.CreatedAt,
	}
}

func decodeConfig(record []byte) (wheel.Config, error) {
	var cfg wheel.Config
	if err := cfg.UnmarshalBinary(record); err != nil {
		return wheel.Config{}, err
	}
	return cfg, nil
}
