package api

import (
	"time"

	"github.com/MJE43/wheel8/internal/engine"
	"github.com/MJE43/wheel8/internal/store"
)

// EngineError represents a structured error response with context
type EngineError struct {
	Type      string                 `json:"type"`
	Message   string                 `json:"message"`
	Context   map[string]interface{} `json:"context,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	Timestamp string                 `json:"timestamp,omitempty"`
}

// Error implements the error interface
func (e EngineError) Error() string {
	return e.Message
}

// Error types. The wheel kinds map one to one onto their own type.
const (
	ErrTypeUninitialized            = "uninitialized"
	ErrTypeAlreadyInitialized       = "already_initialized"
	ErrTypeInvalidMultiplierCount   = "invalid_multiplier_count"
	ErrTypeInvalidMultiplier        = "invalid_multiplier"
	ErrTypeEntropySourceUnavailable = "entropy_source_unavailable"
	ErrTypeVerificationMismatch     = "verification_mismatch"
	ErrTypeInvalidWheelID           = "invalid_wheel_id"
	ErrTypeNotFound                 = "not_found"

	ErrTypeUnauthorized = "unauthorized"
	ErrTypeForbidden    = "forbidden"
	ErrTypeValidation   = "validation_error"
	ErrTypeTimeout      = "timeout"
	ErrTypeInternal     = "internal_error"
)

// ErrorCategory represents error categories for monitoring
type ErrorCategory string

const (
	CategoryValidation   ErrorCategory = "validation"
	CategoryState        ErrorCategory = "state"
	CategoryEnvironment  ErrorCategory = "environment"
	CategoryVerification ErrorCategory = "verification"
	CategoryAuth         ErrorCategory = "auth"
	CategorySystem       ErrorCategory = "system"
	CategoryTimeout      ErrorCategory = "timeout"
)

// GetErrorCategory returns the category for an error type
func GetErrorCategory(errType string) ErrorCategory {
	switch errType {
	case ErrTypeInvalidMultiplierCount, ErrTypeInvalidMultiplier, ErrTypeInvalidWheelID, ErrTypeValidation:
		return CategoryValidation
	case ErrTypeUninitialized, ErrTypeAlreadyInitialized, ErrTypeNotFound:
		return CategoryState
	case ErrTypeEntropySourceUnavailable:
		return CategoryEnvironment
	case ErrTypeVerificationMismatch:
		return CategoryVerification
	case ErrTypeUnauthorized, ErrTypeForbidden:
		return CategoryAuth
	case ErrTypeTimeout:
		return CategoryTimeout
	default:
		return CategorySystem
	}
}

// VersionInfo contains engine version information
type VersionInfo struct {
	EngineVersion string `json:"engine_version"`
	Derivation    string `json:"derivation"`
	GitCommit     string `json:"git_commit,omitempty"`
	BuildTime     string `json:"build_time,omitempty"`
}

// InitializeRequest is the body of POST /api/v1/wheels/{wheelID}.
type InitializeRequest struct {
	Multipliers []int `json:"multipliers"`
}

// WheelResponse describes one initialized wheel.
type WheelResponse struct {
	WheelID            string     `json:"wheel_id"`
	Multipliers        []uint16   `json:"multipliers"`
	ExpectedMultiplier string     `json:"expected_multiplier"`
	CreatedAt          *time.Time `json:"created_at,omitempty"`
}

// WheelsResponse lists initialized wheels.
type WheelsResponse struct {
	Wheels        []WheelResponse `json:"wheels"`
	EngineVersion string          `json:"engine_version"`
}

// SpinRequest is the body of POST /api/v1/wheels/{wheelID}/spin. The requester
// comes from the bearer token, never from the body.
type SpinRequest struct {
	ClientSeed *uint64 `json:"client_seed"`
}

// SpinResponse is an audited spin plus its emitted event bytes.
type SpinResponse struct {
	store.SpinRecord
	Event string `json:"event"`
}

func newSpinResponse(rec *store.SpinRecord) SpinResponse {
	return SpinResponse{
		SpinRecord: *rec,
		Event:      hexEvent(rec.Result()),
	}
}

// VerifyRequest recomputes a spin from explicit inputs. Claimed is optional.
type VerifyRequest struct {
	Requester  string         `json:"requester"`
	Anchor     uint64         `json:"anchor"`
	ClientSeed uint64         `json:"client_seed"`
	Claimed    *ClaimedResult `json:"claimed,omitempty"`
}

// ClaimedResult is an outcome to check against the recomputation.
type ClaimedResult struct {
	Index      uint8  `json:"index"`
	Multiplier uint16 `json:"multiplier"`
	Digest     string `json:"digest"`
}

// VerifyResponse carries the recomputed outcome. Matched is set only when a
// claimed result was supplied and agrees with the recomputation.
type VerifyResponse struct {
	Matched       bool               `json:"matched"`
	Request       engine.SpinRequest `json:"request"`
	Result        engine.SpinResult  `json:"result"`
	Event         string             `json:"event"`
	EngineVersion string             `json:"engine_version"`
}
