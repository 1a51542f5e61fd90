// Package engine derives wheel outcomes. Everything here is a pure function of
// the wheel config and the spin inputs.
package engine

import (
	"fmt"

	"github.com/MJE43/wheel8/internal/wheel"
)

// Version names the derivation recorded with every audited spin. It changes
// whenever the entropy layout, hash, or reduction changes.
const Version = "keccak256-mod8/1"

// Spin computes the outcome of req against cfg. A nil cfg means the wheel was
// never initialized.
func Spin(cfg *wheel.Config, req SpinRequest) (SpinResult, error) {
	if cfg == nil {
		return SpinResult{}, wheel.ErrUninitialized
	}

	digest := Hash(EntropyBuffer(req))
	index := Reduce(digest)

	return SpinResult{
		Requester:  req.Requester,
		Index:      index,
		Multiplier: cfg.Multipliers[index],
		Digest:     digest,
	}, nil
}

// Verify recomputes req against cfg and compares it with a claimed result.
// It returns the recomputed result in all cases where the spin itself succeeds.
func Verify(cfg *wheel.Config, req SpinRequest, claimed SpinResult) (SpinResult, error) {
	got, err := Spin(cfg, req)
	if err != nil {
		return SpinResult{}, err
	}

	switch {
	case got.Requester != claimed.Requester:
		return got, wheel.Errorf(wheel.KindVerificationMismatch, "requester %s, claimed %s", got.Requester, claimed.Requester)
	case got.Digest != claimed.Digest:
		return got, wheel.Errorf(wheel.KindVerificationMismatch, "digest %s, claimed %s", got.Digest, claimed.Digest)
	case got.Index != claimed.Index:
		return got, wheel.Errorf(wheel.KindVerificationMismatch, "index %d, claimed %d", got.Index, claimed.Index)
	case got.Multiplier != claimed.Multiplier:
		return got, wheel.Errorf(wheel.KindVerificationMismatch, "multiplier %d, claimed %d", got.Multiplier, claimed.Multiplier)
	}
	return got, nil
}

// String renders a result for logs and CLI output.
func (r SpinResult) String() string {
	return fmt.Sprintf("requester=%s index=%d multiplier=%d digest=%s", r.Requester, r.Index, r.Multiplier, r.Digest)
}
