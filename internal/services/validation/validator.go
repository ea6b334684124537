package validation

import (
	"fmt"
	"math"
	"time"

	"FinSynth/internal/domain/models"
)

// Result of checking one ensemble against its request.
type Result struct {
	OK     bool
	Reason models.ValidationReason
	Detail string
}

// Err returns nil for a passing result and a *models.ValidationError otherwise.
func (r Result) Err() error {
	if r.OK {
		return nil
	}
	return &models.ValidationError{Reason: r.Reason, Detail: r.Detail}
}

func failf(reason models.ValidationReason, format string, args ...any) Result {
	return Result{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// Validate checks, in order: path count, path length, timestamps, values.
// The first failing check decides the reason. A nil ensemble fails the path count.
func Validate(req models.SimulationRequest, ens *models.SimulationEnsemble) Result {
	if ens == nil {
		return failf(models.ReasonWrongPathCount, "no ensemble, expected %d paths", req.NumSimulations)
	}
	if len(ens.Paths) != req.NumSimulations {
		return failf(models.ReasonWrongPathCount, "got %d paths, expected %d", len(ens.Paths), req.NumSimulations)
	}

	want := req.Timestamps()
	for i, path := range ens.Paths {
		if len(path) != len(want) {
			return failf(models.ReasonWrongLength, "path %d has %d points, expected %d", i, len(path), len(want))
		}
	}

	for i, path := range ens.Paths {
		for k, pt := range path {
			if !pt.Time.Equal(want[k]) {
				return failf(models.ReasonTimestampMismatch, "path %d point %d at %s, expected %s",
					i, k, pt.Time.UTC().Format(time.RFC3339), want[k].UTC().Format(time.RFC3339))
			}
		}
	}

	for i, path := range ens.Paths {
		for k, pt := range path {
			if math.IsNaN(pt.Price) || math.IsInf(pt.Price, 0) || pt.Price <= 0 {
				return failf(models.ReasonInvalidValue, "path %d point %d has price %v", i, k, pt.Price)
			}
		}
	}

	return Result{OK: true}
}
