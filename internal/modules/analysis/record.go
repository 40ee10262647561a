// Package analysis orchestrates the conformational amplitude pipeline:
// initialization, virtue projection, Laplacian evolution, optional
// amplification, measurement collapse and FoT aggregation. It also owns
// the run record contract handed to persistence and reporting.
package analysis

import (
	"fmt"
	"math"
	"time"

	"github.com/aristath/conformer/internal/domain"
	"github.com/aristath/conformer/internal/modules/measure"
	"github.com/aristath/conformer/internal/modules/virtues"
)

// Defaults for optional request fields.
const (
	DefaultTemperature = virtues.DefaultTemperature
	DefaultCycles      = 1
	DefaultTimeStep    = 0.1
	DefaultThreshold   = 0.7
)

// Request is a single analysis job: one sequence plus configuration.
// Zero-valued optional fields are filled from defaults by Normalize.
type Request struct {
	Sequence    string                      `json:"sequence"`
	Seed        int64                       `json:"seed"`
	Temperature float64                     `json:"temperature,omitempty"` // Kelvin
	Cycles      int                         `json:"cycles,omitempty"`      // evolution/constraint cycles
	TimeStep    float64                     `json:"time_step,omitempty"`   // dt per evolution step
	Amplify     bool                        `json:"amplify,omitempty"`
	Threshold   float64                     `json:"threshold,omitempty"`
	Constraints []domain.DistanceConstraint `json:"constraints,omitempty"`

	// The Set flags disambiguate an explicit 0 from an omitted field
	// when requests arrive over JSON: zero cycles, a zero time step and
	// a zero threshold are all valid configurations.
	CyclesSet    bool `json:"cycles_set,omitempty"`
	TimeStepSet  bool `json:"time_step_set,omitempty"`
	ThresholdSet bool `json:"threshold_set,omitempty"`
}

// Normalize fills defaults and validates numeric sanity. Returns
// domain.ErrInvalidInput on malformed configuration; the sequence itself
// is validated by the pipeline before any computation.
func (r *Request) Normalize() error {
	if r.Temperature == 0 {
		r.Temperature = DefaultTemperature
	}
	if r.Temperature <= 0 || math.IsNaN(r.Temperature) || math.IsInf(r.Temperature, 0) {
		return fmt.Errorf("%w: temperature %v K", domain.ErrInvalidInput, r.Temperature)
	}
	if r.Cycles == 0 && !r.CyclesSet {
		r.Cycles = DefaultCycles
	}
	if r.Cycles < 0 {
		return fmt.Errorf("%w: cycles %d", domain.ErrInvalidInput, r.Cycles)
	}
	if r.TimeStep == 0 && !r.TimeStepSet {
		r.TimeStep = DefaultTimeStep
	}
	if math.IsNaN(r.TimeStep) || math.IsInf(r.TimeStep, 0) {
		return fmt.Errorf("%w: time step %v", domain.ErrInvalidInput, r.TimeStep)
	}
	if r.Threshold == 0 && !r.ThresholdSet {
		r.Threshold = DefaultThreshold
	}
	if math.IsNaN(r.Threshold) || math.IsInf(r.Threshold, 0) {
		return fmt.Errorf("%w: threshold %v", domain.ErrInvalidInput, r.Threshold)
	}
	return nil
}

// Record is the structured output of one analysis run: the contract
// handed to persistence, reporting and the HTTP surface.
type Record struct {
	RunID    string `json:"run_id"`
	Sequence string `json:"sequence"`

	// Run metadata: everything needed to reproduce the record.
	Seed        int64   `json:"seed"`
	Temperature float64 `json:"temperature"`
	Cycles      int     `json:"cycles"`
	TimeStep    float64 `json:"time_step"`
	Threshold   float64 `json:"threshold"`
	Amplified   bool    `json:"amplified"`

	Conformations     []measure.Conformation `json:"conformations"`
	AmplifiedResidues []int                  `json:"amplified_residues,omitempty"`
	FoTValue          float64                `json:"fot_value"`

	// Per-residue FoT contribution summary.
	ContributionMean   float64 `json:"contribution_mean"`
	ContributionStdDev float64 `json:"contribution_std_dev"`

	Warnings         []domain.Warning `json:"warnings,omitempty"`
	HonestyDefaulted bool             `json:"honesty_defaulted"`
	EvolutionSteps   int              `json:"evolution_steps"`

	CreatedAt time.Time `json:"created_at"`
	ElapsedMS int64     `json:"elapsed_ms"`
}
