// Package domain defines the shared error taxonomy and value types used
// across the conformational analysis kernel.
package domain

import (
	"errors"
	"fmt"
)

// Kernel error kinds. Callers discriminate with errors.Is; every kernel
// package wraps these with context via fmt.Errorf and %w.
var (
	// ErrInvalidSequenceSymbol indicates a character outside the 20
	// standard amino-acid one-letter codes. Rejected before any
	// computation begins.
	ErrInvalidSequenceSymbol = errors.New("invalid sequence symbol")

	// ErrInvalidInput indicates malformed configuration: non-positive
	// sequence length, non-finite threshold or temperature. Rejected at
	// construction time.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDegenerateBasis indicates a residue whose propensity vector is
	// entirely zero, making amplitude normalization undefined. Aborts the
	// analysis for that sequence.
	ErrDegenerateBasis = errors.New("degenerate basis")
)

// WarningKind classifies non-fatal conditions surfaced in the run record.
type WarningKind string

const (
	// WarningNumericalInstability marks a near-zero norm encountered
	// mid-pipeline: the epsilon guard left the residue's vector
	// unnormalized and the run continued.
	WarningNumericalInstability WarningKind = "numerical_instability"

	// WarningMissingPropensity marks an amino-acid/basis combination that
	// fell back to a constant during operator construction.
	WarningMissingPropensity WarningKind = "missing_propensity"
)

// Warning records a recovered degeneracy. Warnings are collected into the
// run record rather than swallowed.
type Warning struct {
	Kind    WarningKind `json:"kind"`
	Residue int         `json:"residue"`
	Stage   string      `json:"stage"`
	Message string      `json:"message"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s at residue %d (%s): %s", w.Kind, w.Residue, w.Stage, w.Message)
}

// DistanceConstraint is an externally supplied residue-pair restraint
// consumed by the Justice and Honesty operator construction.
type DistanceConstraint struct {
	ResidueI  int     `json:"residue_i"`
	ResidueJ  int     `json:"residue_j"`
	Distance  float64 `json:"distance"`  // Target distance in Angstroms
	Tolerance float64 `json:"tolerance"` // Acceptable deviation
}

// Validate checks index ordering and numeric sanity for a constraint over
// a sequence of length n.
func (c DistanceConstraint) Validate(n int) error {
	if c.ResidueI < 0 || c.ResidueI >= n || c.ResidueJ < 0 || c.ResidueJ >= n {
		return fmt.Errorf("%w: constraint residues (%d, %d) out of range for length %d",
			ErrInvalidInput, c.ResidueI, c.ResidueJ, n)
	}
	if c.ResidueI == c.ResidueJ {
		return fmt.Errorf("%w: constraint references residue %d twice", ErrInvalidInput, c.ResidueI)
	}
	if c.Distance <= 0 || c.Tolerance < 0 {
		return fmt.Errorf("%w: constraint distance %.3f / tolerance %.3f", ErrInvalidInput, c.Distance, c.Tolerance)
	}
	return nil
}
