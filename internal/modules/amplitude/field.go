// Package amplitude defines the per-residue complex amplitude field and
// its initialization from basis-model propensities.
//
// The central invariant of the whole pipeline lives here: every residue's
// amplitude row satisfies sum |amp|^2 = 1 at every externally observable
// point. Stages that transform the field renormalize through NormalizeRow
// so that near-zero norms are guarded consistently.
package amplitude

import (
	"math"
	"math/cmplx"

	"github.com/aristath/conformer/internal/modules/basis"
)

// Epsilon is the norm guard: rows whose norm falls below this are left
// unnormalized and flagged rather than divided by near-zero.
const Epsilon = 1e-10

// Field holds one complex amplitude row of length basis.NumStates per
// residue. A Field is owned exclusively by the analysis that created it
// and is mutated in place through the pipeline stages.
type Field struct {
	amps [][]complex128
}

// NewField allocates a zero field for n residues.
func NewField(n int) *Field {
	amps := make([][]complex128, n)
	for i := range amps {
		amps[i] = make([]complex128, basis.NumStates)
	}
	return &Field{amps: amps}
}

// Len returns the number of residues.
func (f *Field) Len() int {
	return len(f.amps)
}

// Row returns the amplitude row for residue i. The returned slice aliases
// the field's storage.
func (f *Field) Row(i int) []complex128 {
	return f.amps[i]
}

// SetRow replaces residue i's amplitudes.
func (f *Field) SetRow(i int, row []complex128) {
	copy(f.amps[i], row)
}

// Clone returns a deep copy of the field.
func (f *Field) Clone() *Field {
	c := NewField(f.Len())
	for i, row := range f.amps {
		copy(c.amps[i], row)
	}
	return c
}

// RowNorm returns the L2 norm of residue i's amplitude row.
func (f *Field) RowNorm(i int) float64 {
	sum := 0.0
	for _, a := range f.amps[i] {
		m := cmplx.Abs(a)
		sum += m * m
	}
	return math.Sqrt(sum)
}

// NormalizeRow rescales residue i's row to unit norm. When the norm is
// below Epsilon the row is left as-is and false is returned; callers
// surface that as a numerical-instability warning.
func (f *Field) NormalizeRow(i int) bool {
	norm := f.RowNorm(i)
	if norm < Epsilon {
		return false
	}
	inv := complex(1/norm, 0)
	for j := range f.amps[i] {
		f.amps[i][j] *= inv
	}
	return true
}

// RowProbabilities returns |amp|^2 for residue i, renormalized to sum
// exactly to 1. Returns nil for a fully collapsed (zero-norm) row.
func (f *Field) RowProbabilities(i int) []float64 {
	probs := make([]float64, basis.NumStates)
	total := 0.0
	for j, a := range f.amps[i] {
		m := cmplx.Abs(a)
		probs[j] = m * m
		total += probs[j]
	}
	if total == 0 {
		return nil
	}
	for j := range probs {
		probs[j] /= total
	}
	return probs
}
