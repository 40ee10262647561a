// Package basis provides the static structural-class model: the fixed set
// of basis states with their backbone torsion-angle references, and the
// per-amino-acid propensity table used throughout the analysis pipeline.
//
// The model is pure data. It is constructed once at startup and shared
// read-only across concurrent analyses.
package basis

import (
	"fmt"
	"strings"

	"github.com/aristath/conformer/internal/domain"
)

// State identifies one of the fixed structural classes a residue's
// backbone can occupy.
type State int

const (
	Helix State = iota
	Sheet
	Extended
	LeftHanded
)

// NumStates is the dimension B of every per-residue amplitude vector.
const NumStates = 4

// States lists all basis states in canonical order.
var States = [NumStates]State{Helix, Sheet, Extended, LeftHanded}

// Angles holds a backbone torsion-angle pair in degrees.
type Angles struct {
	Phi float64 `json:"phi"`
	Psi float64 `json:"psi"`
}

// referenceAngles maps each state to its canonical region of the
// Ramachandran plot.
var referenceAngles = [NumStates]Angles{
	Helix:      {Phi: -60, Psi: -45},
	Sheet:      {Phi: -120, Psi: 120},
	Extended:   {Phi: -140, Psi: 160},
	LeftHanded: {Phi: 60, Psi: 45},
}

var stateNames = [NumStates]string{"helix", "sheet", "extended", "left_handed"}

// String returns the canonical lowercase name of the state.
func (s State) String() string {
	if s < 0 || int(s) >= NumStates {
		// Unknown states are a programming error, not user input.
		panic(fmt.Sprintf("basis: unknown state %d", int(s)))
	}
	return stateNames[s]
}

// ReferenceAngles returns the torsion-angle pair for the state.
// Panics on an out-of-range state (programming error).
func (s State) ReferenceAngles() Angles {
	if s < 0 || int(s) >= NumStates {
		panic(fmt.Sprintf("basis: unknown state %d", int(s)))
	}
	return referenceAngles[s]
}

// Alphabet is the 20 standard amino-acid one-letter codes.
const Alphabet = "ACDEFGHIKLMNPQRSTVWY"

// propensities holds, per amino acid, the favorability of each basis
// state in canonical state order [helix, sheet, extended, left_handed].
// Values are dimensionless weights derived from secondary-structure
// preference statistics; only their relative ordering matters to the
// pipeline (see Justice operator construction).
var propensities = map[byte][NumStates]float64{
	'A': {1.42, 0.83, 0.60, 0.15},
	'C': {0.70, 1.19, 0.95, 0.20},
	'D': {1.01, 0.54, 0.80, 0.45},
	'E': {1.51, 0.37, 0.65, 0.18},
	'F': {1.13, 1.38, 0.75, 0.12},
	'G': {0.57, 0.75, 1.10, 0.95},
	'H': {1.00, 0.87, 0.85, 0.30},
	'I': {1.08, 1.60, 0.70, 0.08},
	'K': {1.16, 0.74, 0.90, 0.25},
	'L': {1.21, 1.30, 0.65, 0.10},
	'M': {1.45, 1.05, 0.60, 0.15},
	'N': {0.67, 0.89, 0.95, 0.60},
	'P': {0.57, 0.55, 1.45, 0.05},
	'Q': {1.11, 1.10, 0.80, 0.28},
	'R': {0.98, 0.93, 0.85, 0.30},
	'S': {0.77, 0.75, 1.05, 0.40},
	'T': {0.83, 1.19, 0.95, 0.32},
	'V': {1.06, 1.70, 0.65, 0.07},
	'W': {1.08, 1.37, 0.70, 0.15},
	'Y': {0.69, 1.47, 0.80, 0.20},
}

// Model supplies propensity lookups and sequence validation. Zero-cost to
// share: all data is immutable after construction.
type Model struct {
	table map[byte][NumStates]float64
}

// NewModel creates the process-wide basis model from the built-in
// propensity table.
func NewModel() *Model {
	return &Model{table: propensities}
}

// NewModelFromTable creates a model backed by a caller-supplied
// propensity table. The table is used as-is and must not be mutated
// afterwards.
func NewModelFromTable(table map[byte][NumStates]float64) *Model {
	return &Model{table: table}
}

// Propensity returns the non-negative favorability weight of the given
// basis state for the given amino acid. Unknown amino acids fail with
// domain.ErrInvalidSequenceSymbol; an out-of-range state panics
// (programming error, not user input).
func (m *Model) Propensity(aa byte, s State) (float64, error) {
	if s < 0 || int(s) >= NumStates {
		panic(fmt.Sprintf("basis: unknown state %d", int(s)))
	}
	row, ok := m.table[aa]
	if !ok {
		return 0, fmt.Errorf("%w: %q", domain.ErrInvalidSequenceSymbol, string(aa))
	}
	return row[s], nil
}

// Propensities returns the full propensity row for an amino acid in
// canonical state order.
func (m *Model) Propensities(aa byte) ([NumStates]float64, error) {
	row, ok := m.table[aa]
	if !ok {
		return [NumStates]float64{}, fmt.Errorf("%w: %q", domain.ErrInvalidSequenceSymbol, string(aa))
	}
	return row, nil
}

// ValidateSequence checks every character of the sequence against the
// standard amino-acid alphabet. The first offending character is
// reported with its position. Empty sequences are rejected.
func (m *Model) ValidateSequence(seq string) error {
	if len(seq) == 0 {
		return fmt.Errorf("%w: empty sequence", domain.ErrInvalidInput)
	}
	for i := 0; i < len(seq); i++ {
		if !strings.ContainsRune(Alphabet, rune(seq[i])) {
			return fmt.Errorf("%w: %q at position %d", domain.ErrInvalidSequenceSymbol, string(seq[i]), i)
		}
	}
	return nil
}
