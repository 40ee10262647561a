// Package measure samples a discrete structural assignment per residue
// from the amplitude-derived probability distribution. The sampling is
// non-destructive: the source field is read, never mutated, and only the
// emitted Conformation records are new artifacts.
package measure

import (
	"fmt"
	"math/rand"

	"github.com/rs/zerolog"

	"github.com/aristath/conformer/internal/domain"
	"github.com/aristath/conformer/internal/modules/amplitude"
	"github.com/aristath/conformer/internal/modules/basis"
	"github.com/aristath/conformer/internal/modules/virtues"
)

// Amplitude is the sampled complex amplitude split into parts for
// serialization.
type Amplitude struct {
	Real float64 `json:"real"`
	Imag float64 `json:"imag"`
}

// Conformation is the classical measurement output for one residue.
type Conformation struct {
	Residue      int                `json:"residue"`
	AminoAcid    string             `json:"amino_acid"`
	State        string             `json:"state"`
	Angles       basis.Angles       `json:"angles"`
	Amplitude    Amplitude          `json:"amplitude"`
	Probability  float64            `json:"probability"`
	VirtueScores map[string]float64 `json:"virtue_scores"`
}

// Collapser performs measurement collapse with caller-supplied
// randomness.
type Collapser struct {
	rng *rand.Rand
	log zerolog.Logger
}

// NewCollapser creates a collapser around the run's generator.
func NewCollapser(rng *rand.Rand, log zerolog.Logger) *Collapser {
	return &Collapser{
		rng: rng,
		log: log.With().Str("component", "measure").Logger(),
	}
}

// Measure samples one basis state per residue from |amp|^2 and emits a
// Conformation carrying the state's reference angles, the sampled
// amplitude and probability, and all four virtue scores. A residue whose
// row collapsed to zero norm is sampled uniformly and flagged.
func (c *Collapser) Measure(f *amplitude.Field, seq string, bank *virtues.Bank) ([]Conformation, []domain.Warning, error) {
	n := f.Len()
	if n != len(seq) {
		return nil, nil, fmt.Errorf("%w: field has %d residues, sequence has %d",
			domain.ErrInvalidInput, n, len(seq))
	}
	if n != bank.Len() {
		return nil, nil, fmt.Errorf("%w: field has %d residues, bank built for %d",
			domain.ErrInvalidInput, n, bank.Len())
	}

	conformations := make([]Conformation, 0, n)
	var warnings []domain.Warning

	uniform := make([]float64, basis.NumStates)
	for j := range uniform {
		uniform[j] = 1.0 / basis.NumStates
	}

	for i := 0; i < n; i++ {
		probs := f.RowProbabilities(i)
		if probs == nil {
			w := domain.Warning{
				Kind:    domain.WarningNumericalInstability,
				Residue: i,
				Stage:   "measurement",
				Message: "zero-norm row, sampling uniformly",
			}
			warnings = append(warnings, w)
			c.log.Warn().Int("residue", i).Msg(w.Message)
			probs = uniform
		}

		state := c.sample(probs)
		amp := f.Row(i)[state]

		conformations = append(conformations, Conformation{
			Residue:      i,
			AminoAcid:    string(seq[i]),
			State:        state.String(),
			Angles:       state.ReferenceAngles(),
			Amplitude:    Amplitude{Real: real(amp), Imag: imag(amp)},
			Probability:  probs[state],
			VirtueScores: bank.Scores(i, state),
		})
	}

	return conformations, warnings, nil
}

// sample walks the cumulative distribution with one uniform draw. probs
// sums to 1 by construction.
func (c *Collapser) sample(probs []float64) basis.State {
	r := c.rng.Float64()
	cumulative := 0.0
	for j, p := range probs {
		cumulative += p
		if r <= cumulative {
			return basis.States[j]
		}
	}
	// Floating-point shortfall at the tail: assign the last state.
	return basis.States[basis.NumStates-1]
}
