// Package amplify implements the oracle/diffusion refinement over the
// amplitude field: an amplitude-amplification search pattern that biases
// probability mass toward residues whose virtue scores clear a threshold.
package amplify

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/aristath/conformer/internal/domain"
	"github.com/aristath/conformer/internal/modules/amplitude"
	"github.com/aristath/conformer/internal/modules/basis"
	"github.com/aristath/conformer/internal/modules/virtues"
)

// Searcher runs amplitude-amplification passes.
type Searcher struct {
	log zerolog.Logger
}

// NewSearcher creates a searcher.
func NewSearcher(log zerolog.Logger) *Searcher {
	return &Searcher{
		log: log.With().Str("component", "amplify").Logger(),
	}
}

// Search runs round(sqrt(N)) oracle+diffusion iterations in place, then
// reports the residues whose most probable basis state scores above the
// threshold. The threshold must be a finite real.
func (s *Searcher) Search(f *amplitude.Field, bank *virtues.Bank, threshold float64) ([]int, []domain.Warning, error) {
	if math.IsNaN(threshold) || math.IsInf(threshold, 0) {
		return nil, nil, fmt.Errorf("%w: amplification threshold %v", domain.ErrInvalidInput, threshold)
	}
	n := f.Len()
	if n != bank.Len() {
		return nil, nil, fmt.Errorf("%w: field has %d residues, bank built for %d",
			domain.ErrInvalidInput, n, bank.Len())
	}

	iterations := int(math.Round(math.Sqrt(float64(n))))
	var warnings []domain.Warning

	for iter := 0; iter < iterations; iter++ {
		// Oracle: flip the sign of every (residue, state) amplitude whose
		// summed virtue score clears the threshold.
		for i := 0; i < n; i++ {
			row := f.Row(i)
			for j := 0; j < basis.NumStates; j++ {
				if bank.TotalScore(i, basis.States[j]) > threshold {
					row[j] = -row[j]
				}
			}
			if !f.NormalizeRow(i) {
				warnings = append(warnings, s.guardWarning(i, iter, "oracle"))
			}
		}

		// Diffusion: reflect each row about its own mean.
		for i := 0; i < n; i++ {
			row := f.Row(i)
			mean := complex(0, 0)
			for _, a := range row {
				mean += a
			}
			mean /= complex(float64(basis.NumStates), 0)
			for j := range row {
				row[j] = 2*mean - row[j]
			}
			if !f.NormalizeRow(i) {
				warnings = append(warnings, s.guardWarning(i, iter, "diffusion"))
			}
		}
	}

	var hits []int
	for i := 0; i < n; i++ {
		probs := f.RowProbabilities(i)
		if probs == nil {
			continue
		}
		best := 0
		for j := 1; j < basis.NumStates; j++ {
			if probs[j] > probs[best] {
				best = j
			}
		}
		if bank.TotalScore(i, basis.States[best]) > threshold {
			hits = append(hits, i)
		}
	}

	s.log.Debug().
		Int("iterations", iterations).
		Int("hits", len(hits)).
		Float64("threshold", threshold).
		Msg("Amplification search finished")

	return hits, warnings, nil
}

func (s *Searcher) guardWarning(residue, iteration int, step string) domain.Warning {
	w := domain.Warning{
		Kind:    domain.WarningNumericalInstability,
		Residue: residue,
		Stage:   "amplification_" + step,
		Message: fmt.Sprintf("norm below %g in %s step of iteration %d", amplitude.Epsilon, step, iteration),
	}
	s.log.Warn().Int("residue", residue).Str("step", step).Msg(w.Message)
	return w
}
