package analysis

import (
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/conformer/internal/modules/amplitude"
	"github.com/aristath/conformer/internal/modules/basis"
	"github.com/aristath/conformer/internal/modules/seqgraph"
	"github.com/aristath/conformer/internal/modules/virtues"
)

// aggregateFoT reduces the full amplitude field to one scalar: for every
// (residue, state) pair, |amp|^2 times the summed virtue scores, summed
// over all pairs, scaled by the summed magnitudes of the graph's unit
// principal eigenvector divided by N. Purely a reduction; nothing is
// mutated.
//
// Returns the scalar, the per-residue contributions, and their
// mean/stddev summary.
func aggregateFoT(f *amplitude.Field, bank *virtues.Bank, g *seqgraph.Graph) (float64, []float64, float64, float64, error) {
	centrality, err := g.EigenvectorCentrality()
	if err != nil {
		return 0, nil, 0, 0, err
	}

	centralityTotal := 0.0
	for _, c := range centrality {
		centralityTotal += c
	}

	n := f.Len()
	contributions := make([]float64, n)
	total := 0.0
	for i := 0; i < n; i++ {
		row := f.Row(i)
		for j := 0; j < basis.NumStates; j++ {
			m := real(row[j])*real(row[j]) + imag(row[j])*imag(row[j])
			contributions[i] += m * bank.TotalScore(i, basis.States[j])
		}
		total += contributions[i]
	}

	value := total * centralityTotal / float64(n)

	mean, std := stat.MeanStdDev(contributions, nil)
	if n == 1 {
		std = 0
	}
	return value, contributions, mean, std, nil
}
