// Package evolution advances the amplitude field under the connectivity
// graph's Laplacian: U = exp(-i L dt). Using the Laplacian as the
// generator couples each residue's conformational state to its graph
// neighbors, so structural changes propagate cooperatively along the
// chain without a physical force field.
package evolution

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/aristath/conformer/internal/domain"
	"github.com/aristath/conformer/internal/modules/amplitude"
	"github.com/aristath/conformer/internal/modules/basis"
	"github.com/aristath/conformer/internal/modules/seqgraph"
)

// Evolver applies Laplacian evolution steps to amplitude fields. The
// spectral decomposition of L is computed once per graph and reused
// across cycles.
type Evolver struct {
	log zerolog.Logger
}

// NewEvolver creates an evolver.
func NewEvolver(log zerolog.Logger) *Evolver {
	return &Evolver{
		log: log.With().Str("component", "evolver").Logger(),
	}
}

// Operator is the prepared evolution operator for one graph: the
// eigendecomposition L = V diag(lambda) V^T, from which
// exp(-i L dt) = V diag(e^{-i lambda dt}) V^T for any dt.
type Operator struct {
	n       int
	vectors *mat.Dense
	values  []float64
}

// Prepare eigendecomposes the graph Laplacian. L is real symmetric, so
// the spectral route gives the exact matrix exponential with no series
// truncation.
func (e *Evolver) Prepare(g *seqgraph.Graph) (*Operator, error) {
	l := g.Laplacian()

	var eig mat.EigenSym
	if ok := eig.Factorize(l, true); !ok {
		return nil, fmt.Errorf("laplacian eigendecomposition failed for %d residues", g.Len())
	}

	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	op := &Operator{
		n:       g.Len(),
		vectors: &vectors,
		values:  eig.Values(nil),
	}

	e.log.Debug().Int("residues", op.n).Msg("Evolution operator prepared")
	return op, nil
}

// Evolve advances the field by one step of size dt and renormalizes each
// residue row. Residues whose post-step norm falls under the epsilon
// guard are reported as warnings and left unnormalized. Extremely large
// dt values are a caller responsibility; no clamping is applied.
func (e *Evolver) Evolve(f *amplitude.Field, op *Operator, dt float64) ([]domain.Warning, error) {
	n := f.Len()
	if n != op.n {
		return nil, fmt.Errorf("%w: field has %d residues, operator built for %d",
			domain.ErrInvalidInput, n, op.n)
	}

	// Phase factors e^{-i lambda_k dt} per eigenmode.
	phases := make([]complex128, n)
	for k, lambda := range op.values {
		phases[k] = complex(math.Cos(-lambda*dt), math.Sin(-lambda*dt))
	}

	// Apply U = V diag(phase) V^T column-by-column over basis states:
	// project onto eigenmodes, rotate, project back. O(n^2) per state
	// instead of forming the dense n x n complex operator.
	col := make([]complex128, n)
	modes := make([]complex128, n)
	for j := 0; j < basis.NumStates; j++ {
		for i := 0; i < n; i++ {
			col[i] = f.Row(i)[j]
		}

		for k := 0; k < n; k++ {
			acc := complex(0, 0)
			for i := 0; i < n; i++ {
				acc += complex(op.vectors.At(i, k), 0) * col[i]
			}
			modes[k] = acc * phases[k]
		}

		for i := 0; i < n; i++ {
			acc := complex(0, 0)
			for k := 0; k < n; k++ {
				acc += complex(op.vectors.At(i, k), 0) * modes[k]
			}
			f.Row(i)[j] = acc
		}
	}

	var warnings []domain.Warning
	for i := 0; i < n; i++ {
		if !f.NormalizeRow(i) {
			w := domain.Warning{
				Kind:    domain.WarningNumericalInstability,
				Residue: i,
				Stage:   "evolution",
				Message: fmt.Sprintf("norm below %g after evolution step", amplitude.Epsilon),
			}
			warnings = append(warnings, w)
			e.log.Warn().Int("residue", i).Msg(w.Message)
		}
	}

	return warnings, nil
}
