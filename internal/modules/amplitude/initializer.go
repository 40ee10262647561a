package amplitude

import (
	"fmt"
	"math"
	"math/cmplx"
	"math/rand"

	"github.com/rs/zerolog"

	"github.com/aristath/conformer/internal/domain"
	"github.com/aristath/conformer/internal/modules/basis"
)

// Initializer converts a validated sequence into an initial amplitude
// field. Magnitudes come from sqrt(propensity); phases are drawn
// uniformly from [0, 2pi) on the injected generator, so two runs with the
// same seed produce bit-identical fields.
type Initializer struct {
	model *basis.Model
	rng   *rand.Rand
	log   zerolog.Logger
}

// NewInitializer creates an initializer. The generator is caller-supplied
// and shared with measurement to keep the whole run reproducible from one
// seed.
func NewInitializer(model *basis.Model, rng *rand.Rand, log zerolog.Logger) *Initializer {
	return &Initializer{
		model: model,
		rng:   rng,
		log:   log.With().Str("component", "amplitude_init").Logger(),
	}
}

// Init builds the initial field for the sequence. The sequence is
// validated character-by-character before any entropy is consumed, so a
// bad symbol never perturbs the generator stream. A residue whose
// propensity row is entirely zero fails with domain.ErrDegenerateBasis.
func (init *Initializer) Init(seq string) (*Field, error) {
	if err := init.model.ValidateSequence(seq); err != nil {
		return nil, err
	}

	n := len(seq)
	f := NewField(n)

	for i := 0; i < n; i++ {
		row, err := init.model.Propensities(seq[i])
		if err != nil {
			return nil, err
		}

		total := 0.0
		for _, p := range row {
			total += p
		}
		if total == 0 {
			return nil, fmt.Errorf("%w: residue %d (%q) has all-zero propensities",
				domain.ErrDegenerateBasis, i, string(seq[i]))
		}

		for j := 0; j < basis.NumStates; j++ {
			magnitude := math.Sqrt(row[j])
			phase := init.rng.Float64() * 2 * math.Pi
			f.amps[i][j] = complex(magnitude, 0) * cmplx.Exp(complex(0, phase))
		}

		if !f.NormalizeRow(i) {
			// Unreachable given the total > 0 check, kept as a hard stop
			// against silent NaN propagation.
			return nil, fmt.Errorf("%w: residue %d normalization failed", domain.ErrDegenerateBasis, i)
		}
	}

	init.log.Debug().Int("residues", n).Msg("Amplitude field initialized")
	return f, nil
}
