// Package virtues implements the four named constraint projections
// applied to the amplitude field in fixed order: Justice (physical
// constraint filtering), Temperance (thermal equilibration), Prudence
// (goal-directed reweighting), Honesty (external-data validation).
//
// Each virtue is a per-residue BxB complex matrix, constructed once per
// analysis run and read-only afterwards. Application is sequential with
// renormalization after every stage; the ordering is deliberate and part
// of the contract.
package virtues

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/rs/zerolog"

	"github.com/aristath/conformer/internal/domain"
	"github.com/aristath/conformer/internal/modules/amplitude"
	"github.com/aristath/conformer/internal/modules/basis"
)

// Name identifies one virtue operator.
type Name string

const (
	Justice    Name = "justice"
	Temperance Name = "temperance"
	Prudence   Name = "prudence"
	Honesty    Name = "honesty"
)

// Order is the fixed application sequence.
var Order = [4]Name{Justice, Temperance, Prudence, Honesty}

// Physical constants for the Temperance Boltzmann factor.
const (
	// BoltzmannKcal is k_B in kcal/(mol*K).
	BoltzmannKcal = 0.0019872041

	// DefaultTemperature is physiological-adjacent room temperature in K.
	DefaultTemperature = 298.15

	// fallbackPropensity replaces a missing amino-acid/basis combination
	// during operator construction. The fallback is deliberate but never
	// silent: every use is logged and recorded as a warning.
	fallbackPropensity = 0.5

	// offDiagonalCoupling is the small mixing term keeping Justice
	// diagonal-dominant rather than strictly diagonal.
	offDiagonalCoupling = 0.05

	// contactDistance separates compact-implying constraints from
	// extended-implying ones, in Angstroms.
	contactDistance = 8.0
)

// Config parameterizes bank construction.
type Config struct {
	Temperature float64                     // Kelvin; <= 0 rejected
	Constraints []domain.DistanceConstraint // optional external restraints
}

// matrixSet holds one BxB matrix per residue.
type matrixSet [][basis.NumStates][basis.NumStates]complex128

// Bank holds the four constructed operators for one analysis run.
type Bank struct {
	n         int
	operators [4]matrixSet
	warnings  []domain.Warning
	honestyID bool // Honesty defaulted to identity (no constraints supplied)
	log       zerolog.Logger
}

// NewBank constructs all four operators for the sequence. Temperance
// consumes entropy from the supplied generator; constructing two banks
// from identically seeded generators yields identical operators.
func NewBank(model *basis.Model, seq string, cfg Config, rng *rand.Rand, log zerolog.Logger) (*Bank, error) {
	if err := model.ValidateSequence(seq); err != nil {
		return nil, err
	}
	if cfg.Temperature <= 0 || math.IsNaN(cfg.Temperature) || math.IsInf(cfg.Temperature, 0) {
		return nil, fmt.Errorf("%w: temperature %v K", domain.ErrInvalidInput, cfg.Temperature)
	}
	n := len(seq)
	for _, c := range cfg.Constraints {
		if err := c.Validate(n); err != nil {
			return nil, err
		}
	}

	b := &Bank{
		n:         n,
		honestyID: len(cfg.Constraints) == 0,
		log:       log.With().Str("component", "virtue_bank").Logger(),
	}

	constrained := constraintIndex(cfg.Constraints)

	b.operators[0] = b.buildJustice(model, seq, constrained)
	b.operators[1] = b.buildTemperance(cfg.Temperature, rng)
	b.operators[2] = b.buildPrudence()
	b.operators[3] = b.buildHonesty(constrained)

	if b.honestyID {
		b.log.Debug().Msg("No distance constraints supplied, Honesty operator is identity")
	}

	return b, nil
}

// constraintIndex maps residue index to the strongest constraint
// covering it. Strength is 1/(1+tolerance): tight tolerances dominate.
func constraintIndex(constraints []domain.DistanceConstraint) map[int]domain.DistanceConstraint {
	idx := make(map[int]domain.DistanceConstraint)
	for _, c := range constraints {
		for _, r := range []int{c.ResidueI, c.ResidueJ} {
			prev, ok := idx[r]
			if !ok || 1/(1+c.Tolerance) > 1/(1+prev.Tolerance) {
				idx[r] = c
			}
		}
	}
	return idx
}

// buildJustice creates the steric/physical-constraint filter: a
// diagonal-dominant matrix whose diagonal carries the residue's
// basis-state propensities. Residues covered by a distance constraint
// get their diagonal sharpened toward the constraint's implication.
func (b *Bank) buildJustice(model *basis.Model, seq string, constrained map[int]domain.DistanceConstraint) matrixSet {
	set := make(matrixSet, b.n)
	for i := 0; i < b.n; i++ {
		row, err := model.Propensities(seq[i])
		if err != nil {
			// Sequence was validated; this path covers table gaps only.
			row = [basis.NumStates]float64{fallbackPropensity, fallbackPropensity, fallbackPropensity, fallbackPropensity}
			b.recordFallback(i, "justice", seq[i])
		}

		for s := 0; s < basis.NumStates; s++ {
			for t := 0; t < basis.NumStates; t++ {
				if s == t {
					set[i][s][t] = complex(row[s], 0)
				} else {
					set[i][s][t] = complex(offDiagonalCoupling, 0)
				}
			}
		}

		if c, ok := constrained[i]; ok {
			// A tight short-distance restraint implies compact local
			// structure; sharpen compact states and damp extended ones.
			strength := 1 / (1 + c.Tolerance)
			boost := 1 + 0.25*strength
			damp := 1 - 0.25*strength
			if c.Distance <= contactDistance {
				set[i][Helix][Helix] *= complex(boost, 0)
				set[i][Sheet][Sheet] *= complex(boost, 0)
				set[i][Extended][Extended] *= complex(damp, 0)
			} else {
				set[i][Extended][Extended] *= complex(boost, 0)
				set[i][Helix][Helix] *= complex(damp, 0)
			}
		}
	}
	return set
}

// buildTemperance creates the thermal-equilibration filter
// exp(-beta H) / tr(exp(-beta H)) with H a per-residue random energy
// diagonal in [0, 2) kcal/mol.
func (b *Bank) buildTemperance(temperature float64, rng *rand.Rand) matrixSet {
	beta := 1 / (BoltzmannKcal * temperature)
	set := make(matrixSet, b.n)
	for i := 0; i < b.n; i++ {
		var weights [basis.NumStates]float64
		trace := 0.0
		for s := 0; s < basis.NumStates; s++ {
			energy := rng.Float64() * 2
			weights[s] = math.Exp(-beta * energy)
			trace += weights[s]
		}
		for s := 0; s < basis.NumStates; s++ {
			set[i][s][s] = complex(weights[s]/trace, 0)
		}
	}
	return set
}

// efficacyWeights is the Prudence goal objective: ordered secondary
// structure scores above disordered backbone geometry.
var efficacyWeights = [basis.NumStates]float64{
	1.0,  // helix
	0.9,  // sheet
	0.4,  // extended
	0.2,  // left_handed
}

// buildPrudence creates the goal-directed reweighting operator, the same
// diagonal for every residue.
func (b *Bank) buildPrudence() matrixSet {
	set := make(matrixSet, b.n)
	for i := 0; i < b.n; i++ {
		for s := 0; s < basis.NumStates; s++ {
			set[i][s][s] = complex(efficacyWeights[s], 0)
		}
	}
	return set
}

// buildHonesty creates the external-confidence operator. Without
// constraints it is the identity (the documented default); with
// constraints, covered residues are reweighted toward the structure the
// restraint implies, scaled by the restraint's confidence.
func (b *Bank) buildHonesty(constrained map[int]domain.DistanceConstraint) matrixSet {
	set := make(matrixSet, b.n)
	for i := 0; i < b.n; i++ {
		for s := 0; s < basis.NumStates; s++ {
			set[i][s][s] = complex(1, 0)
		}
		c, ok := constrained[i]
		if !ok {
			continue
		}
		conf := 1 / (1 + c.Tolerance)
		agree := complex(0.5+0.5*conf, 0)
		disagree := complex(1-0.5*conf, 0)
		if c.Distance <= contactDistance {
			set[i][Helix][Helix] = agree
			set[i][Sheet][Sheet] = agree
			set[i][Extended][Extended] = disagree
			set[i][LeftHanded][LeftHanded] = disagree
		} else {
			set[i][Extended][Extended] = agree
			set[i][Helix][Helix] = disagree
			set[i][Sheet][Sheet] = disagree
		}
	}
	return set
}

func (b *Bank) recordFallback(residue int, stage string, aa byte) {
	w := domain.Warning{
		Kind:    domain.WarningMissingPropensity,
		Residue: residue,
		Stage:   stage,
		Message: fmt.Sprintf("no propensity for %q, using fallback %.2f", string(aa), fallbackPropensity),
	}
	b.warnings = append(b.warnings, w)
	b.log.Warn().Int("residue", residue).Str("stage", stage).Msg(w.Message)
}

// Len returns the number of residues the bank was built for.
func (b *Bank) Len() int {
	return b.n
}

// HonestyDefaulted reports whether Honesty fell back to identity.
func (b *Bank) HonestyDefaulted() bool {
	return b.honestyID
}

// ConstructionWarnings returns fallbacks recorded while building the
// operators.
func (b *Bank) ConstructionWarnings() []domain.Warning {
	return b.warnings
}

// Apply runs the field through all four operators in order, normalizing
// each residue row after every stage. Epsilon-guard hits are returned as
// warnings; the affected rows are left unnormalized and the run
// continues.
func (b *Bank) Apply(f *amplitude.Field) ([]domain.Warning, error) {
	if f.Len() != b.n {
		return nil, fmt.Errorf("%w: field has %d residues, bank built for %d",
			domain.ErrInvalidInput, f.Len(), b.n)
	}

	var warnings []domain.Warning
	var out [basis.NumStates]complex128
	for v, name := range Order {
		set := b.operators[v]
		for i := 0; i < b.n; i++ {
			row := f.Row(i)
			for s := 0; s < basis.NumStates; s++ {
				acc := complex(0, 0)
				for t := 0; t < basis.NumStates; t++ {
					acc += set[i][s][t] * row[t]
				}
				out[s] = acc
			}
			copy(row, out[:])

			if !f.NormalizeRow(i) {
				w := domain.Warning{
					Kind:    domain.WarningNumericalInstability,
					Residue: i,
					Stage:   string(name),
					Message: fmt.Sprintf("norm below %g after %s projection", amplitude.Epsilon, name),
				}
				warnings = append(warnings, w)
				b.log.Warn().Int("residue", i).Str("virtue", string(name)).Msg(w.Message)
			}
		}
	}
	return warnings, nil
}

// Score returns the diagonal expectation of the named operator for one
// (residue, state) pair: the real part of <e_s|Op|e_s>.
func (b *Bank) Score(name Name, residue int, state basis.State) float64 {
	for v, candidate := range Order {
		if candidate == name {
			return real(b.operators[v][residue][state][state])
		}
	}
	panic(fmt.Sprintf("virtues: unknown operator %q", name))
}

// Scores returns all four virtue scores for one (residue, state) pair.
func (b *Bank) Scores(residue int, state basis.State) map[string]float64 {
	scores := make(map[string]float64, len(Order))
	for _, name := range Order {
		scores[string(name)] = b.Score(name, residue, state)
	}
	return scores
}

// TotalScore sums the four virtue scores for one (residue, state) pair.
func (b *Bank) TotalScore(residue int, state basis.State) float64 {
	total := 0.0
	for _, name := range Order {
		total += b.Score(name, residue, state)
	}
	return total
}

// Basis state aliases keep the operator-construction code readable.
const (
	Helix      = basis.Helix
	Sheet      = basis.Sheet
	Extended   = basis.Extended
	LeftHanded = basis.LeftHanded
)
