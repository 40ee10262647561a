package measure

import (
	"math/rand"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/conformer/internal/modules/amplitude"
	"github.com/aristath/conformer/internal/modules/basis"
	"github.com/aristath/conformer/internal/modules/virtues"
)

var testLog = zerolog.New(nil).Level(zerolog.Disabled)

func setup(t *testing.T, seq string, seed int64) (*amplitude.Field, *virtues.Bank, *Collapser) {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	init := amplitude.NewInitializer(basis.NewModel(), rng, testLog)
	f, err := init.Init(seq)
	require.NoError(t, err)

	bank, err := virtues.NewBank(basis.NewModel(), seq,
		virtues.Config{Temperature: virtues.DefaultTemperature}, rng, testLog)
	require.NoError(t, err)

	return f, bank, NewCollapser(rng, testLog)
}

func TestMeasure_EmitsOneConformationPerResidue(t *testing.T) {
	seq := "DAEF"
	f, bank, c := setup(t, seq, 42)

	conformations, warnings, err := c.Measure(f, seq, bank)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, conformations, 4)

	for i, conf := range conformations {
		assert.Equal(t, i, conf.Residue)
		assert.Equal(t, string(seq[i]), conf.AminoAcid)
		assert.Greater(t, conf.Probability, 0.0)
		assert.LessOrEqual(t, conf.Probability, 1.0)

		require.Len(t, conf.VirtueScores, 4)
		for _, name := range virtues.Order {
			assert.Contains(t, conf.VirtueScores, string(name))
		}
	}
}

func TestMeasure_StateAnglesMatchBasis(t *testing.T) {
	seq := "KLVFF"
	f, bank, c := setup(t, seq, 9)

	conformations, _, err := c.Measure(f, seq, bank)
	require.NoError(t, err)

	for _, conf := range conformations {
		var matched bool
		for _, s := range basis.States {
			if conf.State == s.String() {
				assert.Equal(t, s.ReferenceAngles(), conf.Angles)
				matched = true
			}
		}
		assert.True(t, matched, "state %q not in basis", conf.State)
	}
}

func TestMeasure_NonDestructive(t *testing.T) {
	seq := "DAEF"
	f, bank, c := setup(t, seq, 5)

	before := f.Clone()
	_, _, err := c.Measure(f, seq, bank)
	require.NoError(t, err)

	for i := 0; i < f.Len(); i++ {
		assert.Equal(t, before.Row(i), f.Row(i), "residue %d mutated by measurement", i)
	}
}

func TestMeasure_Reproducible(t *testing.T) {
	seq := "DAEFRHDS"
	f1, bank1, c1 := setup(t, seq, 77)
	f2, bank2, c2 := setup(t, seq, 77)

	conf1, _, err := c1.Measure(f1, seq, bank1)
	require.NoError(t, err)
	conf2, _, err := c2.Measure(f2, seq, bank2)
	require.NoError(t, err)

	assert.Equal(t, conf1, conf2)
}

func TestMeasure_ZeroRowSampledUniformly(t *testing.T) {
	seq := "DA"
	f, bank, c := setup(t, seq, 3)

	// Collapse residue 1's row to zero to trigger the uniform fallback.
	row := f.Row(1)
	for j := range row {
		row[j] = 0
	}

	conformations, warnings, err := c.Measure(f, seq, bank)
	require.NoError(t, err)
	require.Len(t, conformations, 2)
	require.Len(t, warnings, 1)
	assert.Equal(t, 1, warnings[0].Residue)
	assert.InDelta(t, 0.25, conformations[1].Probability, 1e-12)
}

func TestMeasure_LengthMismatch(t *testing.T) {
	f, bank, c := setup(t, "DAEF", 1)

	_, _, err := c.Measure(f, "DAEFK", bank)
	assert.Error(t, err)
}
