package evolution

import (
	"math/rand"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/conformer/internal/modules/amplitude"
	"github.com/aristath/conformer/internal/modules/basis"
	"github.com/aristath/conformer/internal/modules/seqgraph"
)

func testSetup(t *testing.T, seq string, seed int64) (*amplitude.Field, *seqgraph.Graph) {
	t.Helper()
	log := zerolog.New(nil).Level(zerolog.Disabled)

	g, err := seqgraph.NewBuilder(log).Build(len(seq))
	require.NoError(t, err)

	init := amplitude.NewInitializer(basis.NewModel(), rand.New(rand.NewSource(seed)), log)
	f, err := init.Init(seq)
	require.NoError(t, err)

	return f, g
}

func TestEvolve_PreservesNormalization(t *testing.T) {
	f, g := testSetup(t, "DAEFRHDSGYEV", 11)
	e := NewEvolver(zerolog.New(nil).Level(zerolog.Disabled))

	op, err := e.Prepare(g)
	require.NoError(t, err)

	warnings, err := e.Evolve(f, op, 0.1)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	for i := 0; i < f.Len(); i++ {
		assert.InDelta(t, 1.0, f.RowNorm(i), 1e-6, "residue %d", i)
	}
}

func TestEvolve_ZeroStepIsIdentity(t *testing.T) {
	f, g := testSetup(t, "KLVFF", 5)
	e := NewEvolver(zerolog.New(nil).Level(zerolog.Disabled))

	op, err := e.Prepare(g)
	require.NoError(t, err)

	before := f.Clone()
	_, err = e.Evolve(f, op, 0)
	require.NoError(t, err)

	for i := 0; i < f.Len(); i++ {
		for j, a := range f.Row(i) {
			assert.InDelta(t, real(before.Row(i)[j]), real(a), 1e-9)
			assert.InDelta(t, imag(before.Row(i)[j]), imag(a), 1e-9)
		}
	}
}

func TestEvolve_ChangesAmplitudes(t *testing.T) {
	f, g := testSetup(t, "DAEFGH", 21)
	e := NewEvolver(zerolog.New(nil).Level(zerolog.Disabled))

	op, err := e.Prepare(g)
	require.NoError(t, err)

	before := f.Clone()
	_, err = e.Evolve(f, op, 0.5)
	require.NoError(t, err)

	changed := false
	for i := 0; i < f.Len(); i++ {
		for j := range f.Row(i) {
			if f.Row(i)[j] != before.Row(i)[j] {
				changed = true
			}
		}
	}
	assert.True(t, changed, "evolution with dt=0.5 should perturb amplitudes")
}

func TestEvolve_Deterministic(t *testing.T) {
	f1, g := testSetup(t, "DAEF", 3)
	f2, _ := testSetup(t, "DAEF", 3)
	e := NewEvolver(zerolog.New(nil).Level(zerolog.Disabled))

	op, err := e.Prepare(g)
	require.NoError(t, err)

	_, err = e.Evolve(f1, op, 0.25)
	require.NoError(t, err)
	_, err = e.Evolve(f2, op, 0.25)
	require.NoError(t, err)

	for i := 0; i < f1.Len(); i++ {
		assert.Equal(t, f1.Row(i), f2.Row(i))
	}
}

func TestEvolve_SizeMismatch(t *testing.T) {
	f, _ := testSetup(t, "DAEF", 3)
	_, gOther := testSetup(t, "DAEFKL", 3)
	e := NewEvolver(zerolog.New(nil).Level(zerolog.Disabled))

	op, err := e.Prepare(gOther)
	require.NoError(t, err)

	_, err = e.Evolve(f, op, 0.1)
	assert.Error(t, err)
}

func TestEvolve_SingleResidue(t *testing.T) {
	f, g := testSetup(t, "A", 1)
	e := NewEvolver(zerolog.New(nil).Level(zerolog.Disabled))

	op, err := e.Prepare(g)
	require.NoError(t, err)

	// One node, zero Laplacian: evolution is a global phase at most.
	_, err = e.Evolve(f, op, 1.0)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, f.RowNorm(0), 1e-10)
}
