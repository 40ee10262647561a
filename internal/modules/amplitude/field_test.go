package amplitude

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/conformer/internal/domain"
	"github.com/aristath/conformer/internal/modules/basis"
)

func testInitializer(seed int64) *Initializer {
	return NewInitializer(
		basis.NewModel(),
		rand.New(rand.NewSource(seed)),
		zerolog.New(nil).Level(zerolog.Disabled),
	)
}

func TestInit_NormalizationInvariant(t *testing.T) {
	init := testInitializer(42)

	f, err := init.Init("DAEFRHDSGYEVHHQKLVFFAEDVGSNK")
	require.NoError(t, err)

	for i := 0; i < f.Len(); i++ {
		assert.InDelta(t, 1.0, f.RowNorm(i), 1e-10, "residue %d", i)
	}
}

func TestInit_Deterministic(t *testing.T) {
	f1, err := testInitializer(7).Init("DAEF")
	require.NoError(t, err)
	f2, err := testInitializer(7).Init("DAEF")
	require.NoError(t, err)

	for i := 0; i < f1.Len(); i++ {
		assert.Equal(t, f1.Row(i), f2.Row(i), "residue %d", i)
	}
}

func TestInit_SeedChangesPhases(t *testing.T) {
	f1, err := testInitializer(1).Init("DAEF")
	require.NoError(t, err)
	f2, err := testInitializer(2).Init("DAEF")
	require.NoError(t, err)

	assert.NotEqual(t, f1.Row(0), f2.Row(0))
}

func TestInit_InvalidSymbol(t *testing.T) {
	init := testInitializer(1)

	_, err := init.Init("DABF")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidSequenceSymbol))
}

func TestInit_DegenerateBasis(t *testing.T) {
	// A residue whose whole propensity row is zero carries no magnitude
	// into any basis state and must be rejected before entropy is spent.
	table := map[byte][basis.NumStates]float64{
		'A': {1.42, 0.83, 0.66, 0.20},
		'G': {0, 0, 0, 0},
	}
	init := NewInitializer(
		basis.NewModelFromTable(table),
		rand.New(rand.NewSource(1)),
		zerolog.New(nil).Level(zerolog.Disabled),
	)

	_, err := init.Init("AGA")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrDegenerateBasis))
}

func TestInit_EmptySequence(t *testing.T) {
	init := testInitializer(1)

	_, err := init.Init("")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}

func TestNormalizeRow_EpsilonGuard(t *testing.T) {
	f := NewField(1)
	// All-zero row: norm far below the guard.
	ok := f.NormalizeRow(0)
	assert.False(t, ok)
	// Row unchanged rather than NaN-filled.
	for _, a := range f.Row(0) {
		assert.Equal(t, complex128(0), a)
	}
}

func TestRowProbabilities_SumToOne(t *testing.T) {
	init := testInitializer(99)

	f, err := init.Init("KLVFF")
	require.NoError(t, err)

	for i := 0; i < f.Len(); i++ {
		probs := f.RowProbabilities(i)
		require.NotNil(t, probs)
		total := 0.0
		for _, p := range probs {
			assert.GreaterOrEqual(t, p, 0.0)
			total += p
		}
		assert.InDelta(t, 1.0, total, 1e-12)
	}
}

func TestRowProbabilities_ZeroRow(t *testing.T) {
	f := NewField(1)
	assert.Nil(t, f.RowProbabilities(0))
}

func TestClone_Independent(t *testing.T) {
	init := testInitializer(3)

	f, err := init.Init("GAV")
	require.NoError(t, err)

	c := f.Clone()
	c.Row(0)[0] = complex(99, 0)
	assert.NotEqual(t, f.Row(0)[0], c.Row(0)[0])
}
