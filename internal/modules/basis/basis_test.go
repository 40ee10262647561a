package basis

import (
	"errors"
	"testing"

	"github.com/aristath/conformer/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPropensity_KnownAminoAcid(t *testing.T) {
	m := NewModel()

	p, err := m.Propensity('A', Helix)
	require.NoError(t, err)
	assert.Greater(t, p, 0.0)
}

func TestPropensity_UnknownSymbol(t *testing.T) {
	m := NewModel()

	_, err := m.Propensity('X', Helix)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidSequenceSymbol))
}

func TestPropensity_UnknownStatePanics(t *testing.T) {
	m := NewModel()

	assert.Panics(t, func() {
		_, _ = m.Propensity('A', State(99))
	})
}

// Alanine is a strong helix former: its helix propensity must dominate
// the disallowed left-handed region.
func TestPropensity_AlanineOrdering(t *testing.T) {
	m := NewModel()

	helix, err := m.Propensity('A', Helix)
	require.NoError(t, err)
	left, err := m.Propensity('A', LeftHanded)
	require.NoError(t, err)

	assert.Greater(t, helix, left)
}

func TestPropensities_AllNonNegative(t *testing.T) {
	m := NewModel()

	for i := 0; i < len(Alphabet); i++ {
		row, err := m.Propensities(Alphabet[i])
		require.NoError(t, err)
		for _, s := range States {
			assert.GreaterOrEqual(t, row[s], 0.0, "aa %c state %s", Alphabet[i], s)
		}
	}
}

func TestReferenceAngles(t *testing.T) {
	a := Helix.ReferenceAngles()
	assert.Equal(t, -60.0, a.Phi)
	assert.Equal(t, -45.0, a.Psi)

	a = LeftHanded.ReferenceAngles()
	assert.Equal(t, 60.0, a.Phi)
	assert.Equal(t, 45.0, a.Psi)
}

func TestValidateSequence(t *testing.T) {
	m := NewModel()

	testCases := []struct {
		name    string
		seq     string
		wantErr error
	}{
		{"valid short", "DAEF", nil},
		{"valid all symbols", Alphabet, nil},
		{"empty", "", domain.ErrInvalidInput},
		{"unknown symbol", "DAXF", domain.ErrInvalidSequenceSymbol},
		{"lowercase rejected", "daef", domain.ErrInvalidSequenceSymbol},
		{"digit", "DA3F", domain.ErrInvalidSequenceSymbol},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := m.ValidateSequence(tc.seq)
			if tc.wantErr == nil {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tc.wantErr))
			}
		})
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "helix", Helix.String())
	assert.Equal(t, "sheet", Sheet.String())
	assert.Equal(t, "extended", Extended.String())
	assert.Equal(t, "left_handed", LeftHanded.String())
}
