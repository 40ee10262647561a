package analysis

import (
	"errors"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/conformer/internal/domain"
	"github.com/aristath/conformer/internal/modules/basis"
	"github.com/aristath/conformer/internal/modules/virtues"
)

var testLog = zerolog.New(nil).Level(zerolog.Disabled)

func testService() *Service {
	return NewService(basis.NewModel(), testLog)
}

// The end-to-end contract: "DAEF", fixed seed, one evolution cycle, no
// amplification. Four conformations, four virtue scores each, one finite
// non-negative FoT value.
func TestAnalyze_EndToEnd(t *testing.T) {
	s := testService()

	record, err := s.Analyze(Request{
		Sequence: "DAEF",
		Seed:     42,
		Cycles:   1,
	})
	require.NoError(t, err)

	require.Len(t, record.Conformations, 4)
	for _, conf := range record.Conformations {
		require.Len(t, conf.VirtueScores, 4)
		for _, name := range virtues.Order {
			assert.Contains(t, conf.VirtueScores, string(name))
		}
	}

	assert.False(t, math.IsNaN(record.FoTValue))
	assert.False(t, math.IsInf(record.FoTValue, 0))
	assert.GreaterOrEqual(t, record.FoTValue, 0.0)
	assert.Equal(t, 1, record.EvolutionSteps)
	assert.True(t, record.HonestyDefaulted)
	assert.NotEmpty(t, record.RunID)
}

func TestAnalyze_Deterministic(t *testing.T) {
	s := testService()
	req := Request{Sequence: "DAEFRHDSGYEV", Seed: 1234, Cycles: 2, Amplify: true}

	r1, err := s.Analyze(req)
	require.NoError(t, err)
	r2, err := s.Analyze(req)
	require.NoError(t, err)

	// Identical seed and configuration: identical science, distinct
	// run identities.
	assert.Equal(t, r1.Conformations, r2.Conformations)
	assert.Equal(t, r1.FoTValue, r2.FoTValue)
	assert.Equal(t, r1.AmplifiedResidues, r2.AmplifiedResidues)
	assert.Equal(t, r1.Warnings, r2.Warnings)
	assert.NotEqual(t, r1.RunID, r2.RunID)
}

func TestAnalyze_SeedMatters(t *testing.T) {
	s := testService()

	r1, err := s.Analyze(Request{Sequence: "DAEFRHDSGYEV", Seed: 1})
	require.NoError(t, err)
	r2, err := s.Analyze(Request{Sequence: "DAEFRHDSGYEV", Seed: 2})
	require.NoError(t, err)

	assert.NotEqual(t, r1.Conformations, r2.Conformations)
}

func TestAnalyze_ZeroCycles(t *testing.T) {
	s := testService()

	record, err := s.Analyze(Request{Sequence: "DAEF", Seed: 1, CyclesSet: true})
	require.NoError(t, err)
	assert.Equal(t, 0, record.EvolutionSteps)
	require.Len(t, record.Conformations, 4)
}

func TestAnalyze_DefaultsApplied(t *testing.T) {
	s := testService()

	record, err := s.Analyze(Request{Sequence: "DAEF", Seed: 1})
	require.NoError(t, err)
	assert.Equal(t, DefaultTemperature, record.Temperature)
	assert.Equal(t, DefaultCycles, record.Cycles)
	assert.Equal(t, DefaultTimeStep, record.TimeStep)
	assert.Equal(t, DefaultThreshold, record.Threshold)
}

// A zero time step and a zero threshold are valid configurations; the
// Set flags keep them from being mistaken for omitted fields.
func TestNormalize_ExplicitZerosSurvive(t *testing.T) {
	req := Request{Sequence: "DAEF", Amplify: true, Threshold: 0, ThresholdSet: true}
	require.NoError(t, req.Normalize())
	assert.Equal(t, 0.0, req.Threshold)

	req = Request{Sequence: "DAEF", TimeStep: 0, TimeStepSet: true}
	require.NoError(t, req.Normalize())
	assert.Equal(t, 0.0, req.TimeStep)

	// Unset zeros still pick up the defaults.
	req = Request{Sequence: "DAEF"}
	require.NoError(t, req.Normalize())
	assert.Equal(t, DefaultTimeStep, req.TimeStep)
	assert.Equal(t, DefaultThreshold, req.Threshold)
}

func TestAnalyze_ZeroThresholdAmplifies(t *testing.T) {
	s := testService()

	record, err := s.Analyze(Request{
		Sequence:     "DAEF",
		Seed:         3,
		Amplify:      true,
		Threshold:    0,
		ThresholdSet: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 0.0, record.Threshold)
	assert.True(t, record.Amplified)
}

func TestAnalyze_InvalidSequence(t *testing.T) {
	s := testService()

	testCases := []struct {
		name string
		seq  string
		want error
	}{
		{"bad symbol", "DAXB", domain.ErrInvalidSequenceSymbol},
		{"empty", "", domain.ErrInvalidInput},
		{"lowercase", "daef", domain.ErrInvalidSequenceSymbol},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.Analyze(Request{Sequence: tc.seq, Seed: 1})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want))
		})
	}
}

func TestAnalyze_InvalidConfig(t *testing.T) {
	s := testService()

	testCases := []struct {
		name string
		req  Request
	}{
		{"negative temperature", Request{Sequence: "DAEF", Temperature: -1}},
		{"NaN threshold", Request{Sequence: "DAEF", Threshold: math.NaN()}},
		{"negative cycles", Request{Sequence: "DAEF", Cycles: -1}},
		{"infinite time step", Request{Sequence: "DAEF", TimeStep: math.Inf(1)}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.Analyze(tc.req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrInvalidInput))
		})
	}
}

func TestAnalyze_WithConstraints(t *testing.T) {
	s := testService()

	record, err := s.Analyze(Request{
		Sequence: "DAEFRHDS",
		Seed:     5,
		Constraints: []domain.DistanceConstraint{
			{ResidueI: 0, ResidueJ: 5, Distance: 6.0, Tolerance: 0.5},
		},
	})
	require.NoError(t, err)
	assert.False(t, record.HonestyDefaulted)
}

func TestAnalyze_SingleResidue(t *testing.T) {
	s := testService()

	record, err := s.Analyze(Request{Sequence: "A", Seed: 1})
	require.NoError(t, err)
	require.Len(t, record.Conformations, 1)
	assert.GreaterOrEqual(t, record.FoTValue, 0.0)
}

func TestAnalyze_GraphCacheReuse(t *testing.T) {
	s := testService()

	_, err := s.Analyze(Request{Sequence: "DAEF", Seed: 1})
	require.NoError(t, err)
	_, err = s.Analyze(Request{Sequence: "KLVF", Seed: 2})
	require.NoError(t, err)

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Len(t, s.graphs, 1, "same-length sequences share one cached graph")
}

func TestHashRequest_Stability(t *testing.T) {
	req := Request{Sequence: "DAEF", Seed: 7, Temperature: 298.15, Cycles: 1, TimeStep: 0.1, Threshold: 0.7}
	assert.Equal(t, hashRequest(req), hashRequest(req))

	other := req
	other.Seed = 8
	assert.NotEqual(t, hashRequest(req), hashRequest(other))
}
