package analysis

import (
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/conformer/internal/domain"
	"github.com/aristath/conformer/internal/modules/amplify"
	"github.com/aristath/conformer/internal/modules/amplitude"
	"github.com/aristath/conformer/internal/modules/basis"
	"github.com/aristath/conformer/internal/modules/evolution"
	"github.com/aristath/conformer/internal/modules/measure"
	"github.com/aristath/conformer/internal/modules/seqgraph"
	"github.com/aristath/conformer/internal/modules/virtues"
)

// Service runs the full analysis pipeline. The basis model and graph
// cache are shared read-only across concurrent analyses; every run owns
// its field, bank and generator exclusively.
type Service struct {
	model        *basis.Model
	graphBuilder *seqgraph.Builder
	evolver      *evolution.Evolver
	searcher     *amplify.Searcher
	log          zerolog.Logger

	// Connectivity graphs depend only on sequence length and are
	// read-only once built, so they are cached across runs.
	mu     sync.Mutex
	graphs map[int]*seqgraph.Graph
}

// NewService creates the analysis service.
func NewService(model *basis.Model, log zerolog.Logger) *Service {
	return &Service{
		model:        model,
		graphBuilder: seqgraph.NewBuilder(log),
		evolver:      evolution.NewEvolver(log),
		searcher:     amplify.NewSearcher(log),
		log:          log.With().Str("service", "analysis").Logger(),
		graphs:       make(map[int]*seqgraph.Graph),
	}
}

func (s *Service) graphFor(n int) (*seqgraph.Graph, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.graphs[n]; ok {
		return g, nil
	}
	g, err := s.graphBuilder.Build(n)
	if err != nil {
		return nil, err
	}
	s.graphs[n] = g
	return g, nil
}

// Analyze runs the pipeline for one request and returns the run record.
// The stage order is fixed: initialize, then per cycle virtue projection
// followed by one evolution step, then optional amplification, then
// measurement and aggregation. All randomness flows from the request
// seed, so identical requests produce identical records (modulo RunID
// and timestamps).
func (s *Service) Analyze(req Request) (*Record, error) {
	started := time.Now()

	if err := req.Normalize(); err != nil {
		return nil, err
	}
	if err := s.model.ValidateSequence(req.Sequence); err != nil {
		return nil, err
	}

	g, err := s.graphFor(len(req.Sequence))
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(req.Seed))

	field, err := amplitude.NewInitializer(s.model, rng, s.log).Init(req.Sequence)
	if err != nil {
		return nil, err
	}

	bank, err := virtues.NewBank(s.model, req.Sequence, virtues.Config{
		Temperature: req.Temperature,
		Constraints: req.Constraints,
	}, rng, s.log)
	if err != nil {
		return nil, err
	}

	var warnings []domain.Warning
	warnings = append(warnings, bank.ConstructionWarnings()...)

	op, err := s.evolver.Prepare(g)
	if err != nil {
		return nil, err
	}

	steps := 0
	for cycle := 0; cycle < req.Cycles; cycle++ {
		w, err := bank.Apply(field)
		if err != nil {
			return nil, err
		}
		warnings = append(warnings, w...)

		w, err = s.evolver.Evolve(field, op, req.TimeStep)
		if err != nil {
			return nil, err
		}
		warnings = append(warnings, w...)
		steps++
	}

	var amplified []int
	if req.Amplify {
		hits, w, err := s.searcher.Search(field, bank, req.Threshold)
		if err != nil {
			return nil, err
		}
		amplified = hits
		warnings = append(warnings, w...)
	}

	conformations, w, err := measure.NewCollapser(rng, s.log).Measure(field, req.Sequence, bank)
	if err != nil {
		return nil, err
	}
	warnings = append(warnings, w...)

	fot, _, mean, std, err := aggregateFoT(field, bank, g)
	if err != nil {
		return nil, err
	}

	record := &Record{
		RunID:              uuid.New().String(),
		Sequence:           req.Sequence,
		Seed:               req.Seed,
		Temperature:        req.Temperature,
		Cycles:             req.Cycles,
		TimeStep:           req.TimeStep,
		Threshold:          req.Threshold,
		Amplified:          req.Amplify,
		Conformations:      conformations,
		AmplifiedResidues:  amplified,
		FoTValue:           fot,
		ContributionMean:   mean,
		ContributionStdDev: std,
		Warnings:           warnings,
		HonestyDefaulted:   bank.HonestyDefaulted(),
		EvolutionSteps:     steps,
		CreatedAt:          time.Now().UTC(),
		ElapsedMS:          time.Since(started).Milliseconds(),
	}

	s.log.Info().
		Str("run_id", record.RunID).
		Int("residues", len(req.Sequence)).
		Int("cycles", req.Cycles).
		Float64("fot", fot).
		Int("warnings", len(warnings)).
		Dur("elapsed", time.Since(started)).
		Msg("Analysis completed")

	return record, nil
}
