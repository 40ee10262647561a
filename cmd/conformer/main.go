// Package main is the conformer command line interface. It runs a single
// conformational analysis and prints the run record as JSON.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aristath/conformer/internal/database"
	"github.com/aristath/conformer/internal/domain"
	"github.com/aristath/conformer/internal/modules/analysis"
	"github.com/aristath/conformer/internal/modules/basis"
	"github.com/aristath/conformer/pkg/logger"
)

const (
	exitOK           = 0
	exitError        = 1
	exitInvalidInput = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		seq         = flag.String("seq", "", "amino acid sequence (single letter codes, required)")
		seed        = flag.Int64("seed", 0, "random seed for deterministic runs")
		cycles      = flag.Int("cycles", analysis.DefaultCycles, "evolution/constraint cycles")
		temperature = flag.Float64("temp", analysis.DefaultTemperature, "temperature in Kelvin")
		timeStep    = flag.Float64("dt", analysis.DefaultTimeStep, "time step per evolution cycle")
		threshold   = flag.Float64("threshold", analysis.DefaultThreshold, "amplification score threshold")
		amplify     = flag.Bool("amplify", false, "run amplitude amplification")
		constraints = flag.String("constraints", "", "distance constraints: i:j:dist[:tol], semicolon separated")
		store       = flag.Bool("store", false, "persist the run record to the results database")
		dataDir     = flag.String("data", "", "data directory for -store (default from environment)")
		pretty      = flag.Bool("pretty", false, "indent JSON output")
		logLevel    = flag.String("log-level", "warn", "log level (debug, info, warn, error)")
	)
	flag.Parse()

	log := logger.New(logger.Config{Level: *logLevel, Pretty: true})

	if *seq == "" {
		fmt.Fprintln(os.Stderr, "error: -seq is required")
		flag.Usage()
		return exitInvalidInput
	}

	parsedConstraints, err := parseConstraints(*constraints)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitInvalidInput
	}

	req := analysis.Request{
		Sequence:    *seq,
		Seed:        *seed,
		Temperature: *temperature,
		Cycles:      *cycles,
		TimeStep:    *timeStep,
		Amplify:     *amplify,
		Threshold:   *threshold,
		Constraints: parsedConstraints,

		// Flags always carry a concrete value, so zeros are explicit.
		CyclesSet:    true,
		TimeStepSet:  true,
		ThresholdSet: true,
	}

	service := analysis.NewService(basis.NewModel(), log)

	record, err := service.Analyze(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if errors.Is(err, domain.ErrInvalidInput) || errors.Is(err, domain.ErrInvalidSequenceSymbol) {
			return exitInvalidInput
		}
		return exitError
	}

	if *store {
		if err := storeRecord(record, *dataDir, log); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return exitError
		}
	}

	encoder := json.NewEncoder(os.Stdout)
	if *pretty {
		encoder.SetIndent("", "  ")
	}
	if err := encoder.Encode(record); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitError
	}

	return exitOK
}

// parseConstraints parses "i:j:dist[:tol]" groups separated by
// semicolons. Residue indices are zero-based.
func parseConstraints(raw string) ([]domain.DistanceConstraint, error) {
	if raw == "" {
		return nil, nil
	}

	var constraints []domain.DistanceConstraint
	for _, group := range strings.Split(raw, ";") {
		group = strings.TrimSpace(group)
		if group == "" {
			continue
		}

		parts := strings.Split(group, ":")
		if len(parts) < 3 || len(parts) > 4 {
			return nil, fmt.Errorf("invalid constraint %q: want i:j:dist[:tol]", group)
		}

		i, err := strconv.Atoi(parts[0])
		if err != nil {
			return nil, fmt.Errorf("invalid constraint residue %q: %w", parts[0], err)
		}
		j, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("invalid constraint residue %q: %w", parts[1], err)
		}
		dist, err := strconv.ParseFloat(parts[2], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid constraint distance %q: %w", parts[2], err)
		}

		constraint := domain.DistanceConstraint{ResidueI: i, ResidueJ: j, Distance: dist}
		if len(parts) == 4 {
			tol, err := strconv.ParseFloat(parts[3], 64)
			if err != nil {
				return nil, fmt.Errorf("invalid constraint tolerance %q: %w", parts[3], err)
			}
			constraint.Tolerance = tol
		}

		constraints = append(constraints, constraint)
	}

	return constraints, nil
}

// storeRecord persists a run record to the results database.
func storeRecord(record *analysis.Record, dataDir string, log zerolog.Logger) error {
	if dataDir == "" {
		dataDir = os.Getenv("CONFORMER_DATA_DIR")
	}
	if dataDir == "" {
		dataDir = "./data"
	}

	db, err := database.New(database.Config{
		Path:    filepath.Join(dataDir, "results.db"),
		Profile: database.ProfileResults,
		Name:    "results",
	})
	if err != nil {
		return fmt.Errorf("failed to open results database: %w", err)
	}
	defer db.Close()

	repo, err := analysis.NewRepository(db.Conn(), log)
	if err != nil {
		return fmt.Errorf("failed to initialize run repository: %w", err)
	}

	return repo.Save(record)
}
