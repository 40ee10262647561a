package analysis

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/conformer/internal/domain"
	"github.com/aristath/conformer/internal/modules/basis"
	"github.com/aristath/conformer/internal/modules/measure"
)

// resultsSchema is the single source of truth for the results database.
const resultsSchema = `
CREATE TABLE IF NOT EXISTS analysis_runs (
	run_id            TEXT PRIMARY KEY,
	sequence          TEXT NOT NULL,
	seed              INTEGER NOT NULL,
	temperature       REAL NOT NULL,
	cycles            INTEGER NOT NULL,
	time_step         REAL NOT NULL,
	threshold         REAL NOT NULL,
	amplified         INTEGER NOT NULL DEFAULT 0,
	amplified_residues TEXT,
	fot_value         REAL NOT NULL,
	contribution_mean REAL NOT NULL DEFAULT 0,
	contribution_std  REAL NOT NULL DEFAULT 0,
	warnings          TEXT,
	honesty_defaulted INTEGER NOT NULL DEFAULT 0,
	evolution_steps   INTEGER NOT NULL DEFAULT 0,
	elapsed_ms        INTEGER NOT NULL DEFAULT 0,
	created_at        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS conformations (
	run_id       TEXT NOT NULL REFERENCES analysis_runs(run_id) ON DELETE CASCADE,
	residue      INTEGER NOT NULL,
	amino_acid   TEXT NOT NULL,
	state        TEXT NOT NULL,
	phi          REAL NOT NULL,
	psi          REAL NOT NULL,
	amp_real     REAL NOT NULL,
	amp_imag     REAL NOT NULL,
	probability  REAL NOT NULL,
	virtue_scores TEXT NOT NULL,
	PRIMARY KEY (run_id, residue)
);

CREATE INDEX IF NOT EXISTS idx_analysis_runs_created ON analysis_runs(created_at);
`

// Repository persists analysis run records.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a repository and ensures the schema exists.
func NewRepository(db *sql.DB, log zerolog.Logger) (*Repository, error) {
	if _, err := db.Exec(resultsSchema); err != nil {
		return nil, fmt.Errorf("failed to apply results schema: %w", err)
	}
	return &Repository{
		db:  db,
		log: log.With().Str("component", "analysis_repository").Logger(),
	}, nil
}

// Save stores a run record and its conformations in one transaction.
func (r *Repository) Save(record *Record) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	warningsJSON, err := json.Marshal(record.Warnings)
	if err != nil {
		return fmt.Errorf("failed to marshal warnings: %w", err)
	}
	amplifiedJSON, err := json.Marshal(record.AmplifiedResidues)
	if err != nil {
		return fmt.Errorf("failed to marshal amplified residues: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO analysis_runs (
			run_id, sequence, seed, temperature, cycles, time_step, threshold,
			amplified, amplified_residues, fot_value, contribution_mean,
			contribution_std, warnings, honesty_defaulted, evolution_steps,
			elapsed_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.RunID, record.Sequence, record.Seed, record.Temperature,
		record.Cycles, record.TimeStep, record.Threshold,
		boolToInt(record.Amplified), string(amplifiedJSON), record.FoTValue,
		record.ContributionMean, record.ContributionStdDev, string(warningsJSON),
		boolToInt(record.HonestyDefaulted), record.EvolutionSteps,
		record.ElapsedMS, record.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", record.RunID, err)
	}

	for _, conf := range record.Conformations {
		scoresJSON, err := json.Marshal(conf.VirtueScores)
		if err != nil {
			return fmt.Errorf("failed to marshal virtue scores: %w", err)
		}
		_, err = tx.Exec(`
			INSERT INTO conformations (
				run_id, residue, amino_acid, state, phi, psi,
				amp_real, amp_imag, probability, virtue_scores
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			record.RunID, conf.Residue, conf.AminoAcid, conf.State,
			conf.Angles.Phi, conf.Angles.Psi,
			conf.Amplitude.Real, conf.Amplitude.Imag,
			conf.Probability, string(scoresJSON),
		)
		if err != nil {
			return fmt.Errorf("failed to insert conformation %d of run %s: %w",
				conf.Residue, record.RunID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", record.RunID, err)
	}

	r.log.Debug().Str("run_id", record.RunID).Msg("Run record saved")
	return nil
}

// GetByID loads a full run record. Returns sql.ErrNoRows when absent.
func (r *Repository) GetByID(runID string) (*Record, error) {
	record := &Record{}
	var amplified, warnings string
	var amplifiedFlag, honestyFlag int
	var createdAt string

	err := r.db.QueryRow(`
		SELECT run_id, sequence, seed, temperature, cycles, time_step,
			threshold, amplified, amplified_residues, fot_value,
			contribution_mean, contribution_std, warnings, honesty_defaulted,
			evolution_steps, elapsed_ms, created_at
		FROM analysis_runs WHERE run_id = ?`, runID,
	).Scan(
		&record.RunID, &record.Sequence, &record.Seed, &record.Temperature,
		&record.Cycles, &record.TimeStep, &record.Threshold, &amplifiedFlag,
		&amplified, &record.FoTValue, &record.ContributionMean,
		&record.ContributionStdDev, &warnings, &honestyFlag,
		&record.EvolutionSteps, &record.ElapsedMS, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	record.Amplified = amplifiedFlag != 0
	record.HonestyDefaulted = honestyFlag != 0
	if amplified != "" {
		if err := json.Unmarshal([]byte(amplified), &record.AmplifiedResidues); err != nil {
			return nil, fmt.Errorf("failed to unmarshal amplified residues: %w", err)
		}
	}
	if warnings != "" {
		if err := json.Unmarshal([]byte(warnings), &record.Warnings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal warnings: %w", err)
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		record.CreatedAt = t
	}

	conformations, err := r.loadConformations(runID)
	if err != nil {
		return nil, err
	}
	record.Conformations = conformations

	return record, nil
}

func (r *Repository) loadConformations(runID string) ([]measure.Conformation, error) {
	rows, err := r.db.Query(`
		SELECT residue, amino_acid, state, phi, psi, amp_real, amp_imag,
			probability, virtue_scores
		FROM conformations WHERE run_id = ? ORDER BY residue`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query conformations for %s: %w", runID, err)
	}
	defer rows.Close()

	var conformations []measure.Conformation
	for rows.Next() {
		var conf measure.Conformation
		var scoresJSON string
		var angles basis.Angles
		if err := rows.Scan(
			&conf.Residue, &conf.AminoAcid, &conf.State,
			&angles.Phi, &angles.Psi,
			&conf.Amplitude.Real, &conf.Amplitude.Imag,
			&conf.Probability, &scoresJSON,
		); err != nil {
			return nil, fmt.Errorf("failed to scan conformation: %w", err)
		}
		conf.Angles = angles
		if err := json.Unmarshal([]byte(scoresJSON), &conf.VirtueScores); err != nil {
			return nil, fmt.Errorf("failed to unmarshal virtue scores: %w", err)
		}
		conformations = append(conformations, conf)
	}
	return conformations, rows.Err()
}

// RecentSummary is a lightweight listing row.
type RecentSummary struct {
	RunID     string    `json:"run_id"`
	Sequence  string    `json:"sequence"`
	FoTValue  float64   `json:"fot_value"`
	Warnings  int       `json:"warnings"`
	CreatedAt time.Time `json:"created_at"`
}

// Recent returns the newest runs, most recent first.
func (r *Repository) Recent(limit int) ([]RecentSummary, error) {
	if limit < 1 {
		return nil, fmt.Errorf("%w: limit %d", domain.ErrInvalidInput, limit)
	}
	rows, err := r.db.Query(`
		SELECT run_id, sequence, fot_value, warnings, created_at
		FROM analysis_runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent runs: %w", err)
	}
	defer rows.Close()

	var summaries []RecentSummary
	for rows.Next() {
		var s RecentSummary
		var warnings, createdAt string
		if err := rows.Scan(&s.RunID, &s.Sequence, &s.FoTValue, &warnings, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan run summary: %w", err)
		}
		var list []domain.Warning
		if warnings != "" {
			_ = json.Unmarshal([]byte(warnings), &list)
		}
		s.Warnings = len(list)
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			s.CreatedAt = t
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// DeleteOlderThan removes runs (and, via cascade, their conformations)
// created before the cutoff. Returns the number of runs removed.
func (r *Repository) DeleteOlderThan(cutoff time.Time) (int64, error) {
	res, err := r.db.Exec(`DELETE FROM analysis_runs WHERE created_at < ?`,
		cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("failed to delete old runs: %w", err)
	}
	return res.RowsAffected()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
