package analysis

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

const cacheSchema = `
CREATE TABLE IF NOT EXISTS analysis_cache (
	cache_key  TEXT PRIMARY KEY,
	record     BLOB NOT NULL,
	created_at TEXT NOT NULL
);
`

// hashRequest creates a deterministic cache key from everything that
// shapes the output record. Two requests with the same key produce
// bit-identical pipelines.
func hashRequest(req Request) string {
	keyData := fmt.Sprintf("%s|%d|%.6f|%d|%.6f|%t|%.6f", req.Sequence, req.Seed,
		req.Temperature, req.Cycles, req.TimeStep, req.Amplify, req.Threshold)
	for _, c := range req.Constraints {
		keyData += fmt.Sprintf("|%d:%d:%.3f:%.3f", c.ResidueI, c.ResidueJ, c.Distance, c.Tolerance)
	}
	h := sha256.Sum256([]byte(keyData))
	return hex.EncodeToString(h[:16])
}

// Cache stores finished run records keyed by request hash, so repeated
// submissions of the same (sequence, seed, config) skip the pipeline
// entirely. Records are msgpack-encoded; the cache database is
// ephemeral by profile and safe to wipe.
type Cache struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewCache creates the cache and ensures its schema exists.
func NewCache(db *sql.DB, log zerolog.Logger) (*Cache, error) {
	if _, err := db.Exec(cacheSchema); err != nil {
		return nil, fmt.Errorf("failed to apply cache schema: %w", err)
	}
	return &Cache{
		db:  db,
		log: log.With().Str("component", "analysis_cache").Logger(),
	}, nil
}

// Get returns the cached record for a request, or nil on a miss. Decode
// failures are treated as misses (the entry is dropped), never as run
// failures.
func (c *Cache) Get(req Request) *Record {
	key := hashRequest(req)

	var blob []byte
	err := c.db.QueryRow(`SELECT record FROM analysis_cache WHERE cache_key = ?`, key).Scan(&blob)
	if err != nil {
		return nil
	}

	var record Record
	if err := msgpack.Unmarshal(blob, &record); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Dropping undecodable cache entry")
		_, _ = c.db.Exec(`DELETE FROM analysis_cache WHERE cache_key = ?`, key)
		return nil
	}

	c.log.Debug().Str("key", key).Str("run_id", record.RunID).Msg("Analysis cache hit")
	return &record
}

// Put stores a finished record under its request hash.
func (c *Cache) Put(req Request, record *Record) error {
	key := hashRequest(req)

	blob, err := msgpack.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode record for cache: %w", err)
	}

	_, err = c.db.Exec(`
		INSERT INTO analysis_cache (cache_key, record, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET record = excluded.record, created_at = excluded.created_at`,
		key, blob, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}
	return nil
}

// Purge removes entries older than the cutoff.
func (c *Cache) Purge(cutoff time.Time) (int64, error) {
	res, err := c.db.Exec(`DELETE FROM analysis_cache WHERE created_at < ?`,
		cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("failed to purge cache: %w", err)
	}
	return res.RowsAffected()
}
