package analysis

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const queueSchema = `
CREATE TABLE IF NOT EXISTS analysis_queue (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	request    TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'pending',
	run_id     TEXT,
	error      TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_analysis_queue_status ON analysis_queue(status);
`

// Queue item status values.
const (
	StatusPending = "pending"
	StatusRunning = "running"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// QueueItem is one pending or finished analysis submission.
type QueueItem struct {
	ID        int64     `json:"id"`
	Request   Request   `json:"request"`
	Status    string    `json:"status"`
	RunID     string    `json:"run_id,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// QueueRepository stores queued analysis requests in the results
// database, whose durability profile survives a crash mid-drain. The
// cron batch job drains it.
type QueueRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewQueueRepository creates the queue repository and ensures its schema.
func NewQueueRepository(db *sql.DB, log zerolog.Logger) (*QueueRepository, error) {
	if _, err := db.Exec(queueSchema); err != nil {
		return nil, fmt.Errorf("failed to apply queue schema: %w", err)
	}
	return &QueueRepository{
		db:  db,
		log: log.With().Str("component", "analysis_queue").Logger(),
	}, nil
}

// Enqueue inserts a pending request and returns its queue ID.
func (q *QueueRepository) Enqueue(req Request) (int64, error) {
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal queued request: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := q.db.Exec(`
		INSERT INTO analysis_queue (request, status, created_at, updated_at)
		VALUES (?, ?, ?, ?)`, string(reqJSON), StatusPending, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue request: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read queue id: %w", err)
	}
	q.log.Debug().Int64("queue_id", id).Msg("Analysis request queued")
	return id, nil
}

// NextPending claims the oldest pending item, marking it running.
// Returns nil when the queue is empty.
func (q *QueueRepository) NextPending() (*QueueItem, error) {
	var item QueueItem
	var reqJSON, createdAt string

	err := q.db.QueryRow(`
		SELECT id, request, created_at FROM analysis_queue
		WHERE status = ? ORDER BY id LIMIT 1`, StatusPending,
	).Scan(&item.ID, &reqJSON, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query pending item: %w", err)
	}

	if err := json.Unmarshal([]byte(reqJSON), &item.Request); err != nil {
		return nil, fmt.Errorf("failed to unmarshal queued request %d: %w", item.ID, err)
	}
	item.Status = StatusRunning
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		item.CreatedAt = t
	}

	_, err = q.db.Exec(`UPDATE analysis_queue SET status = ?, updated_at = ? WHERE id = ?`,
		StatusRunning, time.Now().UTC().Format(time.RFC3339Nano), item.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to claim queue item %d: %w", item.ID, err)
	}

	return &item, nil
}

// MarkDone records a successful run against the queue item.
func (q *QueueRepository) MarkDone(id int64, runID string) error {
	_, err := q.db.Exec(`
		UPDATE analysis_queue SET status = ?, run_id = ?, updated_at = ? WHERE id = ?`,
		StatusDone, runID, time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("failed to mark queue item %d done: %w", id, err)
	}
	return nil
}

// MarkFailed records a failure against the queue item.
func (q *QueueRepository) MarkFailed(id int64, cause error) error {
	_, err := q.db.Exec(`
		UPDATE analysis_queue SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		StatusFailed, cause.Error(), time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("failed to mark queue item %d failed: %w", id, err)
	}
	return nil
}

// PendingCount returns the number of pending items.
func (q *QueueRepository) PendingCount() (int, error) {
	var count int
	err := q.db.QueryRow(`SELECT COUNT(*) FROM analysis_queue WHERE status = ?`, StatusPending).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending items: %w", err)
	}
	return count, nil
}
