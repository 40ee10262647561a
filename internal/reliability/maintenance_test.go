package reliability

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/conformer/internal/database"
)

func TestMaintenanceJob_Run(t *testing.T) {
	dir := t.TempDir()
	db := openTestDatabase(t, dir, "results")

	job := NewMaintenanceJob([]*database.DB{db}, dir, zerolog.Nop())
	assert.Equal(t, "maintenance", job.Name())

	require.NoError(t, job.Run())

	// Database still usable afterwards.
	var count int
	require.NoError(t, db.Conn().QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM runs").Scan(&count))
	assert.Equal(t, 1, count)
}
