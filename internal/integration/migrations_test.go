package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taskhive/taskhive/internal/db"
)

func TestMigrations_Idempotent(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// newTestDB already ran the migrations once; a second run must be a no-op
	require.NoError(t, db.RunMigrations(ctx, pool))
}
