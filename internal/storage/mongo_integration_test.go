package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMongoIsDisabled(t *testing.T) {
	var m *Mongo
	ctx := context.Background()

	assert.NoError(t, m.TouchUser(ctx, 1, "neo"))
	assert.NoError(t, m.RecordSearch(ctx, 1, "matrix", "multi", 3))
	assert.NoError(t, m.Close(ctx))
	_, err := m.Stats(ctx)
	assert.Error(t, err)
	_, err = m.ListRecent(ctx, 5)
	assert.Error(t, err)
}

func TestMongoJournalIntegration(t *testing.T) {
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		t.Skip("MONGODB_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	m, err := NewMongo(ctx, uri)
	require.NoError(t, err)
	defer m.Close(ctx)

	before, err := m.Stats(ctx)
	require.NoError(t, err)

	userID := time.Now().UnixNano()
	require.NoError(t, m.TouchUser(ctx, userID, "trinity"))
	require.NoError(t, m.TouchUser(ctx, userID, ""))
	require.NoError(t, m.RecordSearch(ctx, userID, "matrix", "multi", 4))

	after, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, before.Users+1, after.Users)

	recent, err := m.ListRecent(ctx, 5)
	require.NoError(t, err)
	require.NotEmpty(t, recent)
	assert.Equal(t, "matrix", recent[0].Query)
}
