package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fiscal/internal/session"
	"fiscal/pkg/models"
)

func TestPutGetRoundtrip(t *testing.T) {
	store := session.NewMemoryStore(0)
	ctx := context.Background()

	sub := &models.PendingSubmission{
		ID:        "abc-123",
		Submitter: "maria",
		Kind:      models.KindInvoice,
		Reference: "PI2024001",
	}
	require.NoError(t, store.Put(ctx, "maria", sub))

	got, err := store.Get(ctx, "maria")
	require.NoError(t, err)
	assert.Equal(t, "abc-123", got.ID)
	assert.Equal(t, "PI2024001", got.Reference)
}

func TestGetReturnsCopy(t *testing.T) {
	store := session.NewMemoryStore(0)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "maria", &models.PendingSubmission{Reference: "PI2024001"}))

	got, err := store.Get(ctx, "maria")
	require.NoError(t, err)
	got.Reference = "PI9999999"

	again, err := store.Get(ctx, "maria")
	require.NoError(t, err)
	assert.Equal(t, "PI2024001", again.Reference, "mutating a returned submission must not change the stored one")
}

func TestPutOverwrites(t *testing.T) {
	store := session.NewMemoryStore(0)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "maria", &models.PendingSubmission{ID: "first"}))
	require.NoError(t, store.Put(ctx, "maria", &models.PendingSubmission{ID: "second"}))

	got, err := store.Get(ctx, "maria")
	require.NoError(t, err)
	assert.Equal(t, "second", got.ID)
}

func TestDeleteAndMissing(t *testing.T) {
	store := session.NewMemoryStore(0)
	ctx := context.Background()

	_, err := store.Get(ctx, "maria")
	assert.ErrorIs(t, err, session.ErrNotFound)

	require.NoError(t, store.Put(ctx, "maria", &models.PendingSubmission{ID: "abc"}))
	require.NoError(t, store.Delete(ctx, "maria"))

	_, err = store.Get(ctx, "maria")
	assert.ErrorIs(t, err, session.ErrNotFound)

	require.NoError(t, store.Delete(ctx, "maria"), "deleting again is not an error")
}

func TestSubmittersAreIsolated(t *testing.T) {
	store := session.NewMemoryStore(0)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "maria", &models.PendingSubmission{ID: "m"}))
	require.NoError(t, store.Put(ctx, "joao", &models.PendingSubmission{ID: "j"}))

	got, err := store.Get(ctx, "maria")
	require.NoError(t, err)
	assert.Equal(t, "m", got.ID)

	require.NoError(t, store.Delete(ctx, "maria"))

	got, err = store.Get(ctx, "joao")
	require.NoError(t, err)
	assert.Equal(t, "j", got.ID)
}

func TestEntriesExpire(t *testing.T) {
	store := session.NewMemoryStore(10 * time.Millisecond)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "maria", &models.PendingSubmission{ID: "abc"}))

	time.Sleep(25 * time.Millisecond)

	_, err := store.Get(ctx, "maria")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestZeroTTLNeverExpires(t *testing.T) {
	store := session.NewMemoryStore(0)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "maria", &models.PendingSubmission{ID: "abc"}))

	time.Sleep(15 * time.Millisecond)

	got, err := store.Get(ctx, "maria")
	require.NoError(t, err)
	assert.Equal(t, "abc", got.ID)
}
