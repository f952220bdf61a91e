package memory_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func TestIdempotencyKeys_Reserve(t *testing.T) {
	repo := memory.NewIdempotencyRepository()
	ttl := time.Now().UTC().Add(2 * time.Hour).Round(time.Second)

	reserved, err := repo.CreateProcessing(" checkout-key-1 ", "hash-1", ttl)
	require.NoError(t, err)
	assert.Equal(t, "checkout-key-1", reserved.Key)
	assert.Equal(t, domain.IdempotencyStatusProcessing, reserved.Status)

	stored, err := repo.Get("checkout-key-1")
	require.NoError(t, err)
	assert.Equal(t, "hash-1", stored.RequestHash)
	assert.True(t, stored.TTLAt.Equal(ttl))

	_, err = repo.CreateProcessing("checkout-key-1", "hash-1", ttl)
	assert.ErrorIs(t, err, domain.ErrIdempotencyKeyAlreadyExists)

	held, err := repo.CreateProcessing("checkout-key-1", "hash-2", ttl)
	assert.ErrorIs(t, err, domain.ErrIdempotencyHashMismatch)
	assert.Equal(t, "hash-1", held.RequestHash)
}

func TestIdempotencyKeys_Validation(t *testing.T) {
	repo := memory.NewIdempotencyRepository()

	_, err := repo.CreateProcessing("  ", "hash", time.Time{})
	assert.ErrorIs(t, err, domain.ErrIdempotencyKeyRequired)

	_, err = repo.CreateProcessing("key", " ", time.Time{})
	assert.ErrorIs(t, err, domain.ErrIdempotencyRequestHashRequired)

	_, err = repo.Get("missing")
	assert.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound)

	assert.ErrorIs(t, repo.MarkDone("missing", nil, 200), domain.ErrIdempotencyKeyNotFound)
	assert.ErrorIs(t, repo.MarkFailed("", nil, 500), domain.ErrIdempotencyKeyRequired)
}

func TestIdempotencyKeys_DefaultTTL(t *testing.T) {
	repo := memory.NewIdempotencyRepository()

	reserved, err := repo.CreateProcessing("key", "hash", time.Time{})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC().Add(domain.DefaultIdempotencyTTL), reserved.TTLAt, time.Minute)
}

func TestIdempotencyKeys_CompleteStoresResponse(t *testing.T) {
	repo := memory.NewIdempotencyRepository()
	_, err := repo.CreateProcessing("idem-done", "hash", time.Time{})
	require.NoError(t, err)

	body := []byte(`{"success":true}`)
	require.NoError(t, repo.MarkDone("idem-done", body, 201))
	body[0] = 'X'

	record, err := repo.Get("idem-done")
	require.NoError(t, err)
	assert.Equal(t, domain.IdempotencyStatusDone, record.Status)
	assert.Equal(t, 201, record.StatusCode)
	assert.JSONEq(t, `{"success":true}`, string(record.ResponseBody))
}

func TestIdempotencyKeys_DeleteExpiredOldestFirst(t *testing.T) {
	repo := memory.NewIdempotencyRepository()
	now := time.Now().UTC()

	for key, ttl := range map[string]time.Time{
		"oldest": now.Add(-3 * time.Minute),
		"older":  now.Add(-2 * time.Minute),
		"old":    now.Add(-time.Minute),
		"live":   now.Add(time.Hour),
	} {
		_, err := repo.CreateProcessing(key, "hash-"+key, ttl)
		require.NoError(t, err)
	}

	removed, err := repo.DeleteExpired(now, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, err = repo.Get("oldest")
	assert.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound)
	_, err = repo.Get("old")
	assert.NoError(t, err)

	removed, err = repo.DeleteExpired(now, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = repo.Get("live")
	assert.NoError(t, err)
}

func TestIdempotencyKeys_ExpiredKeyIsReserved(t *testing.T) {
	repo := memory.NewIdempotencyRepository()

	_, err := repo.CreateProcessing("checkout-key-3", "hash-old", time.Now().UTC().Add(-time.Second))
	require.NoError(t, err)

	record, err := repo.CreateProcessing("checkout-key-3", "hash-new", time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "hash-new", record.RequestHash)
	assert.Equal(t, domain.IdempotencyStatusProcessing, record.Status)
}
