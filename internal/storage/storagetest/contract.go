// Package storagetest общие тесты контрактов хранилищ
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/skalibog/cryptosignals/internal/storage"
	"github.com/skalibog/cryptosignals/internal/testutil"
	"github.com/skalibog/cryptosignals/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// RunSignalRepositoryTests проверяет реализацию SignalRepository.
// newRepo вызывается для каждого подтеста и должен возвращать пустое хранилище.
func RunSignalRepositoryTests(t *testing.T, newRepo func(t *testing.T) storage.SignalRepository) {
	ctx := context.Background()

	t.Run("SaveAndFind", func(t *testing.T) {
		repo := newRepo(t)
		sig := testutil.LongSignal("s1", "binance", "BTCUSDT", base)
		require.NoError(t, repo.Save(ctx, sig))

		got, err := repo.FindByID(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, "BTCUSDT", got.Pair)
		assert.Equal(t, models.StatusPending, got.Status)
		assert.Equal(t, []float64{106, 109}, got.Targets.TakeProfits)
		assert.Equal(t, []string{"тестовый сигнал"}, got.Reasoning)
		assert.True(t, got.CreatedAt.Equal(base))
		assert.Nil(t, got.SentAt)
	})

	t.Run("SaveDuplicate", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Save(ctx, testutil.LongSignal("s1", "binance", "BTCUSDT", base)))

		err := repo.Save(ctx, testutil.LongSignal("s1", "binance", "BTCUSDT", base))
		assert.ErrorIs(t, err, storage.ErrDuplicate)
		assert.ErrorIs(t, err, models.ErrRepository)
	})

	t.Run("NotFound", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.FindByID(ctx, "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)

		err = repo.Update(ctx, testutil.LongSignal("missing", "binance", "BTCUSDT", base))
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("UpdateStatus", func(t *testing.T) {
		repo := newRepo(t)
		sig := testutil.LongSignal("s1", "binance", "BTCUSDT", base)
		require.NoError(t, repo.Save(ctx, sig))

		require.NoError(t, sig.MarkAsSent(base.Add(time.Minute)))
		require.NoError(t, repo.Update(ctx, sig))

		got, err := repo.FindByID(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, models.StatusSent, got.Status)
		require.NotNil(t, got.SentAt)
		assert.True(t, got.SentAt.Equal(base.Add(time.Minute)))
	})

	t.Run("ActiveByPair", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Save(ctx, testutil.LongSignal("a", "binance", "BTCUSDT", base)))
		require.NoError(t, repo.Save(ctx, testutil.LongSignal("b", "binance", "BTCUSDT", base.Add(time.Hour))))
		require.NoError(t, repo.Save(ctx, testutil.LongSignal("c", "binance", "ETHUSDT", base)))

		failed := testutil.LongSignal("d", "binance", "BTCUSDT", base.Add(2*time.Hour))
		require.NoError(t, failed.MarkAsFailed("тест"))
		require.NoError(t, repo.Save(ctx, failed))

		active, err := repo.FindActiveByPair(ctx, "binance", "BTCUSDT")
		require.NoError(t, err)
		require.Len(t, active, 2)
		assert.Equal(t, "a", active[0].ID)
		assert.Equal(t, "b", active[1].ID)

		all, err := repo.FindActive(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 3)

		none, err := repo.FindActiveByPair(ctx, "bybit", "BTCUSDT")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("RecentByPair", func(t *testing.T) {
		repo := newRepo(t)
		for i, id := range []string{"a", "b", "c"} {
			require.NoError(t, repo.Save(ctx, testutil.LongSignal(id, "binance", "BTCUSDT", base.Add(time.Duration(i)*time.Hour))))
		}

		recent, err := repo.FindRecentByPair(ctx, "binance", "BTCUSDT", 2)
		require.NoError(t, err)
		require.Len(t, recent, 2)
		assert.Equal(t, "c", recent[0].ID)
		assert.Equal(t, "b", recent[1].ID)
	})

	t.Run("CleanupExpired", func(t *testing.T) {
		repo := newRepo(t)
		old := testutil.LongSignal("old", "binance", "BTCUSDT", base)
		require.NoError(t, old.MarkAsSent(base))
		fresh := testutil.LongSignal("fresh", "binance", "BTCUSDT", base)
		require.NoError(t, fresh.MarkAsSent(base.Add(23*time.Hour)))
		pending := testutil.LongSignal("pending", "binance", "BTCUSDT", base)
		for _, s := range []*models.Signal{old, fresh, pending} {
			require.NoError(t, repo.Save(ctx, s))
		}

		now := base.Add(25 * time.Hour)
		expired, err := repo.CleanupExpiredSignals(ctx, 24*time.Hour, now)
		require.NoError(t, err)
		require.Len(t, expired, 1)
		assert.Equal(t, "old", expired[0].ID)
		assert.Equal(t, models.StatusExecuted, expired[0].Status)

		again, err := repo.CleanupExpiredSignals(ctx, 24*time.Hour, now)
		require.NoError(t, err)
		assert.Empty(t, again)

		got, err := repo.FindByID(ctx, "old")
		require.NoError(t, err)
		assert.Equal(t, models.StatusExecuted, got.Status)
		require.NotNil(t, got.ExecutedAt)
		assert.True(t, got.ExecutedAt.Equal(now))

		got, err = repo.FindByID(ctx, "fresh")
		require.NoError(t, err)
		assert.Equal(t, models.StatusSent, got.Status)

		got, err = repo.FindByID(ctx, "pending")
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, got.Status)
	})

	t.Run("ReturnsCopies", func(t *testing.T) {
		repo := newRepo(t)
		sig := testutil.LongSignal("s1", "binance", "BTCUSDT", base)
		require.NoError(t, repo.Save(ctx, sig))

		sig.Targets.TakeProfits[0] = 1
		got, err := repo.FindByID(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, 106.0, got.Targets.TakeProfits[0])
	})
}

// RunPairRepositoryTests проверяет реализацию PairRepository
func RunPairRepositoryTests(t *testing.T, newRepo func(t *testing.T) storage.PairRepository) {
	ctx := context.Background()

	t.Run("SaveAndFind", func(t *testing.T) {
		repo := newRepo(t)
		pair := testutil.Pair("BTCUSDT", models.CategoryMajor, base)
		require.NoError(t, repo.Save(ctx, pair))

		got, err := repo.FindByKey(ctx, "binance:BTCUSDT")
		require.NoError(t, err)
		assert.Equal(t, models.CategoryMajor, got.Category)
		assert.Equal(t, time.Hour, got.Settings.SignalCooldown)
		require.NotNil(t, got.Strategy)
		assert.Equal(t, "default", got.Strategy.Name)
		assert.True(t, got.IsActive)

		assert.ErrorIs(t, repo.Save(ctx, pair), storage.ErrDuplicate)
	})

	t.Run("UpdateAndActive", func(t *testing.T) {
		repo := newRepo(t)
		btc := testutil.Pair("BTCUSDT", models.CategoryMajor, base)
		eth := testutil.Pair("ETHUSDT", models.CategoryAlt, base)
		require.NoError(t, repo.SaveAll(ctx, []*models.TradingPair{eth, btc}))

		btc.RecordSignal(base.Add(time.Hour))
		btc.Deactivate("тест")
		require.NoError(t, repo.Update(ctx, btc))

		got, err := repo.FindByKey(ctx, btc.Key())
		require.NoError(t, err)
		assert.Equal(t, 1, got.TotalSignalsGenerated)
		assert.False(t, got.IsActive)
		assert.Equal(t, "тест", got.DeactivatedReason)

		active, err := repo.FindActive(ctx)
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, "ETHUSDT", active[0].Symbol)

		all, err := repo.FindAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "binance:BTCUSDT", all[0].Key())
		assert.Equal(t, "binance:ETHUSDT", all[1].Key())
	})

	t.Run("DeleteAndMissing", func(t *testing.T) {
		repo := newRepo(t)
		pair := testutil.Pair("BTCUSDT", models.CategoryMajor, base)
		require.NoError(t, repo.Save(ctx, pair))
		require.NoError(t, repo.Delete(ctx, pair.Key()))

		_, err := repo.FindByKey(ctx, pair.Key())
		assert.ErrorIs(t, err, storage.ErrNotFound)
		assert.ErrorIs(t, repo.Delete(ctx, pair.Key()), storage.ErrNotFound)
		assert.ErrorIs(t, repo.Update(ctx, pair), storage.ErrNotFound)
	})
}
