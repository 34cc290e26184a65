package service

import (
	"context"
	"testing"
	"time"
	_ "time/tzdata"

	"quizwallet/internal/infrastructure/cache"
	"quizwallet/internal/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// 2026-10-14 是周三
var wednesday = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

func newLeaderboardFixture(t *testing.T, opts LeaderboardOptions) (*gorm.DB, *LedgerService, *manualClock, *LeaderboardService) {
	db := newTestDB(t)
	clock := newManualClock(wednesday)
	ledger := NewLedgerService(db, Options{Clock: clock})
	if opts.Clock == nil {
		opts.Clock = ClockFunc(func() time.Time { return wednesday })
	}
	return db, ledger, clock, NewLeaderboardService(db, opts)
}

func userIDs(entries []LeaderboardEntry) []int64 {
	ids := make([]int64, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.UserID)
	}
	return ids
}

func TestPeriodStart(t *testing.T) {
	dhaka, err := time.LoadLocation("Asia/Dhaka")
	require.NoError(t, err)

	cases := []struct {
		name   string
		period Period
		now    time.Time
		loc    *time.Location
		want   time.Time
	}{
		{"周三对齐到周一", PeriodWeekly, wednesday, time.UTC, time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC)},
		{"周日仍属于本周", PeriodWeekly, time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC), time.UTC, time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC)},
		{"自然月", PeriodMonthly, wednesday, time.UTC, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)},
		// UTC 周日 20:00 在达卡已是周一 02:00
		{"按参考时区对齐周", PeriodWeekly, time.Date(2026, 10, 11, 20, 0, 0, 0, time.UTC), dhaka, time.Date(2026, 10, 11, 18, 0, 0, 0, time.UTC)},
		{"按参考时区对齐月", PeriodMonthly, time.Date(2026, 10, 31, 19, 0, 0, 0, time.UTC), dhaka, time.Date(2026, 10, 31, 18, 0, 0, 0, time.UTC)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := PeriodStart(tc.period, tc.now, tc.loc)
			require.NotNil(t, got)
			require.True(t, tc.want.Equal(*got), "want %s, got %s", tc.want, got)
			require.Equal(t, time.UTC, got.Location())
		})
	}

	require.Nil(t, PeriodStart(PeriodAll, wednesday, time.UTC))
}

func TestParsePeriod(t *testing.T) {
	p, err := ParsePeriod("")
	require.NoError(t, err)
	require.Equal(t, PeriodAll, p)

	p, err = ParsePeriod("monthly")
	require.NoError(t, err)
	require.Equal(t, PeriodMonthly, p)

	_, err = ParsePeriod("daily")
	require.ErrorIs(t, err, ErrInvalidPeriod)
}

func TestLeaderboardTieBreakByLowerID(t *testing.T) {
	_, ledger, _, board := newLeaderboardFixture(t, LeaderboardOptions{})
	ctx := context.Background()

	// 先开 5 再开 3，排序只看 user_id 而不是开户顺序
	for _, id := range []int64{5, 3} {
		openAccount(t, ledger, id)
		creditCoins(t, ledger, id, 100, model.CoinTypeEarned)
	}

	for _, period := range []Period{PeriodAll, PeriodWeekly, PeriodMonthly} {
		result, err := board.Rank(ctx, period, 10, nil)
		require.NoError(t, err)
		require.Equal(t, []int64{3, 5}, userIDs(result.Entries), "period=%s", period)
		require.Equal(t, int64(1), result.Entries[0].Rank)
		require.Equal(t, int64(2), result.Entries[1].Rank)
		require.Equal(t, int64(100), result.Entries[1].Score)
	}
}

func TestLeaderboardPeriodCountsOnlyEarned(t *testing.T) {
	_, ledger, clock, board := newLeaderboardFixture(t, LeaderboardOptions{})
	ctx := context.Background()
	openAccount(t, ledger, 1)

	// 上周日的收入只计入月榜
	clock.Set(time.Date(2026, 10, 11, 9, 0, 0, 0, time.UTC))
	creditCoins(t, ledger, 1, 40, model.CoinTypeEarned)

	clock.Set(time.Date(2026, 10, 12, 9, 0, 0, 0, time.UTC))
	creditCoins(t, ledger, 1, 50, model.CoinTypeEarned)
	creditCoins(t, ledger, 1, 10, model.CoinTypeBonus)
	_, err := ledger.RecordCoinTransaction(ctx, &CoinEntry{UserID: 1, Coins: -20, Type: model.CoinTypeSpent, Source: "shop"})
	require.NoError(t, err)

	scores := map[Period]int64{
		PeriodWeekly:  50,
		PeriodMonthly: 90,
		PeriodAll:     80,
	}
	for period, want := range scores {
		result, err := board.Rank(ctx, period, 10, nil)
		require.NoError(t, err)
		require.Len(t, result.Entries, 1)
		require.Equal(t, want, result.Entries[0].Score, "period=%s", period)
	}
}

func TestLeaderboardFocusOutsideWindow(t *testing.T) {
	_, ledger, _, board := newLeaderboardFixture(t, LeaderboardOptions{})
	ctx := context.Background()

	scores := map[int64]int64{1: 300, 2: 200, 3: 100, 4: 100, 5: 0}
	for id, score := range scores {
		openAccount(t, ledger, id)
		if score > 0 {
			creditCoins(t, ledger, id, score, model.CoinTypeEarned)
		}
	}

	for _, period := range []Period{PeriodAll, PeriodWeekly} {
		full, err := board.Rank(ctx, period, 10, nil)
		require.NoError(t, err)
		require.Equal(t, []int64{1, 2, 3, 4, 5}, userIDs(full.Entries))

		for _, focusID := range []int64{3, 4, 5} {
			id := focusID
			result, err := board.Rank(ctx, period, 2, &id)
			require.NoError(t, err)
			require.Equal(t, []int64{1, 2}, userIDs(result.Entries))
			require.NotNil(t, result.Focus)
			// 窗口外计算的名次与完整排序一致
			require.Equal(t, full.Entries[id-1], *result.Focus, "period=%s focus=%d", period, id)
		}

		inWindow := int64(2)
		result, err := board.Rank(ctx, period, 2, &inWindow)
		require.NoError(t, err)
		require.Equal(t, int64(2), result.Focus.Rank)

		unknown := int64(404)
		result, err = board.Rank(ctx, period, 2, &unknown)
		require.NoError(t, err)
		require.Nil(t, result.Focus)
	}
}

func TestLeaderboardEmptyAndLimits(t *testing.T) {
	_, ledger, _, board := newLeaderboardFixture(t, LeaderboardOptions{DefaultLimit: 2, MaxLimit: 3})
	ctx := context.Background()

	focus := int64(1)
	result, err := board.Rank(ctx, PeriodWeekly, 0, &focus)
	require.NoError(t, err)
	require.Empty(t, result.Entries)
	require.Nil(t, result.Focus)

	for id := int64(1); id <= 5; id++ {
		openAccount(t, ledger, id)
		creditCoins(t, ledger, id, id*10, model.CoinTypeEarned)
	}

	result, err = board.Rank(ctx, PeriodAll, 0, nil)
	require.NoError(t, err)
	require.Len(t, result.Entries, 2)

	result, err = board.Rank(ctx, PeriodAll, 100, &focus)
	require.NoError(t, err)
	require.Len(t, result.Entries, 3)
	require.Equal(t, []int64{5, 4, 3}, userIDs(result.Entries))
	require.Equal(t, int64(5), result.Focus.Rank)

	_, err = board.Rank(ctx, "daily", 10, nil)
	require.ErrorIs(t, err, ErrInvalidPeriod)
}

func TestLeaderboardServesWindowFromCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	_, ledger, _, board := newLeaderboardFixture(t, LeaderboardOptions{
		Cache: cache.NewLeaderboardCache(client, time.Minute),
	})
	ctx := context.Background()

	openAccount(t, ledger, 1)
	creditCoins(t, ledger, 1, 10, model.CoinTypeEarned)

	first, err := board.Rank(ctx, PeriodWeekly, 10, nil)
	require.NoError(t, err)
	require.Equal(t, []int64{1}, userIDs(first.Entries))

	openAccount(t, ledger, 2)
	creditCoins(t, ledger, 2, 20, model.CoinTypeEarned)

	cached, err := board.Rank(ctx, PeriodWeekly, 10, nil)
	require.NoError(t, err)
	require.Equal(t, first.Entries, cached.Entries)

	// 缓存过期后重新聚合
	mr.FastForward(2 * time.Minute)
	fresh, err := board.Rank(ctx, PeriodWeekly, 10, nil)
	require.NoError(t, err)
	require.Equal(t, []int64{2, 1}, userIDs(fresh.Entries))
}

func TestLeaderboardFocusWithStaleCacheStaysConsistent(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	_, ledger, _, board := newLeaderboardFixture(t, LeaderboardOptions{
		Cache: cache.NewLeaderboardCache(client, time.Minute),
	})
	ctx := context.Background()

	openAccount(t, ledger, 1)
	creditCoins(t, ledger, 1, 10, model.CoinTypeEarned)

	// 缓存住只有用户 1 的窗口
	warm, err := board.Rank(ctx, PeriodWeekly, 10, nil)
	require.NoError(t, err)
	require.Equal(t, []int64{1}, userIDs(warm.Entries))

	openAccount(t, ledger, 2)
	creditCoins(t, ledger, 2, 20, model.CoinTypeEarned)

	focusID := int64(2)
	result, err := board.Rank(ctx, PeriodWeekly, 10, &focusID)
	require.NoError(t, err)
	require.Equal(t, []int64{2, 1}, userIDs(result.Entries))
	require.NotNil(t, result.Focus)
	require.Equal(t, LeaderboardEntry{Rank: 1, UserID: 2, Score: 20}, *result.Focus)

	// 焦点在窗口外时，名次不能与窗口内其他用户重复
	openAccount(t, ledger, 3)
	creditCoins(t, ledger, 3, 30, model.CoinTypeEarned)
	openAccount(t, ledger, 4)
	creditCoins(t, ledger, 4, 5, model.CoinTypeEarned)

	_, err = board.Rank(ctx, PeriodWeekly, 1, nil)
	require.NoError(t, err)
	creditCoins(t, ledger, 2, 100, model.CoinTypeEarned)

	outside := int64(4)
	result, err = board.Rank(ctx, PeriodWeekly, 1, &outside)
	require.NoError(t, err)
	require.Equal(t, []int64{2}, userIDs(result.Entries))
	require.NotNil(t, result.Focus)
	require.Equal(t, int64(4), result.Focus.Rank)
	for _, e := range result.Entries {
		require.NotEqual(t, result.Focus.Rank, e.Rank, "名次 %d 同时属于用户 %d 和 %d", e.Rank, e.UserID, outside)
	}

	// 重新聚合的窗口已写回缓存
	cached, err := board.Rank(ctx, PeriodWeekly, 1, nil)
	require.NoError(t, err)
	require.Equal(t, result.Entries, cached.Entries)
}
