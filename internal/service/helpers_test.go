package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"quizwallet/internal/infrastructure/database"
	"quizwallet/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var dbSeq int64

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := fmt.Sprintf("wallet_%d_%d", time.Now().UnixNano(), atomic.AddInt64(&dbSeq, 1))
	db, err := database.OpenMemory(name)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// manualClock 测试用可调时钟
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock(now time.Time) *manualClock {
	return &manualClock{now: now.UTC()}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now.UTC()
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func openAccount(t *testing.T, ledger *LedgerService, userID int64) {
	t.Helper()
	_, err := ledger.OpenAccount(context.Background(), userID)
	require.NoError(t, err)
}

func creditCoins(t *testing.T, ledger *LedgerService, userID, coins int64, typ model.CoinTransactionType) {
	t.Helper()
	_, err := ledger.RecordCoinTransaction(context.Background(), &CoinEntry{
		UserID: userID,
		Coins:  coins,
		Type:   typ,
		Source: "test",
	})
	require.NoError(t, err)
}

func creditBalance(t *testing.T, ledger *LedgerService, userID int64, amount string) {
	t.Helper()
	_, err := ledger.RecordBalanceTransaction(context.Background(), &BalanceEntry{
		UserID: userID,
		Amount: money(amount),
		Type:   model.BalanceTypeDeposit,
		Source: "test",
	})
	require.NoError(t, err)
}

func countRows(t *testing.T, db *gorm.DB, m interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(m).Count(&n).Error)
	return n
}

func requireConsistent(t *testing.T, ledger *LedgerService, userID int64) *IntegrityReport {
	t.Helper()
	report, err := ledger.VerifyAccount(context.Background(), userID)
	require.NoError(t, err)
	require.True(t, report.Consistent(), "账户 %d 核对失败: %+v", userID, report)
	return report
}
