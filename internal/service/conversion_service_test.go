package service

import (
	"context"
	"encoding/json"
	"testing"

	"quizwallet/internal/model"
	"quizwallet/internal/repository"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func seedConversionSetting(t *testing.T, db *gorm.DB, coinsRequired int64, amount string, minimum int64) {
	t.Helper()
	require.NoError(t, db.Create(&model.ConversionSetting{
		CoinsRequired:     coinsRequired,
		MainBalanceAmount: money(amount),
		MinimumCoins:      minimum,
		IsActive:          true,
	}).Error)
}

func newConversionFixture(t *testing.T) (*gorm.DB, *LedgerService, *ConversionService) {
	db := newTestDB(t)
	ledger := NewLedgerService(db, Options{EventTopic: "wallet_event"})
	return db, ledger, NewConversionService(ledger)
}

func TestConvertWholeUnitsAndKeepsRemainder(t *testing.T) {
	db, ledger, conversion := newConversionFixture(t)
	ctx := context.Background()
	seedConversionSetting(t, db, 100, "10.00", 100)
	openAccount(t, ledger, 1)
	creditCoins(t, ledger, 1, 250, model.CoinTypeEarned)

	result, err := conversion.Convert(ctx, 1, 230)
	require.NoError(t, err)
	require.Equal(t, int64(2), result.UnitsConverted)
	require.Equal(t, int64(200), result.CoinsDeducted)
	require.Equal(t, int64(30), result.Remainder)
	require.Equal(t, "20.00", result.MainBalanceAdded.StringFixed(2))
	require.Equal(t, int64(50), result.CoinBalance)
	require.Equal(t, "20.00", result.MainBalance.StringFixed(2))

	account, err := ledger.GetAccount(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(50), account.CoinBalance)
	require.Equal(t, "20.00", account.MainBalance.StringFixed(2))

	// 两条流水引用同一个兑换单号
	coinRepo := repository.NewCoinTransactionRepository(db)
	coinEntries, err := coinRepo.ListByReference(ctx, "conversion", result.ConversionNo)
	require.NoError(t, err)
	require.Len(t, coinEntries, 1)
	require.Equal(t, int64(-200), coinEntries[0].Coins)
	require.Equal(t, model.CoinTypeConversionDebit, coinEntries[0].Type)

	balanceRepo := repository.NewBalanceTransactionRepository(db)
	balanceEntries, err := balanceRepo.ListByReference(ctx, "conversion", result.ConversionNo)
	require.NoError(t, err)
	require.Len(t, balanceEntries, 1)
	require.Equal(t, "20.00", balanceEntries[0].Amount.StringFixed(2))
	require.Equal(t, model.BalanceTypeConversion, balanceEntries[0].Type)

	events, err := repository.NewOutboxRepository(db).ListByEventType(ctx, model.EventConversionCompleted)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "1", events[0].MessageKey)
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(events[0].Payload), &payload))
	require.Equal(t, result.ConversionNo, payload["conversion_no"])
	require.Equal(t, "20.00", payload["main_balance_added"])

	requireConsistent(t, ledger, 1)
}

func TestConvertFailuresLeaveLedgerUntouched(t *testing.T) {
	db, ledger, conversion := newConversionFixture(t)
	ctx := context.Background()
	seedConversionSetting(t, db, 100, "10.00", 100)
	openAccount(t, ledger, 1)
	creditCoins(t, ledger, 1, 250, model.CoinTypeEarned)

	_, err := conversion.Convert(ctx, 1, 50)
	require.ErrorIs(t, err, ErrBelowMinimum)

	_, err = conversion.Convert(ctx, 1, 300)
	require.ErrorIs(t, err, ErrInsufficientBalance)

	_, err = conversion.Convert(ctx, 1, -5)
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = conversion.Convert(ctx, 2, 150)
	require.ErrorIs(t, err, ErrAccountNotFound)

	account, err := ledger.GetAccount(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(250), account.CoinBalance)
	require.True(t, account.MainBalance.IsZero())
	require.Equal(t, int64(1), countRows(t, db, &model.CoinTransaction{}))
	require.Equal(t, int64(0), countRows(t, db, &model.BalanceTransaction{}))
	require.Equal(t, int64(0), countRows(t, db, &model.OutboxMessage{}))
}

func TestConvertBelowConversionUnit(t *testing.T) {
	db, ledger, conversion := newConversionFixture(t)
	ctx := context.Background()
	// 最低数量小于一个兑换单位时，两项校验各自独立
	seedConversionSetting(t, db, 100, "10.00", 50)
	openAccount(t, ledger, 1)
	creditCoins(t, ledger, 1, 250, model.CoinTypeEarned)

	_, err := conversion.Convert(ctx, 1, 80)
	require.ErrorIs(t, err, ErrBelowConversionUnit)

	_, err = conversion.Convert(ctx, 1, 40)
	require.ErrorIs(t, err, ErrBelowMinimum)

	require.Equal(t, int64(0), countRows(t, db, &model.BalanceTransaction{}))
}

func TestConvertWithoutActivePolicy(t *testing.T) {
	db, ledger, conversion := newConversionFixture(t)
	ctx := context.Background()
	openAccount(t, ledger, 1)
	creditCoins(t, ledger, 1, 250, model.CoinTypeEarned)

	require.NoError(t, db.Create(&model.ConversionSetting{
		CoinsRequired:     100,
		MainBalanceAmount: money("10.00"),
		MinimumCoins:      100,
		IsActive:          false,
	}).Error)

	_, err := conversion.Convert(ctx, 1, 200)
	require.ErrorIs(t, err, ErrServiceUnavailable)

	e, ok := AsError(err)
	require.True(t, ok)
	require.Equal(t, KindUnavailable, e.Kind)

	_, err = conversion.Quote(ctx, 200)
	require.ErrorIs(t, err, ErrServiceUnavailable)
}

func TestConversionQuoteDoesNotMutate(t *testing.T) {
	db, ledger, conversion := newConversionFixture(t)
	ctx := context.Background()
	seedConversionSetting(t, db, 100, "2.50", 100)
	openAccount(t, ledger, 1)

	quote, err := conversion.Quote(ctx, 345)
	require.NoError(t, err)
	require.Equal(t, int64(3), quote.UnitsConverted)
	require.Equal(t, int64(300), quote.CoinsDeducted)
	require.Equal(t, int64(45), quote.Remainder)
	require.Equal(t, "7.50", quote.MainBalanceAdded.StringFixed(2))
	require.Empty(t, quote.ConversionNo)

	_, err = conversion.Quote(ctx, 99)
	require.ErrorIs(t, err, ErrBelowMinimum)

	require.Equal(t, int64(0), countRows(t, db, &model.CoinTransaction{}))
}

func TestConvertWithNonPositiveUnitAmountIsUnavailable(t *testing.T) {
	db, ledger, conversion := newConversionFixture(t)
	ctx := context.Background()
	seedConversionSetting(t, db, 100, "0.00", 100)
	openAccount(t, ledger, 1)
	creditCoins(t, ledger, 1, 250, model.CoinTypeEarned)

	_, err := conversion.Convert(ctx, 1, 200)
	require.ErrorIs(t, err, ErrServiceUnavailable)

	_, err = conversion.Quote(ctx, 200)
	require.ErrorIs(t, err, ErrServiceUnavailable)

	account, err := ledger.GetAccount(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(250), account.CoinBalance)
	require.Equal(t, int64(1), countRows(t, db, &model.CoinTransaction{}))
	require.Equal(t, int64(0), countRows(t, db, &model.BalanceTransaction{}))
}
