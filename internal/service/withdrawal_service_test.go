package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"quizwallet/internal/model"
	"quizwallet/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func seedWithdrawalSetting(t *testing.T, db *gorm.DB) {
	t.Helper()
	require.NoError(t, db.Create(&model.WithdrawalSetting{
		MinimumAmount:  money("100"),
		MaximumAmount:  decimal.NewNullDecimal(money("50000")),
		FeePercentage:  money("2.5"),
		FeeFixed:       money("5.00"),
		ProcessingDays: 3,
		PaymentMethods: []string{"bkash", "nagad", "bank"},
		IsActive:       true,
	}).Error)
}

func newWithdrawalFixture(t *testing.T) (*gorm.DB, *LedgerService, *WithdrawalService) {
	db := newTestDB(t)
	ledger := NewLedgerService(db, Options{EventTopic: "wallet_event"})
	seedWithdrawalSetting(t, db)
	return db, ledger, NewWithdrawalService(ledger)
}

func withdrawalRequest(userID int64, amount string) *CreateWithdrawalRequest {
	return &CreateWithdrawalRequest{
		UserID:        userID,
		Amount:        money(amount),
		PaymentMethod: "bkash",
		Destination:   Destination{AccountNumber: "01700000000", AccountName: "Rahim"},
	}
}

func mainBalance(t *testing.T, ledger *LedgerService, userID int64) string {
	t.Helper()
	account, err := ledger.GetAccount(context.Background(), userID)
	require.NoError(t, err)
	return account.MainBalance.StringFixed(2)
}

func TestCreateWithdrawalEscrowsFullAmount(t *testing.T) {
	db, ledger, withdrawals := newWithdrawalFixture(t)
	ctx := context.Background()
	openAccount(t, ledger, 1)
	creditBalance(t, ledger, 1, "1500.00")

	w, err := withdrawals.Create(ctx, withdrawalRequest(1, "1000"))
	require.NoError(t, err)
	require.Equal(t, model.WithdrawalStatusPending, w.Status)
	require.Equal(t, "1000.00", w.Amount.StringFixed(2))
	require.Equal(t, "30.00", w.Fee.StringFixed(2))
	require.Equal(t, "970.00", w.NetAmount.StringFixed(2))
	require.NotEmpty(t, w.DebitEntryNo)

	// 扣除的是全额而不是到账金额
	require.Equal(t, "500.00", mainBalance(t, ledger, 1))

	debit, err := repository.NewBalanceTransactionRepository(db).GetByTransactionNo(ctx, w.DebitEntryNo)
	require.NoError(t, err)
	require.Equal(t, "-1000.00", debit.Amount.StringFixed(2))
	require.Equal(t, model.BalanceTypeWithdrawal, debit.Type)
	require.Equal(t, w.RequestNo, debit.ReferenceID)

	stored, err := withdrawals.Get(ctx, w.RequestNo)
	require.NoError(t, err)
	require.Equal(t, model.WithdrawalStatusPending, stored.Status)
	require.Equal(t, "01700000000", stored.AccountNumber)

	events, err := repository.NewOutboxRepository(db).ListByEventType(ctx, model.EventWithdrawalCreated)
	require.NoError(t, err)
	require.Len(t, events, 1)

	requireConsistent(t, ledger, 1)
}

func TestCancelWithdrawalRefundsOnce(t *testing.T) {
	db, ledger, withdrawals := newWithdrawalFixture(t)
	ctx := context.Background()
	openAccount(t, ledger, 1)
	creditBalance(t, ledger, 1, "1500.00")

	w, err := withdrawals.Create(ctx, withdrawalRequest(1, "1000"))
	require.NoError(t, err)

	cancelled, err := withdrawals.Cancel(ctx, 1, w.RequestNo)
	require.NoError(t, err)
	require.Equal(t, model.WithdrawalStatusCancelled, cancelled.Status)
	require.NotEmpty(t, cancelled.RefundEntryNo)
	require.Equal(t, "1500.00", mainBalance(t, ledger, 1))

	refund, err := repository.NewBalanceTransactionRepository(db).GetByTransactionNo(ctx, cancelled.RefundEntryNo)
	require.NoError(t, err)
	require.Equal(t, "1000.00", refund.Amount.StringFixed(2))
	require.Equal(t, model.BalanceTypeRefund, refund.Type)

	_, err = withdrawals.Cancel(ctx, 1, w.RequestNo)
	require.ErrorIs(t, err, ErrInvalidStateTransition)
	require.Equal(t, "1500.00", mainBalance(t, ledger, 1))

	events, err := repository.NewOutboxRepository(db).ListByEventType(ctx, model.EventWithdrawalCancelled)
	require.NoError(t, err)
	require.Len(t, events, 1)

	report := requireConsistent(t, ledger, 1)
	require.Equal(t, 3, report.BalanceEntries)
}

func TestCancelWithdrawalOfAnotherUser(t *testing.T) {
	_, ledger, withdrawals := newWithdrawalFixture(t)
	ctx := context.Background()
	openAccount(t, ledger, 1)
	creditBalance(t, ledger, 1, "1500.00")

	w, err := withdrawals.Create(ctx, withdrawalRequest(1, "200"))
	require.NoError(t, err)

	_, err = withdrawals.Cancel(ctx, 2, w.RequestNo)
	require.ErrorIs(t, err, ErrWithdrawalNotFound)

	_, err = withdrawals.Cancel(ctx, 1, "WDR-missing")
	require.ErrorIs(t, err, ErrWithdrawalNotFound)
}

func TestCreateWithdrawalValidation(t *testing.T) {
	db, ledger, withdrawals := newWithdrawalFixture(t)
	ctx := context.Background()
	openAccount(t, ledger, 1)
	creditBalance(t, ledger, 1, "1500.00")

	_, err := withdrawals.Create(ctx, withdrawalRequest(1, "50"))
	require.ErrorIs(t, err, ErrOutOfRange)
	require.Contains(t, err.Error(), "100.00")

	_, err = withdrawals.Create(ctx, withdrawalRequest(1, "60000"))
	require.ErrorIs(t, err, ErrOutOfRange)
	require.Contains(t, err.Error(), "50000.00")

	req := withdrawalRequest(1, "200")
	req.PaymentMethod = "paypal"
	_, err = withdrawals.Create(ctx, req)
	require.ErrorIs(t, err, ErrMethodNotAllowed)

	req = withdrawalRequest(1, "200")
	req.Destination.AccountNumber = "  "
	_, err = withdrawals.Create(ctx, req)
	require.ErrorIs(t, err, ErrInvalidDestination)

	_, err = withdrawals.Create(ctx, withdrawalRequest(1, "2000"))
	require.ErrorIs(t, err, ErrInsufficientBalance)

	_, err = withdrawals.Create(ctx, withdrawalRequest(1, "100.005"))
	require.ErrorIs(t, err, ErrInvalidAmount)

	e, ok := AsError(err)
	require.True(t, ok)
	require.Equal(t, KindInvalid, e.Kind)

	require.Equal(t, "1500.00", mainBalance(t, ledger, 1))
	require.Equal(t, int64(1), countRows(t, db, &model.BalanceTransaction{}))
	require.Equal(t, int64(0), countRows(t, db, &model.WithdrawalRequest{}))
}

func TestCreateWithdrawalWithoutPolicy(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedgerService(db, Options{})
	withdrawals := NewWithdrawalService(ledger)
	openAccount(t, ledger, 1)

	_, err := withdrawals.Create(context.Background(), withdrawalRequest(1, "200"))
	require.ErrorIs(t, err, ErrServiceUnavailable)

	_, err = withdrawals.Quote(context.Background(), money("200"))
	require.ErrorIs(t, err, ErrServiceUnavailable)
}

func TestWithdrawalQuote(t *testing.T) {
	_, _, withdrawals := newWithdrawalFixture(t)

	q, err := withdrawals.Quote(context.Background(), money("1000"))
	require.NoError(t, err)
	require.Equal(t, "30.00", q.Fee.StringFixed(2))
	require.Equal(t, "970.00", q.NetAmount.StringFixed(2))
	require.Equal(t, 3, q.ProcessingDays)

	_, err = withdrawals.Quote(context.Background(), money("99.99"))
	require.ErrorIs(t, err, ErrOutOfRange)
}

func TestWithdrawalAdminLifecycle(t *testing.T) {
	db, ledger, withdrawals := newWithdrawalFixture(t)
	ctx := context.Background()
	openAccount(t, ledger, 1)
	creditBalance(t, ledger, 1, "1500.00")

	w, err := withdrawals.Create(ctx, withdrawalRequest(1, "1000"))
	require.NoError(t, err)

	_, err = withdrawals.Transition(ctx, w.RequestNo, model.WithdrawalStatusApproved, 9, "")
	require.ErrorIs(t, err, ErrInvalidStateTransition)

	for _, to := range []model.WithdrawalStatus{
		model.WithdrawalStatusProcessing,
		model.WithdrawalStatusApproved,
		model.WithdrawalStatusCompleted,
	} {
		updated, err := withdrawals.Transition(ctx, w.RequestNo, to, 9, "ok")
		require.NoError(t, err)
		require.Equal(t, to, updated.Status)
		require.Equal(t, "500.00", mainBalance(t, ledger, 1))
	}

	stored, err := withdrawals.Get(ctx, w.RequestNo)
	require.NoError(t, err)
	require.Equal(t, model.WithdrawalStatusCompleted, stored.Status)
	require.NotNil(t, stored.ProcessedBy)
	require.Equal(t, int64(9), *stored.ProcessedBy)
	require.NotNil(t, stored.ProcessedAt)
	require.Equal(t, "ok", stored.AdminNotes)
	require.Empty(t, stored.RefundEntryNo)

	_, err = withdrawals.Cancel(ctx, 1, w.RequestNo)
	require.ErrorIs(t, err, ErrInvalidStateTransition)

	events, err := repository.NewOutboxRepository(db).ListByEventType(ctx, model.EventWithdrawalStatusChanged)
	require.NoError(t, err)
	require.Len(t, events, 3)

	requireConsistent(t, ledger, 1)
}

func TestRejectWithdrawalRefunds(t *testing.T) {
	_, ledger, withdrawals := newWithdrawalFixture(t)
	ctx := context.Background()
	openAccount(t, ledger, 1)
	creditBalance(t, ledger, 1, "1500.00")

	w, err := withdrawals.Create(ctx, withdrawalRequest(1, "1000"))
	require.NoError(t, err)

	_, err = withdrawals.Transition(ctx, w.RequestNo, model.WithdrawalStatusCancelled, 9, "")
	require.ErrorIs(t, err, ErrInvalidStateTransition)

	rejected, err := withdrawals.Transition(ctx, w.RequestNo, model.WithdrawalStatusRejected, 9, "账户信息不符")
	require.NoError(t, err)
	require.Equal(t, model.WithdrawalStatusRejected, rejected.Status)
	require.NotEmpty(t, rejected.RefundEntryNo)
	require.Equal(t, "1500.00", mainBalance(t, ledger, 1))

	_, err = withdrawals.Transition(ctx, w.RequestNo, model.WithdrawalStatusProcessing, 9, "")
	require.ErrorIs(t, err, ErrInvalidStateTransition)

	list, total, err := withdrawals.ListUserWithdrawals(ctx, 1, model.WithdrawalStatusRejected, 1, 10)
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Equal(t, w.RequestNo, list[0].RequestNo)

	requireConsistent(t, ledger, 1)
}

func TestConcurrentWithdrawalsNeverOverdraw(t *testing.T) {
	db, ledger, withdrawals := newWithdrawalFixture(t)
	openAccount(t, ledger, 1)
	creditBalance(t, ledger, 1, "1500.00")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = withdrawals.Create(context.Background(), withdrawalRequest(1, "1000"))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.True(t, errors.Is(err, ErrInsufficientBalance) || errors.Is(err, ErrConcurrencyConflict), "unexpected error: %v", err)
	}
	require.Equal(t, 1, succeeded)
	require.Equal(t, "500.00", mainBalance(t, ledger, 1))
	require.Equal(t, int64(1), countRows(t, db, &model.WithdrawalRequest{}))
	requireConsistent(t, ledger, 1)
}
