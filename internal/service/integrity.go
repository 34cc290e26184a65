package service

import (
	"context"
	"fmt"

	"quizwallet/internal/model"
	"quizwallet/internal/repository"

	"github.com/shopspring/decimal"
)

// ChainBreak 一条不满足余额链的流水
type ChainBreak struct {
	TransactionNo string `json:"transaction_no"`
	Reason        string `json:"reason"`
}

// IntegrityReport 账户缓存余额与流水的核对结果
type IntegrityReport struct {
	UserID             int64           `json:"user_id"`
	CoinBalance        int64           `json:"coin_balance"`
	CoinLedgerSum      int64           `json:"coin_ledger_sum"`
	CoinEntries        int             `json:"coin_entries"`
	CoinChainBreaks    []ChainBreak    `json:"coin_chain_breaks,omitempty"`
	MainBalance        decimal.Decimal `json:"main_balance"`
	BalanceLedgerSum   decimal.Decimal `json:"balance_ledger_sum"`
	BalanceEntries     int             `json:"balance_entries"`
	BalanceChainBreaks []ChainBreak    `json:"balance_chain_breaks,omitempty"`
}

// Consistent 余额等于流水之和，且每条流水前后余额首尾相接
func (r *IntegrityReport) Consistent() bool {
	return r.CoinBalance == r.CoinLedgerSum &&
		r.MainBalance.Equal(r.BalanceLedgerSum) &&
		len(r.CoinChainBreaks) == 0 &&
		len(r.BalanceChainBreaks) == 0
}

// VerifyAccount 按记账顺序重放账户全部流水并与缓存余额比对
// 账户从 0 开始，第一条流水的 balance_before 必须为 0
func (s *LedgerService) VerifyAccount(ctx context.Context, userID int64) (*IntegrityReport, error) {
	account, err := s.accountRepo.GetByUserID(ctx, nil, userID)
	if err != nil {
		return nil, translate(err)
	}

	coins, err := s.coinRepo.ListAllByUserID(ctx, userID)
	if err != nil {
		return nil, translate(err)
	}
	balances, err := s.balanceRepo.ListAllByUserID(ctx, userID)
	if err != nil {
		return nil, translate(err)
	}

	report := &IntegrityReport{
		UserID:         userID,
		CoinBalance:    account.CoinBalance,
		CoinEntries:    len(coins),
		MainBalance:    model.RoundCurrency(account.MainBalance),
		BalanceEntries: len(balances),
	}

	var prevCoin int64
	for _, t := range coins {
		report.CoinLedgerSum += t.Coins
		if t.BalanceAfter-t.BalanceBefore != t.Coins {
			report.CoinChainBreaks = append(report.CoinChainBreaks, ChainBreak{
				TransactionNo: t.TransactionNo,
				Reason:        fmt.Sprintf("after-before=%d, coins=%d", t.BalanceAfter-t.BalanceBefore, t.Coins),
			})
		}
		if t.BalanceBefore != prevCoin {
			report.CoinChainBreaks = append(report.CoinChainBreaks, ChainBreak{
				TransactionNo: t.TransactionNo,
				Reason:        fmt.Sprintf("before=%d, 上一条 after=%d", t.BalanceBefore, prevCoin),
			})
		}
		prevCoin = t.BalanceAfter
	}

	prevBalance := decimal.Zero
	for _, t := range balances {
		if !t.BalanceAfter.Sub(t.BalanceBefore).Equal(t.Amount) {
			report.BalanceChainBreaks = append(report.BalanceChainBreaks, ChainBreak{
				TransactionNo: t.TransactionNo,
				Reason:        fmt.Sprintf("after-before=%s, amount=%s", t.BalanceAfter.Sub(t.BalanceBefore), t.Amount),
			})
		}
		if !t.BalanceBefore.Equal(prevBalance) {
			report.BalanceChainBreaks = append(report.BalanceChainBreaks, ChainBreak{
				TransactionNo: t.TransactionNo,
				Reason:        fmt.Sprintf("before=%s, 上一条 after=%s", t.BalanceBefore, prevBalance),
			})
		}
		prevBalance = t.BalanceAfter
	}
	report.BalanceLedgerSum = model.RoundCurrency(repository.SumAmounts(balances))

	return report, nil
}
