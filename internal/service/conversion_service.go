package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"quizwallet/internal/model"
	"quizwallet/pkg/idgen"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const referenceTypeConversion = "conversion"

// ConversionService 硬币兑换主余额
//
// 只兑换整数个兑换单位，不足一个单位的余数留在账户里。
// 硬币扣除与主余额入账在同一个事务内完成
type ConversionService struct {
	ledger *LedgerService
}

func NewConversionService(ledger *LedgerService) *ConversionService {
	return &ConversionService{ledger: ledger}
}

// ConversionResult 兑换结果，Quote 返回同样的结构但不含单号与余额
type ConversionResult struct {
	ConversionNo     string          `json:"conversion_no,omitempty"`
	CoinsRequested   int64           `json:"coins_requested"`
	UnitsConverted   int64           `json:"units_converted"`
	CoinsDeducted    int64           `json:"coins_deducted"`
	Remainder        int64           `json:"remainder"`
	MainBalanceAdded decimal.Decimal `json:"main_balance_added"`
	CoinBalance      int64           `json:"coin_balance,omitempty"`
	MainBalance      decimal.Decimal `json:"main_balance,omitempty"`
	CoinEntryNo      string          `json:"coin_entry_no,omitempty"`
	BalanceEntryNo   string          `json:"balance_entry_no,omitempty"`
}

// policy 读取一次生效配置，整个操作期间使用这份快照
func (s *ConversionService) policy(ctx context.Context) (*model.ConversionSetting, error) {
	setting, err := s.ledger.settingRepo.ActiveConversionSetting(ctx)
	if err != nil {
		return nil, translate(err)
	}
	// 配置不完整视同没有生效配置
	if setting == nil || setting.CoinsRequired < 1 || !setting.MainBalanceAmount.IsPositive() {
		return nil, fmt.Errorf("%w: 没有生效的兑换配置", ErrServiceUnavailable)
	}
	return setting, nil
}

func checkMinimum(setting *model.ConversionSetting, coins int64) error {
	if coins <= 0 {
		return fmt.Errorf("%w: 兑换硬币数必须大于 0", ErrInvalidAmount)
	}
	if coins < setting.MinimumCoins {
		return fmt.Errorf("%w: 至少需要 %d 硬币，本次 %d", ErrBelowMinimum, setting.MinimumCoins, coins)
	}
	return nil
}

// breakdown 计算兑换单位、实际扣除、余数与入账金额
func breakdown(setting *model.ConversionSetting, coins int64) (*ConversionResult, error) {
	units := coins / setting.CoinsRequired
	if units == 0 {
		return nil, fmt.Errorf("%w: 每个兑换单位需要 %d 硬币，本次 %d", ErrBelowConversionUnit, setting.CoinsRequired, coins)
	}
	deducted := units * setting.CoinsRequired
	return &ConversionResult{
		CoinsRequested:   coins,
		UnitsConverted:   units,
		CoinsDeducted:    deducted,
		Remainder:        coins - deducted,
		MainBalanceAdded: model.RoundCurrency(setting.MainBalanceAmount.Mul(decimal.NewFromInt(units))),
	}, nil
}

// Quote 试算兑换结果，不检查余额，不产生任何写入
func (s *ConversionService) Quote(ctx context.Context, coins int64) (*ConversionResult, error) {
	setting, err := s.policy(ctx)
	if err != nil {
		return nil, err
	}
	if err := checkMinimum(setting, coins); err != nil {
		return nil, err
	}
	return breakdown(setting, coins)
}

// Convert 兑换硬币
//
// 校验顺序：生效配置 -> 最低数量 -> 硬币余额 -> 兑换单位，
// 全部校验在写入之前完成
func (s *ConversionService) Convert(ctx context.Context, userID int64, coins int64) (*ConversionResult, error) {
	started := time.Now()
	result, err := s.convert(ctx, userID, coins)
	s.ledger.opts.Metrics.Observe("convert", Code(err), started)
	return result, err
}

func (s *ConversionService) convert(ctx context.Context, userID int64, coins int64) (*ConversionResult, error) {
	setting, err := s.policy(ctx)
	if err != nil {
		return nil, err
	}

	var result *ConversionResult
	validate := func() error { return checkMinimum(setting, coins) }

	err = s.ledger.withAccount(ctx, userID, validate, func(tx *gorm.DB, account *model.Account) error {
		if account.CoinBalance < coins {
			return fmt.Errorf("%w: 当前硬币 %d，申请兑换 %d", ErrInsufficientBalance, account.CoinBalance, coins)
		}

		res, err := breakdown(setting, coins)
		if err != nil {
			return err
		}
		res.ConversionNo = idgen.GenerateConversionNo()

		coinEntry, err := s.ledger.appendCoin(ctx, tx, account, &CoinEntry{
			UserID:        userID,
			Coins:         -res.CoinsDeducted,
			Type:          model.CoinTypeConversionDebit,
			Source:        "conversion",
			Description:   fmt.Sprintf("兑换 %d 个单位", res.UnitsConverted),
			ReferenceID:   res.ConversionNo,
			ReferenceType: referenceTypeConversion,
		})
		if err != nil {
			return err
		}

		balanceEntry, err := s.ledger.appendBalance(ctx, tx, account, &BalanceEntry{
			UserID:        userID,
			Amount:        res.MainBalanceAdded,
			Type:          model.BalanceTypeConversion,
			Source:        "conversion",
			Description:   fmt.Sprintf("%d 硬币兑换入账", res.CoinsDeducted),
			ReferenceID:   res.ConversionNo,
			ReferenceType: referenceTypeConversion,
		})
		if err != nil {
			return err
		}

		res.CoinEntryNo = coinEntry.TransactionNo
		res.BalanceEntryNo = balanceEntry.TransactionNo
		res.CoinBalance = account.CoinBalance
		res.MainBalance = account.MainBalance

		if err := s.ledger.emit(ctx, tx, model.EventConversionCompleted, userID, map[string]interface{}{
			"conversion_no":      res.ConversionNo,
			"coins_deducted":     res.CoinsDeducted,
			"units_converted":    res.UnitsConverted,
			"main_balance_added": res.MainBalanceAdded.StringFixed(model.CurrencyScale),
		}); err != nil {
			return fmt.Errorf("写入消息失败: %w", err)
		}

		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[ConversionService] 兑换成功: conversionNo=%s, userID=%d, coins=%d, added=%s, remainder=%d",
		result.ConversionNo, userID, result.CoinsDeducted, result.MainBalanceAdded.StringFixed(model.CurrencyScale), result.Remainder)
	return result, nil
}
