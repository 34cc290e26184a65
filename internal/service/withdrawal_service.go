package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"quizwallet/internal/model"
	"quizwallet/internal/repository"
	"quizwallet/pkg/idgen"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const referenceTypeWithdrawal = "withdrawal"

// WithdrawalService 提现申请
//
// 申请时全额从主余额扣除（冻结），用户取消或后台驳回时原路退回。
// 手续费只记录在申请单上，实际打款由外部出款流程完成
type WithdrawalService struct {
	ledger         *LedgerService
	withdrawalRepo *repository.WithdrawalRepository
}

func NewWithdrawalService(ledger *LedgerService) *WithdrawalService {
	return &WithdrawalService{
		ledger:         ledger,
		withdrawalRepo: repository.NewWithdrawalRepository(ledger.db),
	}
}

// Destination 收款信息
type Destination struct {
	AccountNumber string `json:"account_number" binding:"required"`
	AccountName   string `json:"account_name"`
	BankName      string `json:"bank_name"`
	BranchName    string `json:"branch_name"`
}

type CreateWithdrawalRequest struct {
	UserID        int64           `json:"user_id" binding:"required"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method" binding:"required"`
	Destination   Destination     `json:"destination"`
}

// WithdrawalQuote 手续费试算
type WithdrawalQuote struct {
	Amount         decimal.Decimal `json:"amount"`
	Fee            decimal.Decimal `json:"fee"`
	NetAmount      decimal.Decimal `json:"net_amount"`
	ProcessingDays int             `json:"processing_days"`
}

func (s *WithdrawalService) policy(ctx context.Context) (*model.WithdrawalSetting, error) {
	setting, err := s.ledger.settingRepo.ActiveWithdrawalSetting(ctx)
	if err != nil {
		return nil, translate(err)
	}
	if setting == nil {
		return nil, fmt.Errorf("%w: 没有生效的提现配置", ErrServiceUnavailable)
	}
	return setting, nil
}

// quote 校验金额范围并计算手续费
func quote(setting *model.WithdrawalSetting, amount decimal.Decimal) (*WithdrawalQuote, error) {
	if !amount.IsPositive() || !amount.Equal(model.RoundCurrency(amount)) {
		return nil, fmt.Errorf("%w: 提现金额必须大于 0 且最多两位小数", ErrInvalidAmount)
	}
	if amount.LessThan(setting.MinimumAmount) {
		return nil, fmt.Errorf("%w: 最低提现金额 %s", ErrOutOfRange, setting.MinimumAmount.StringFixed(model.CurrencyScale))
	}
	if setting.MaximumAmount.Valid && amount.GreaterThan(setting.MaximumAmount.Decimal) {
		return nil, fmt.Errorf("%w: 最高提现金额 %s", ErrOutOfRange, setting.MaximumAmount.Decimal.StringFixed(model.CurrencyScale))
	}

	fee := setting.ComputeFee(amount)
	net := amount.Sub(fee)
	if !net.IsPositive() {
		return nil, fmt.Errorf("%w: 手续费 %s 不低于提现金额", ErrOutOfRange, fee.StringFixed(model.CurrencyScale))
	}

	return &WithdrawalQuote{
		Amount:         amount,
		Fee:            fee,
		NetAmount:      net,
		ProcessingDays: setting.ProcessingDays,
	}, nil
}

// Quote 试算手续费与到账金额，不检查余额
func (s *WithdrawalService) Quote(ctx context.Context, amount decimal.Decimal) (*WithdrawalQuote, error) {
	setting, err := s.policy(ctx)
	if err != nil {
		return nil, err
	}
	return quote(setting, amount)
}

// Create 提交提现申请
//
// 校验顺序：生效配置 -> 金额范围 -> 提现方式 -> 手续费 -> 主余额
func (s *WithdrawalService) Create(ctx context.Context, req *CreateWithdrawalRequest) (*model.WithdrawalRequest, error) {
	started := time.Now()
	result, err := s.create(ctx, req)
	s.ledger.opts.Metrics.Observe("withdrawal_create", Code(err), started)
	return result, err
}

func (s *WithdrawalService) create(ctx context.Context, req *CreateWithdrawalRequest) (*model.WithdrawalRequest, error) {
	setting, err := s.policy(ctx)
	if err != nil {
		return nil, err
	}

	var q *WithdrawalQuote
	validate := func() error {
		var err error
		if q, err = quote(setting, req.Amount); err != nil {
			return err
		}
		if !setting.AllowsMethod(req.PaymentMethod) {
			return fmt.Errorf("%w: %s", ErrMethodNotAllowed, req.PaymentMethod)
		}
		if strings.TrimSpace(req.Destination.AccountNumber) == "" {
			return ErrInvalidDestination
		}
		return nil
	}

	var withdrawal *model.WithdrawalRequest
	err = s.ledger.withAccount(ctx, req.UserID, validate, func(tx *gorm.DB, account *model.Account) error {
		if account.MainBalance.LessThan(q.Amount) {
			return fmt.Errorf("%w: 当前余额 %s，申请提现 %s", ErrInsufficientBalance,
				account.MainBalance.StringFixed(model.CurrencyScale), q.Amount.StringFixed(model.CurrencyScale))
		}

		requestNo := idgen.GenerateWithdrawalNo()

		debit, err := s.ledger.appendBalance(ctx, tx, account, &BalanceEntry{
			UserID:        req.UserID,
			Amount:        q.Amount.Neg(),
			Type:          model.BalanceTypeWithdrawal,
			Source:        "withdrawal",
			Description:   fmt.Sprintf("提现冻结 %s", req.PaymentMethod),
			ReferenceID:   requestNo,
			ReferenceType: referenceTypeWithdrawal,
		})
		if err != nil {
			return err
		}

		withdrawal = &model.WithdrawalRequest{
			RequestNo:     requestNo,
			UserID:        req.UserID,
			Amount:        q.Amount,
			Fee:           q.Fee,
			NetAmount:     q.NetAmount,
			PaymentMethod: req.PaymentMethod,
			AccountNumber: strings.TrimSpace(req.Destination.AccountNumber),
			AccountName:   req.Destination.AccountName,
			BankName:      req.Destination.BankName,
			BranchName:    req.Destination.BranchName,
			Status:        model.WithdrawalStatusPending,
			DebitEntryNo:  debit.TransactionNo,
			CreatedAt:     debit.CreatedAt,
		}
		if err := s.withdrawalRepo.Create(ctx, tx, withdrawal); err != nil {
			return fmt.Errorf("创建提现申请失败: %w", err)
		}

		return s.ledger.emit(ctx, tx, model.EventWithdrawalCreated, req.UserID, map[string]interface{}{
			"request_no":     requestNo,
			"amount":         q.Amount.StringFixed(model.CurrencyScale),
			"fee":            q.Fee.StringFixed(model.CurrencyScale),
			"net_amount":     q.NetAmount.StringFixed(model.CurrencyScale),
			"payment_method": req.PaymentMethod,
			"status":         model.WithdrawalStatusPending,
		})
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[WithdrawalService] 提现申请成功: requestNo=%s, userID=%d, amount=%s, fee=%s",
		withdrawal.RequestNo, withdrawal.UserID, withdrawal.Amount.StringFixed(model.CurrencyScale), withdrawal.Fee.StringFixed(model.CurrencyScale))
	return withdrawal, nil
}

// Cancel 用户取消提现，只允许 pending 状态，冻结金额全额退回
func (s *WithdrawalService) Cancel(ctx context.Context, userID int64, requestNo string) (*model.WithdrawalRequest, error) {
	started := time.Now()
	result, err := s.changeStatus(ctx, requestNo, model.WithdrawalStatusCancelled, func(w *model.WithdrawalRequest) error {
		if w.UserID != userID {
			return ErrWithdrawalNotFound
		}
		return nil
	}, nil, "")
	s.ledger.opts.Metrics.Observe("withdrawal_cancel", Code(err), started)
	return result, err
}

// Transition 后台/出款流程推进提现状态，取消只能由用户发起
// 驳回时冻结金额全额退回，其余流转不影响余额
func (s *WithdrawalService) Transition(ctx context.Context, requestNo string, to model.WithdrawalStatus, processorID int64, notes string) (*model.WithdrawalRequest, error) {
	started := time.Now()
	var result *model.WithdrawalRequest
	var err error
	if to == model.WithdrawalStatusCancelled || to == model.WithdrawalStatusPending {
		err = fmt.Errorf("%w: 不能流转到 %s", ErrInvalidStateTransition, to)
	} else {
		result, err = s.changeStatus(ctx, requestNo, to, nil, &processorID, notes)
	}
	s.ledger.opts.Metrics.Observe("withdrawal_transition", Code(err), started)
	return result, err
}

func (s *WithdrawalService) changeStatus(ctx context.Context, requestNo string, to model.WithdrawalStatus,
	authorize func(w *model.WithdrawalRequest) error, processorID *int64, notes string) (*model.WithdrawalRequest, error) {

	current, err := s.withdrawalRepo.GetByRequestNo(ctx, requestNo)
	if err != nil {
		return nil, translate(err)
	}
	if authorize != nil {
		if err := authorize(current); err != nil {
			return nil, err
		}
	}

	var withdrawal *model.WithdrawalRequest
	err = s.ledger.withAccount(ctx, current.UserID, nil, func(tx *gorm.DB, account *model.Account) error {
		w, err := s.withdrawalRepo.GetByRequestNoForUpdate(ctx, tx, requestNo)
		if err != nil {
			return err
		}
		from := w.Status
		if !model.CanWithdrawalTransitionTo(from, to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, from, to)
		}

		now := s.ledger.opts.Clock.Now()
		updates := map[string]interface{}{
			"processed_at": now,
		}
		w.ProcessedAt = &now
		if processorID != nil {
			updates["processed_by"] = *processorID
			w.ProcessedBy = processorID
		}
		if notes != "" {
			updates["admin_notes"] = notes
			w.AdminNotes = notes
		}

		// 取消与驳回都要退回冻结金额
		if to == model.WithdrawalStatusCancelled || to == model.WithdrawalStatusRejected {
			refund, err := s.ledger.appendBalance(ctx, tx, account, &BalanceEntry{
				UserID:        w.UserID,
				Amount:        w.Amount,
				Type:          model.BalanceTypeRefund,
				Source:        "withdrawal",
				Description:   fmt.Sprintf("提现%s退回", statusLabel(to)),
				ReferenceID:   w.RequestNo,
				ReferenceType: referenceTypeWithdrawal,
			})
			if err != nil {
				return err
			}
			updates["refund_entry_no"] = refund.TransactionNo
			w.RefundEntryNo = refund.TransactionNo
		}

		if err := s.withdrawalRepo.UpdateStatus(ctx, tx, w.RequestNo, from, to, updates); err != nil {
			return err
		}
		w.Status = to

		eventType := model.EventWithdrawalStatusChanged
		if to == model.WithdrawalStatusCancelled {
			eventType = model.EventWithdrawalCancelled
		}
		if err := s.ledger.emit(ctx, tx, eventType, w.UserID, map[string]interface{}{
			"request_no": w.RequestNo,
			"from":       from,
			"to":         to,
			"amount":     w.Amount.StringFixed(model.CurrencyScale),
		}); err != nil {
			return fmt.Errorf("写入消息失败: %w", err)
		}

		withdrawal = w
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[WithdrawalService] 提现状态变更: requestNo=%s, userID=%d, status=%s", withdrawal.RequestNo, withdrawal.UserID, to)
	return withdrawal, nil
}

func (s *WithdrawalService) Get(ctx context.Context, requestNo string) (*model.WithdrawalRequest, error) {
	w, err := s.withdrawalRepo.GetByRequestNo(ctx, requestNo)
	if err != nil {
		return nil, translate(err)
	}
	return w, nil
}

// ListUserWithdrawals 分页查询用户提现记录，status 为空表示全部
func (s *WithdrawalService) ListUserWithdrawals(ctx context.Context, userID int64, status model.WithdrawalStatus, page, pageSize int) ([]*model.WithdrawalRequest, int64, error) {
	page, pageSize = normalizePage(page, pageSize)
	list, total, err := s.withdrawalRepo.ListByUserID(ctx, userID, status, page, pageSize)
	if err != nil {
		return nil, 0, translate(err)
	}
	return list, total, nil
}

func statusLabel(status model.WithdrawalStatus) string {
	switch status {
	case model.WithdrawalStatusCancelled:
		return "取消"
	case model.WithdrawalStatusRejected:
		return "驳回"
	default:
		return string(status)
	}
}
