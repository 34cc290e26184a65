package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"quizwallet/internal/infrastructure/lock"
	"quizwallet/internal/infrastructure/metrics"
	"quizwallet/internal/model"
	"quizwallet/internal/repository"
	"quizwallet/pkg/idgen"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Options 记账相关服务共用的依赖，零值可用
type Options struct {
	Locker     *lock.AccountLocker // 为 nil 时只依赖数据库行锁
	Metrics    *metrics.Metrics
	Clock      Clock
	EventTopic string // 为空时不写 outbox
}

// LedgerService 双账本记账
//
// 每一次记账都在同一个事务内完成：
//  1. SELECT ... FOR UPDATE 锁定账户行，读取当前余额
//  2. 计算 balance_after = balance_before + delta，出账不允许余额为负
//  3. 写入流水
//  4. 带 version 条件更新账户余额
//
// 任一步失败整个事务回滚，流水和余额要么同时变化，要么都不变
type LedgerService struct {
	db          *gorm.DB
	opts        Options
	accountRepo *repository.AccountRepository
	coinRepo    *repository.CoinTransactionRepository
	balanceRepo *repository.BalanceTransactionRepository
	settingRepo *repository.SettingRepository
	outboxRepo  *repository.OutboxRepository
}

func NewLedgerService(db *gorm.DB, opts Options) *LedgerService {
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	return &LedgerService{
		db:          db,
		opts:        opts,
		accountRepo: repository.NewAccountRepository(db),
		coinRepo:    repository.NewCoinTransactionRepository(db),
		balanceRepo: repository.NewBalanceTransactionRepository(db),
		settingRepo: repository.NewSettingRepository(db),
		outboxRepo:  repository.NewOutboxRepository(db),
	}
}

// CoinEntry 一次硬币记账请求
type CoinEntry struct {
	UserID        int64                     `json:"user_id" binding:"required"`
	Coins         int64                     `json:"coins" binding:"required"`
	Type          model.CoinTransactionType `json:"type" binding:"required"`
	Source        string                    `json:"source" binding:"required"`
	Description   string                    `json:"description"`
	ReferenceID   string                    `json:"reference_id"`
	ReferenceType string                    `json:"reference_type"`
}

// BalanceEntry 一次主余额记账请求
type BalanceEntry struct {
	UserID        int64                        `json:"user_id" binding:"required"`
	Amount        decimal.Decimal              `json:"amount"`
	Type          model.BalanceTransactionType `json:"type" binding:"required"`
	Source        string                       `json:"source" binding:"required"`
	Description   string                       `json:"description"`
	ReferenceID   string                       `json:"reference_id"`
	ReferenceType string                       `json:"reference_type"`
}

func (e *CoinEntry) validate() error {
	if e.Coins == 0 {
		return fmt.Errorf("%w: 硬币变动不能为 0", ErrInvalidAmount)
	}
	if !e.Type.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidTransactionType, e.Type)
	}
	return nil
}

func (e *BalanceEntry) validate() error {
	if e.Amount.IsZero() {
		return fmt.Errorf("%w: 金额不能为 0", ErrInvalidAmount)
	}
	if !e.Amount.Equal(model.RoundCurrency(e.Amount)) {
		return fmt.Errorf("%w: 金额最多两位小数", ErrInvalidAmount)
	}
	if !e.Type.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidTransactionType, e.Type)
	}
	return nil
}

// ============================================================================
// 对外接口
// ============================================================================

// OpenAccount 幂等开户
func (s *LedgerService) OpenAccount(ctx context.Context, userID int64) (*model.Account, error) {
	if userID <= 0 {
		return nil, ErrInvalidUser
	}
	account, err := s.accountRepo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, translate(err)
	}
	return account, nil
}

func (s *LedgerService) GetAccount(ctx context.Context, userID int64) (*model.Account, error) {
	account, err := s.accountRepo.GetByUserID(ctx, nil, userID)
	if err != nil {
		return nil, translate(err)
	}
	return account, nil
}

// RecordCoinTransaction 记一笔硬币流水并同步账户硬币余额
func (s *LedgerService) RecordCoinTransaction(ctx context.Context, entry *CoinEntry) (*model.CoinTransaction, error) {
	started := time.Now()

	var result *model.CoinTransaction
	err := s.withAccount(ctx, entry.UserID, entry.validate, func(tx *gorm.DB, account *model.Account) error {
		var err error
		result, err = s.appendCoin(ctx, tx, account, entry)
		return err
	})

	s.opts.Metrics.Observe("record_coin", Code(err), started)
	if err != nil {
		return nil, err
	}

	log.Printf("[LedgerService] 硬币记账成功: userID=%d, coins=%d, type=%s, balanceAfter=%d",
		entry.UserID, entry.Coins, entry.Type, result.BalanceAfter)
	return result, nil
}

// RecordBalanceTransaction 记一笔主余额流水并同步账户主余额
func (s *LedgerService) RecordBalanceTransaction(ctx context.Context, entry *BalanceEntry) (*model.BalanceTransaction, error) {
	started := time.Now()

	var result *model.BalanceTransaction
	err := s.withAccount(ctx, entry.UserID, entry.validate, func(tx *gorm.DB, account *model.Account) error {
		var err error
		result, err = s.appendBalance(ctx, tx, account, entry)
		return err
	})

	s.opts.Metrics.Observe("record_balance", Code(err), started)
	if err != nil {
		return nil, err
	}

	log.Printf("[LedgerService] 余额记账成功: userID=%d, amount=%s, type=%s, balanceAfter=%s",
		entry.UserID, entry.Amount.StringFixed(model.CurrencyScale), entry.Type, result.BalanceAfter.StringFixed(model.CurrencyScale))
	return result, nil
}

// ListCoinTransactions 分页查询硬币流水，最新的在前
func (s *LedgerService) ListCoinTransactions(ctx context.Context, userID int64, page, pageSize int) ([]*model.CoinTransaction, int64, error) {
	page, pageSize = normalizePage(page, pageSize)
	list, total, err := s.coinRepo.ListByUserID(ctx, userID, page, pageSize)
	if err != nil {
		return nil, 0, translate(err)
	}
	return list, total, nil
}

func (s *LedgerService) ListBalanceTransactions(ctx context.Context, userID int64, page, pageSize int) ([]*model.BalanceTransaction, int64, error) {
	page, pageSize = normalizePage(page, pageSize)
	list, total, err := s.balanceRepo.ListByUserID(ctx, userID, page, pageSize)
	if err != nil {
		return nil, 0, translate(err)
	}
	return list, total, nil
}

// ============================================================================
// 事务内记账，供兑换、提现复用
// ============================================================================

// withAccount 加账户锁、开事务、锁账户行，然后执行 fn
// validate 在加锁之前执行，校验失败不会产生任何写入
func (s *LedgerService) withAccount(ctx context.Context, userID int64, validate func() error, fn func(tx *gorm.DB, account *model.Account) error) error {
	if validate != nil {
		if err := validate(); err != nil {
			return err
		}
	}

	release, err := s.opts.Locker.Acquire(ctx, userID)
	if err != nil {
		return translate(err)
	}
	defer release()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := s.accountRepo.GetByUserIDForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		return fn(tx, account)
	})
	return translate(err)
}

func (s *LedgerService) appendCoin(ctx context.Context, tx *gorm.DB, account *model.Account, entry *CoinEntry) (*model.CoinTransaction, error) {
	if err := entry.validate(); err != nil {
		return nil, err
	}

	before := account.CoinBalance
	after := before + entry.Coins
	if after < 0 {
		return nil, fmt.Errorf("%w: 当前硬币 %d，需要 %d", ErrInsufficientFunds, before, -entry.Coins)
	}

	last, err := s.coinRepo.Latest(ctx, tx, account.UserID)
	if err != nil {
		return nil, err
	}
	createdAt := s.opts.Clock.Now()
	if last != nil && createdAt.Before(last.CreatedAt) {
		createdAt = last.CreatedAt
	}

	trans := &model.CoinTransaction{
		TransactionNo: idgen.GenerateCoinTransactionNo(),
		UserID:        account.UserID,
		Coins:         entry.Coins,
		Type:          entry.Type,
		Source:        entry.Source,
		Description:   entry.Description,
		ReferenceID:   entry.ReferenceID,
		ReferenceType: entry.ReferenceType,
		BalanceBefore: before,
		BalanceAfter:  after,
		CreatedAt:     createdAt,
	}
	if err := s.coinRepo.Create(ctx, tx, trans); err != nil {
		return nil, err
	}

	if err := s.accountRepo.UpdateCoinBalance(ctx, tx, account.UserID, after, account.Version); err != nil {
		return nil, err
	}
	account.CoinBalance = after
	account.Version++

	s.opts.Metrics.EntryAppended("coin", string(entry.Type))
	return trans, nil
}

func (s *LedgerService) appendBalance(ctx context.Context, tx *gorm.DB, account *model.Account, entry *BalanceEntry) (*model.BalanceTransaction, error) {
	if err := entry.validate(); err != nil {
		return nil, err
	}

	before := model.RoundCurrency(account.MainBalance)
	after := model.RoundCurrency(before.Add(entry.Amount))
	if after.IsNegative() {
		return nil, fmt.Errorf("%w: 当前余额 %s，需要 %s", ErrInsufficientFunds,
			before.StringFixed(model.CurrencyScale), entry.Amount.Neg().StringFixed(model.CurrencyScale))
	}

	last, err := s.balanceRepo.Latest(ctx, tx, account.UserID)
	if err != nil {
		return nil, err
	}
	createdAt := s.opts.Clock.Now()
	if last != nil && createdAt.Before(last.CreatedAt) {
		createdAt = last.CreatedAt
	}

	trans := &model.BalanceTransaction{
		TransactionNo: idgen.GenerateBalanceTransactionNo(),
		UserID:        account.UserID,
		Amount:        entry.Amount,
		Type:          entry.Type,
		Source:        entry.Source,
		Description:   entry.Description,
		ReferenceID:   entry.ReferenceID,
		ReferenceType: entry.ReferenceType,
		BalanceBefore: before,
		BalanceAfter:  after,
		CreatedAt:     createdAt,
	}
	if err := s.balanceRepo.Create(ctx, tx, trans); err != nil {
		return nil, err
	}

	if err := s.accountRepo.UpdateMainBalance(ctx, tx, account.UserID, after, account.Version); err != nil {
		return nil, err
	}
	account.MainBalance = after
	account.Version++

	s.opts.Metrics.EntryAppended("balance", string(entry.Type))
	return trans, nil
}

// emit 在业务事务内写入 outbox，由 OutboxSender 异步投递
func (s *LedgerService) emit(ctx context.Context, tx *gorm.DB, eventType string, userID int64, payload map[string]interface{}) error {
	if s.opts.EventTopic == "" {
		return nil
	}

	payload["event_id"] = uuid.NewString()
	payload["event_type"] = eventType
	payload["user_id"] = userID
	payload["occurred_at"] = s.opts.Clock.Now().Format(time.RFC3339Nano)

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return s.outboxRepo.Create(ctx, tx, &model.OutboxMessage{
		MessageKey: strconv.FormatInt(userID, 10),
		EventType:  eventType,
		Topic:      s.opts.EventTopic,
		Payload:    string(payloadBytes),
		Status:     model.OutboxStatusPending,
	})
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}
