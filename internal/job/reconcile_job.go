package job

import (
	"context"
	"log"
	"time"

	"quizwallet/internal/config"
	"quizwallet/internal/infrastructure/metrics"
	"quizwallet/internal/repository"
	"quizwallet/internal/service"

	"gorm.io/gorm"
)

// LedgerReconcileJob 定期核对账户缓存余额与流水
// 只读，不做自动修复；发现不一致记日志并上报指标，由人工处理
type LedgerReconcileJob struct {
	ledger      *service.LedgerService
	accountRepo *repository.AccountRepository
	metrics     *metrics.Metrics
	stopCh      chan struct{}
	interval    time.Duration
	batchSize   int
}

// ReconcileSummary 一轮对账的结果
type ReconcileSummary struct {
	Checked    int
	Mismatched []*service.IntegrityReport
}

func NewLedgerReconcileJob(db *gorm.DB, cfg *config.Config, ledger *service.LedgerService, m *metrics.Metrics) *LedgerReconcileJob {
	interval := cfg.Business.ReconcileInterval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	batchSize := cfg.Business.ReconcileBatchSize
	if batchSize <= 0 {
		batchSize = 200
	}
	return &LedgerReconcileJob{
		ledger:      ledger,
		accountRepo: repository.NewAccountRepository(db),
		metrics:     m,
		stopCh:      make(chan struct{}),
		interval:    interval,
		batchSize:   batchSize,
	}
}

func (j *LedgerReconcileJob) Start(ctx context.Context) {
	log.Println("[LedgerReconcileJob] 对账任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[LedgerReconcileJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[LedgerReconcileJob] 任务停止")
			return
		case <-ticker.C:
			if _, err := j.RunOnce(ctx); err != nil {
				log.Printf("[LedgerReconcileJob] 对账失败: %v", err)
			}
		}
	}
}

func (j *LedgerReconcileJob) Stop() {
	close(j.stopCh)
}

// RunOnce 按 user_id 游标分批核对全部账户
func (j *LedgerReconcileJob) RunOnce(ctx context.Context) (*ReconcileSummary, error) {
	summary := &ReconcileSummary{}
	var cursor int64

	for {
		ids, err := j.accountRepo.ListUserIDsAfter(ctx, cursor, j.batchSize)
		if err != nil {
			return summary, err
		}
		if len(ids) == 0 {
			break
		}

		for _, userID := range ids {
			report, err := j.ledger.VerifyAccount(ctx, userID)
			if err != nil {
				return summary, err
			}
			summary.Checked++
			if !report.Consistent() {
				summary.Mismatched = append(summary.Mismatched, report)
				log.Printf("[LedgerReconcileJob] 账户余额与流水不一致: userID=%d, coin=%d/%d, main=%s/%s, chainBreaks=%d/%d",
					userID, report.CoinBalance, report.CoinLedgerSum,
					report.MainBalance.StringFixed(2), report.BalanceLedgerSum.StringFixed(2),
					len(report.CoinChainBreaks), len(report.BalanceChainBreaks))
			}
		}
		cursor = ids[len(ids)-1]
	}

	j.metrics.SetReconcileMismatch(len(summary.Mismatched))
	log.Printf("[LedgerReconcileJob] 对账完成: checked=%d, mismatched=%d", summary.Checked, len(summary.Mismatched))
	return summary, nil
}
