package job

import (
	"context"
	"log"
	"time"

	"quizwallet/internal/config"
	"quizwallet/internal/infrastructure/metrics"
	"quizwallet/internal/infrastructure/mq"
	"quizwallet/internal/model"
	"quizwallet/internal/repository"

	"gorm.io/gorm"
)

// OutboxSender 把与账本变更同事务写入的钱包事件投递到 Kafka
// 投递失败累加重试次数，超过上限标记为 FAILED，不再自动重试
type OutboxSender struct {
	outboxRepo *repository.OutboxRepository
	publisher  mq.Publisher
	metrics    *metrics.Metrics
	stopCh     chan struct{}
	interval   time.Duration
	batchSize  int
	maxRetry   int
}

func NewOutboxSender(db *gorm.DB, cfg *config.Config, publisher mq.Publisher, m *metrics.Metrics) *OutboxSender {
	interval := cfg.Business.OutboxSendInterval
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	batchSize := cfg.Business.OutboxBatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	return &OutboxSender{
		outboxRepo: repository.NewOutboxRepository(db),
		publisher:  publisher,
		metrics:    m,
		stopCh:     make(chan struct{}),
		interval:   interval,
		batchSize:  batchSize,
		maxRetry:   cfg.Business.MaxRetryCount,
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	if s.publisher == nil {
		log.Println("[OutboxSender] 未配置消息生产者，任务不启动")
		return
	}

	log.Println("[OutboxSender] 消息发送任务启动")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[OutboxSender] 收到停止信号，任务退出")
			return
		case <-s.stopCh:
			log.Println("[OutboxSender] 任务停止")
			return
		case <-ticker.C:
			s.ProcessOnce(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	close(s.stopCh)
}

// ProcessOnce 投递一批待发送消息，返回成功条数
func (s *OutboxSender) ProcessOnce(ctx context.Context) int {
	messages, err := s.outboxRepo.ListPending(ctx, s.batchSize)
	if err != nil {
		log.Printf("[OutboxSender] 查询消息失败: %v", err)
		return 0
	}

	sent := 0
	for _, msg := range messages {
		if s.sendMessage(ctx, msg) {
			sent++
		}
	}
	return sent
}

func (s *OutboxSender) sendMessage(ctx context.Context, msg *model.OutboxMessage) bool {
	err := s.publisher.Publish(msg.Topic, msg.MessageKey, msg.Payload)

	if err == nil {
		if updateErr := s.outboxRepo.MarkSent(ctx, msg.ID); updateErr != nil {
			log.Printf("[OutboxSender] 更新消息状态失败: id=%d, err=%v", msg.ID, updateErr)
			return false
		}
		s.metrics.OutboxResult("sent")
		log.Printf("[OutboxSender] 消息发送成功: id=%d, event=%s, key=%s", msg.ID, msg.EventType, msg.MessageKey)
		return true
	}

	log.Printf("[OutboxSender] 消息发送失败: id=%d, event=%s, err=%v", msg.ID, msg.EventType, err)

	if msg.RetryCount+1 >= s.maxRetry {
		if err := s.outboxRepo.MarkAsFailed(ctx, msg.ID); err != nil {
			log.Printf("[OutboxSender] 标记消息失败状态失败: id=%d, err=%v", msg.ID, err)
		} else {
			s.metrics.OutboxResult("failed")
			log.Printf("[OutboxSender] 消息超过最大重试次数，标记为失败: id=%d", msg.ID)
		}
		return false
	}

	if err := s.outboxRepo.IncrementRetryCount(ctx, msg.ID); err != nil {
		log.Printf("[OutboxSender] 增加重试次数失败: id=%d, err=%v", msg.ID, err)
	}
	s.metrics.OutboxResult("retry")
	return false
}
