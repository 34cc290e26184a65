package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quizwallet/internal/config"
	"quizwallet/internal/handler"
	"quizwallet/internal/infrastructure/cache"
	"quizwallet/internal/infrastructure/database"
	"quizwallet/internal/infrastructure/lock"
	"quizwallet/internal/infrastructure/logging"
	"quizwallet/internal/infrastructure/metrics"
	"quizwallet/internal/infrastructure/mq"
	"quizwallet/internal/job"
	"quizwallet/internal/service"
	"quizwallet/pkg/idgen"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var (
	configPath string
	workerID   int64
)

func main() {
	root := &cobra.Command{
		Use:   "quizwallet",
		Short: "答题平台钱包服务：硬币账本、主余额账本、兑换、提现与排行榜",
		RunE:  runServe,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config/config.yaml", "配置文件路径")
	root.PersistentFlags().Int64Var(&workerID, "worker-id", 1, "流水号生成器节点 ID")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "启动 HTTP 服务与后台任务",
			RunE:  runServe,
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "仅执行表结构迁移",
			RunE:  runMigrate,
		},
		&cobra.Command{
			Use:   "reconcile",
			Short: "执行一轮账户对账后退出",
			RunE:  runReconcile,
		},
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func bootstrap() *config.Config {
	cfg := config.MustLoad(configPath)
	logging.Setup(cfg.Log.Service, cfg.Log.Env, cfg.Log.Level)
	idgen.Init(workerID)
	return cfg
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg := bootstrap()
	// InitDB 内部已完成迁移
	database.InitDB(&cfg.Database)
	log.Println("表结构迁移完成")
	return nil
}

func runReconcile(cmd *cobra.Command, args []string) error {
	cfg := bootstrap()
	db := database.InitDB(&cfg.Database)
	m := metrics.New(prometheus.DefaultRegisterer)

	ledger := service.NewLedgerService(db, service.Options{Metrics: m})
	summary, err := job.NewLedgerReconcileJob(db, cfg, ledger, m).RunOnce(cmd.Context())
	if err != nil {
		return fmt.Errorf("对账失败: %w", err)
	}

	for _, report := range summary.Mismatched {
		log.Printf("[Reconcile] 账户不一致: user_id=%d, coin=%d/%d, main=%s/%s",
			report.UserID, report.CoinBalance, report.CoinLedgerSum,
			report.MainBalance.StringFixed(2), report.BalanceLedgerSum.StringFixed(2))
	}
	log.Printf("对账完成: 检查 %d 个账户, 不一致 %d 个", summary.Checked, len(summary.Mismatched))
	if len(summary.Mismatched) > 0 {
		return fmt.Errorf("发现 %d 个不一致账户", len(summary.Mismatched))
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := bootstrap()

	db := database.InitDB(&cfg.Database)
	redisClient := cache.InitRedis(&cfg.Redis)
	producer := mq.InitKafka(&cfg.Kafka)
	m := metrics.New(prometheus.DefaultRegisterer)

	var locker *lock.AccountLocker
	if redisClient != nil {
		locker = lock.NewAccountLocker(redisClient,
			cfg.Business.LockTTL, cfg.Business.LockRetryInterval, cfg.Business.LockMaxRetries)
	}

	ledger := service.NewLedgerService(db, service.Options{
		Locker:     locker,
		Metrics:    m,
		EventTopic: cfg.Kafka.Topic.WalletEvent,
	})
	services := handler.Services{
		Ledger:     ledger,
		Conversion: service.NewConversionService(ledger),
		Withdrawal: service.NewWithdrawalService(ledger),
		Leaderboard: service.NewLeaderboardService(db, service.LeaderboardOptions{
			Cache:        cache.NewLeaderboardCache(redisClient, cfg.Business.LeaderboardCacheTTL),
			Location:     cfg.Business.Location(),
			DefaultLimit: cfg.Business.LeaderboardLimit,
			MaxLimit:     cfg.Business.LeaderboardMaxLimit,
		}),
	}

	// 创建上下文（用于优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 接口变量不能直接接收 nil 指针
	var publisher mq.Publisher
	if producer != nil {
		publisher = producer
		defer producer.Close()
	}
	outboxSender := job.NewOutboxSender(db, cfg, publisher, m)
	go outboxSender.Start(ctx)

	reconcileJob := job.NewLedgerReconcileJob(db, cfg, ledger, m)
	go reconcileJob.Start(ctx)

	router := handler.SetupRouter(services, cfg, prometheus.DefaultGatherer)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("服务启动，监听端口: %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("服务启动失败: %v", err)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("正在关闭服务...")

	// 取消上下文，停止后台任务
	cancel()
	outboxSender.Stop()
	reconcileJob.Stop()

	// 关闭 HTTP 服务（等待最多5秒）
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("服务关闭异常: %v", err)
	}

	log.Println("服务已关闭")
	return nil
}
