package handler

import (
	"quizwallet/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter 配置路由
// gatherer 为 nil 时使用默认注册表
func SetupRouter(s Services, cfg *config.Config, gatherer prometheus.Gatherer) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(RecoveryMiddleware())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	h := NewHandler(s)
	limited := NewRateLimiter(cfg.RateLimit).Middleware()

	api := r.Group("/api/v1")
	{
		account := api.Group("/account")
		{
			account.GET("/balance", h.GetBalance)
			account.POST("/open", limited, h.OpenAccount)
		}

		ledger := api.Group("/ledger")
		{
			ledger.POST("/coin", limited, h.RecordCoin)
			ledger.POST("/balance", limited, h.RecordBalance)
			ledger.GET("/coin/list", h.ListCoinTransactions)
			ledger.GET("/balance/list", h.ListBalanceTransactions)
			ledger.GET("/verify", h.VerifyAccount)
		}

		conversion := api.Group("/conversion")
		{
			conversion.POST("/convert", limited, h.Convert)
			conversion.GET("/quote", h.ConversionQuote)
		}

		withdrawal := api.Group("/withdrawal")
		{
			withdrawal.POST("/create", limited, h.CreateWithdrawal)
			withdrawal.POST("/cancel", limited, h.CancelWithdrawal)
			withdrawal.GET("/detail", h.GetWithdrawal)
			withdrawal.GET("/list", h.ListWithdrawals)
			withdrawal.GET("/quote", h.WithdrawalQuote)
		}

		admin := api.Group("/admin")
		{
			admin.POST("/withdrawal/transition", limited, h.TransitionWithdrawal)
		}

		api.GET("/leaderboard", h.Leaderboard)
	}

	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
