package handler

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"quizwallet/internal/model"
	"quizwallet/internal/service"
	"quizwallet/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// Services 接口层依赖的全部服务
type Services struct {
	Ledger      *service.LedgerService
	Conversion  *service.ConversionService
	Withdrawal  *service.WithdrawalService
	Leaderboard *service.LeaderboardService
}

// Handler 统一处理器
type Handler struct {
	ledger      *service.LedgerService
	conversion  *service.ConversionService
	withdrawal  *service.WithdrawalService
	leaderboard *service.LeaderboardService
}

func NewHandler(s Services) *Handler {
	return &Handler{
		ledger:      s.Ledger,
		conversion:  s.Conversion,
		withdrawal:  s.Withdrawal,
		leaderboard: s.Leaderboard,
	}
}

// fail 把业务错误映射为 HTTP 状态码
//
//	invalid -> 400, not_found -> 404, conflict -> 409, unavailable -> 503
func fail(c *gin.Context, err error) {
	e, ok := service.AsError(err)
	if !ok {
		log.Printf("[Handler] 未分类错误: %v", err)
		response.ServerError(c, "服务器内部错误")
		return
	}

	status := http.StatusInternalServerError
	switch e.Kind {
	case service.KindInvalid:
		status = http.StatusBadRequest
	case service.KindNotFound:
		status = http.StatusNotFound
	case service.KindConflict:
		status = http.StatusConflict
	case service.KindUnavailable:
		status = http.StatusServiceUnavailable
	}

	message := err.Error()
	if errors.Is(err, service.ErrPersistenceFailure) {
		// 存储层细节只进日志
		log.Printf("[Handler] 存储异常: %v", err)
		message = e.Message
	}
	response.Fail(c, status, e.Code, message)
}

func queryUserID(c *gin.Context) (int64, bool) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		response.ParamError(c, "user_id 参数错误")
		return 0, false
	}
	return userID, true
}

func queryPage(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	return page, pageSize
}

// ============================================================
// 账户
// ============================================================

// GetBalance 查询两种余额
// GET /api/v1/account/balance?user_id=xxx
func (h *Handler) GetBalance(c *gin.Context) {
	userID, ok := queryUserID(c)
	if !ok {
		return
	}

	account, err := h.ledger.GetAccount(c.Request.Context(), userID)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, gin.H{
		"user_id":      account.UserID,
		"coin_balance": account.CoinBalance,
		"main_balance": account.MainBalance.StringFixed(model.CurrencyScale),
	})
}

// OpenAccount 开户（幂等）
// POST /api/v1/account/open
func (h *Handler) OpenAccount(c *gin.Context) {
	var req struct {
		UserID int64 `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	account, err := h.ledger.OpenAccount(c.Request.Context(), req.UserID)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, account)
}

// ============================================================
// 记账
// ============================================================

// RecordCoin 记一笔硬币流水，供答题、对战等外部模块调用
// POST /api/v1/ledger/coin
func (h *Handler) RecordCoin(c *gin.Context) {
	var req service.CoinEntry
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	entry, err := h.ledger.RecordCoinTransaction(c.Request.Context(), &req)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, entry)
}

// RecordBalance 记一笔主余额流水
// POST /api/v1/ledger/balance
func (h *Handler) RecordBalance(c *gin.Context) {
	var req service.BalanceEntry
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	entry, err := h.ledger.RecordBalanceTransaction(c.Request.Context(), &req)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, entry)
}

// ListCoinTransactions 硬币流水
// GET /api/v1/ledger/coin/list?user_id=xxx&page=1&page_size=20
func (h *Handler) ListCoinTransactions(c *gin.Context) {
	userID, ok := queryUserID(c)
	if !ok {
		return
	}
	page, pageSize := queryPage(c)

	list, total, err := h.ledger.ListCoinTransactions(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      list,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ListBalanceTransactions 主余额流水
// GET /api/v1/ledger/balance/list?user_id=xxx&page=1&page_size=20
func (h *Handler) ListBalanceTransactions(c *gin.Context) {
	userID, ok := queryUserID(c)
	if !ok {
		return
	}
	page, pageSize := queryPage(c)

	list, total, err := h.ledger.ListBalanceTransactions(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      list,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// VerifyAccount 核对账户余额与流水
// GET /api/v1/ledger/verify?user_id=xxx
func (h *Handler) VerifyAccount(c *gin.Context) {
	userID, ok := queryUserID(c)
	if !ok {
		return
	}

	report, err := h.ledger.VerifyAccount(c.Request.Context(), userID)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, gin.H{
		"report":     report,
		"consistent": report.Consistent(),
	})
}

// ============================================================
// 兑换
// ============================================================

type ConvertRequest struct {
	UserID int64 `json:"user_id" binding:"required"`
	Coins  int64 `json:"coins" binding:"required"`
}

// Convert 硬币兑换主余额
// POST /api/v1/conversion/convert
func (h *Handler) Convert(c *gin.Context) {
	var req ConvertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.conversion.Convert(c.Request.Context(), req.UserID, req.Coins)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, result)
}

// ConversionQuote 兑换试算
// GET /api/v1/conversion/quote?coins=230
func (h *Handler) ConversionQuote(c *gin.Context) {
	coins, err := strconv.ParseInt(c.Query("coins"), 10, 64)
	if err != nil {
		response.ParamError(c, "coins 参数错误")
		return
	}

	result, err := h.conversion.Quote(c.Request.Context(), coins)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, result)
}

// ============================================================
// 提现
// ============================================================

// CreateWithdrawal 提交提现申请
// POST /api/v1/withdrawal/create
func (h *Handler) CreateWithdrawal(c *gin.Context) {
	var req service.CreateWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	withdrawal, err := h.withdrawal.Create(c.Request.Context(), &req)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, withdrawal)
}

type CancelWithdrawalRequest struct {
	UserID    int64  `json:"user_id" binding:"required"`
	RequestNo string `json:"request_no" binding:"required"`
}

// CancelWithdrawal 用户取消提现
// POST /api/v1/withdrawal/cancel
func (h *Handler) CancelWithdrawal(c *gin.Context) {
	var req CancelWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	withdrawal, err := h.withdrawal.Cancel(c.Request.Context(), req.UserID, req.RequestNo)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, withdrawal)
}

type TransitionWithdrawalRequest struct {
	RequestNo   string                 `json:"request_no" binding:"required"`
	Status      model.WithdrawalStatus `json:"status" binding:"required"`
	ProcessorID int64                  `json:"processor_id" binding:"required"`
	Notes       string                 `json:"notes"`
}

// TransitionWithdrawal 后台推进提现状态
// POST /api/v1/admin/withdrawal/transition
func (h *Handler) TransitionWithdrawal(c *gin.Context) {
	var req TransitionWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	withdrawal, err := h.withdrawal.Transition(c.Request.Context(), req.RequestNo, req.Status, req.ProcessorID, req.Notes)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, withdrawal)
}

// GetWithdrawal 提现详情
// GET /api/v1/withdrawal/detail?request_no=xxx
func (h *Handler) GetWithdrawal(c *gin.Context) {
	requestNo := c.Query("request_no")
	if requestNo == "" {
		response.ParamError(c, "request_no 参数不能为空")
		return
	}

	withdrawal, err := h.withdrawal.Get(c.Request.Context(), requestNo)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, withdrawal)
}

// ListWithdrawals 用户提现记录
// GET /api/v1/withdrawal/list?user_id=xxx&status=pending&page=1&page_size=20
func (h *Handler) ListWithdrawals(c *gin.Context) {
	userID, ok := queryUserID(c)
	if !ok {
		return
	}
	page, pageSize := queryPage(c)

	list, total, err := h.withdrawal.ListUserWithdrawals(c.Request.Context(), userID,
		model.WithdrawalStatus(c.Query("status")), page, pageSize)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      list,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// WithdrawalQuote 手续费试算
// GET /api/v1/withdrawal/quote?amount=1000
func (h *Handler) WithdrawalQuote(c *gin.Context) {
	amount, err := decimal.NewFromString(c.Query("amount"))
	if err != nil {
		response.ParamError(c, "amount 参数错误")
		return
	}

	quote, err := h.withdrawal.Quote(c.Request.Context(), amount)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, quote)
}

// ============================================================
// 排行榜
// ============================================================

// Leaderboard 排行榜
// GET /api/v1/leaderboard?period=weekly&limit=10&user_id=xxx
func (h *Handler) Leaderboard(c *gin.Context) {
	period, err := service.ParsePeriod(c.Query("period"))
	if err != nil {
		fail(c, err)
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))

	var focus *int64
	if raw := c.Query("user_id"); raw != "" {
		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			response.ParamError(c, "user_id 参数错误")
			return
		}
		focus = &userID
	}

	result, err := h.leaderboard.Rank(c.Request.Context(), period, limit, focus)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, result)
}
