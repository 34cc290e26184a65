package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess         = 0
	CodeParamError      = 400
	CodeNotFound        = 404
	CodeConflict        = 409
	CodeTooManyRequests = 429
	CodeServerError     = 500
	CodeUnavailable     = 503
)

// Response 统一响应结构
// Reason 为业务错误码（如 INSUFFICIENT_BALANCE），便于调用方区分"修改输入"与"稍后重试"
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Reason  string      `json:"reason,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

// Fail 以对应的 HTTP 状态码返回错误，业务码与状态码一致
func Fail(c *gin.Context, status int, reason, message string) {
	c.AbortWithStatusJSON(status, Response{
		Code:    status,
		Message: message,
		Reason:  reason,
	})
}

func ParamError(c *gin.Context, message string) {
	Fail(c, CodeParamError, "INVALID_PARAM", message)
}

func ServerError(c *gin.Context, message string) {
	Fail(c, CodeServerError, "INTERNAL", message)
}

func TooManyRequests(c *gin.Context) {
	Fail(c, CodeTooManyRequests, "RATE_LIMITED", "请求过于频繁")
}
