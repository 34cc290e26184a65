package service

import (
	"context"
	"errors"
	"fmt"

	"quizwallet/internal/infrastructure/lock"
	"quizwallet/internal/repository"
)

// Kind 区分"请求本身有问题"与"系统暂时不可用"，由接入层映射为 HTTP 状态码
type Kind string

const (
	KindInvalid     Kind = "invalid"
	KindNotFound    Kind = "not_found"
	KindConflict    Kind = "conflict"
	KindUnavailable Kind = "unavailable"
)

// Error 钱包业务错误
type Error struct {
	Code    string
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

var (
	ErrAccountNotFound        = &Error{Code: "ACCOUNT_NOT_FOUND", Kind: KindNotFound, Message: "账户不存在"}
	ErrWithdrawalNotFound     = &Error{Code: "WITHDRAWAL_NOT_FOUND", Kind: KindNotFound, Message: "提现申请不存在"}
	ErrServiceUnavailable     = &Error{Code: "SERVICE_UNAVAILABLE", Kind: KindUnavailable, Message: "服务暂不可用，没有生效的配置"}
	ErrBelowMinimum           = &Error{Code: "BELOW_MINIMUM", Kind: KindInvalid, Message: "低于最低兑换数量"}
	ErrBelowConversionUnit    = &Error{Code: "BELOW_CONVERSION_UNIT", Kind: KindInvalid, Message: "不足一个兑换单位"}
	ErrInsufficientBalance    = &Error{Code: "INSUFFICIENT_BALANCE", Kind: KindInvalid, Message: "余额不足"}
	ErrOutOfRange             = &Error{Code: "OUT_OF_RANGE", Kind: KindInvalid, Message: "金额超出允许范围"}
	ErrMethodNotAllowed       = &Error{Code: "METHOD_NOT_ALLOWED", Kind: KindInvalid, Message: "不支持的提现方式"}
	ErrInvalidStateTransition = &Error{Code: "INVALID_STATE_TRANSITION", Kind: KindConflict, Message: "非法的状态流转"}
	ErrConcurrencyConflict    = &Error{Code: "CONCURRENCY_CONFLICT", Kind: KindConflict, Message: "系统繁忙，请稍后重试"}
	ErrPersistenceFailure     = &Error{Code: "PERSISTENCE_FAILURE", Kind: KindUnavailable, Message: "存储异常"}
	ErrInvalidAmount          = &Error{Code: "INVALID_AMOUNT", Kind: KindInvalid, Message: "金额无效"}
	ErrInvalidTransactionType = &Error{Code: "INVALID_TRANSACTION_TYPE", Kind: KindInvalid, Message: "流水类型无效"}
	ErrInvalidDestination     = &Error{Code: "INVALID_DESTINATION", Kind: KindInvalid, Message: "收款信息不完整"}
	ErrInvalidUser            = &Error{Code: "INVALID_USER", Kind: KindInvalid, Message: "用户ID无效"}
	ErrInvalidPeriod          = &Error{Code: "INVALID_PERIOD", Kind: KindInvalid, Message: "排行榜周期无效"}

	// ErrInsufficientFunds 记账层的叫法，与 ErrInsufficientBalance 是同一个错误
	ErrInsufficientFunds = ErrInsufficientBalance
)

// AsError 取出错误链中的业务错误
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Code 返回错误码，nil 返回 OK，用于指标标签
func Code(err error) string {
	if err == nil {
		return "OK"
	}
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ErrPersistenceFailure.Code
}

// translate 把仓储层和基础设施错误统一成业务错误
// 已经是业务错误的原样返回，保留 %w 附带的上下文
func translate(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := AsError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, repository.ErrAccountNotFound):
		return ErrAccountNotFound
	case errors.Is(err, repository.ErrWithdrawalNotFound):
		return ErrWithdrawalNotFound
	case errors.Is(err, repository.ErrStatusTransition):
		return ErrInvalidStateTransition
	case errors.Is(err, repository.ErrOptimisticLock),
		errors.Is(err, lock.ErrLockFailed),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %v", ErrConcurrencyConflict, err)
	}

	return fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
}
