// Package errors 带错误码的业务错误, 统一映射到 HTTP 与 gRPC 状态
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Kind 错误分类
type Kind string

const (
	KindValidation    Kind = "validation"
	KindAuthorization Kind = "authorization"
	KindState         Kind = "state"
	KindResource      Kind = "resource"
	KindNotFound      Kind = "not_found"
	KindInternal      Kind = "internal"
)

// Error 业务错误
type Error struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Kind       Kind              `json:"kind"`
	HTTPStatus int               `json:"-"`
	GRPCCode   codes.Code        `json:"-"`
	Cause      error             `json:"-"`
	Details    map[string]string `json:"details,omitempty"`
	Stack      string            `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is 按错误码比较
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func (e *Error) clone() *Error {
	c := *e
	if e.Details != nil {
		c.Details = make(map[string]string, len(e.Details))
		for k, v := range e.Details {
			c.Details[k] = v
		}
	}
	return &c
}

// WithDetail 附加单个详情
func (e *Error) WithDetail(key, value string) *Error {
	c := e.clone()
	if c.Details == nil {
		c.Details = make(map[string]string)
	}
	c.Details[key] = value
	return c
}

// WithMessage 替换错误消息
func (e *Error) WithMessage(message string) *Error {
	c := e.clone()
	c.Message = message
	return c
}

// WithMessagef 格式化替换错误消息
func (e *Error) WithMessagef(format string, args ...interface{}) *Error {
	return e.WithMessage(fmt.Sprintf(format, args...))
}

func define(code, message string, kind Kind, httpStatus int, grpcCode codes.Code) *Error {
	return &Error{Code: code, Message: message, Kind: kind, HTTPStatus: httpStatus, GRPCCode: grpcCode}
}

// New 创建内部错误
func New(code, message string) *Error {
	return define(code, message, KindInternal, http.StatusInternalServerError, codes.Internal)
}

// Wrap 包装底层原因
func Wrap(err *Error, cause error) *Error {
	c := err.clone()
	c.Cause = cause
	c.Stack = callers()
	return c
}

// Wrapf 包装并追加信息
func Wrapf(err *Error, format string, args ...interface{}) *Error {
	c := err.clone()
	c.Message = fmt.Sprintf("%s: %s", err.Message, fmt.Sprintf(format, args...))
	c.Stack = callers()
	return c
}

func callers() string {
	var pcs [16]uintptr
	n := runtime.Callers(3, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	var b strings.Builder
	for {
		f, more := frames.Next()
		fmt.Fprintf(&b, "%s\n\t%s:%d\n", f.Function, f.File, f.Line)
		if !more {
			break
		}
	}
	return b.String()
}

// FromError 转换为 *Error, 未知错误包装为内部错误
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var bizErr *Error
	if errors.As(err, &bizErr) {
		return bizErr
	}
	return Wrap(ErrInternal, err)
}

// 通用错误码
var (
	ErrInternal       = define("INTERNAL_ERROR", "内部错误", KindInternal, http.StatusInternalServerError, codes.Internal)
	ErrInvalidRequest = define("INVALID_REQUEST", "请求参数无效", KindValidation, http.StatusBadRequest, codes.InvalidArgument)
	ErrUnauthorized   = define("UNAUTHORIZED", "未授权", KindAuthorization, http.StatusUnauthorized, codes.Unauthenticated)
	ErrForbidden      = define("FORBIDDEN", "禁止访问", KindAuthorization, http.StatusForbidden, codes.PermissionDenied)
	ErrNotFound       = define("NOT_FOUND", "资源不存在", KindNotFound, http.StatusNotFound, codes.NotFound)
	ErrConflict       = define("CONFLICT", "资源冲突", KindState, http.StatusConflict, codes.AlreadyExists)
	ErrUnavailable    = define("SERVICE_UNAVAILABLE", "服务不可用", KindInternal, http.StatusServiceUnavailable, codes.Unavailable)
)

// 签名相关
var (
	ErrInvalidSignature = define("INVALID_SIGNATURE", "签名无效", KindAuthorization, http.StatusUnauthorized, codes.Unauthenticated)
	ErrSignatureExpired = define("SIGNATURE_EXPIRED", "签名已过期", KindAuthorization, http.StatusUnauthorized, codes.Unauthenticated)
	ErrSignatureReused  = define("SIGNATURE_REUSED", "签名已使用", KindAuthorization, http.StatusUnauthorized, codes.Unauthenticated)
)

// 参数校验
var (
	ErrInvalidAmount      = define("INVALID_AMOUNT", "数量无效", KindValidation, http.StatusBadRequest, codes.InvalidArgument)
	ErrInvalidAddress     = define("INVALID_ADDRESS", "地址无效", KindValidation, http.StatusBadRequest, codes.InvalidArgument)
	ErrUnsupportedToken   = define("UNSUPPORTED_TOKEN", "不支持的代币", KindValidation, http.StatusBadRequest, codes.InvalidArgument)
	ErrUnsupportedNetwork = define("UNSUPPORTED_NETWORK", "不支持的网络", KindValidation, http.StatusBadRequest, codes.InvalidArgument)
	ErrSameChainTransfer  = define("SAME_CHAIN_TRANSFER", "目标链不能与当前链相同", KindValidation, http.StatusBadRequest, codes.InvalidArgument)
	ErrFeeRateTooHigh     = define("FEE_RATE_TOO_HIGH", "费率超过上限", KindValidation, http.StatusBadRequest, codes.InvalidArgument)
	ErrWeightCapExceeded  = define("WEIGHT_CAP_EXCEEDED", "策略权重总和超过上限", KindValidation, http.StatusBadRequest, codes.InvalidArgument)
	ErrExceedLimit        = define("EXCEED_LIMIT", "超过单笔限额", KindValidation, http.StatusBadRequest, codes.InvalidArgument)
)

// 状态相关
var (
	ErrMessageProcessed   = define("MESSAGE_ALREADY_PROCESSED", "消息已处理", KindState, http.StatusConflict, codes.AlreadyExists)
	ErrTransferCompleted  = define("TRANSFER_ALREADY_COMPLETED", "跨链转账已完成", KindState, http.StatusConflict, codes.AlreadyExists)
	ErrStrategyExists     = define("STRATEGY_ALREADY_ACTIVE", "策略已存在", KindState, http.StatusConflict, codes.AlreadyExists)
	ErrInvalidStatus      = define("INVALID_SETTLEMENT_STATUS", "结算状态无效", KindState, http.StatusPreconditionFailed, codes.FailedPrecondition)
	ErrStrategyInactive   = define("STRATEGY_INACTIVE", "策略未激活", KindState, http.StatusPreconditionFailed, codes.FailedPrecondition)
	ErrDepositInactive    = define("DEPOSIT_INACTIVE", "存款已关闭", KindState, http.StatusPreconditionFailed, codes.FailedPrecondition)
	ErrPaused             = define("PAUSED", "聚合器已暂停", KindState, http.StatusPreconditionFailed, codes.FailedPrecondition)
	ErrPreconditionFailed = define("PRECONDITION_FAILED", "前置条件失败", KindState, http.StatusPreconditionFailed, codes.FailedPrecondition)
)

// 资源相关
var (
	ErrInsufficientBalance = define("INSUFFICIENT_BALANCE", "余额不足", KindResource, http.StatusPaymentRequired, codes.FailedPrecondition)
	ErrInsufficientCustody = define("INSUFFICIENT_CUSTODY", "托管余额不足", KindResource, http.StatusPaymentRequired, codes.FailedPrecondition)
)

// 未找到
var (
	ErrTransferNotFound   = define("TRANSFER_NOT_FOUND", "跨链转账不存在", KindNotFound, http.StatusNotFound, codes.NotFound)
	ErrSettlementNotFound = define("SETTLEMENT_NOT_FOUND", "结算不存在", KindNotFound, http.StatusNotFound, codes.NotFound)
	ErrStrategyNotFound   = define("STRATEGY_NOT_FOUND", "策略不存在", KindNotFound, http.StatusNotFound, codes.NotFound)
	ErrDepositNotFound    = define("DEPOSIT_NOT_FOUND", "存款不存在", KindNotFound, http.StatusNotFound, codes.NotFound)
)

// ToGRPCError 转换为 gRPC 错误
func ToGRPCError(err error) error {
	if err == nil {
		return nil
	}
	var bizErr *Error
	if errors.As(err, &bizErr) {
		return status.Error(bizErr.GRPCCode, bizErr.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

// ToHTTPStatus 获取 HTTP 状态码
func ToHTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var bizErr *Error
	if errors.As(err, &bizErr) && bizErr.HTTPStatus != 0 {
		return bizErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// Is 判断错误码
func Is(err error, target *Error) bool {
	if err == nil || target == nil {
		return false
	}
	return errors.Is(err, target)
}

// GetCode 获取错误码
func GetCode(err error) string {
	if err == nil {
		return ""
	}
	var bizErr *Error
	if errors.As(err, &bizErr) {
		return bizErr.Code
	}
	return "UNKNOWN"
}

// GetKind 获取错误分类
func GetKind(err error) Kind {
	var bizErr *Error
	if errors.As(err, &bizErr) {
		return bizErr.Kind
	}
	return KindInternal
}

// IsNotFound 判断是否为未找到错误
func IsNotFound(err error) bool {
	return GetKind(err) == KindNotFound
}

// IsForbidden 判断是否为权限错误
func IsForbidden(err error) bool {
	return Is(err, ErrForbidden)
}
