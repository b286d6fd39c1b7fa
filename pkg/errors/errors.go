// Package errors 提供统一的错误定义
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode 错误码类型
type ErrorCode string

// 预定义错误码
const (
	// 通用错误 (1xxx)
	CodeSuccess            ErrorCode = "0"
	CodeUnknown            ErrorCode = "1000"
	CodeInvalidParam       ErrorCode = "1001"
	CodeUnauthorized       ErrorCode = "1002"
	CodeForbidden          ErrorCode = "1003"
	CodeNotFound           ErrorCode = "1004"
	CodeConflict           ErrorCode = "1005"
	CodeTooManyRequests    ErrorCode = "1006"
	CodeInternalError      ErrorCode = "1007"
	CodeServiceUnavailable ErrorCode = "1008"

	// 认证授权错误 (2xxx)
	CodeTokenExpired       ErrorCode = "2001"
	CodeTokenInvalid       ErrorCode = "2002"
	CodeTokenMissing       ErrorCode = "2003"
	CodePermissionDenied   ErrorCode = "2004"
	CodeInvalidCredentials ErrorCode = "2005"
	CodeInvalidResetToken  ErrorCode = "2006"

	// 资源错误 (3xxx)
	CodeTenantNotFound       ErrorCode = "3001"
	CodeOrganizationNotFound ErrorCode = "3002"
	CodeUserNotFound         ErrorCode = "3003"
	CodeSubscriptionNotFound ErrorCode = "3004"
	CodeInvoiceNotFound      ErrorCode = "3005"

	// 业务错误 (4xxx)
	CodeTenantSuspended       ErrorCode = "4001"
	CodeSubscriptionCancelled ErrorCode = "4002"
	CodeInvoiceAlreadyPaid    ErrorCode = "4003"

	// 外部服务错误 (5xxx)
	CodeDatabaseError ErrorCode = "5001"
	CodeCacheError    ErrorCode = "5002"
	CodeStorageError  ErrorCode = "5004"
	CodePaymentError  ErrorCode = "5006"
)

// AppError 应用错误
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Detail     string    `json:"detail,omitempty"`
	HTTPStatus int       `json:"-"`
	Err        error     `json:"-"`
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 返回底层错误
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail 添加详细信息
func (e *AppError) WithDetail(detail string) *AppError {
	e.Detail = detail
	return e
}

// WithError 添加底层错误
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// IsServerError 是否为服务端错误（5xx，不向客户端暴露细节）
func (e *AppError) IsServerError() bool {
	return e.HTTPStatus >= http.StatusInternalServerError
}

// New 创建新的应用错误
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

// Newf 使用格式化消息创建应用错误
func Newf(code ErrorCode, format string, args ...any) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap 包装错误
func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Err:        err,
	}
}

// codeToHTTPStatus 错误码转 HTTP 状态码
func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case CodeSuccess:
		return http.StatusOK
	case CodeInvalidParam, CodeInvalidCredentials, CodeInvalidResetToken:
		return http.StatusBadRequest
	case CodeUnauthorized, CodeTokenExpired, CodeTokenInvalid, CodeTokenMissing:
		return http.StatusUnauthorized
	case CodeForbidden, CodePermissionDenied, CodeTenantSuspended:
		return http.StatusForbidden
	case CodeNotFound, CodeTenantNotFound, CodeOrganizationNotFound, CodeUserNotFound,
		CodeSubscriptionNotFound, CodeInvoiceNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeSubscriptionCancelled, CodeInvoiceAlreadyPaid:
		return http.StatusConflict
	case CodeTooManyRequests:
		return http.StatusTooManyRequests
	case CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// 便捷构造函数，每次返回新实例，避免共享实例被 WithDetail 修改
func InvalidParam(message string) *AppError { return New(CodeInvalidParam, message) }
func Forbidden(message string) *AppError    { return New(CodeForbidden, message) }
func Conflict(message string) *AppError     { return New(CodeConflict, message) }
func Unauthorized(message string) *AppError { return New(CodeUnauthorized, message) }

// Internal 包装内部错误
func Internal(err error, message string) *AppError {
	return Wrap(err, CodeInternalError, message)
}

// Database 包装数据库错误
func Database(err error, message string) *AppError {
	return Wrap(err, CodeDatabaseError, message)
}

// IsAppError 检查是否为 AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// AsAppError 将错误转换为 AppError
func AsAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return Wrap(err, CodeUnknown, "unknown error")
}

// HasCode 检查错误链中是否包含指定错误码
func HasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// StatusOf 返回错误对应的 HTTP 状态码
func StatusOf(err error) int {
	if err == nil {
		return http.StatusOK
	}
	return AsAppError(err).HTTPStatus
}
