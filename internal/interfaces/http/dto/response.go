// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"saas-tenancy-api/internal/domain/repository"
	"saas-tenancy-api/pkg/errors"
	"saas-tenancy-api/pkg/logger"
)

// Response 统一响应结构
type Response[T any] struct {
	Success    bool        `json:"success"`
	Data       T           `json:"data,omitempty"`
	Error      string      `json:"error,omitempty"`
	Message    string      `json:"message,omitempty"`
	Code       string      `json:"code,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
	RequestID  string      `json:"requestId,omitempty"`
}

// ErrorResponse 错误响应结构
type ErrorResponse = Response[any]

// Pagination 分页元数据
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

// NewPagination 从分页结果构建元数据
func NewPagination[T any](result *repository.PagedResult[T]) *Pagination {
	return &Pagination{
		Page:       result.Page,
		Limit:      result.PageSize,
		Total:      result.Total,
		TotalPages: result.TotalPages,
	}
}

func requestID(c *gin.Context) string {
	return c.GetString("request_id")
}

// Success 返回成功响应
func Success[T any](c *gin.Context, data T) {
	c.JSON(http.StatusOK, Response[T]{
		Success:   true,
		Data:      data,
		RequestID: requestID(c),
	})
}

// SuccessWithMessage 返回带提示信息的成功响应
func SuccessWithMessage[T any](c *gin.Context, data T, message string) {
	c.JSON(http.StatusOK, Response[T]{
		Success:   true,
		Data:      data,
		Message:   message,
		RequestID: requestID(c),
	})
}

// Message 返回仅包含提示信息的成功响应
func Message(c *gin.Context, message string) {
	c.JSON(http.StatusOK, Response[any]{
		Success:   true,
		Message:   message,
		RequestID: requestID(c),
	})
}

// Created 返回创建成功响应 (201)
func Created[T any](c *gin.Context, data T) {
	c.JSON(http.StatusCreated, Response[T]{
		Success:   true,
		Data:      data,
		RequestID: requestID(c),
	})
}

// Outcome 返回业务结果，ok 为 false 时仍是 200，不视为错误
func Outcome[T any](c *gin.Context, ok bool, data T, message string) {
	c.JSON(http.StatusOK, Response[T]{
		Success:   ok,
		Data:      data,
		Message:   message,
		RequestID: requestID(c),
	})
}

// Paged 返回带分页的成功响应
func Paged[T any](c *gin.Context, items []T, pagination *Pagination) {
	if items == nil {
		items = []T{}
	}
	c.JSON(http.StatusOK, Response[[]T]{
		Success:    true,
		Data:       items,
		Pagination: pagination,
		RequestID:  requestID(c),
	})
}

// failure 构建错误响应，5xx 错误不向客户端暴露内部信息
func failure(c *gin.Context, err error) (int, ErrorResponse) {
	appErr := errors.AsAppError(err)
	resp := ErrorResponse{
		Success:   false,
		Error:     appErr.Message,
		Message:   appErr.Detail,
		Code:      string(appErr.Code),
		RequestID: requestID(c),
	}
	if appErr.IsServerError() {
		logger.Error(c.Request.Context(), "request failed", err,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"code", string(appErr.Code),
		)
		return appErr.HTTPStatus, InternalError(c)
	}
	return appErr.HTTPStatus, resp
}

// InternalError 通用 500 响应体，只携带请求 ID 供排查
func InternalError(c *gin.Context) ErrorResponse {
	id := requestID(c)
	return ErrorResponse{
		Success:   false,
		Error:     "internal server error",
		Message:   "an unexpected error occurred, reference request id " + id,
		Code:      string(errors.CodeInternalError),
		RequestID: id,
	}
}

// Fail 按错误类型返回错误响应
func Fail(c *gin.Context, err error) {
	status, resp := failure(c, err)
	c.JSON(status, resp)
}

// Abort 返回错误响应并终止后续处理
func Abort(c *gin.Context, err error) {
	status, resp := failure(c, err)
	c.AbortWithStatusJSON(status, resp)
}
