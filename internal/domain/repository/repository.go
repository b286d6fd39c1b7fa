// Package repository 定义数据访问层接口
package repository

import (
	"context"
	"errors"
)

var (
	// ErrDuplicate 违反唯一约束（域名、子域名、邮箱、成员关系、组织唯一订阅）
	ErrDuplicate = errors.New("duplicate key")

	// ErrStaleState 条件更新未命中，实体状态已被并发修改
	ErrStaleState = errors.New("stale entity state")
)

// TxKey 事务上下文键类型
type TxKey struct{}

// Transactor 事务管理接口
type Transactor interface {
	// WithTransaction 在事务中执行操作
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Pagination 分页参数
type Pagination struct {
	Page     int `json:"page"`
	PageSize int `json:"limit"`
}

// 分页上限，保证 Offset 不溢出
const (
	MaxPage     = 100000
	MaxPageSize = 100
)

// NewPagination 创建分页参数
func NewPagination(page, pageSize int) Pagination {
	if page < 1 {
		page = 1
	}
	if page > MaxPage {
		page = MaxPage
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return Pagination{Page: page, PageSize: pageSize}
}

// Offset 计算偏移量，页码越界时按边界取值
func (p Pagination) Offset() int {
	page := min(max(p.Page, 1), MaxPage)
	return (page - 1) * min(max(p.PageSize, 0), MaxPageSize)
}

// Limit 获取限制数量
func (p Pagination) Limit() int {
	return p.PageSize
}

// PagedResult 分页结果
type PagedResult[T any] struct {
	Items      []T   `json:"items"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"limit"`
	TotalPages int   `json:"totalPages"`
}

// NewPagedResult 创建分页结果
func NewPagedResult[T any](items []T, total int64, pagination Pagination) *PagedResult[T] {
	totalPages := 0
	if pagination.PageSize > 0 {
		totalPages = int(total) / pagination.PageSize
		if int(total)%pagination.PageSize > 0 {
			totalPages++
		}
	}
	if items == nil {
		items = []T{}
	}
	return &PagedResult[T]{
		Items:      items,
		Total:      total,
		Page:       pagination.Page,
		PageSize:   pagination.PageSize,
		TotalPages: totalPages,
	}
}
