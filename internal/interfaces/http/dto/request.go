// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"saas-tenancy-api/internal/domain/repository"
	"saas-tenancy-api/pkg/errors"
)

// BindPage 从查询参数绑定分页参数（page、limit）
func BindPage(c *gin.Context) repository.Pagination {
	page := parseIntWithDefault(c.Query("page"), 1)
	limit := parseIntWithDefault(c.Query("limit"), 20)
	return repository.NewPagination(page, limit)
}

// parseIntWithDefault 解析整数，失败时返回默认值
func parseIntWithDefault(s string, defaultVal int) int {
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

// QueryTime 解析 RFC3339 时间查询参数，缺省返回 nil
func QueryTime(c *gin.Context, name string) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, errors.Newf(errors.CodeInvalidParam, "%s must be an RFC3339 timestamp", name)
	}
	return &t, nil
}

// QueryBool 解析布尔查询参数，缺省返回 nil
func QueryBool(c *gin.Context, name string) (*bool, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, errors.Newf(errors.CodeInvalidParam, "%s must be a boolean", name)
	}
	return &v, nil
}

// ReasonRequest 附带原因的状态变更请求
type ReasonRequest struct {
	Reason string `json:"reason"`
}
