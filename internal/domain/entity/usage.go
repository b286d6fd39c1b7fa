package entity

import (
	"time"

	"github.com/google/uuid"
)

// UsageRecord 用量采样，只追加
type UsageRecord struct {
	ID             string    `json:"id" gorm:"type:uuid;primaryKey"`
	OrganizationID string    `json:"organizationId" gorm:"type:uuid;not null;index:idx_usage_org_metric_time,priority:1"`
	Metric         string    `json:"metric" gorm:"type:varchar(64);not null;index:idx_usage_org_metric_time,priority:2"`
	Value          float64   `json:"value" gorm:"not null"`
	RecordedAt     time.Time `json:"timestamp" gorm:"not null;index:idx_usage_org_metric_time,priority:3"`
}

// TableName 表名
func (UsageRecord) TableName() string {
	return "usage_records"
}

// NewUsageRecord 创建用量记录
func NewUsageRecord(orgID, metric string, value float64) *UsageRecord {
	return &UsageRecord{
		ID:             uuid.NewString(),
		OrganizationID: orgID,
		Metric:         metric,
		Value:          value,
		RecordedAt:     time.Now().UTC(),
	}
}

// UsageAggregate 单个指标的聚合结果
type UsageAggregate struct {
	Metric string  `json:"metric"`
	Total  float64 `json:"total"`
	Count  int64   `json:"count"`
}

// UsageSnapshot 组织在一个计费周期内的用量汇总，由后台汇总任务写入缓存
type UsageSnapshot struct {
	OrganizationID string             `json:"organizationId"`
	PeriodStart    time.Time          `json:"periodStart"`
	PeriodEnd      time.Time          `json:"periodEnd"`
	Totals         map[string]float64 `json:"totals"`
	ComputedAt     time.Time          `json:"computedAt"`
}
