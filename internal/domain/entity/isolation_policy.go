package entity

import "time"

// TenantIsolationPolicy 租户数据隔离策略
type TenantIsolationPolicy struct {
	TenantID            string    `json:"tenantId" gorm:"type:uuid;primaryKey"`
	EncryptionRequired  bool      `json:"encryptionRequired" gorm:"not null;default:true"`
	RetentionPeriodDays int       `json:"retentionPeriod" gorm:"not null;default:365"`
	DataResidency       string    `json:"dataResidency" gorm:"type:varchar(32);not null"`
	StoragePrefix       string    `json:"storagePrefix" gorm:"type:varchar(255)"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// TableName 表名
func (TenantIsolationPolicy) TableName() string {
	return "tenant_isolation_policies"
}
