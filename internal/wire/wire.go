//go:build wireinject
// +build wireinject

package wire

import (
	"context"

	"github.com/google/wire"

	"saas-tenancy-api/internal/config"
	"saas-tenancy-api/internal/interfaces/http/router"
)

// InitializeApp 初始化 API 网关（带路由器）
func InitializeApp(ctx context.Context, cfg *config.Config) (*router.Router, func(), error) {
	wire.Build(
		DataSet,
		ServiceSet,
		RouterSet,
	)
	return nil, nil, nil
}

// InitializeWorker 初始化后台任务进程
func InitializeWorker(ctx context.Context, cfg *config.Config) (*Worker, func(), error) {
	wire.Build(
		DataSet,
		ServiceSet,
		ProvideKafkaPublisher,
		ProvideAuditConsumer,
		wire.Struct(new(Worker), "*"),
	)
	return nil, nil, nil
}

// InitializeBootstrap 初始化数据迁移与种子数据依赖
func InitializeBootstrap(ctx context.Context, cfg *config.Config) (*Bootstrap, func(), error) {
	wire.Build(
		DataSet,
		ServiceSet,
		wire.Struct(new(Bootstrap), "*"),
	)
	return nil, nil, nil
}

// DataSet 存储、缓存与外部依赖提供者集合
var DataSet = wire.NewSet(
	ProvideStores,
	ProvideRedisClient,
	ProvideTenantCache,
	ProvideUsageSnapshots,
	ProvideAuditPublisher,
	ProvideS3,
	ProvideScopeProvisioner,
)

// ServiceSet 应用服务提供者集合
var ServiceSet = wire.NewSet(
	ProvideJWTManager,
	ProvidePolicy,
	ProvideAuditLogger,
	ProvideTenancyService,
	ProvideDirectoryService,
	ProvideBillingService,
)

// RouterSet 路由器提供者集合
var RouterSet = wire.NewSet(
	ProvideRateLimiter,
	ProvideHealthHandler,
	ProvideHandlers,
	ProvideRouter,
)
