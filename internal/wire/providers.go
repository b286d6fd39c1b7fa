// Package wire 提供依赖注入配置
package wire

import (
	"context"
	"fmt"
	"os"

	"saas-tenancy-api/internal/application/audit"
	"saas-tenancy-api/internal/application/authz"
	"saas-tenancy-api/internal/application/billing"
	"saas-tenancy-api/internal/application/directory"
	"saas-tenancy-api/internal/application/tenancy"
	"saas-tenancy-api/internal/config"
	"saas-tenancy-api/internal/domain/repository"
	"saas-tenancy-api/internal/infrastructure/messaging"
	"saas-tenancy-api/internal/infrastructure/notify"
	"saas-tenancy-api/internal/infrastructure/objectstore"
	"saas-tenancy-api/internal/infrastructure/payment"
	"saas-tenancy-api/internal/infrastructure/persistence/memory"
	"saas-tenancy-api/internal/infrastructure/persistence/postgres"
	"saas-tenancy-api/internal/infrastructure/persistence/redis"
	"saas-tenancy-api/internal/interfaces/http/handler"
	"saas-tenancy-api/internal/interfaces/http/middleware"
	"saas-tenancy-api/internal/interfaces/http/router"
	"saas-tenancy-api/pkg/logger"
	"saas-tenancy-api/pkg/utils"
)

// Stores 按存储驱动选择的仓储集合
type Stores struct {
	Tenants        repository.TenantRepository
	Isolation      repository.IsolationPolicyRepository
	Organizations  repository.OrganizationRepository
	Users          repository.UserRepository
	PasswordResets repository.PasswordResetRepository
	Subscriptions  repository.SubscriptionRepository
	Invoices       repository.InvoiceRepository
	Usage          repository.UsageRepository
	Audit          repository.AuditRepository
	Tx             repository.Transactor
	Database       handler.HealthChecker
}

// ProvideStores 提供仓储集合
// postgres 驱动在 auto_migrate 开启时先执行迁移；memory 驱动仅用于开发与测试。
func ProvideStores(ctx context.Context, cfg *config.Config) (*Stores, func(), error) {
	switch cfg.Database.Driver {
	case config.DriverMemory:
		logger.Warn(ctx, "using in-memory store, data is not persisted")
		store := memory.NewStore()
		return &Stores{
			Tenants:        store.Tenants(),
			Isolation:      store.IsolationPolicies(),
			Organizations:  store.Organizations(),
			Users:          store.Users(),
			PasswordResets: store.PasswordResets(),
			Subscriptions:  store.Subscriptions(),
			Invoices:       store.Invoices(),
			Usage:          store.Usage(),
			Audit:          store.Audit(),
			Tx:             memory.NewTransactor(),
			Database:       store,
		}, func() {}, nil

	case config.DriverPostgres, "":
		debug := !cfg.App.IsProduction() && cfg.Observability.Logging.Level == "debug"
		client, err := postgres.NewClient(&cfg.Database.Postgres, debug)
		if err != nil {
			return nil, nil, err
		}
		cleanup := func() {
			_ = client.Close()
		}
		if cfg.Database.AutoMigrate {
			if err := client.Migrate(ctx); err != nil {
				cleanup()
				return nil, nil, err
			}
		}
		return &Stores{
			Tenants:        postgres.NewTenantRepository(client),
			Isolation:      postgres.NewIsolationPolicyRepository(client),
			Organizations:  postgres.NewOrganizationRepository(client),
			Users:          postgres.NewUserRepository(client),
			PasswordResets: postgres.NewPasswordResetRepository(client),
			Subscriptions:  postgres.NewSubscriptionRepository(client),
			Invoices:       postgres.NewInvoiceRepository(client),
			Usage:          postgres.NewUsageRepository(client),
			Audit:          postgres.NewAuditRepository(client),
			Tx:             postgres.NewTxManager(client),
			Database:       client,
		}, cleanup, nil

	default:
		return nil, nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}

// ProvideRedisClient 提供 Redis 客户端，未启用时返回 nil
func ProvideRedisClient(cfg *config.Config) (*redis.Client, func(), error) {
	if !cfg.Cache.Redis.Enabled {
		return nil, func() {}, nil
	}
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideRateLimiter 提供限流器，无 Redis 时退化为进程内限流
func ProvideRateLimiter(client *redis.Client) middleware.RateLimiter {
	if client == nil {
		return middleware.NewLocalRateLimiter()
	}
	return redis.NewRateLimiter(client)
}

// ProvideTenantCache 提供租户解析缓存
func ProvideTenantCache(cfg *config.Config, client *redis.Client) tenancy.TenantCache {
	if client == nil {
		return nil
	}
	return redis.NewTenantCache(redis.NewCache(client), cfg.Tenancy.CacheTTL)
}

// ProvideUsageSnapshots 提供用量快照存储，保留两个汇总周期
func ProvideUsageSnapshots(cfg *config.Config, client *redis.Client) billing.UsageSnapshots {
	if client == nil {
		return nil
	}
	return redis.NewUsageSnapshotStore(redis.NewCache(client), 2*cfg.Jobs.UsageRollupInterval)
}

// ProvideAuditPublisher 提供审计事件流发布者
func ProvideAuditPublisher(cfg *config.Config, client *redis.Client) audit.Publisher {
	if client == nil {
		return nil
	}
	maxLen := cfg.Messaging.RedisStream.MaxLen
	if maxLen <= 0 {
		maxLen = 100000
	}
	return messaging.NewProducer(client.Redis(), int64(maxLen))
}

// ProvideS3 提供 S3 作用域管理器，未启用时返回 nil
func ProvideS3(ctx context.Context, cfg *config.Config) (*objectstore.S3ScopeProvisioner, error) {
	if !cfg.Storage.S3.Enabled {
		return nil, nil
	}
	return objectstore.NewS3ScopeProvisioner(ctx, &cfg.Storage.S3)
}

// ProvideScopeProvisioner 提供隔离作用域管理器
func ProvideScopeProvisioner(s3 *objectstore.S3ScopeProvisioner) tenancy.ScopeProvisioner {
	if s3 == nil {
		return nil
	}
	return s3
}

// ProvideJWTManager 提供 JWT 管理器
func ProvideJWTManager(cfg *config.Config) *utils.JWTManager {
	return utils.NewJWTManager(cfg.Security.JWT.Secret, cfg.Security.JWT.Issuer)
}

// ProvidePolicy 提供授权策略
func ProvidePolicy(stores *Stores) *authz.Policy {
	return authz.NewPolicy(stores.Users, stores.Organizations)
}

// ProvideAuditLogger 提供审计日志写入器
func ProvideAuditLogger(stores *Stores, publisher audit.Publisher) *audit.Logger {
	return audit.NewLogger(stores.Audit, publisher)
}

// ProvideTenancyService 提供租户注册表服务
func ProvideTenancyService(
	cfg *config.Config,
	stores *Stores,
	policy *authz.Policy,
	auditLogger *audit.Logger,
	cache tenancy.TenantCache,
	provisioner tenancy.ScopeProvisioner,
) *tenancy.Service {
	isolation := tenancy.NewIsolationService(stores.Isolation, provisioner, cfg.Tenancy.Isolation)
	return tenancy.NewService(stores.Tenants, stores.Organizations, isolation, policy, auditLogger, cache, stores.Tx)
}

// ProvideDirectoryService 提供组织与用户目录服务
func ProvideDirectoryService(
	cfg *config.Config,
	stores *Stores,
	policy *authz.Policy,
	auditLogger *audit.Logger,
	jwt *utils.JWTManager,
) *directory.Service {
	return directory.NewService(
		stores.Users, stores.PasswordResets, stores.Organizations,
		policy, auditLogger, notify.New(&cfg.Mail), jwt, stores.Tx,
		directory.Options{
			BcryptCost:       cfg.Security.BcryptCost,
			PasswordResetTTL: cfg.Security.PasswordResetTTL,
			AccessTokenTTL:   cfg.Security.JWT.Expiration,
			RefreshTokenTTL:  cfg.Security.JWT.RefreshExpiration,
		},
	)
}

// ProvideBillingService 提供计费服务
func ProvideBillingService(
	cfg *config.Config,
	stores *Stores,
	policy *authz.Policy,
	auditLogger *audit.Logger,
	snapshots billing.UsageSnapshots,
) *billing.Service {
	return billing.NewService(
		stores.Subscriptions, stores.Invoices, stores.Usage, stores.Organizations,
		policy, auditLogger, payment.NewStubGateway(cfg.Billing.GatewayLatency), snapshots, stores.Tx, cfg.Billing,
	)
}

// ProvideHealthHandler 提供健康检查处理器，数据库为必需依赖
func ProvideHealthHandler(cfg *config.Config, stores *Stores, client *redis.Client, s3 *objectstore.S3ScopeProvisioner) *handler.HealthHandler {
	deps := []handler.Dependency{{Name: "database", Checker: stores.Database, Required: true}}
	if client != nil {
		deps = append(deps, handler.Dependency{Name: "redis", Checker: client})
	}
	if s3 != nil {
		deps = append(deps, handler.Dependency{Name: "s3", Checker: s3})
	}
	return handler.NewHealthHandler(cfg.App.Version, deps...)
}

// ProvideHandlers 提供路由处理器集合
func ProvideHandlers(
	cfg *config.Config,
	health *handler.HealthHandler,
	tenants *tenancy.Service,
	dir *directory.Service,
	bill *billing.Service,
) router.Handlers {
	return router.Handlers{
		Health:       health,
		Auth:         handler.NewAuthHandler(dir, cfg.Security.JWT.RefreshExpiration, cfg.App.IsProduction()),
		Tenant:       handler.NewTenantHandler(tenants),
		User:         handler.NewUserHandler(dir),
		Organization: handler.NewOrganizationHandler(dir),
		Billing:      handler.NewBillingHandler(bill),
	}
}

// ProvideRouter 提供路由器
func ProvideRouter(cfg *config.Config, handlers router.Handlers, tenants *tenancy.Service, limiter middleware.RateLimiter) *router.Router {
	return router.New(cfg, handlers, tenants, limiter)
}

// ProvideKafkaPublisher 提供 Kafka 审计外发，未启用时返回 nil
func ProvideKafkaPublisher(cfg *config.Config) (*messaging.KafkaPublisher, func()) {
	if !cfg.Messaging.Kafka.Enabled || len(cfg.Messaging.Kafka.Brokers) == 0 {
		return nil, func() {}
	}
	publisher := messaging.NewKafkaPublisher(&cfg.Messaging.Kafka)
	return publisher, func() {
		_ = publisher.Close()
	}
}

// ProvideAuditConsumer 提供审计流消费者，无 Redis 时返回 nil
func ProvideAuditConsumer(cfg *config.Config, client *redis.Client) *messaging.Consumer {
	if client == nil {
		return nil
	}
	rs := cfg.Messaging.RedisStream
	name := cfg.Jobs.WorkerName
	if name == "" {
		name = hostnameConsumerName()
	}
	return messaging.NewConsumer(client.Redis(), messaging.ConsumerConfig{
		Stream:        messaging.StreamAuditLog,
		Group:         messaging.ConsumerGroupAuditForwarder.WithPrefix(rs.ConsumerGroupPrefix),
		ConsumerName:  name,
		BlockTimeout:  rs.BlockTimeout,
		ClaimInterval: rs.ClaimInterval,
		RetryLimit:    rs.RetryLimit,
		Backoff: messaging.BackoffConfig{
			Initial:    rs.RetryBackoff.Initial,
			Max:        rs.RetryBackoff.Max,
			Multiplier: rs.RetryBackoff.Multiplier,
		},
	})
}

// Worker 后台任务依赖，Consumer 与 Kafka 可为 nil
type Worker struct {
	Billing  *billing.Service
	Consumer *messaging.Consumer
	Kafka    *messaging.KafkaPublisher
}

// Bootstrap 初始化数据依赖
type Bootstrap struct {
	Directory *directory.Service
	Tenancy   *tenancy.Service
	Stores    *Stores
}

func hostnameConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
