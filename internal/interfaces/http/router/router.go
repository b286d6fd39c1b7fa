// Package router 提供 HTTP 路由配置
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"saas-tenancy-api/internal/config"
	"saas-tenancy-api/internal/interfaces/http/dto"
	"saas-tenancy-api/internal/interfaces/http/handler"
	"saas-tenancy-api/internal/interfaces/http/middleware"
	"saas-tenancy-api/pkg/errors"
)

// Handlers 路由依赖的处理器集合
type Handlers struct {
	Health       *handler.HealthHandler
	Auth         *handler.AuthHandler
	Tenant       *handler.TenantHandler
	User         *handler.UserHandler
	Organization *handler.OrganizationHandler
	Billing      *handler.BillingHandler
}

// Router HTTP 路由器
type Router struct {
	engine   *gin.Engine
	cfg      *config.Config
	handlers Handlers
	resolver middleware.TenantResolver
	limiter  middleware.RateLimiter
}

// New 创建新的路由器
func New(cfg *config.Config, handlers Handlers, resolver middleware.TenantResolver, limiter middleware.RateLimiter) *Router {
	if cfg.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := &Router{
		engine:   gin.New(),
		cfg:      cfg,
		handlers: handlers,
		resolver: resolver,
		limiter:  limiter,
	}

	r.setupMiddleware()
	r.setupRoutes()

	return r
}

// Engine 返回 Gin Engine
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

// setupMiddleware 配置全局中间件
// 顺序：恢复与请求 ID 最先，限流在路由分发之前，认证与租户解析在处理器之前。
func (r *Router) setupMiddleware() {
	r.engine.Use(middleware.Recovery())
	r.engine.Use(middleware.RequestID())

	r.engine.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: r.cfg.Security.CORS.AllowedOrigins,
		AllowedMethods: r.cfg.Security.CORS.AllowedMethods,
		AllowedHeaders: r.cfg.Security.CORS.AllowedHeaders,
	}))

	if r.cfg.Observability.Tracing.Enabled {
		r.engine.Use(middleware.Trace(r.cfg.App.Name))
		r.engine.Use(middleware.TraceContext())
	}

	if r.cfg.Observability.Metrics.Enabled {
		r.engine.Use(middleware.Metrics())
	}

	r.engine.Use(middleware.AccessLog(middleware.AccessLogConfig{SkipPaths: middleware.DefaultSkipPaths}))

	r.engine.Use(middleware.RateLimit(middleware.RateLimitConfig{
		Enabled:   r.cfg.Security.RateLimit.Enabled,
		Requests:  r.cfg.Security.RateLimit.Requests,
		Window:    r.cfg.Security.RateLimit.Window,
		SkipPaths: middleware.DefaultSkipPaths,
	}, r.limiter))

	r.engine.NoRoute(func(c *gin.Context) {
		dto.Fail(c, errors.New(errors.CodeNotFound, "route not found"))
	})
}

// setupRoutes 配置路由
func (r *Router) setupRoutes() {
	h := r.handlers

	// 系统端点
	r.engine.GET("/health", h.Health.Health)
	r.engine.GET("/ready", h.Health.Ready)
	r.engine.GET("/live", h.Health.Live)

	if r.cfg.Observability.Metrics.Enabled {
		path := r.cfg.Observability.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.engine.GET(path, gin.WrapH(promhttp.Handler()))
	}

	api := r.engine.Group("/api")
	api.Use(
		middleware.Auth(middleware.AuthConfig{
			Secret: r.cfg.Security.JWT.Secret,
			Issuer: r.cfg.Security.JWT.Issuer,
		}),
		middleware.Tenant(middleware.TenantConfig{
			HeaderName: r.cfg.Tenancy.HeaderName,
			QueryParam: r.cfg.Tenancy.QueryParam,
		}, r.resolver),
	)

	registerAPIRoutes(api, h)
}

// registerAPIRoutes 注册 /api 路由
func registerAPIRoutes(api *gin.RouterGroup, h Handlers) {
	authed := middleware.RequireAuth()

	// 认证
	auth := api.Group("/auth")
	{
		auth.POST("/login", h.Auth.Login)
		auth.POST("/refresh", h.Auth.Refresh)
	}

	// 租户注册表
	tenants := api.Group("/tenants", authed)
	{
		tenants.POST("", h.Tenant.CreateTenant)
		tenants.GET("", h.Tenant.ListTenants)
		tenants.GET("/current", h.Tenant.GetCurrentTenant)
		tenants.GET("/domain/:domain", h.Tenant.GetTenantByDomain)
		tenants.GET("/:id", h.Tenant.GetTenant)
		tenants.PUT("/:id", middleware.ActiveTenant(), h.Tenant.UpdateTenant)
		tenants.DELETE("/:id", h.Tenant.DeleteTenant)
		tenants.POST("/:id/suspend", h.Tenant.SuspendTenant)
		tenants.POST("/:id/reactivate", h.Tenant.ReactivateTenant)
		tenants.GET("/:id/isolation", h.Tenant.GetIsolationPolicy)
		tenants.GET("/:id/access/:userId", h.Tenant.CheckAccess)
	}

	// 用户目录
	users := api.Group("/users")
	{
		users.POST("/reset-password", h.User.RequestPasswordReset)
		users.POST("/set-password", h.User.SetPassword)

		users.POST("", authed, h.User.CreateUser)
		users.GET("", authed, h.User.ListUsers)
		users.GET("/me", authed, h.User.Me)
		users.GET("/:id", authed, h.User.GetUser)
		users.PUT("/:id", authed, h.User.UpdateUser)
		users.DELETE("/:id", middleware.RequireAdmin(), h.User.DeleteUser)
		users.POST("/:id/change-password", authed, h.User.ChangePassword)
		users.GET("/:id/organizations", authed, h.User.GetUserOrganizations)
	}

	// 组织
	orgs := api.Group("/organizations", authed)
	{
		orgs.POST("", h.Organization.CreateOrganization)
		orgs.GET("/:id", h.Organization.GetOrganization)
		orgs.GET("/:id/members", h.Organization.ListMembers)
		orgs.POST("/:id/members", h.Organization.AddMember)
		orgs.DELETE("/:id/members/:userId", h.Organization.RemoveMember)
	}

	// 订阅与计费
	billing := api.Group("/billing")
	{
		billing.GET("/plans", h.Billing.ListPlans)

		scoped := billing.Group("", authed, middleware.ActiveTenant())
		scoped.POST("/subscriptions", h.Billing.CreateSubscription)
		scoped.GET("/subscriptions", h.Billing.GetCurrentSubscription)
		scoped.GET("/subscriptions/:id", h.Billing.GetSubscription)
		scoped.PUT("/subscriptions/:id", h.Billing.UpdateSubscription)
		scoped.DELETE("/subscriptions/:id", h.Billing.CancelSubscription)

		scoped.POST("/invoices", h.Billing.CreateInvoice)
		scoped.GET("/invoices", h.Billing.ListInvoices)
		scoped.GET("/invoices/:id", h.Billing.GetInvoice)
		scoped.POST("/invoices/:id/payment", h.Billing.ProcessPayment)

		scoped.POST("/usage", h.Billing.TrackUsage)
		scoped.GET("/usage/stats", h.Billing.GetUsageStats)
		scoped.GET("/summary", h.Billing.GetSummary)
	}
}
