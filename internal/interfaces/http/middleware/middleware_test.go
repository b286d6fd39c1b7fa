package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saas-tenancy-api/internal/application/authz"
	"saas-tenancy-api/internal/domain/entity"
	redisstore "saas-tenancy-api/internal/infrastructure/persistence/redis"
	"saas-tenancy-api/pkg/errors"
	"saas-tenancy-api/pkg/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Message   string `json:"message"`
	Code      string `json:"code"`
	RequestID string `json:"requestId"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

type stubResolver struct {
	tenants map[string]*entity.Tenant
	calls   int
}

func (r *stubResolver) ResolveTenant(ctx context.Context, identifier string) (*entity.Tenant, error) {
	r.calls++
	if t, ok := r.tenants[identifier]; ok {
		return t, nil
	}
	return nil, errors.New(errors.CodeTenantNotFound, "tenant not found")
}

func newTenantEngine(resolver TenantResolver) *gin.Engine {
	r := gin.New()
	r.Use(RequestID(), Tenant(TenantConfig{HeaderName: "x-tenant-id", QueryParam: "tenantId"}, resolver))
	handler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"tenant": authz.TenantID(c.Request.Context())})
	}
	r.GET("/resource", handler)
	r.POST("/resource", ActiveTenant(), handler)
	return r
}

func TestTenant(t *testing.T) {
	active := &entity.Tenant{ID: "t-1", Domain: "acme.example.com", Status: entity.TenantStatusActive}
	suspended := &entity.Tenant{ID: "t-2", Domain: "gone.example.com", Status: entity.TenantStatusSuspended}
	resolver := &stubResolver{tenants: map[string]*entity.Tenant{"t-1": active, "t-2": suspended}}
	r := newTenantEngine(resolver)

	t.Run("header resolves tenant", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/resource", nil)
		req.Header.Set("X-Tenant-ID", "t-1")
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"tenant":"t-1"}`, w.Body.String())
	})

	t.Run("query parameter resolves tenant", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/resource?tenantId=t-1", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"tenant":"t-1"}`, w.Body.String())
	})

	t.Run("no identifier proceeds without tenant", func(t *testing.T) {
		before := resolver.calls
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/resource", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"tenant":""}`, w.Body.String())
		assert.Equal(t, before, resolver.calls)
	})

	t.Run("unknown tenant is rejected", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/resource", nil)
		req.Header.Set("X-Tenant-ID", "missing")
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusNotFound, w.Code)
		env := decode(t, w)
		assert.False(t, env.Success)
		assert.Equal(t, string(errors.CodeTenantNotFound), env.Code)
		assert.NotEmpty(t, env.RequestID)
	})

	t.Run("suspended tenant readable but not writable", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/resource", nil)
		req.Header.Set("X-Tenant-ID", "t-2")
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)

		w = httptest.NewRecorder()
		req = httptest.NewRequest(http.MethodPost, "/resource", nil)
		req.Header.Set("X-Tenant-ID", "t-2")
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, string(errors.CodeTenantSuspended), decode(t, w).Code)
	})
}

func newAuthEngine(cfg AuthConfig) *gin.Engine {
	r := gin.New()
	r.Use(Auth(cfg))
	r.GET("/open", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": authz.ActorID(c.Request.Context())})
	})
	r.GET("/closed", RequireAuth(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": authz.ActorID(c.Request.Context())})
	})
	r.GET("/admin", RequireAdmin(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestAuth(t *testing.T) {
	cfg := AuthConfig{Secret: "test-secret", Issuer: "test"}
	r := newAuthEngine(cfg)
	jwt := utils.NewJWTManager(cfg.Secret, cfg.Issuer)

	access, err := jwt.GenerateToken("u-1", "alice@example.com", "user", utils.TokenTypeAccess, time.Minute)
	require.NoError(t, err)
	refresh, err := jwt.GenerateToken("u-1", "alice@example.com", "user", utils.TokenTypeRefresh, time.Minute)
	require.NoError(t, err)
	admin, err := jwt.GenerateToken("u-2", "root@example.com", "admin", utils.TokenTypeAccess, time.Minute)
	require.NoError(t, err)

	call := func(path, header string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		r.ServeHTTP(w, req)
		return w
	}

	t.Run("anonymous request passes optional auth", func(t *testing.T) {
		w := call("/open", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"user":""}`, w.Body.String())
	})

	t.Run("valid access token sets actor", func(t *testing.T) {
		w := call("/closed", "Bearer "+access)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"user":"u-1"}`, w.Body.String())
	})

	t.Run("missing token on protected route", func(t *testing.T) {
		w := call("/closed", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("malformed header", func(t *testing.T) {
		w := call("/open", "Token abc")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, string(errors.CodeTokenInvalid), decode(t, w).Code)
	})

	t.Run("refresh token is not an access token", func(t *testing.T) {
		w := call("/open", "Bearer "+refresh)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("foreign signature", func(t *testing.T) {
		other := utils.NewJWTManager("other-secret", cfg.Issuer)
		forged, err := other.GenerateToken("u-1", "alice@example.com", "admin", utils.TokenTypeAccess, time.Minute)
		require.NoError(t, err)
		w := call("/open", "Bearer "+forged)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("role gate", func(t *testing.T) {
		assert.Equal(t, http.StatusForbidden, call("/admin", "Bearer "+access).Code)
		assert.Equal(t, http.StatusNoContent, call("/admin", "Bearer "+admin).Code)
	})
}

type failingLimiter struct{}

func (failingLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (*redisstore.RateLimitResult, error) {
	return nil, context.DeadlineExceeded
}

func TestLocalRateLimiter_RefillsGradually(t *testing.T) {
	limiter := NewLocalRateLimiter()
	ctx := context.Background()
	window := 400 * time.Millisecond
	interval := window / 2

	for i := 0; i < 2; i++ {
		res, err := limiter.Allow(ctx, "ip:10.0.0.9", 2, window)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}

	denied, err := limiter.Allow(ctx, "ip:10.0.0.9", 2, window)
	require.NoError(t, err)
	assert.False(t, denied.Allowed)
	assert.Positive(t, denied.ResetAfter)
	assert.LessOrEqual(t, denied.ResetAfter, interval, "reset reports the next token, not the window end")

	// 令牌桶：一个令牌间隔后即可放行，无需等待整个窗口
	time.Sleep(interval + 50*time.Millisecond)
	res, err := limiter.Allow(ctx, "ip:10.0.0.9", 2, window)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestRateLimit(t *testing.T) {
	newEngine := func(limiter RateLimiter) *gin.Engine {
		r := gin.New()
		r.Use(RateLimit(RateLimitConfig{
			Enabled:   true,
			Requests:  2,
			Window:    time.Minute,
			SkipPaths: DefaultSkipPaths,
		}, limiter))
		r.GET("/api/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })
		r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
		return r
	}

	call := func(r *gin.Engine, path, ip string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = ip + ":1234"
		r.ServeHTTP(w, req)
		return w
	}

	t.Run("fixed budget per client ip", func(t *testing.T) {
		r := newEngine(NewLocalRateLimiter())
		first := call(r, "/api/ping", "10.0.0.1")
		assert.Equal(t, http.StatusNoContent, first.Code)
		assert.Equal(t, "2", first.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "1", first.Header().Get("X-RateLimit-Remaining"))
		assert.Equal(t, http.StatusNoContent, call(r, "/api/ping", "10.0.0.1").Code)

		blocked := call(r, "/api/ping", "10.0.0.1")
		require.Equal(t, http.StatusTooManyRequests, blocked.Code)
		assert.NotEmpty(t, blocked.Header().Get("Retry-After"))
		assert.Equal(t, string(errors.CodeTooManyRequests), decode(t, blocked).Code)

		assert.Equal(t, http.StatusNoContent, call(r, "/api/ping", "10.0.0.2").Code)
	})

	t.Run("health endpoints are not limited", func(t *testing.T) {
		r := newEngine(NewLocalRateLimiter())
		for i := 0; i < 5; i++ {
			assert.Equal(t, http.StatusOK, call(r, "/health", "10.0.0.3").Code)
		}
	})

	t.Run("limiter failure fails open", func(t *testing.T) {
		r := newEngine(failingLimiter{})
		for i := 0; i < 5; i++ {
			assert.Equal(t, http.StatusNoContent, call(r, "/api/ping", "10.0.0.4").Code)
		}
	})

	t.Run("disabled limiter is a no-op", func(t *testing.T) {
		r := gin.New()
		r.Use(RateLimit(RateLimitConfig{Enabled: false}, NewLocalRateLimiter()))
		r.GET("/api/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })
		w := call(r, "/api/ping", "10.0.0.5")
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	})
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), Recovery())
	r.GET("/boom", func(c *gin.Context) { panic("storage exploded: password=hunter2") })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	env := decode(t, w)
	assert.False(t, env.Success)
	assert.Equal(t, "req-42", env.RequestID)
	assert.NotContains(t, w.Body.String(), "hunter2")
	assert.Equal(t, "req-42", w.Header().Get(RequestIDHeader))
}
