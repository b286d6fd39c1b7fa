package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"saas-tenancy-api/internal/application/authz"
	"saas-tenancy-api/internal/application/directory"
	"saas-tenancy-api/internal/application/tenancy"
	"saas-tenancy-api/internal/config"
	"saas-tenancy-api/internal/wire"
	"saas-tenancy-api/pkg/errors"
)

// defaultOrganizationID 引导组织的固定 ID，重复执行保持幂等
const defaultOrganizationID = "00000000-0000-4000-8000-000000000001"

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	_ = godotenv.Load()

	fmt.Println("Starting system bootstrap...")

	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()

	// 2. 初始化数据层，postgres 驱动在此完成迁移
	app, cleanup, err := wire.InitializeBootstrap(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to initialize data layer: %v", err)
	}
	defer cleanup()

	// 3. 创建首个管理员
	adminEmail := getenv("BOOTSTRAP_ADMIN_EMAIL", "admin@example.com")
	adminPassword := os.Getenv("BOOTSTRAP_ADMIN_PASSWORD")
	if adminPassword == "" {
		log.Fatalf("BOOTSTRAP_ADMIN_PASSWORD is required")
	}

	admin, created, err := app.Directory.EnsureAdmin(ctx, directory.CreateUserInput{
		Email:     adminEmail,
		Password:  adminPassword,
		FirstName: "System",
		LastName:  "Admin",
	})
	if err != nil {
		log.Fatalf("failed to ensure admin user: %v", err)
	}
	if created {
		fmt.Printf("Admin user created: %s\n", admin.Email)
	} else {
		fmt.Printf("Admin user %s already exists.\n", admin.Email)
	}

	actorCtx := authz.WithActor(ctx, authz.Actor{UserID: admin.ID, Email: admin.Email, Role: admin.Role})

	// 4. 创建默认组织
	org, created, err := app.Directory.EnsureOrganization(actorCtx, defaultOrganizationID,
		getenv("BOOTSTRAP_ORGANIZATION_NAME", "Default Organization"), admin)
	if err != nil {
		log.Fatalf("failed to ensure organization: %v", err)
	}
	if created {
		fmt.Printf("Default organization created with ID: %s\n", org.ID)
	} else {
		fmt.Printf("Default organization already exists with ID: %s\n", org.ID)
	}

	// 5. 创建默认租户
	domain := getenv("BOOTSTRAP_TENANT_DOMAIN", "default.localhost")
	tenant, err := app.Tenancy.ResolveTenant(ctx, domain)
	switch {
	case err == nil:
		fmt.Printf("Default tenant already exists with ID: %s\n", tenant.ID)
	case errors.HasCode(err, errors.CodeTenantNotFound):
		tenant, err = app.Tenancy.CreateTenant(actorCtx, tenancy.CreateTenantInput{
			OrganizationID: org.ID,
			Name:           "Default Tenant",
			Domain:         domain,
		})
		if err != nil {
			log.Fatalf("failed to create default tenant: %v", err)
		}
		fmt.Printf("Default tenant created with ID: %s\n", tenant.ID)
	default:
		log.Fatalf("failed to resolve default tenant: %v", err)
	}

	fmt.Println("Bootstrap completed successfully.")
}
