// Package objectstore 提供租户隔离作用域的对象存储实现
package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"saas-tenancy-api/internal/config"
	"saas-tenancy-api/internal/domain/entity"
	"saas-tenancy-api/pkg/metrics"
)

var tracer = otel.Tracer("objectstore")

const markerObject = "_isolation.json"

// S3ScopeProvisioner 在 S3 中为每个租户维护独立前缀
type S3ScopeProvisioner struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3ScopeProvisioner 创建 S3 作用域管理器
func NewS3ScopeProvisioner(ctx context.Context, cfg *config.S3Config) (*S3ScopeProvisioner, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket name is required")
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3ScopeProvisioner{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// ScopePrefix 返回租户对象前缀
func (p *S3ScopeProvisioner) ScopePrefix(tenantID string) string {
	if p.prefix == "" {
		return tenantID + "/"
	}
	return path.Join(p.prefix, tenantID) + "/"
}

// Provision 写入租户作用域标记对象，重复调用会覆盖为最新策略
func (p *S3ScopeProvisioner) Provision(ctx context.Context, policy *entity.TenantIsolationPolicy) error {
	ctx, span := tracer.Start(ctx, "objectstore.Provision",
		trace.WithAttributes(attribute.String("tenant_id", policy.TenantID)))
	defer span.End()

	scope := p.ScopePrefix(policy.TenantID)
	body, err := json.Marshal(policy)
	if err != nil {
		return fmt.Errorf("failed to marshal isolation policy: %w", err)
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(scope + markerObject),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	}
	if policy.EncryptionRequired {
		input.ServerSideEncryption = types.ServerSideEncryptionAes256
	}

	if _, err := p.client.PutObject(ctx, input); err != nil {
		span.RecordError(err)
		metrics.IsolationScopeTotal.WithLabelValues("provision", "error").Inc()
		return fmt.Errorf("failed to provision tenant scope: %w", err)
	}

	metrics.IsolationScopeTotal.WithLabelValues("provision", "success").Inc()
	return nil
}

// Teardown 删除租户前缀下的全部对象
func (p *S3ScopeProvisioner) Teardown(ctx context.Context, tenantID string) error {
	ctx, span := tracer.Start(ctx, "objectstore.Teardown",
		trace.WithAttributes(attribute.String("tenant_id", tenantID)))
	defer span.End()

	paginator := s3.NewListObjectsV2Paginator(p.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(p.bucket),
		Prefix: aws.String(p.ScopePrefix(tenantID)),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			span.RecordError(err)
			metrics.IsolationScopeTotal.WithLabelValues("teardown", "error").Inc()
			return fmt.Errorf("failed to list tenant scope: %w", err)
		}
		if len(page.Contents) == 0 {
			continue
		}

		objects := make([]types.ObjectIdentifier, 0, len(page.Contents))
		for _, obj := range page.Contents {
			objects = append(objects, types.ObjectIdentifier{Key: obj.Key})
		}

		if _, err := p.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(p.bucket),
			Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
		}); err != nil {
			span.RecordError(err)
			metrics.IsolationScopeTotal.WithLabelValues("teardown", "error").Inc()
			return fmt.Errorf("failed to delete tenant scope: %w", err)
		}
	}

	metrics.IsolationScopeTotal.WithLabelValues("teardown", "success").Inc()
	return nil
}

// HealthCheck 检查存储桶可访问
func (p *S3ScopeProvisioner) HealthCheck(ctx context.Context) error {
	_, err := p.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(p.bucket)})
	return err
}
