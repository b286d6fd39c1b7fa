package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"saas-tenancy-api/internal/config"
	"saas-tenancy-api/pkg/metrics"
)

// KafkaPublisher 将审计事件转发到 Kafka 主题
type KafkaPublisher struct {
	writer *kafka.Writer
	topic  string
}

// NewKafkaPublisher 创建 Kafka 发布者
func NewKafkaPublisher(cfg *config.KafkaConfig) *KafkaPublisher {
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.AuditTopic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			WriteTimeout: timeout,
		},
		topic: cfg.AuditTopic,
	}
}

// Forward 以租户 ID 作为分区键写入消息，保证同一租户事件有序
func (p *KafkaPublisher) Forward(ctx context.Context, msg *Message) error {
	ctx, span := tracer.Start(ctx, "kafka.Forward",
		trace.WithAttributes(
			attribute.String("kafka.topic", p.topic),
			attribute.String("message.id", msg.ID),
		))
	defer span.End()

	key := msg.TenantID
	if key == "" {
		key = msg.ID
	}

	headers := make([]kafka.Header, 0, len(msg.Metadata)+1)
	headers = append(headers, kafka.Header{Key: "type", Value: []byte(msg.Type)})
	for k, v := range msg.Metadata {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(key),
		Value:   msg.Payload,
		Headers: headers,
		Time:    msg.CreatedAt,
	})
	if err != nil {
		span.RecordError(err)
		metrics.RedisStreamProcessed.WithLabelValues("kafka:"+p.topic, "failed").Inc()
		return fmt.Errorf("failed to write kafka message: %w", err)
	}

	metrics.RedisStreamProcessed.WithLabelValues("kafka:"+p.topic, "success").Inc()
	return nil
}

// Close 关闭写入器
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
