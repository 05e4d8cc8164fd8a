// Package kafka outbox 事件投递与链上充值消费
//
// 生产: bridge-events, settlement-events, aggregator-events, yield-events (经 outbox relay)
// 消费: deposits (链上索引服务发布, 入账到托管账本)
package kafka

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/eidos-exchange/eidos/eidos-yield/internal/metrics"
	"github.com/eidos-exchange/eidos/eidos-yield/pkg/logger"
)

// ErrProducerClosed 生产者已关闭
var ErrProducerClosed = errors.New("producer is closed")

// Producer Kafka 同步生产者
type Producer struct {
	producer sarama.SyncProducer
	mu       sync.RWMutex
	closed   bool
}

// ProducerConfig 生产者配置, 零值字段使用默认值
type ProducerConfig struct {
	Brokers      []string
	ClientID     string
	MaxRetries   int           // 默认 3
	RetryBackoff time.Duration // 默认 100ms
}

// saramaConfig 幂等生产者, acks=all 且单连接只允许一个在途请求
func (c *ProducerConfig) saramaConfig() *sarama.Config {
	sc := sarama.NewConfig()
	sc.Version = sarama.V2_8_0_0
	sc.ClientID = c.ClientID

	sc.Producer.Idempotent = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Net.MaxOpenRequests = 1
	sc.Producer.Partitioner = sarama.NewHashPartitioner
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true

	sc.Producer.Retry.Max = 3
	if c.MaxRetries > 0 {
		sc.Producer.Retry.Max = c.MaxRetries
	}
	sc.Producer.Retry.Backoff = 100 * time.Millisecond
	if c.RetryBackoff > 0 {
		sc.Producer.Retry.Backoff = c.RetryBackoff
	}
	return sc
}

// NewProducer 连接 broker 并创建同步生产者
func NewProducer(cfg *ProducerConfig) (*Producer, error) {
	sp, err := sarama.NewSyncProducer(cfg.Brokers, cfg.saramaConfig())
	if err != nil {
		return nil, err
	}
	return NewProducerWithClient(sp), nil
}

// NewProducerWithClient 使用已有的 SyncProducer
func NewProducerWithClient(producer sarama.SyncProducer) *Producer {
	return &Producer{producer: producer}
}

// Close 关闭生产者
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	return p.producer.Close()
}

// Publish 发送一条消息, 同一 key 落在同一分区
func (p *Producer) Publish(ctx context.Context, topic, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrProducerClosed
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(value),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	metrics.RecordKafkaMessage(topic, true, err == nil)
	if err != nil {
		logger.Error("failed to send kafka message",
			zap.String("topic", topic),
			zap.String("key", key),
			zap.Error(err))
		return err
	}

	logger.Debug("kafka message sent",
		zap.String("topic", topic),
		zap.String("key", key),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))
	return nil
}
