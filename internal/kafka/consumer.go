package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/eidos-exchange/eidos/eidos-yield/internal/metrics"
	"github.com/eidos-exchange/eidos/eidos-yield/internal/model"
	apperrors "github.com/eidos-exchange/eidos/eidos-yield/pkg/errors"
	"github.com/eidos-exchange/eidos/eidos-yield/pkg/logger"
)

// DepositCreditor 外部充值入账
type DepositCreditor interface {
	CreditExternal(ctx context.Context, dep *model.ExternalDeposit) (bool, error)
}

// Consumer deposits topic 消费者
type Consumer struct {
	client  sarama.ConsumerGroup
	handler *DepositHandler
	topics  []string
	groupID string

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// ConsumerConfig 消费者配置
type ConsumerConfig struct {
	Brokers  []string
	GroupID  string
	ClientID string
}

// NewConsumer 创建消费者
func NewConsumer(cfg *ConsumerConfig, creditor DepositCreditor) (*Consumer, error) {
	config := sarama.NewConfig()
	config.Version = sarama.V2_8_0_0
	config.ClientID = cfg.ClientID
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Consumer.Offsets.AutoCommit.Enable = true
	config.Consumer.Offsets.AutoCommit.Interval = time.Second

	client, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, config)
	if err != nil {
		return nil, err
	}

	return &Consumer{
		client:  client,
		handler: NewDepositHandler(creditor),
		topics:  []string{model.TopicDeposits},
		groupID: cfg.GroupID,
	}, nil
}

// Start 启动消费循环
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return errors.New("consumer already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	c.running = true
	c.cancel = cancel
	c.done = make(chan struct{})

	go func() {
		defer close(c.done)
		for {
			if err := c.client.Consume(ctx, c.topics, c.handler); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				logger.Error("kafka consume error", zap.Error(err))
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
				}
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	logger.Info("kafka consumer started",
		zap.Strings("topics", c.topics),
		zap.String("group_id", c.groupID))
	return nil
}

// Stop 停止消费并关闭消费组
func (c *Consumer) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return nil
	}
	c.running = false
	c.cancel()
	<-c.done
	return c.client.Close()
}

// DepositHandler deposits 消息处理, 实现 sarama.ConsumerGroupHandler
type DepositHandler struct {
	creditor DepositCreditor
}

// NewDepositHandler 创建充值消息处理器
func NewDepositHandler(creditor DepositCreditor) *DepositHandler {
	return &DepositHandler{creditor: creditor}
}

func (h *DepositHandler) Setup(_ sarama.ConsumerGroupSession) error   { return nil }
func (h *DepositHandler) Cleanup(_ sarama.ConsumerGroupSession) error { return nil }

func (h *DepositHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		if err := h.Handle(session.Context(), msg); err != nil {
			// 内部错误不提交位点, 重新平衡后重投
			return err
		}
		session.MarkMessage(msg, "")
	}
	return nil
}

// Handle 处理单条消息
// 格式错误或被业务拒绝的消息记录日志后跳过, 只有内部错误返回 error
func (h *DepositHandler) Handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var dep model.ExternalDeposit
	if err := json.Unmarshal(msg.Value, &dep); err != nil {
		metrics.RecordKafkaMessage(msg.Topic, false, false)
		logger.Error("failed to decode deposit message",
			zap.String("topic", msg.Topic),
			zap.Int64("offset", msg.Offset),
			zap.Error(err))
		return nil
	}

	credited, err := h.creditor.CreditExternal(ctx, &dep)
	if err != nil {
		metrics.RecordKafkaMessage(msg.Topic, false, false)
		if apperrors.GetKind(err) != apperrors.KindInternal {
			logger.Warn("deposit message rejected",
				zap.String("deposit_id", dep.DepositID),
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
			return nil
		}
		logger.Error("failed to credit deposit",
			zap.String("deposit_id", dep.DepositID),
			zap.Int64("offset", msg.Offset),
			zap.Error(err))
		return err
	}

	metrics.RecordKafkaMessage(msg.Topic, false, true)
	logger.Debug("deposit message handled",
		zap.String("deposit_id", dep.DepositID),
		zap.Bool("credited", credited))
	return nil
}
