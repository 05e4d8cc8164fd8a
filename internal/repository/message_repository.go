package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/eidos-exchange/eidos/eidos-yield/internal/model"
)

var ErrMessageAlreadyProcessed = errors.New("message already processed")

// MessageRepository 已处理消息集合
type MessageRepository interface {
	Exists(ctx context.Context, scope model.MessageScope, messageID string) (bool, error)
	// Mark 加入集合, 已存在时返回 ErrMessageAlreadyProcessed
	Mark(ctx context.Context, scope model.MessageScope, messageID string, height int64) error
}

type messageRepository struct {
	*Repository
}

// NewMessageRepository 创建已处理消息仓储
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{Repository: NewRepository(db)}
}

func (r *messageRepository) Exists(ctx context.Context, scope model.MessageScope, messageID string) (bool, error) {
	var n int64
	err := r.DB(ctx).Model(&model.ProcessedMessage{}).
		Where("scope = ? AND message_id = ?", scope, messageID).
		Count(&n).Error
	return n > 0, err
}

func (r *messageRepository) Mark(ctx context.Context, scope model.MessageScope, messageID string, height int64) error {
	exists, err := r.Exists(ctx, scope, messageID)
	if err != nil {
		return err
	}
	if exists {
		return ErrMessageAlreadyProcessed
	}
	err = r.DB(ctx).Create(&model.ProcessedMessage{
		Scope:     scope,
		MessageID: messageID,
		Height:    height,
		CreatedAt: nowMilli(),
	}).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrMessageAlreadyProcessed
	}
	return err
}
