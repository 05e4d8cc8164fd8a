package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/eidos-exchange/eidos/eidos-yield/internal/model"
)

// OutboxRepository 事件 outbox 仓储
type OutboxRepository interface {
	// Create 写入消息, 在 ctx 携带的事务中执行
	Create(ctx context.Context, msg *model.OutboxMessage) error
	// FetchAndClaim 认领一批 pending 消息并置为 processing, 多实例不会重复认领
	FetchAndClaim(ctx context.Context, limit int) ([]*model.OutboxMessage, error)
	MarkSent(ctx context.Context, id int64) error
	// MarkFailed 重试次数未达上限时回到 pending
	MarkFailed(ctx context.Context, id int64, cause error) error
	RecoverStale(ctx context.Context, staleAfter time.Duration) (int64, error)
	CleanSent(ctx context.Context, before int64, batchSize int) (int64, error)
	CountByStatus(ctx context.Context, status model.OutboxStatus) (int64, error)
}

type outboxRepository struct {
	*Repository
}

// NewOutboxRepository 创建 outbox 仓储
func NewOutboxRepository(db *gorm.DB) OutboxRepository {
	return &outboxRepository{Repository: NewRepository(db)}
}

func (r *outboxRepository) Create(ctx context.Context, msg *model.OutboxMessage) error {
	now := nowMilli()
	if msg.Status == "" {
		msg.Status = model.OutboxStatusPending
	}
	if msg.MaxRetries == 0 {
		msg.MaxRetries = 5
	}
	msg.CreatedAt = now
	msg.UpdatedAt = now
	return r.DB(ctx).Create(msg).Error
}

func (r *outboxRepository) FetchAndClaim(ctx context.Context, limit int) ([]*model.OutboxMessage, error) {
	var messages []*model.OutboxMessage
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []int64
		if err := tx.Raw(`
			SELECT id FROM yield_outbox_messages
			WHERE status = ?
			ORDER BY id ASC
			LIMIT ?
			FOR UPDATE SKIP LOCKED
		`, model.OutboxStatusPending, limit).Scan(&ids).Error; err != nil {
			return fmt.Errorf("select pending messages: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}

		if err := tx.Exec(`
			UPDATE yield_outbox_messages
			SET status = ?, updated_at = ?
			WHERE id IN ?
		`, model.OutboxStatusProcessing, nowMilli(), ids).Error; err != nil {
			return fmt.Errorf("claim messages: %w", err)
		}

		if err := tx.Where("id IN ?", ids).Order("id ASC").Find(&messages).Error; err != nil {
			return fmt.Errorf("load claimed messages: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *outboxRepository) MarkSent(ctx context.Context, id int64) error {
	now := nowMilli()
	err := r.DB(ctx).Exec(`
		UPDATE yield_outbox_messages
		SET status = ?, sent_at = ?, updated_at = ?
		WHERE id = ?
	`, model.OutboxStatusSent, now, now, id).Error
	if err != nil {
		return fmt.Errorf("mark message sent: %w", err)
	}
	return nil
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id int64, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
		if len(msg) > 500 {
			msg = msg[:500]
		}
	}
	err := r.DB(ctx).Exec(`
		UPDATE yield_outbox_messages
		SET retry_count = retry_count + 1,
		    last_error = ?,
		    updated_at = ?,
		    status = CASE WHEN retry_count + 1 >= max_retries THEN 'failed' ELSE 'pending' END
		WHERE id = ?
	`, msg, nowMilli(), id).Error
	if err != nil {
		return fmt.Errorf("mark message failed: %w", err)
	}
	return nil
}

func (r *outboxRepository) RecoverStale(ctx context.Context, staleAfter time.Duration) (int64, error) {
	now := time.Now()
	result := r.DB(ctx).Exec(`
		UPDATE yield_outbox_messages
		SET status = 'pending', updated_at = ?
		WHERE status = 'processing' AND updated_at < ?
	`, now.UnixMilli(), now.Add(-staleAfter).UnixMilli())
	if result.Error != nil {
		return 0, fmt.Errorf("recover stale messages: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *outboxRepository) CleanSent(ctx context.Context, before int64, batchSize int) (int64, error) {
	var total int64
	for {
		result := r.DB(ctx).Exec(`
			DELETE FROM yield_outbox_messages
			WHERE id IN (
				SELECT id FROM yield_outbox_messages
				WHERE status = 'sent' AND sent_at < ?
				LIMIT ?
			)
		`, before, batchSize)
		if result.Error != nil {
			return total, fmt.Errorf("clean sent messages: %w", result.Error)
		}
		total += result.RowsAffected
		if result.RowsAffected < int64(batchSize) {
			return total, nil
		}
	}
}

func (r *outboxRepository) CountByStatus(ctx context.Context, status model.OutboxStatus) (int64, error) {
	var n int64
	err := r.DB(ctx).Model(&model.OutboxMessage{}).Where("status = ?", status).Count(&n).Error
	return n, err
}
