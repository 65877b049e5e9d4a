package repository

import (
	"context"
	"errors"

	"loanbook/internal/model"

	"gorm.io/gorm"
)

var (
	ErrOperationNotFound = errors.New("操作记录不存在")
	// ErrOperationConsumed 该操作已被撤销（CAS 失败）
	ErrOperationConsumed = errors.New("操作记录已被撤销")
)

// OperationRepository 操作历史仓储
type OperationRepository struct {
	db *gorm.DB
}

func NewOperationRepository(db *gorm.DB) *OperationRepository {
	return &OperationRepository{db: db}
}

// Append 追加操作记录
// 业务变更事务提交之后才调用：记录失败不回滚业务，由调用方上报部分写入
func (r *OperationRepository) Append(ctx context.Context, tx *gorm.DB, log *model.OperationLog) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(log).Error
}

// GetLastUndoable 取某用户在某群聊、某业务日期内最近一条未撤销的操作
func (r *OperationRepository) GetLastUndoable(ctx context.Context, userID, chatID int64, bizDate string) (*model.OperationLog, error) {
	var log model.OperationLog
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND chat_id = ? AND biz_date = ? AND is_undone = ?", userID, chatID, bizDate, false).
		Order("created_at DESC, id DESC").
		First(&log).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOperationNotFound
		}
		return nil, err
	}
	return &log, nil
}

func (r *OperationRepository) GetByID(ctx context.Context, id int64) (*model.OperationLog, error) {
	var log model.OperationLog
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&log).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOperationNotFound
		}
		return nil, err
	}
	return &log, nil
}

// MarkUndone CAS 消费一条操作记录，并发撤销下只有一个调用方成功
func (r *OperationRepository) MarkUndone(ctx context.Context, tx *gorm.DB, id int64) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.OperationLog{}).
		Where("id = ? AND is_undone = ?", id, false).
		Update("is_undone", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrOperationConsumed
	}
	return nil
}

// ListRecent 按群聊查询最近的操作记录
func (r *OperationRepository) ListRecent(ctx context.Context, chatID int64, limit int) ([]*model.OperationLog, error) {
	if limit <= 0 {
		limit = 20
	}
	var logs []*model.OperationLog
	err := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}
