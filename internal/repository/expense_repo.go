package repository

import (
	"context"
	"errors"

	"loanbook/internal/model"

	"gorm.io/gorm"
)

var ErrExpenseNotFound = errors.New("开销明细不存在")

type ExpenseRepository struct {
	db *gorm.DB
}

func NewExpenseRepository(db *gorm.DB) *ExpenseRepository {
	return &ExpenseRepository{db: db}
}

func (r *ExpenseRepository) Append(ctx context.Context, tx *gorm.DB, record *model.ExpenseRecord) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(record).Error
}

// MarkUndone 软撤销开销明细
func (r *ExpenseRepository) MarkUndone(ctx context.Context, tx *gorm.DB, id int64) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.ExpenseRecord{}).
		Where("id = ? AND is_undone = ?", id, false).
		Update("is_undone", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrExpenseNotFound
	}
	return nil
}

// Query 查询区间内的开销明细（默认排除已撤销）
func (r *ExpenseRepository) Query(ctx context.Context, startDate, endDate, expenseType string, includeUndone bool) ([]*model.ExpenseRecord, error) {
	query := r.db.WithContext(ctx).Model(&model.ExpenseRecord{})

	if startDate != "" {
		query = query.Where("date >= ?", startDate)
	}
	if endDate != "" {
		query = query.Where("date <= ?", endDate)
	}
	if expenseType != "" {
		query = query.Where("type = ?", expenseType)
	}
	if !includeUndone {
		query = query.Where("is_undone = ?", false)
	}

	var records []*model.ExpenseRecord
	err := query.Order("created_at DESC, id DESC").Find(&records).Error
	return records, err
}
