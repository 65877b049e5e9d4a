package repository

import (
	"context"
	"errors"

	"loanbook/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var ErrIncomeNotFound = errors.New("收入明细不存在")

// IncomeRepository 收入明细仓储
//
// Append 是持久化边界：追加失败时调用方必须视为"什么都没发生"，
// 不得继续更新统计数据。记录只追加、不改写，撤销只置 is_undone。
type IncomeRepository struct {
	db *gorm.DB
}

func NewIncomeRepository(db *gorm.DB) *IncomeRepository {
	return &IncomeRepository{db: db}
}

// Append 追加收入明细，成功后 record.ID 即为持久化事件ID
func (r *IncomeRepository) Append(ctx context.Context, tx *gorm.DB, record *model.IncomeRecord) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(record).Error
}

// MarkUndone 软撤销收入明细（CAS：已撤销的行不会二次消费）
func (r *IncomeRepository) MarkUndone(ctx context.Context, tx *gorm.DB, id int64) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.IncomeRecord{}).
		Where("id = ? AND is_undone = ?", id, false).
		Update("is_undone", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrIncomeNotFound
	}
	return nil
}

// IncomeFilter 收入明细查询条件
type IncomeFilter struct {
	StartDate     string
	EndDate       string
	Type          string
	Customer      string
	GroupID       string
	OrderID       string
	IncludeUndone bool // 默认排除已撤销的行
}

// Query 按条件查询收入明细
func (r *IncomeRepository) Query(ctx context.Context, f IncomeFilter) ([]*model.IncomeRecord, error) {
	query := r.db.WithContext(ctx).Model(&model.IncomeRecord{})

	if f.StartDate != "" {
		query = query.Where("date >= ?", f.StartDate)
	}
	if f.EndDate != "" {
		query = query.Where("date <= ?", f.EndDate)
	}
	if f.Type != "" {
		query = query.Where("type = ?", f.Type)
	}
	if f.Customer != "" {
		query = query.Where("customer = ?", f.Customer)
	}
	if f.GroupID != "" {
		query = query.Where("group_id = ?", f.GroupID)
	}
	if f.OrderID != "" {
		query = query.Where("order_id = ?", f.OrderID)
	}
	if !f.IncludeUndone {
		query = query.Where("is_undone = ?", false)
	}

	var records []*model.IncomeRecord
	err := query.Order("created_at DESC, id DESC").Find(&records).Error
	return records, err
}

// SumByOrderID 汇总某订单的某类收入（利息累计查询用）
func (r *IncomeRepository) SumByOrderID(ctx context.Context, orderID, incomeType string) (decimal.Decimal, int64, error) {
	var result struct {
		Total decimal.Decimal
		Count int64
	}
	err := r.db.WithContext(ctx).
		Model(&model.IncomeRecord{}).
		Select("COALESCE(SUM(amount), 0) AS total, COUNT(*) AS count").
		Where("order_id = ? AND type = ? AND is_undone = ?", orderID, incomeType, false).
		Scan(&result).Error
	if err != nil {
		return decimal.Zero, 0, err
	}
	return result.Total, result.Count, nil
}
