package repository

import (
	"context"
	"errors"

	"loanbook/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrOrderNotFound     = errors.New("订单不存在")
	ErrOrderExists       = errors.New("该群聊已存在活跃订单")
	ErrOrderStateInvalid = errors.New("订单状态不合法")
)

// 活跃状态集合（非终态）
var activeStates = []string{
	model.OrderStateNormal,
	model.OrderStateOverdue,
	model.OrderStateBreach,
}

type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Create(ctx context.Context, tx *gorm.DB, order *model.Order) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(order).Error
}

// GetActiveByChatID 按群聊查找活跃订单（每个群聊至多一个）
func (r *OrderRepository) GetActiveByChatID(ctx context.Context, chatID int64) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).
		Where("chat_id = ? AND state IN ?", chatID, activeStates).
		Order("id DESC").
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (r *OrderRepository) GetByOrderID(ctx context.Context, tx *gorm.DB, orderID string) (*model.Order, error) {
	if tx == nil {
		tx = r.db
	}
	var order model.Order
	err := tx.WithContext(ctx).Where("order_id = ?", orderID).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// UpdateState 按状态机流转订单状态
// WHERE 带上 fromState 做 CAS：并发下只有一个调用方能完成流转
func (r *OrderRepository) UpdateState(ctx context.Context, tx *gorm.DB, chatID int64, fromState, toState string) error {
	if !model.CanTransitionTo(fromState, toState) {
		return ErrOrderStateInvalid
	}
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.Order{}).
		Where("chat_id = ? AND state = ?", chatID, fromState).
		Update("state", toState)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrOrderStateInvalid
	}
	return nil
}

// ForceState 直接写回订单状态（仅撤销引擎恢复旧状态时使用，不走状态机校验）
func (r *OrderRepository) ForceState(ctx context.Context, tx *gorm.DB, chatID int64, orderID, state string) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.Order{}).
		Where("chat_id = ? AND order_id = ?", chatID, orderID).
		Update("state", state)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// UpdateAmount 更新订单当前本金
func (r *OrderRepository) UpdateAmount(ctx context.Context, tx *gorm.DB, chatID int64, orderID string, amount decimal.Decimal) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.Order{}).
		Where("chat_id = ? AND order_id = ?", chatID, orderID).
		Update("amount", amount)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// UpdateGroupID 变更订单归属ID
func (r *OrderRepository) UpdateGroupID(ctx context.Context, tx *gorm.DB, chatID int64, orderID, groupID string) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.Order{}).
		Where("chat_id = ? AND order_id = ?", chatID, orderID).
		Update("group_id", groupID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// Delete 物理删除订单（仅撤销订单创建时使用）
func (r *OrderRepository) Delete(ctx context.Context, tx *gorm.DB, chatID int64, orderID string) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Where("chat_id = ? AND order_id = ?", chatID, orderID).
		Delete(&model.Order{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// SearchCriteria 订单搜索条件
type SearchCriteria struct {
	GroupID      string
	State        string
	States       []string
	Customer     string
	WeekdayGroup string
	StartDate    string
	EndDate      string
}

// Search 多条件搜索订单
func (r *OrderRepository) Search(ctx context.Context, c SearchCriteria) ([]*model.Order, error) {
	query := r.db.WithContext(ctx).Model(&model.Order{})

	if c.GroupID != "" {
		query = query.Where("group_id = ?", c.GroupID)
	}
	if c.State != "" {
		query = query.Where("state = ?", c.State)
	}
	if len(c.States) > 0 {
		query = query.Where("state IN ?", c.States)
	}
	if c.Customer != "" {
		query = query.Where("customer = ?", c.Customer)
	}
	if c.WeekdayGroup != "" {
		query = query.Where("weekday_group = ?", c.WeekdayGroup)
	}
	if c.StartDate != "" {
		query = query.Where("date >= ?", c.StartDate)
	}
	if c.EndDate != "" {
		query = query.Where("date <= ?", c.EndDate)
	}

	var orders []*model.Order
	err := query.Order("date DESC").Find(&orders).Error
	return orders, err
}

// ListAll 获取全部订单（对账用）
func (r *OrderRepository) ListAll(ctx context.Context) ([]*model.Order, error) {
	var orders []*model.Order
	err := r.db.WithContext(ctx).Find(&orders).Error
	return orders, err
}
