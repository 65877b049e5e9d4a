package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	OrderStateNormal          = "normal"
	OrderStateOverdue         = "overdue"
	OrderStateBreach          = "breach"
	OrderStateCompleted       = "completed"
	OrderStateBreachCompleted = "breach_completed"
)

// ValidStateTransitions 订单状态机
// completed 和 breach_completed 为终态，不允许再转出
var ValidStateTransitions = map[string][]string{
	OrderStateNormal:  {OrderStateOverdue, OrderStateBreach, OrderStateCompleted},
	OrderStateOverdue: {OrderStateNormal, OrderStateBreach, OrderStateCompleted},
	OrderStateBreach:  {OrderStateBreachCompleted},
}

func CanTransitionTo(currentState, targetState string) bool {
	allowedStates, exists := ValidStateTransitions[currentState]
	if !exists {
		return false
	}
	for _, s := range allowedStates {
		if s == targetState {
			return true
		}
	}
	return false
}

// IsActiveState 非终态订单占用群聊（每个群聊至多一个活跃订单）
func IsActiveState(state string) bool {
	return state == OrderStateNormal || state == OrderStateOverdue || state == OrderStateBreach
}

const (
	CustomerNew       = "A" // 新客户
	CustomerReturning = "B" // 老客户
)

// Order 订单表
// 一个群聊对应一笔借款订单，订单随生命周期命令流转状态，
// 每次状态流转的资金影响通过收入明细和统计表记录。
type Order struct {
	ID           int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID      string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"order_id"`
	GroupID      string          `gorm:"type:varchar(32);index;not null" json:"group_id"` // 归属ID，可变更
	ChatID       int64           `gorm:"index;not null" json:"chat_id"`
	Date         string          `gorm:"type:varchar(10);not null" json:"date"`
	WeekdayGroup string          `gorm:"type:varchar(4);not null" json:"weekday_group"`
	Customer     string          `gorm:"type:varchar(4);not null" json:"customer"`
	Amount       decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"` // 当前本金
	State        string          `gorm:"type:varchar(20);index;not null" json:"state"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Order) TableName() string {
	return "orders"
}
