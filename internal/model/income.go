package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 收入类型
const (
	IncomeTypeInterest           = "interest"            // 利息收入
	IncomeTypeCompleted          = "completed"           // 订单完成
	IncomeTypeBreachEnd          = "breach_end"          // 违约完成（回收资金）
	IncomeTypePrincipalReduction = "principal_reduction" // 本金减少
)

// IncomeRecord 收入明细表
//
// 只追加，不修改，不删除，是对账的核心依据。
// 撤销时仅把 is_undone 置 1，历史完整保留。
type IncomeRecord struct {
	ID           int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	Date         string          `gorm:"type:varchar(10);index;not null" json:"date"`
	Type         string          `gorm:"type:varchar(32);index;not null" json:"type"`
	Amount       decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	GroupID      string          `gorm:"type:varchar(32);index" json:"group_id"`
	OrderID      string          `gorm:"type:varchar(64);index" json:"order_id"`
	OrderDate    string          `gorm:"type:varchar(10)" json:"order_date"`
	Customer     string          `gorm:"type:varchar(4)" json:"customer"`
	WeekdayGroup string          `gorm:"type:varchar(4)" json:"weekday_group"`
	Note         string          `gorm:"type:varchar(256)" json:"note"`
	CreatedBy    int64           `json:"created_by"`
	CreatedAt    time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	IsUndone     bool            `gorm:"not null;default:false" json:"is_undone"`
}

func (IncomeRecord) TableName() string {
	return "income_records"
}

// 开销类型
const (
	ExpenseTypeCompany = "company"
	ExpenseTypeOther   = "other"
)

// ExpenseRecord 开销明细表
// 与收入明细一样只追加；撤销走 is_undone 软删除
type ExpenseRecord struct {
	ID        int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	Date      string          `gorm:"type:varchar(10);index;not null" json:"date"`
	Type      string          `gorm:"type:varchar(16);not null" json:"type"`
	Amount    decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	Note      string          `gorm:"type:varchar(256)" json:"note"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	IsUndone  bool            `gorm:"not null;default:false" json:"is_undone"`
}

func (ExpenseRecord) TableName() string {
	return "expense_records"
}
