package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================================
// 滚动统计表
//
// 三级聚合：全局（financial_data）、按归属ID（grouped_data）、
// 按业务日期（daily_data）。所有字段只通过带符号的增量更新
// （UPDATE col = col + ?），不做整行覆盖；只有对账修复走同一增量原语。
// ============================================================================

// FinancialData 全局财务统计（取 id 最大的一行为当前值）
type FinancialData struct {
	ID               int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	ValidOrders      int64           `gorm:"not null;default:0" json:"valid_orders"`
	ValidAmount      decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"valid_amount"`
	LiquidFunds      decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"liquid_funds"`
	NewClients       int64           `gorm:"not null;default:0" json:"new_clients"`
	NewClientsAmount decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"new_clients_amount"`
	OldClients       int64           `gorm:"not null;default:0" json:"old_clients"`
	OldClientsAmount decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"old_clients_amount"`
	Interest         decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"interest"`
	CompletedOrders  int64           `gorm:"not null;default:0" json:"completed_orders"`
	CompletedAmount  decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"completed_amount"`
	BreachOrders     int64           `gorm:"not null;default:0" json:"breach_orders"`
	BreachAmount     decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"breach_amount"`
	BreachEndOrders  int64           `gorm:"not null;default:0" json:"breach_end_orders"`
	BreachEndAmount  decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"breach_end_amount"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (FinancialData) TableName() string {
	return "financial_data"
}

// GroupedData 按归属ID统计
type GroupedData struct {
	ID               int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	GroupID          string          `gorm:"type:varchar(32);uniqueIndex;not null" json:"group_id"`
	ValidOrders      int64           `gorm:"not null;default:0" json:"valid_orders"`
	ValidAmount      decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"valid_amount"`
	LiquidFunds      decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"liquid_funds"`
	NewClients       int64           `gorm:"not null;default:0" json:"new_clients"`
	NewClientsAmount decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"new_clients_amount"`
	OldClients       int64           `gorm:"not null;default:0" json:"old_clients"`
	OldClientsAmount decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"old_clients_amount"`
	Interest         decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"interest"`
	CompletedOrders  int64           `gorm:"not null;default:0" json:"completed_orders"`
	CompletedAmount  decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"completed_amount"`
	BreachOrders     int64           `gorm:"not null;default:0" json:"breach_orders"`
	BreachAmount     decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"breach_amount"`
	BreachEndOrders  int64           `gorm:"not null;default:0" json:"breach_end_orders"`
	BreachEndAmount  decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"breach_end_amount"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (GroupedData) TableName() string {
	return "grouped_data"
}

// DailyData 日结统计
// group_id 为空字符串表示该业务日期的全局行；
// 开销与流动资金流水只记在全局行上。
type DailyData struct {
	ID               int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	Date             string          `gorm:"type:varchar(10);uniqueIndex:uk_daily_date_group,priority:1;not null" json:"date"`
	GroupID          string          `gorm:"type:varchar(32);uniqueIndex:uk_daily_date_group,priority:2;not null;default:''" json:"group_id"`
	NewClients       int64           `gorm:"not null;default:0" json:"new_clients"`
	NewClientsAmount decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"new_clients_amount"`
	OldClients       int64           `gorm:"not null;default:0" json:"old_clients"`
	OldClientsAmount decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"old_clients_amount"`
	Interest         decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"interest"`
	CompletedOrders  int64           `gorm:"not null;default:0" json:"completed_orders"`
	CompletedAmount  decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"completed_amount"`
	BreachOrders     int64           `gorm:"not null;default:0" json:"breach_orders"`
	BreachAmount     decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"breach_amount"`
	BreachEndOrders  int64           `gorm:"not null;default:0" json:"breach_end_orders"`
	BreachEndAmount  decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"breach_end_amount"`
	LiquidFlow       decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"liquid_flow"`
	CompanyExpenses  decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"company_expenses"`
	OtherExpenses    decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"other_expenses"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (DailyData) TableName() string {
	return "daily_data"
}
