package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// OperationType 可撤销操作类型（封闭集合）
//
// 每种类型对应一个强类型负载结构，撤销引擎按类型分派到注册的逆操作。
// 从库里读出的未知字符串走宽容分支：仅标记已撤销，不回滚数据。
type OperationType string

const (
	OpOrderCreated       OperationType = "order_created"
	OpOrderStateChange   OperationType = "order_state_change"
	OpOrderCompleted     OperationType = "order_completed"
	OpOrderBreachEnd     OperationType = "order_breach_end"
	OpOrderGroupChange   OperationType = "order_group_change"
	OpInterest           OperationType = "interest"
	OpPrincipalReduction OperationType = "principal_reduction"
	OpExpense            OperationType = "expense"
	OpUndo               OperationType = "operation_undo"
)

// OperationLog 操作历史表
// 每个成功的变更操作同步写入一条，记录足够还原该操作的负载。
// is_undone 只由撤销引擎置位（CAS 消费，防止并发重复撤销）。
type OperationLog struct {
	ID            int64         `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID        int64         `gorm:"index:idx_op_user_chat,priority:1;not null" json:"user_id"`
	ChatID        int64         `gorm:"index:idx_op_user_chat,priority:2;not null" json:"chat_id"`
	OperationType OperationType `gorm:"type:varchar(32);not null" json:"operation_type"`
	OperationData string        `gorm:"type:text;not null" json:"operation_data"`
	BizDate       string        `gorm:"type:varchar(10);index;not null" json:"biz_date"` // 所属业务日期，撤销窗口按此过滤
	CreatedAt     time.Time     `gorm:"autoCreateTime" json:"created_at"`
	IsUndone      bool          `gorm:"not null;default:false" json:"is_undone"`
}

func (OperationLog) TableName() string {
	return "operation_history"
}

// Payload 反序列化负载
func (o *OperationLog) Payload(v interface{}) error {
	return json.Unmarshal([]byte(o.OperationData), v)
}

// MarshalPayload 序列化负载
func MarshalPayload(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ============================================================================
// 各操作类型的负载结构
// ============================================================================

// OrderCreatedData 订单创建
type OrderCreatedData struct {
	ChatID       int64           `json:"chat_id"`
	OrderID      string          `json:"order_id"`
	GroupID      string          `json:"group_id"`
	Amount       decimal.Decimal `json:"amount"`
	Customer     string          `json:"customer"`
	InitialState string          `json:"initial_state"`
	IsHistorical bool            `json:"is_historical"` // 历史补录订单不影响流动资金和客户统计
	Date         string          `json:"date"`
}

// OrderStateChangeData 普通状态变更（normal/overdue/breach 之间）
type OrderStateChangeData struct {
	ChatID   int64           `json:"chat_id"`
	OrderID  string          `json:"order_id"`
	OldState string          `json:"old_state"`
	NewState string          `json:"new_state"`
	GroupID  string          `json:"group_id"`
	Amount   decimal.Decimal `json:"amount"`
}

// OrderCompletedData 订单完成
type OrderCompletedData struct {
	ChatID   int64           `json:"chat_id"`
	OrderID  string          `json:"order_id"`
	GroupID  string          `json:"group_id"` // 完成时的归属ID
	Amount   decimal.Decimal `json:"amount"`
	OldState string          `json:"old_state"`
	Date     string          `json:"date"`
	IncomeID int64           `json:"income_record_id"`
}

// OrderBreachEndData 违约完成
// 同时保留本金和结算金额，保证撤销能精确反向
type OrderBreachEndData struct {
	ChatID          int64           `json:"chat_id"`
	OrderID         string          `json:"order_id"`
	GroupID         string          `json:"group_id"`
	PrincipalAmount decimal.Decimal `json:"principal_amount"`
	SettleAmount    decimal.Decimal `json:"settle_amount"`
	Date            string          `json:"date"`
	IncomeID        int64           `json:"income_record_id"`
}

// OrderGroupChangeData 归属变更
type OrderGroupChangeData struct {
	ChatID     int64           `json:"chat_id"`
	OrderID    string          `json:"order_id"`
	OldGroupID string          `json:"old_group_id"`
	NewGroupID string          `json:"new_group_id"`
	Amount     decimal.Decimal `json:"amount"`
	State      string          `json:"state"`
}

// InterestData 利息收入
type InterestData struct {
	ChatID   int64           `json:"chat_id"`
	OrderID  string          `json:"order_id"`
	GroupID  string          `json:"group_id"`
	Amount   decimal.Decimal `json:"amount"`
	Date     string          `json:"date"`
	IncomeID int64           `json:"income_record_id"`
}

// PrincipalReductionData 本金减少
type PrincipalReductionData struct {
	ChatID    int64           `json:"chat_id"`
	OrderID   string          `json:"order_id"`
	GroupID   string          `json:"group_id"`
	Amount    decimal.Decimal `json:"amount"`
	OldAmount decimal.Decimal `json:"old_amount"`
	Date      string          `json:"date"`
	IncomeID  int64           `json:"income_record_id"`
}

// ExpenseData 开销记录
type ExpenseData struct {
	ExpenseID int64           `json:"expense_record_id"`
	Type      string          `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
	Date      string          `json:"date"`
}

// UndoData 撤销操作本身的记录（不支持二次撤销）
type UndoData struct {
	UndoneOperationID   int64         `json:"undone_operation_id"`
	UndoneOperationType OperationType `json:"undone_operation_type"`
	Message             string        `json:"message"`
}
