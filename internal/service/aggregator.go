package service

import (
	"context"
	"fmt"

	"loanbook/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StatPrefix 统计前缀（封闭集合）
// 一个前缀对应一对列：<prefix>_amount 金额列 + 笔数列
type StatPrefix string

const (
	PrefixValid      StatPrefix = "valid"
	PrefixCompleted  StatPrefix = "completed"
	PrefixBreach     StatPrefix = "breach"
	PrefixBreachEnd  StatPrefix = "breach_end"
	PrefixInterest   StatPrefix = "interest"
	PrefixNewClients StatPrefix = "new_clients"
	PrefixOldClients StatPrefix = "old_clients"
)

// prefixFields 前缀到金额列/笔数列的映射
// interest 只有金额列，笔数列留空
var prefixFields = map[StatPrefix][2]repository.Field{
	PrefixValid:      {repository.FieldValidAmount, repository.FieldValidOrders},
	PrefixCompleted:  {repository.FieldCompletedAmount, repository.FieldCompletedOrders},
	PrefixBreach:     {repository.FieldBreachAmount, repository.FieldBreachOrders},
	PrefixBreachEnd:  {repository.FieldBreachEndAmount, repository.FieldBreachEndOrders},
	PrefixInterest:   {repository.FieldInterest, ""},
	PrefixNewClients: {repository.FieldNewClientsAmount, repository.FieldNewClients},
	PrefixOldClients: {repository.FieldOldClientsAmount, repository.FieldOldClients},
}

// Aggregator 三级聚合写入口
//
// 所有业务操作的统计影响都经由这里落到全局、归属ID、日结三张表，
// 保证同一笔增量在各层级同步生效。必须在调用方事务内执行。
type Aggregator struct {
	ledgerRepo *repository.LedgerRepository
}

func NewAggregator(ledgerRepo *repository.LedgerRepository) *Aggregator {
	return &Aggregator{ledgerRepo: ledgerRepo}
}

// UpdateAllStats 按前缀向三个层级应用增量
// valid 前缀没有日结列，只写全局和归属ID两级
func (a *Aggregator) UpdateAllStats(ctx context.Context, tx *gorm.DB, prefix StatPrefix, amountDelta decimal.Decimal, countDelta int64, groupID, date string) error {
	fields, ok := prefixFields[prefix]
	if !ok {
		return fmt.Errorf("未知的统计前缀: %s", prefix)
	}
	amountField, countField := fields[0], fields[1]

	scopes := []repository.Scope{
		repository.GlobalScope(),
		repository.GroupScope(groupID),
	}
	if prefix != PrefixValid {
		scopes = append(scopes,
			repository.DailyScope(date, ""),
			repository.DailyScope(date, groupID),
		)
	}

	for _, scope := range scopes {
		if err := a.ledgerRepo.ApplyDelta(ctx, tx, scope, amountField, amountDelta); err != nil {
			return err
		}
		if countField != "" && countDelta != 0 {
			if err := a.ledgerRepo.ApplyDelta(ctx, tx, scope, countField, decimal.NewFromInt(countDelta)); err != nil {
				return err
			}
		}
	}
	return nil
}

// MoveGroup 把某前缀的统计从一个归属ID迁移到另一个（只动归属层级）
func (a *Aggregator) MoveGroup(ctx context.Context, tx *gorm.DB, prefix StatPrefix, amount decimal.Decimal, count int64, fromGroup, toGroup string) error {
	fields, ok := prefixFields[prefix]
	if !ok {
		return fmt.Errorf("未知的统计前缀: %s", prefix)
	}
	amountField, countField := fields[0], fields[1]

	for _, mv := range []struct {
		group string
		sign  int64
	}{
		{fromGroup, -1},
		{toGroup, 1},
	} {
		scope := repository.GroupScope(mv.group)
		if err := a.ledgerRepo.ApplyDelta(ctx, tx, scope, amountField, amount.Mul(decimal.NewFromInt(mv.sign))); err != nil {
			return err
		}
		if countField != "" && count != 0 {
			if err := a.ledgerRepo.ApplyDelta(ctx, tx, scope, countField, decimal.NewFromInt(count*mv.sign)); err != nil {
				return err
			}
		}
	}
	return nil
}

// UpdateLiquid 更新流动资金：全局存量 + 当日流水
func (a *Aggregator) UpdateLiquid(ctx context.Context, tx *gorm.DB, delta decimal.Decimal, date string) error {
	if err := a.ledgerRepo.ApplyDelta(ctx, tx, repository.GlobalScope(), repository.FieldLiquidFunds, delta); err != nil {
		return err
	}
	return a.ledgerRepo.ApplyDelta(ctx, tx, repository.DailyScope(date, ""), repository.FieldLiquidFlow, delta)
}

// UpdateExpense 记录当日开销列
func (a *Aggregator) UpdateExpense(ctx context.Context, tx *gorm.DB, expenseType string, delta decimal.Decimal, date string) error {
	var field repository.Field
	switch expenseType {
	case "company":
		field = repository.FieldCompanyExpenses
	case "other":
		field = repository.FieldOtherExpenses
	default:
		return fmt.Errorf("未知的开销类型: %s", expenseType)
	}
	return a.ledgerRepo.ApplyDelta(ctx, tx, repository.DailyScope(date, ""), field, delta)
}
