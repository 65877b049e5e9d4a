package service

import (
	"context"

	"loanbook/internal/model"
	"loanbook/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Diff 统计表与明细重算结果的偏差
type Diff struct {
	Scope    repository.Scope `json:"scope"`
	Field    repository.Field `json:"field"`
	Current  decimal.Decimal  `json:"current"`
	Expected decimal.Decimal  `json:"expected"`
	Delta    decimal.Decimal  `json:"delta"` // expected - current，修复时直接作为增量
}

// ReconcileService 对账服务
//
// 有效/违约口径从订单表重算，利息/完成/违约完成口径从收入明细重算
// （排除已撤销的行）。新老客户计数和流动资金没有对应的明细来源，
// 不在重算范围内。修复走与业务写入相同的增量原语。
type ReconcileService struct {
	db         *gorm.DB
	orderRepo  *repository.OrderRepository
	incomeRepo *repository.IncomeRepository
	ledgerRepo *repository.LedgerRepository
}

func NewReconcileService(
	db *gorm.DB,
	orderRepo *repository.OrderRepository,
	incomeRepo *repository.IncomeRepository,
	ledgerRepo *repository.LedgerRepository,
) *ReconcileService {
	return &ReconcileService{
		db:         db,
		orderRepo:  orderRepo,
		incomeRepo: incomeRepo,
		ledgerRepo: ledgerRepo,
	}
}

// 全局/归属层级参与对账的字段
var reconcileFields = []repository.Field{
	repository.FieldValidOrders,
	repository.FieldValidAmount,
	repository.FieldInterest,
	repository.FieldCompletedOrders,
	repository.FieldCompletedAmount,
	repository.FieldBreachOrders,
	repository.FieldBreachAmount,
	repository.FieldBreachEndOrders,
	repository.FieldBreachEndAmount,
}

// 日结层级参与对账的字段（有效/违约在日结表没有对应列）
var reconcileDailyFields = []repository.Field{
	repository.FieldInterest,
	repository.FieldCompletedOrders,
	repository.FieldCompletedAmount,
	repository.FieldBreachEndOrders,
	repository.FieldBreachEndAmount,
}

type fieldSums map[repository.Field]decimal.Decimal

func (f fieldSums) add(field repository.Field, v decimal.Decimal) {
	f[field] = f[field].Add(v)
}

type dailyKey struct {
	date    string
	groupID string
}

// RecomputeAndDiff 从明细重算期望值并与统计表逐字段比对
func (s *ReconcileService) RecomputeAndDiff(ctx context.Context) ([]Diff, error) {
	globalExp := fieldSums{}
	groupExp := map[string]fieldSums{}
	dailyExp := map[dailyKey]fieldSums{}

	groupOf := func(groupID string) fieldSums {
		if _, ok := groupExp[groupID]; !ok {
			groupExp[groupID] = fieldSums{}
		}
		return groupExp[groupID]
	}
	dailyOf := func(date, groupID string) fieldSums {
		k := dailyKey{date: date, groupID: groupID}
		if _, ok := dailyExp[k]; !ok {
			dailyExp[k] = fieldSums{}
		}
		return dailyExp[k]
	}

	orders, err := s.orderRepo.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	one := decimal.NewFromInt(1)
	for _, order := range orders {
		switch order.State {
		case model.OrderStateNormal, model.OrderStateOverdue:
			for _, sums := range []fieldSums{globalExp, groupOf(order.GroupID)} {
				sums.add(repository.FieldValidOrders, one)
				sums.add(repository.FieldValidAmount, order.Amount)
			}
		case model.OrderStateBreach:
			for _, sums := range []fieldSums{globalExp, groupOf(order.GroupID)} {
				sums.add(repository.FieldBreachOrders, one)
				sums.add(repository.FieldBreachAmount, order.Amount)
			}
		}
	}

	incomes, err := s.incomeRepo.Query(ctx, repository.IncomeFilter{})
	if err != nil {
		return nil, err
	}
	for _, income := range incomes {
		targets := []fieldSums{
			globalExp,
			groupOf(income.GroupID),
			dailyOf(income.Date, ""),
			dailyOf(income.Date, income.GroupID),
		}
		for _, sums := range targets {
			switch income.Type {
			case model.IncomeTypeInterest:
				sums.add(repository.FieldInterest, income.Amount)
			case model.IncomeTypeCompleted:
				sums.add(repository.FieldCompletedOrders, one)
				sums.add(repository.FieldCompletedAmount, income.Amount)
			case model.IncomeTypeBreachEnd:
				sums.add(repository.FieldBreachEndOrders, one)
				sums.add(repository.FieldBreachEndAmount, income.Amount)
			case model.IncomeTypePrincipalReduction:
				// 部分归还只进完成金额，不计笔数
				sums.add(repository.FieldCompletedAmount, income.Amount)
			}
		}
	}

	var diffs []Diff

	global, err := s.ledgerRepo.GetGlobal(ctx)
	if err != nil {
		return nil, err
	}
	diffs = append(diffs, compare(repository.GlobalScope(), reconcileFields, globalCurrent(global), globalExp)...)

	groups, err := s.ledgerRepo.ListGroups(ctx)
	if err != nil {
		return nil, err
	}
	seenGroups := map[string]bool{}
	for _, row := range groups {
		seenGroups[row.GroupID] = true
		diffs = append(diffs, compare(repository.GroupScope(row.GroupID), reconcileFields, groupCurrent(row), groupExp[row.GroupID])...)
	}
	for groupID, exp := range groupExp {
		if !seenGroups[groupID] {
			diffs = append(diffs, compare(repository.GroupScope(groupID), reconcileFields, fieldSums{}, exp)...)
		}
	}

	dailies, err := s.ledgerRepo.ListDailyAll(ctx)
	if err != nil {
		return nil, err
	}
	seenDaily := map[dailyKey]bool{}
	for _, row := range dailies {
		k := dailyKey{date: row.Date, groupID: row.GroupID}
		seenDaily[k] = true
		diffs = append(diffs, compare(repository.DailyScope(row.Date, row.GroupID), reconcileDailyFields, dailyCurrent(row), dailyExp[k])...)
	}
	for k, exp := range dailyExp {
		if !seenDaily[k] {
			diffs = append(diffs, compare(repository.DailyScope(k.date, k.groupID), reconcileDailyFields, fieldSums{}, exp)...)
		}
	}

	if len(diffs) > 0 {
		logrus.Warnf("对账发现 %d 处偏差", len(diffs))
	}
	return diffs, nil
}

// ApplyFixes 按偏差修复统计表，全部修复在一个事务内完成
func (s *ReconcileService) ApplyFixes(ctx context.Context, diffs []Diff) error {
	if len(diffs) == 0 {
		return nil
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		for _, diff := range diffs {
			if err := s.ledgerRepo.ApplyDelta(ctx, tx, diff.Scope, diff.Field, diff.Delta); err != nil {
				return err
			}
			logrus.WithFields(logrus.Fields{
				"scope": diff.Scope.String(),
				"field": diff.Field,
				"delta": diff.Delta,
			}).Info("统计偏差已修复")
		}
		return nil
	})
}

func compare(scope repository.Scope, fields []repository.Field, current, expected fieldSums) []Diff {
	var diffs []Diff
	for _, field := range fields {
		cur := current[field]
		exp := expected[field]
		if !cur.Equal(exp) {
			diffs = append(diffs, Diff{
				Scope:    scope,
				Field:    field,
				Current:  cur,
				Expected: exp,
				Delta:    exp.Sub(cur),
			})
		}
	}
	return diffs
}

func globalCurrent(row *model.FinancialData) fieldSums {
	return fieldSums{
		repository.FieldValidOrders:     decimal.NewFromInt(row.ValidOrders),
		repository.FieldValidAmount:     row.ValidAmount,
		repository.FieldInterest:        row.Interest,
		repository.FieldCompletedOrders: decimal.NewFromInt(row.CompletedOrders),
		repository.FieldCompletedAmount: row.CompletedAmount,
		repository.FieldBreachOrders:    decimal.NewFromInt(row.BreachOrders),
		repository.FieldBreachAmount:    row.BreachAmount,
		repository.FieldBreachEndOrders: decimal.NewFromInt(row.BreachEndOrders),
		repository.FieldBreachEndAmount: row.BreachEndAmount,
	}
}

func groupCurrent(row *model.GroupedData) fieldSums {
	return fieldSums{
		repository.FieldValidOrders:     decimal.NewFromInt(row.ValidOrders),
		repository.FieldValidAmount:     row.ValidAmount,
		repository.FieldInterest:        row.Interest,
		repository.FieldCompletedOrders: decimal.NewFromInt(row.CompletedOrders),
		repository.FieldCompletedAmount: row.CompletedAmount,
		repository.FieldBreachOrders:    decimal.NewFromInt(row.BreachOrders),
		repository.FieldBreachAmount:    row.BreachAmount,
		repository.FieldBreachEndOrders: decimal.NewFromInt(row.BreachEndOrders),
		repository.FieldBreachEndAmount: row.BreachEndAmount,
	}
}

func dailyCurrent(row *model.DailyData) fieldSums {
	return fieldSums{
		repository.FieldInterest:        row.Interest,
		repository.FieldCompletedOrders: decimal.NewFromInt(row.CompletedOrders),
		repository.FieldCompletedAmount: row.CompletedAmount,
		repository.FieldBreachEndOrders: decimal.NewFromInt(row.BreachEndOrders),
		repository.FieldBreachEndAmount: row.BreachEndAmount,
	}
}
