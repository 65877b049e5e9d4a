package service

import (
	"context"

	"loanbook/internal/model"
	"loanbook/internal/repository"
	"loanbook/pkg/dates"
	"loanbook/pkg/idgen"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// IncomeService 收入与开销记录服务
type IncomeService struct {
	db          *gorm.DB
	orderRepo   *repository.OrderRepository
	incomeRepo  *repository.IncomeRepository
	expenseRepo *repository.ExpenseRepository
	aggregator  *Aggregator
	calendar    *dates.Calendar
	recorder    *opRecorder
}

func NewIncomeService(
	db *gorm.DB,
	orderRepo *repository.OrderRepository,
	incomeRepo *repository.IncomeRepository,
	expenseRepo *repository.ExpenseRepository,
	operationRepo *repository.OperationRepository,
	outboxRepo *repository.OutboxRepository,
	aggregator *Aggregator,
	calendar *dates.Calendar,
	idGen *idgen.Snowflake,
	undoCounter *UndoCounter,
	notifyTopic string,
) *IncomeService {
	return &IncomeService{
		db:          db,
		orderRepo:   orderRepo,
		incomeRepo:  incomeRepo,
		expenseRepo: expenseRepo,
		aggregator:  aggregator,
		calendar:    calendar,
		recorder: &opRecorder{
			operationRepo: operationRepo,
			outboxRepo:    outboxRepo,
			idGen:         idGen,
			undoCounter:   undoCounter,
			notifyTopic:   notifyTopic,
		},
	}
}

// RecordInterest 记录利息收入
func (s *IncomeService) RecordInterest(ctx context.Context, userID, chatID int64, amount decimal.Decimal) (*model.IncomeRecord, error) {
	if !amount.IsPositive() {
		return nil, NewValidationError("amount", "必须大于0")
	}
	order, err := s.orderRepo.GetActiveByChatID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	bizDate := s.calendar.PeriodDate()

	income := &model.IncomeRecord{
		Date:         bizDate,
		Type:         model.IncomeTypeInterest,
		Amount:       amount,
		GroupID:      order.GroupID,
		OrderID:      order.OrderID,
		OrderDate:    order.Date,
		Customer:     order.Customer,
		WeekdayGroup: order.WeekdayGroup,
		CreatedBy:    userID,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.incomeRepo.Append(ctx, tx, income); err != nil {
			return err
		}
		if err := s.aggregator.UpdateAllStats(ctx, tx, PrefixInterest, amount, 0, order.GroupID, bizDate); err != nil {
			return err
		}
		return s.aggregator.UpdateLiquid(ctx, tx, amount, bizDate)
	})
	if err != nil {
		return nil, err
	}

	_, recErr := s.recorder.Record(ctx, userID, chatID, model.OpInterest, &model.InterestData{
		ChatID:   chatID,
		OrderID:  order.OrderID,
		GroupID:  order.GroupID,
		Amount:   amount,
		Date:     bizDate,
		IncomeID: income.ID,
	}, bizDate)
	if recErr != nil {
		return income, recErr
	}
	return income, nil
}

// ReducePrincipal 本金减少：部分归还，订单本金随之下调
func (s *IncomeService) ReducePrincipal(ctx context.Context, userID, chatID int64, amount decimal.Decimal) (*model.IncomeRecord, error) {
	if !amount.IsPositive() {
		return nil, NewValidationError("amount", "必须大于0")
	}
	order, err := s.orderRepo.GetActiveByChatID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if amount.GreaterThan(order.Amount) {
		return nil, NewValidationError("amount", "不能超过订单当前本金")
	}
	oldAmount := order.Amount
	newAmount := order.Amount.Sub(amount)
	bizDate := s.calendar.PeriodDate()

	income := &model.IncomeRecord{
		Date:         bizDate,
		Type:         model.IncomeTypePrincipalReduction,
		Amount:       amount,
		GroupID:      order.GroupID,
		OrderID:      order.OrderID,
		OrderDate:    order.Date,
		Customer:     order.Customer,
		WeekdayGroup: order.WeekdayGroup,
		CreatedBy:    userID,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.incomeRepo.Append(ctx, tx, income); err != nil {
			return err
		}
		if err := s.orderRepo.UpdateAmount(ctx, tx, chatID, order.OrderID, newAmount); err != nil {
			return err
		}
		// 本金减少视作部分完成：有效金额转入完成金额，笔数不变
		if err := s.aggregator.UpdateAllStats(ctx, tx, PrefixValid, amount.Neg(), 0, order.GroupID, bizDate); err != nil {
			return err
		}
		if err := s.aggregator.UpdateAllStats(ctx, tx, PrefixCompleted, amount, 0, order.GroupID, bizDate); err != nil {
			return err
		}
		return s.aggregator.UpdateLiquid(ctx, tx, amount, bizDate)
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"chat_id":    chatID,
		"order_id":   order.OrderID,
		"amount":     amount,
		"new_amount": newAmount,
	}).Info("本金减少")

	_, recErr := s.recorder.Record(ctx, userID, chatID, model.OpPrincipalReduction, &model.PrincipalReductionData{
		ChatID:    chatID,
		OrderID:   order.OrderID,
		GroupID:   order.GroupID,
		Amount:    amount,
		OldAmount: oldAmount,
		Date:      bizDate,
		IncomeID:  income.ID,
	}, bizDate)
	if recErr != nil {
		return income, recErr
	}
	return income, nil
}

// RecordExpense 记录开销（公司开销/其他开销），从流动资金扣减
func (s *IncomeService) RecordExpense(ctx context.Context, userID, chatID int64, expenseType string, amount decimal.Decimal, note string) (*model.ExpenseRecord, error) {
	if !amount.IsPositive() {
		return nil, NewValidationError("amount", "必须大于0")
	}
	if expenseType != model.ExpenseTypeCompany && expenseType != model.ExpenseTypeOther {
		return nil, NewValidationError("type", "只能是 company 或 other")
	}
	bizDate := s.calendar.PeriodDate()

	expense := &model.ExpenseRecord{
		Date:   bizDate,
		Type:   expenseType,
		Amount: amount,
		Note:   note,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.expenseRepo.Append(ctx, tx, expense); err != nil {
			return err
		}
		if err := s.aggregator.UpdateExpense(ctx, tx, expenseType, amount, bizDate); err != nil {
			return err
		}
		return s.aggregator.UpdateLiquid(ctx, tx, amount.Neg(), bizDate)
	})
	if err != nil {
		return nil, err
	}

	_, recErr := s.recorder.Record(ctx, userID, chatID, model.OpExpense, &model.ExpenseData{
		ExpenseID: expense.ID,
		Type:      expenseType,
		Amount:    amount,
		Date:      bizDate,
	}, bizDate)
	if recErr != nil {
		return expense, recErr
	}
	return expense, nil
}

// QueryIncomes 查询收入明细
func (s *IncomeService) QueryIncomes(ctx context.Context, f repository.IncomeFilter) ([]*model.IncomeRecord, error) {
	return s.incomeRepo.Query(ctx, f)
}

// SumOrderIncome 汇总某订单的某类收入（排除已撤销）
func (s *IncomeService) SumOrderIncome(ctx context.Context, orderID, incomeType string) (decimal.Decimal, int64, error) {
	return s.incomeRepo.SumByOrderID(ctx, orderID, incomeType)
}

// QueryExpenses 查询开销明细
func (s *IncomeService) QueryExpenses(ctx context.Context, startDate, endDate, expenseType string) ([]*model.ExpenseRecord, error) {
	return s.expenseRepo.Query(ctx, startDate, endDate, expenseType, false)
}
