package service

import (
	"context"
	"fmt"

	"loanbook/internal/model"
	"loanbook/internal/repository"
	"loanbook/pkg/dates"
	"loanbook/pkg/idgen"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// OrderService 订单生命周期服务
//
// 每个变更操作分三步：
//  1. 校验（失败则零写入）
//  2. 一个事务内完成订单变更、收入明细追加、三级统计增量
//  3. 提交后写操作记录（失败返回 PartialWriteError，变更保留）
type OrderService struct {
	db         *gorm.DB
	orderRepo  *repository.OrderRepository
	incomeRepo *repository.IncomeRepository
	aggregator *Aggregator
	calendar   *dates.Calendar
	idGen      *idgen.Snowflake
	recorder   *opRecorder
}

func NewOrderService(
	db *gorm.DB,
	orderRepo *repository.OrderRepository,
	incomeRepo *repository.IncomeRepository,
	operationRepo *repository.OperationRepository,
	outboxRepo *repository.OutboxRepository,
	aggregator *Aggregator,
	calendar *dates.Calendar,
	idGen *idgen.Snowflake,
	undoCounter *UndoCounter,
	notifyTopic string,
) *OrderService {
	return &OrderService{
		db:         db,
		orderRepo:  orderRepo,
		incomeRepo: incomeRepo,
		aggregator: aggregator,
		calendar:   calendar,
		idGen:      idGen,
		recorder: &opRecorder{
			operationRepo: operationRepo,
			outboxRepo:    outboxRepo,
			idGen:         idGen,
			undoCounter:   undoCounter,
			notifyTopic:   notifyTopic,
		},
	}
}

// CreateOrderRequest 创建订单请求
type CreateOrderRequest struct {
	UserID       int64
	ChatID       int64
	OrderID      string // 缺省自动生成
	GroupID      string
	Amount       decimal.Decimal
	Customer     string // A 新客户 / B 老客户
	Date         string // 缺省当前业务日期
	InitialState string // normal / breach（历史违约单补录）
	Historical   bool   // 历史补录不影响流动资金和客户统计
}

// CreateOrder 创建订单
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*model.Order, error) {
	if !req.Amount.IsPositive() {
		return nil, NewValidationError("amount", "必须大于0")
	}
	if req.Customer != model.CustomerNew && req.Customer != model.CustomerReturning {
		return nil, NewValidationError("customer", "只能是 A 或 B")
	}
	if req.GroupID == "" {
		return nil, NewValidationError("group_id", "不能为空")
	}
	if req.InitialState == "" {
		req.InitialState = model.OrderStateNormal
	}
	if req.InitialState != model.OrderStateNormal && req.InitialState != model.OrderStateBreach {
		return nil, NewValidationError("initial_state", "只能是 normal 或 breach")
	}
	if req.Date == "" {
		req.Date = s.calendar.PeriodDate()
	} else if !dates.ValidDate(req.Date) {
		return nil, NewValidationError("date", "格式必须是 YYYY-MM-DD")
	}

	// 每个群聊至多一个活跃订单
	if _, err := s.orderRepo.GetActiveByChatID(ctx, req.ChatID); err == nil {
		return nil, repository.ErrOrderExists
	} else if err != repository.ErrOrderNotFound {
		return nil, err
	}

	weekdayGroup, err := dates.WeekdayGroup(req.Date)
	if err != nil {
		return nil, NewValidationError("date", err.Error())
	}

	orderID := req.OrderID
	if orderID == "" {
		orderID = s.idGen.GenerateOrderID()
	}

	order := &model.Order{
		OrderID:      orderID,
		GroupID:      req.GroupID,
		ChatID:       req.ChatID,
		Date:         req.Date,
		WeekdayGroup: weekdayGroup,
		Customer:     req.Customer,
		Amount:       req.Amount,
		State:        req.InitialState,
	}

	bizDate := s.calendar.PeriodDate()
	statPrefix := PrefixValid
	if req.InitialState == model.OrderStateBreach {
		statPrefix = PrefixBreach
	}
	customerPrefix := PrefixNewClients
	if req.Customer == model.CustomerReturning {
		customerPrefix = PrefixOldClients
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.orderRepo.Create(ctx, tx, order); err != nil {
			return err
		}
		if err := s.aggregator.UpdateAllStats(ctx, tx, statPrefix, req.Amount, 1, req.GroupID, bizDate); err != nil {
			return err
		}
		if !req.Historical {
			if err := s.aggregator.UpdateLiquid(ctx, tx, req.Amount.Neg(), bizDate); err != nil {
				return err
			}
			if err := s.aggregator.UpdateAllStats(ctx, tx, customerPrefix, req.Amount, 1, req.GroupID, bizDate); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"chat_id":  req.ChatID,
		"order_id": orderID,
		"group_id": req.GroupID,
		"amount":   req.Amount,
	}).Info("订单创建成功")

	_, recErr := s.recorder.Record(ctx, req.UserID, req.ChatID, model.OpOrderCreated, &model.OrderCreatedData{
		ChatID:       req.ChatID,
		OrderID:      orderID,
		GroupID:      req.GroupID,
		Amount:       req.Amount,
		Customer:     req.Customer,
		InitialState: req.InitialState,
		IsHistorical: req.Historical,
		Date:         req.Date,
	}, bizDate)
	if recErr != nil {
		return order, recErr
	}
	return order, nil
}

// MarkOverdue 标记逾期（normal -> overdue，不影响统计）
func (s *OrderService) MarkOverdue(ctx context.Context, userID, chatID int64) (*model.Order, error) {
	return s.markState(ctx, userID, chatID, model.OrderStateNormal, model.OrderStateOverdue)
}

// MarkNormal 恢复正常（overdue -> normal，不影响统计）
func (s *OrderService) MarkNormal(ctx context.Context, userID, chatID int64) (*model.Order, error) {
	return s.markState(ctx, userID, chatID, model.OrderStateOverdue, model.OrderStateNormal)
}

func (s *OrderService) markState(ctx context.Context, userID, chatID int64, fromState, toState string) (*model.Order, error) {
	order, err := s.orderRepo.GetActiveByChatID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if order.State != fromState {
		return nil, &StateError{ChatID: chatID, FromState: order.State, ToState: toState}
	}

	if err := s.orderRepo.UpdateState(ctx, nil, chatID, fromState, toState); err != nil {
		return nil, err
	}
	order.State = toState

	_, recErr := s.recorder.Record(ctx, userID, chatID, model.OpOrderStateChange, &model.OrderStateChangeData{
		ChatID:   chatID,
		OrderID:  order.OrderID,
		OldState: fromState,
		NewState: toState,
		GroupID:  order.GroupID,
		Amount:   order.Amount,
	}, s.calendar.PeriodDate())
	if recErr != nil {
		return order, recErr
	}
	return order, nil
}

// MarkBreach 标记违约：有效统计转入违约统计
func (s *OrderService) MarkBreach(ctx context.Context, userID, chatID int64) (*model.Order, error) {
	order, err := s.orderRepo.GetActiveByChatID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if order.State != model.OrderStateNormal && order.State != model.OrderStateOverdue {
		return nil, &StateError{ChatID: chatID, FromState: order.State, ToState: model.OrderStateBreach}
	}
	oldState := order.State
	bizDate := s.calendar.PeriodDate()

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.orderRepo.UpdateState(ctx, tx, chatID, oldState, model.OrderStateBreach); err != nil {
			return err
		}
		if err := s.aggregator.UpdateAllStats(ctx, tx, PrefixValid, order.Amount.Neg(), -1, order.GroupID, bizDate); err != nil {
			return err
		}
		return s.aggregator.UpdateAllStats(ctx, tx, PrefixBreach, order.Amount, 1, order.GroupID, bizDate)
	})
	if err != nil {
		return nil, err
	}
	order.State = model.OrderStateBreach

	_, recErr := s.recorder.Record(ctx, userID, chatID, model.OpOrderStateChange, &model.OrderStateChangeData{
		ChatID:   chatID,
		OrderID:  order.OrderID,
		OldState: oldState,
		NewState: model.OrderStateBreach,
		GroupID:  order.GroupID,
		Amount:   order.Amount,
	}, bizDate)
	if recErr != nil {
		return order, recErr
	}
	return order, nil
}

// CompleteOrder 完成订单：本金收回，转入完成统计
func (s *OrderService) CompleteOrder(ctx context.Context, userID, chatID int64) (*model.Order, error) {
	order, err := s.orderRepo.GetActiveByChatID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if order.State != model.OrderStateNormal && order.State != model.OrderStateOverdue {
		return nil, &StateError{ChatID: chatID, FromState: order.State, ToState: model.OrderStateCompleted}
	}
	oldState := order.State
	bizDate := s.calendar.PeriodDate()

	income := &model.IncomeRecord{
		Date:         bizDate,
		Type:         model.IncomeTypeCompleted,
		Amount:       order.Amount,
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
		if err := s.orderRepo.UpdateState(ctx, tx, chatID, oldState, model.OrderStateCompleted); err != nil {
			return err
		}
		if err := s.aggregator.UpdateAllStats(ctx, tx, PrefixValid, order.Amount.Neg(), -1, order.GroupID, bizDate); err != nil {
			return err
		}
		if err := s.aggregator.UpdateAllStats(ctx, tx, PrefixCompleted, order.Amount, 1, order.GroupID, bizDate); err != nil {
			return err
		}
		return s.aggregator.UpdateLiquid(ctx, tx, order.Amount, bizDate)
	})
	if err != nil {
		return nil, err
	}
	order.State = model.OrderStateCompleted

	logrus.WithFields(logrus.Fields{
		"chat_id":  chatID,
		"order_id": order.OrderID,
		"amount":   order.Amount,
	}).Info("订单完成")

	_, recErr := s.recorder.Record(ctx, userID, chatID, model.OpOrderCompleted, &model.OrderCompletedData{
		ChatID:   chatID,
		OrderID:  order.OrderID,
		GroupID:  order.GroupID,
		Amount:   order.Amount,
		OldState: oldState,
		Date:     bizDate,
		IncomeID: income.ID,
	}, bizDate)
	if recErr != nil {
		return order, recErr
	}
	return order, nil
}

// CompleteBreach 违约完成：按操作员给定的结算金额回收资金
// 违约统计对称转出，保证撤销时可以精确反向
func (s *OrderService) CompleteBreach(ctx context.Context, userID, chatID int64, settlement decimal.Decimal) (*model.Order, error) {
	if !settlement.IsPositive() {
		return nil, ErrSettlementInvalid
	}
	order, err := s.orderRepo.GetActiveByChatID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if order.State != model.OrderStateBreach {
		return nil, &StateError{ChatID: chatID, FromState: order.State, ToState: model.OrderStateBreachCompleted}
	}
	bizDate := s.calendar.PeriodDate()

	income := &model.IncomeRecord{
		Date:         bizDate,
		Type:         model.IncomeTypeBreachEnd,
		Amount:       settlement,
		GroupID:      order.GroupID,
		OrderID:      order.OrderID,
		OrderDate:    order.Date,
		Customer:     order.Customer,
		WeekdayGroup: order.WeekdayGroup,
		Note:         fmt.Sprintf("违约结算，原本金 %s", order.Amount.String()),
		CreatedBy:    userID,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.incomeRepo.Append(ctx, tx, income); err != nil {
			return err
		}
		if err := s.orderRepo.UpdateState(ctx, tx, chatID, model.OrderStateBreach, model.OrderStateBreachCompleted); err != nil {
			return err
		}
		if err := s.aggregator.UpdateAllStats(ctx, tx, PrefixBreach, order.Amount.Neg(), -1, order.GroupID, bizDate); err != nil {
			return err
		}
		if err := s.aggregator.UpdateAllStats(ctx, tx, PrefixBreachEnd, settlement, 1, order.GroupID, bizDate); err != nil {
			return err
		}
		return s.aggregator.UpdateLiquid(ctx, tx, settlement, bizDate)
	})
	if err != nil {
		return nil, err
	}
	order.State = model.OrderStateBreachCompleted

	_, recErr := s.recorder.Record(ctx, userID, chatID, model.OpOrderBreachEnd, &model.OrderBreachEndData{
		ChatID:          chatID,
		OrderID:         order.OrderID,
		GroupID:         order.GroupID,
		PrincipalAmount: order.Amount,
		SettleAmount:    settlement,
		Date:            bizDate,
		IncomeID:        income.ID,
	}, bizDate)
	if recErr != nil {
		return order, recErr
	}
	return order, nil
}

// ChangeOrderGroup 变更订单归属ID，归属层级统计随之迁移
func (s *OrderService) ChangeOrderGroup(ctx context.Context, userID, chatID int64, newGroupID string) (*model.Order, error) {
	if newGroupID == "" {
		return nil, NewValidationError("group_id", "不能为空")
	}
	order, err := s.orderRepo.GetActiveByChatID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if order.GroupID == newGroupID {
		return nil, NewValidationError("group_id", "与当前归属ID相同")
	}
	oldGroupID := order.GroupID

	statPrefix := PrefixValid
	if order.State == model.OrderStateBreach {
		statPrefix = PrefixBreach
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.orderRepo.UpdateGroupID(ctx, tx, chatID, order.OrderID, newGroupID); err != nil {
			return err
		}
		return s.aggregator.MoveGroup(ctx, tx, statPrefix, order.Amount, 1, oldGroupID, newGroupID)
	})
	if err != nil {
		return nil, err
	}
	order.GroupID = newGroupID

	_, recErr := s.recorder.Record(ctx, userID, chatID, model.OpOrderGroupChange, &model.OrderGroupChangeData{
		ChatID:     chatID,
		OrderID:    order.OrderID,
		OldGroupID: oldGroupID,
		NewGroupID: newGroupID,
		Amount:     order.Amount,
		State:      order.State,
	}, s.calendar.PeriodDate())
	if recErr != nil {
		return order, recErr
	}
	return order, nil
}

// GetCurrentOrder 查询群聊当前活跃订单
func (s *OrderService) GetCurrentOrder(ctx context.Context, chatID int64) (*model.Order, error) {
	return s.orderRepo.GetActiveByChatID(ctx, chatID)
}

// SearchOrders 多条件搜索订单
func (s *OrderService) SearchOrders(ctx context.Context, criteria repository.SearchCriteria) ([]*model.Order, error) {
	return s.orderRepo.Search(ctx, criteria)
}
