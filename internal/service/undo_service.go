package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"loanbook/internal/infrastructure/lock"
	"loanbook/internal/model"
	"loanbook/internal/repository"
	"loanbook/pkg/dates"
	"loanbook/pkg/idgen"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const undoLockTTL = 10 * time.Second

// UndoService 补偿式撤销引擎
//
// 撤销的对象是"某用户在某群聊、当前业务日期内最近一条未撤销的操作"。
// 整个反向过程（统计逆增量、状态回写、明细软撤销、操作记录消费、
// 撤销记录与外发通知落库）在一个事务里完成，要么全部生效要么全部回滚。
//
// 并发保护分两层：
//  1. 按 (user, chat) 加互斥锁，同一人同一群聊的撤销串行执行
//  2. 操作记录消费走 CAS（WHERE is_undone = 0），重复撤销只有一个成功
type UndoService struct {
	db            *gorm.DB
	orderRepo     *repository.OrderRepository
	incomeRepo    *repository.IncomeRepository
	expenseRepo   *repository.ExpenseRepository
	operationRepo *repository.OperationRepository
	outboxRepo    *repository.OutboxRepository
	aggregator    *Aggregator
	calendar      *dates.Calendar
	idGen         *idgen.Snowflake
	locker        lock.Locker
	counter       *UndoCounter
	notifyTopic   string
}

func NewUndoService(
	db *gorm.DB,
	orderRepo *repository.OrderRepository,
	incomeRepo *repository.IncomeRepository,
	expenseRepo *repository.ExpenseRepository,
	operationRepo *repository.OperationRepository,
	outboxRepo *repository.OutboxRepository,
	aggregator *Aggregator,
	calendar *dates.Calendar,
	idGen *idgen.Snowflake,
	locker lock.Locker,
	counter *UndoCounter,
	notifyTopic string,
) *UndoService {
	return &UndoService{
		db:            db,
		orderRepo:     orderRepo,
		incomeRepo:    incomeRepo,
		expenseRepo:   expenseRepo,
		operationRepo: operationRepo,
		outboxRepo:    outboxRepo,
		aggregator:    aggregator,
		calendar:      calendar,
		idGen:         idGen,
		locker:        locker,
		counter:       counter,
		notifyTopic:   notifyTopic,
	}
}

// UndoResult 撤销结果
type UndoResult struct {
	UndoneOperationID   int64               `json:"undone_operation_id"`
	UndoneOperationType model.OperationType `json:"undone_operation_type"`
	Message             string              `json:"message"`
}

// Undo 撤销该用户在当前群聊、当前业务日期内的上一条操作
func (s *UndoService) Undo(ctx context.Context, userID, chatID int64) (*UndoResult, error) {
	lockKey := fmt.Sprintf("loanbook:undo:%d:%d", userID, chatID)
	release, err := s.locker.TryLock(ctx, lockKey, undoLockTTL)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return nil, ErrUndoBusy
		}
		return nil, err
	}
	defer release()

	if !s.counter.TryAcquire(userID) {
		return nil, ErrUndoLimitReached
	}

	result, err := s.undoLast(ctx, userID, chatID)
	if err != nil {
		s.counter.Release(userID)
		return nil, err
	}
	return result, nil
}

func (s *UndoService) undoLast(ctx context.Context, userID, chatID int64) (*UndoResult, error) {
	bizDate := s.calendar.PeriodDate()

	op, err := s.operationRepo.GetLastUndoable(ctx, userID, chatID, bizDate)
	if err != nil {
		if errors.Is(err, repository.ErrOperationNotFound) {
			return nil, ErrNothingToUndo
		}
		return nil, err
	}
	if op.OperationType == model.OpUndo {
		return nil, ErrUndoOfUndo
	}
	if err := s.checkChat(op, chatID); err != nil {
		return nil, err
	}

	var message string
	err = s.db.Transaction(func(tx *gorm.DB) error {
		// CAS 消费，并发撤销下只有一个事务走到这之后
		if err := s.operationRepo.MarkUndone(ctx, tx, op.ID); err != nil {
			if errors.Is(err, repository.ErrOperationConsumed) {
				return ErrNothingToUndo
			}
			return err
		}

		msg, err := s.reverse(ctx, tx, op)
		if err != nil {
			return err
		}
		message = msg

		undoData, err := model.MarshalPayload(&model.UndoData{
			UndoneOperationID:   op.ID,
			UndoneOperationType: op.OperationType,
			Message:             message,
		})
		if err != nil {
			return err
		}
		// 撤销记录本身落库即视为已消费，不进入可撤销序列
		if err := s.operationRepo.Append(ctx, tx, &model.OperationLog{
			UserID:        userID,
			ChatID:        chatID,
			OperationType: model.OpUndo,
			OperationData: undoData,
			BizDate:       bizDate,
			IsUndone:      true,
		}); err != nil {
			return err
		}

		return s.writeNotification(ctx, tx, userID, chatID, op, message)
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"user_id": userID,
		"chat_id": chatID,
		"op_id":   op.ID,
		"op_type": op.OperationType,
	}).Info("撤销成功")

	return &UndoResult{
		UndoneOperationID:   op.ID,
		UndoneOperationType: op.OperationType,
		Message:             message,
	}, nil
}

// checkChat 校验操作负载里的群聊与请求群聊一致
func (s *UndoService) checkChat(op *model.OperationLog, chatID int64) error {
	var head struct {
		ChatID int64 `json:"chat_id"`
	}
	if err := op.Payload(&head); err != nil {
		return nil // 负载解析不了的走宽容分支，reverse 里处理
	}
	// 开销等无群聊负载的操作 chat_id 为零值，跳过校验
	if head.ChatID != 0 && head.ChatID != chatID {
		return ErrUndoChatMismatch
	}
	return nil
}

// reverse 按操作类型分派逆操作，返回给操作员的摘要
func (s *UndoService) reverse(ctx context.Context, tx *gorm.DB, op *model.OperationLog) (string, error) {
	switch op.OperationType {
	case model.OpOrderCreated:
		return s.reverseOrderCreated(ctx, tx, op)
	case model.OpOrderStateChange:
		return s.reverseStateChange(ctx, tx, op)
	case model.OpOrderCompleted:
		return s.reverseCompleted(ctx, tx, op)
	case model.OpOrderBreachEnd:
		return s.reverseBreachEnd(ctx, tx, op)
	case model.OpOrderGroupChange:
		return s.reverseGroupChange(ctx, tx, op)
	case model.OpInterest:
		return s.reverseInterest(ctx, tx, op)
	case model.OpPrincipalReduction:
		return s.reversePrincipalReduction(ctx, tx, op)
	case model.OpExpense:
		return s.reverseExpense(ctx, tx, op)
	case model.OpUndo:
		return "", ErrUndoOfUndo
	default:
		// 旧版本写入的未知类型：只消费记录，不回滚数据
		logrus.Warnf("未知操作类型 %s (op=%d)，仅标记撤销", op.OperationType, op.ID)
		return fmt.Sprintf("未知操作类型 %s，已标记撤销但未回滚数据", op.OperationType), nil
	}
}

func (s *UndoService) reverseOrderCreated(ctx context.Context, tx *gorm.DB, op *model.OperationLog) (string, error) {
	var data model.OrderCreatedData
	if err := op.Payload(&data); err != nil {
		return "", err
	}

	order, err := s.orderRepo.GetByOrderID(ctx, tx, data.OrderID)
	if err != nil {
		return "", err
	}

	if err := s.orderRepo.Delete(ctx, tx, data.ChatID, data.OrderID); err != nil {
		return "", err
	}

	statPrefix := PrefixValid
	if data.InitialState == model.OrderStateBreach {
		statPrefix = PrefixBreach
	}
	if err := s.aggregator.UpdateAllStats(ctx, tx, statPrefix, data.Amount.Neg(), -1, order.GroupID, op.BizDate); err != nil {
		return "", err
	}

	if !data.IsHistorical {
		if err := s.aggregator.UpdateLiquid(ctx, tx, data.Amount, op.BizDate); err != nil {
			return "", err
		}
		customerPrefix := PrefixNewClients
		if data.Customer == model.CustomerReturning {
			customerPrefix = PrefixOldClients
		}
		// 客户统计不随归属变更迁移，回滚必须落在创建时的归属上
		if err := s.aggregator.UpdateAllStats(ctx, tx, customerPrefix, data.Amount.Neg(), -1, data.GroupID, op.BizDate); err != nil {
			return "", err
		}
	}

	return fmt.Sprintf("已撤销订单创建 %s，金额 %s", data.OrderID, data.Amount.String()), nil
}

func (s *UndoService) reverseStateChange(ctx context.Context, tx *gorm.DB, op *model.OperationLog) (string, error) {
	var data model.OrderStateChangeData
	if err := op.Payload(&data); err != nil {
		return "", err
	}

	order, err := s.orderRepo.GetByOrderID(ctx, tx, data.OrderID)
	if err != nil {
		return "", err
	}

	if err := s.orderRepo.ForceState(ctx, tx, data.ChatID, data.OrderID, data.OldState); err != nil {
		return "", err
	}

	// 只有转入违约才动过统计，逾期标记/恢复不涉及
	if data.NewState == model.OrderStateBreach {
		if err := s.aggregator.UpdateAllStats(ctx, tx, PrefixBreach, data.Amount.Neg(), -1, order.GroupID, op.BizDate); err != nil {
			return "", err
		}
		if err := s.aggregator.UpdateAllStats(ctx, tx, PrefixValid, data.Amount, 1, order.GroupID, op.BizDate); err != nil {
			return "", err
		}
	}

	return fmt.Sprintf("已撤销状态变更 %s: %s -> %s", data.OrderID, data.OldState, data.NewState), nil
}

func (s *UndoService) reverseCompleted(ctx context.Context, tx *gorm.DB, op *model.OperationLog) (string, error) {
	var data model.OrderCompletedData
	if err := op.Payload(&data); err != nil {
		return "", err
	}

	// 完成统计按操作时的归属ID回退，有效统计归还到订单当前归属ID，
	// 中途归属被改过时两边各自对上
	order, err := s.orderRepo.GetByOrderID(ctx, tx, data.OrderID)
	if err != nil {
		return "", err
	}

	if err := s.orderRepo.ForceState(ctx, tx, data.ChatID, data.OrderID, data.OldState); err != nil {
		return "", err
	}
	if err := s.aggregator.UpdateAllStats(ctx, tx, PrefixCompleted, data.Amount.Neg(), -1, data.GroupID, op.BizDate); err != nil {
		return "", err
	}
	if err := s.aggregator.UpdateAllStats(ctx, tx, PrefixValid, data.Amount, 1, order.GroupID, op.BizDate); err != nil {
		return "", err
	}
	if err := s.aggregator.UpdateLiquid(ctx, tx, data.Amount.Neg(), op.BizDate); err != nil {
		return "", err
	}
	if err := s.incomeRepo.MarkUndone(ctx, tx, data.IncomeID); err != nil {
		return "", err
	}

	return fmt.Sprintf("已撤销订单完成 %s，金额 %s", data.OrderID, data.Amount.String()), nil
}

func (s *UndoService) reverseBreachEnd(ctx context.Context, tx *gorm.DB, op *model.OperationLog) (string, error) {
	var data model.OrderBreachEndData
	if err := op.Payload(&data); err != nil {
		return "", err
	}

	order, err := s.orderRepo.GetByOrderID(ctx, tx, data.OrderID)
	if err != nil {
		return "", err
	}

	if err := s.orderRepo.ForceState(ctx, tx, data.ChatID, data.OrderID, model.OrderStateBreach); err != nil {
		return "", err
	}
	if err := s.aggregator.UpdateAllStats(ctx, tx, PrefixBreachEnd, data.SettleAmount.Neg(), -1, data.GroupID, op.BizDate); err != nil {
		return "", err
	}
	if err := s.aggregator.UpdateAllStats(ctx, tx, PrefixBreach, data.PrincipalAmount, 1, order.GroupID, op.BizDate); err != nil {
		return "", err
	}
	if err := s.aggregator.UpdateLiquid(ctx, tx, data.SettleAmount.Neg(), op.BizDate); err != nil {
		return "", err
	}
	if err := s.incomeRepo.MarkUndone(ctx, tx, data.IncomeID); err != nil {
		return "", err
	}

	return fmt.Sprintf("已撤销违约完成 %s，结算金额 %s", data.OrderID, data.SettleAmount.String()), nil
}

func (s *UndoService) reverseGroupChange(ctx context.Context, tx *gorm.DB, op *model.OperationLog) (string, error) {
	var data model.OrderGroupChangeData
	if err := op.Payload(&data); err != nil {
		return "", err
	}

	if err := s.orderRepo.UpdateGroupID(ctx, tx, data.ChatID, data.OrderID, data.OldGroupID); err != nil {
		return "", err
	}

	statPrefix := PrefixValid
	if data.State == model.OrderStateBreach {
		statPrefix = PrefixBreach
	}
	if err := s.aggregator.MoveGroup(ctx, tx, statPrefix, data.Amount, 1, data.NewGroupID, data.OldGroupID); err != nil {
		return "", err
	}

	return fmt.Sprintf("已撤销归属变更 %s: %s -> %s", data.OrderID, data.OldGroupID, data.NewGroupID), nil
}

func (s *UndoService) reverseInterest(ctx context.Context, tx *gorm.DB, op *model.OperationLog) (string, error) {
	var data model.InterestData
	if err := op.Payload(&data); err != nil {
		return "", err
	}

	if err := s.aggregator.UpdateAllStats(ctx, tx, PrefixInterest, data.Amount.Neg(), 0, data.GroupID, op.BizDate); err != nil {
		return "", err
	}
	if err := s.aggregator.UpdateLiquid(ctx, tx, data.Amount.Neg(), op.BizDate); err != nil {
		return "", err
	}
	if err := s.incomeRepo.MarkUndone(ctx, tx, data.IncomeID); err != nil {
		return "", err
	}

	return fmt.Sprintf("已撤销利息收入 %s", data.Amount.String()), nil
}

func (s *UndoService) reversePrincipalReduction(ctx context.Context, tx *gorm.DB, op *model.OperationLog) (string, error) {
	var data model.PrincipalReductionData
	if err := op.Payload(&data); err != nil {
		return "", err
	}

	order, err := s.orderRepo.GetByOrderID(ctx, tx, data.OrderID)
	if err != nil {
		return "", err
	}

	if err := s.orderRepo.UpdateAmount(ctx, tx, data.ChatID, data.OrderID, data.OldAmount); err != nil {
		return "", err
	}
	if err := s.aggregator.UpdateAllStats(ctx, tx, PrefixValid, data.Amount, 0, order.GroupID, op.BizDate); err != nil {
		return "", err
	}
	if err := s.aggregator.UpdateAllStats(ctx, tx, PrefixCompleted, data.Amount.Neg(), 0, order.GroupID, op.BizDate); err != nil {
		return "", err
	}
	if err := s.aggregator.UpdateLiquid(ctx, tx, data.Amount.Neg(), op.BizDate); err != nil {
		return "", err
	}
	if err := s.incomeRepo.MarkUndone(ctx, tx, data.IncomeID); err != nil {
		return "", err
	}

	return fmt.Sprintf("已撤销本金减少 %s，恢复本金 %s", data.Amount.String(), data.OldAmount.String()), nil
}

func (s *UndoService) reverseExpense(ctx context.Context, tx *gorm.DB, op *model.OperationLog) (string, error) {
	var data model.ExpenseData
	if err := op.Payload(&data); err != nil {
		return "", err
	}

	if err := s.aggregator.UpdateExpense(ctx, tx, data.Type, data.Amount.Neg(), data.Date); err != nil {
		return "", err
	}
	if err := s.aggregator.UpdateLiquid(ctx, tx, data.Amount, data.Date); err != nil {
		return "", err
	}
	if err := s.expenseRepo.MarkUndone(ctx, tx, data.ExpenseID); err != nil {
		return "", err
	}

	return fmt.Sprintf("已撤销开销记录 %s", data.Amount.String()), nil
}

// writeNotification 撤销通知先落外发表，由后台任务投递
func (s *UndoService) writeNotification(ctx context.Context, tx *gorm.DB, userID, chatID int64, op *model.OperationLog, message string) error {
	payload, err := json.Marshal(map[string]interface{}{
		"event":          "operation_undone",
		"user_id":        userID,
		"chat_id":        chatID,
		"operation_id":   op.ID,
		"operation_type": op.OperationType,
		"message":        message,
	})
	if err != nil {
		return err
	}
	return s.outboxRepo.Create(ctx, tx, &model.OutboxMessage{
		MessageKey: s.idGen.GenerateMessageKey(),
		Topic:      s.notifyTopic,
		Payload:    string(payload),
		Status:     model.OutboxStatusPending,
	})
}
