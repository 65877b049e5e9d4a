package service

import (
	"errors"
	"fmt"
)

// 撤销引擎错误
var (
	ErrNothingToUndo     = errors.New("当天没有可撤销的操作")
	ErrUndoChatMismatch  = errors.New("该操作不属于当前群聊")
	ErrUndoLimitReached  = errors.New("已达到连续撤销次数上限")
	ErrUndoOfUndo        = errors.New("撤销操作本身不可再撤销")
	ErrUndoBusy          = errors.New("撤销操作进行中，请稍后重试")
	ErrSettlementInvalid = errors.New("结算金额必须大于0")
)

// ValidationError 入参校验失败，未发生任何写入
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("参数校验失败: %s %s", e.Field, e.Msg)
}

func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{Field: field, Msg: msg}
}

// StateError 状态机拒绝流转
type StateError struct {
	ChatID    int64
	FromState string
	ToState   string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("订单状态不允许流转: chat=%d %s -> %s", e.ChatID, e.FromState, e.ToState)
}

// PartialWriteError 业务变更已提交但操作记录写入失败，变更生效但不可撤销
type PartialWriteError struct {
	Step string
	Err  error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("部分写入: %s 失败: %v", e.Step, e.Err)
}

func (e *PartialWriteError) Unwrap() error {
	return e.Err
}
