package service

import (
	"context"
	"encoding/json"

	"loanbook/internal/model"
	"loanbook/internal/repository"
	"loanbook/pkg/idgen"

	"github.com/sirupsen/logrus"
)

// opRecorder 操作记录写入器
//
// 业务变更事务提交之后调用 Record：记录失败不回滚已提交的变更，
// 而是写一条告警外发消息并返回 PartialWriteError（变更生效但不可撤销）。
// 成功的非撤销变更同时清零该用户的连续撤销计数。
type opRecorder struct {
	operationRepo *repository.OperationRepository
	outboxRepo    *repository.OutboxRepository
	idGen         *idgen.Snowflake
	undoCounter   *UndoCounter
	notifyTopic   string
}

func (r *opRecorder) Record(ctx context.Context, userID, chatID int64, opType model.OperationType, payload interface{}, bizDate string) (*model.OperationLog, error) {
	data, err := model.MarshalPayload(payload)
	if err != nil {
		return nil, &PartialWriteError{Step: "序列化操作负载", Err: err}
	}

	log := &model.OperationLog{
		UserID:        userID,
		ChatID:        chatID,
		OperationType: opType,
		OperationData: data,
		BizDate:       bizDate,
	}
	if err := r.operationRepo.Append(ctx, nil, log); err != nil {
		logrus.WithFields(logrus.Fields{
			"user_id": userID,
			"chat_id": chatID,
			"op_type": opType,
		}).Warnf("操作记录写入失败，变更已生效但不可撤销: %v", err)
		r.alertPartialWrite(ctx, userID, chatID, opType, err)
		return nil, &PartialWriteError{Step: "写入操作记录", Err: err}
	}

	r.undoCounter.Reset(userID)
	return log, nil
}

// alertPartialWrite 部分写入告警同样走外发表，由后台任务投递到管理群。
// 告警本身落库失败只记日志，不再向上传播。
func (r *opRecorder) alertPartialWrite(ctx context.Context, userID, chatID int64, opType model.OperationType, cause error) {
	payload, err := json.Marshal(map[string]interface{}{
		"event":   "partial_write",
		"user_id": userID,
		"chat_id": chatID,
		"op_type": opType,
		"error":   cause.Error(),
	})
	if err != nil {
		return
	}
	if err := r.outboxRepo.Create(ctx, nil, &model.OutboxMessage{
		MessageKey: r.idGen.GenerateMessageKey(),
		Topic:      r.notifyTopic,
		Payload:    string(payload),
		Status:     model.OutboxStatusPending,
	}); err != nil {
		logrus.Warnf("部分写入告警落库失败: %v", err)
	}
}
