package job

import (
	"context"
	"time"

	"loanbook/internal/infrastructure/mq"
	"loanbook/internal/model"
	"loanbook/internal/repository"

	"github.com/sirupsen/logrus"
)

const maxRetryCount = 5

// OutboxSender 外发消息投递任务
// 轮询 PENDING 消息投递到 Kafka；未启用 Kafka 时仅打日志并标记已发，
// 业务侧语义不变
type OutboxSender struct {
	outboxRepo *repository.OutboxRepository
	producer   *mq.Producer // nil 表示未启用 Kafka
	stopCh     chan struct{}
	interval   time.Duration
	batchSize  int
}

func NewOutboxSender(outboxRepo *repository.OutboxRepository, producer *mq.Producer) *OutboxSender {
	return &OutboxSender{
		outboxRepo: outboxRepo,
		producer:   producer,
		stopCh:     make(chan struct{}),
		interval:   time.Second,
		batchSize:  100,
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	logrus.Info("[OutboxSender] 消息投递任务启动")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logrus.Info("[OutboxSender] 收到停止信号，任务退出")
			return
		case <-s.stopCh:
			logrus.Info("[OutboxSender] 任务停止")
			return
		case <-ticker.C:
			s.processPending(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	close(s.stopCh)
}

func (s *OutboxSender) processPending(ctx context.Context) {
	messages, err := s.outboxRepo.GetPending(ctx, s.batchSize)
	if err != nil {
		logrus.Errorf("[OutboxSender] 查询待投递消息失败: %v", err)
		return
	}

	for _, msg := range messages {
		s.send(ctx, msg)
	}
}

func (s *OutboxSender) send(ctx context.Context, msg *model.OutboxMessage) {
	if s.producer == nil {
		logrus.Infof("[OutboxSender] Kafka 未启用，本地消费: id=%d, topic=%s, payload=%s", msg.ID, msg.Topic, msg.Payload)
		if err := s.outboxRepo.MarkSent(ctx, msg.ID); err != nil {
			logrus.Errorf("[OutboxSender] 更新消息状态失败: id=%d, err=%v", msg.ID, err)
		}
		return
	}

	if err := s.producer.Send(msg.Topic, msg.MessageKey, msg.Payload); err != nil {
		logrus.Warnf("[OutboxSender] 消息投递失败: id=%d, err=%v", msg.ID, err)
		if err := s.outboxRepo.IncrementRetry(ctx, msg.ID); err != nil {
			logrus.Errorf("[OutboxSender] 更新重试次数失败: id=%d, err=%v", msg.ID, err)
			return
		}
		if msg.RetryCount+1 >= maxRetryCount {
			if err := s.outboxRepo.MarkFailed(ctx, msg.ID); err != nil {
				logrus.Errorf("[OutboxSender] 标记失败状态出错: id=%d, err=%v", msg.ID, err)
			}
		}
		return
	}

	if err := s.outboxRepo.MarkSent(ctx, msg.ID); err != nil {
		logrus.Errorf("[OutboxSender] 更新消息状态失败: id=%d, err=%v", msg.ID, err)
		return
	}
	logrus.Debugf("[OutboxSender] 消息投递成功: id=%d, topic=%s", msg.ID, msg.Topic)
}
