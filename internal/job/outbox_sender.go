package job

import (
	"context"
	"log"
	"time"

	"imagepay/internal/infrastructure/mq"
	"imagepay/internal/model"
	"imagepay/internal/repository"
)

// OutboxSender 轮询待发送消息并投递，失败超过 maxRetry 次后标记为 FAILED
type OutboxSender struct {
	outbox    repository.OutboxRepository
	publisher mq.Publisher
	maxRetry  int
	stopCh    chan struct{}
	interval  time.Duration
	batchSize int
}

func NewOutboxSender(store repository.Store, publisher mq.Publisher, maxRetry int) *OutboxSender {
	if maxRetry <= 0 {
		maxRetry = 1
	}
	return &OutboxSender{
		outbox:    store.Outbox(),
		publisher: publisher,
		maxRetry:  maxRetry,
		stopCh:    make(chan struct{}),
		interval:  100 * time.Millisecond,
		batchSize: 100,
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	log.Println("[OutboxSender] 消息发送任务启动")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[OutboxSender] 收到停止信号，任务退出")
			return
		case <-s.stopCh:
			log.Println("[OutboxSender] 任务停止")
			return
		case <-ticker.C:
			s.Flush(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	close(s.stopCh)
}

// Flush 投递一批待发送消息，返回成功条数
func (s *OutboxSender) Flush(ctx context.Context) int {
	messages, err := s.outbox.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		log.Printf("[OutboxSender] 查询消息失败: %v", err)
		return 0
	}

	sent := 0
	for _, msg := range messages {
		if s.sendMessage(ctx, msg) {
			sent++
		}
	}
	return sent
}

func (s *OutboxSender) sendMessage(ctx context.Context, msg *model.OutboxMessage) bool {
	err := s.publisher.SendMessage(msg.Topic, msg.MessageKey, msg.Payload)
	if err == nil {
		if updateErr := s.outbox.UpdateStatus(ctx, msg.ID, model.OutboxStatusSent); updateErr != nil {
			log.Printf("[OutboxSender] 更新消息状态失败: id=%d, err=%v", msg.ID, updateErr)
			return false
		}
		return true
	}

	log.Printf("[OutboxSender] 消息发送失败: id=%d, topic=%s, err=%v", msg.ID, msg.Topic, err)

	if err := s.outbox.IncrementRetryCount(ctx, msg.ID); err != nil {
		log.Printf("[OutboxSender] 增加重试次数失败: id=%d, err=%v", msg.ID, err)
	}

	if msg.RetryCount+1 >= s.maxRetry {
		if err := s.outbox.MarkAsFailed(ctx, msg.ID); err != nil {
			log.Printf("[OutboxSender] 标记消息失败状态失败: id=%d, err=%v", msg.ID, err)
		} else {
			log.Printf("[OutboxSender] 消息超过最大重试次数，标记为失败: id=%d", msg.ID)
		}
	}
	return false
}

// ListFailed 超过重试次数、已停止投递的消息
func (s *OutboxSender) ListFailed(ctx context.Context, limit int) ([]*model.OutboxMessage, error) {
	return s.outbox.GetFailedMessages(ctx, limit)
}

// RequeueFailed 把失败消息放回待发送队列，由下一轮 Flush 重新投递，返回入队条数
func (s *OutboxSender) RequeueFailed(ctx context.Context, limit int) (int, error) {
	messages, err := s.outbox.GetFailedMessages(ctx, limit)
	if err != nil {
		return 0, err
	}

	requeued := 0
	for _, msg := range messages {
		if err := s.outbox.Requeue(ctx, msg.ID); err != nil {
			return requeued, err
		}
		requeued++
	}
	if requeued > 0 {
		log.Printf("[OutboxSender] 失败消息重新入队: count=%d", requeued)
	}
	return requeued, nil
}
