package job

import (
	"context"
	"sync"
	"testing"
	"time"

	"imagepay/internal/infrastructure/mq"
	"imagepay/internal/model"
	"imagepay/internal/repository/memory"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu   sync.Mutex
	sent []string
}

func (p *recordingPublisher) SendMessage(topic, key, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, topic+"/"+key)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent)
}

func enqueue(t *testing.T, store *memory.Store, topic, key string) {
	t.Helper()
	msg, err := model.NewOutboxMessage(topic, key, map[string]string{"k": key})
	require.NoError(t, err)
	require.NoError(t, store.Outbox().Create(context.Background(), msg))
}

func TestOutboxSender_FlushWithKafka(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	enqueue(t, store, "balance_changed", "u1")
	enqueue(t, store, "payment_settled", "u1")

	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndSucceed()
	producer.ExpectSendMessageAndSucceed()

	sender := NewOutboxSender(store, mq.NewKafkaPublisher(producer), 3)
	assert.Equal(t, 2, sender.Flush(ctx))
	assert.Equal(t, 0, sender.Flush(ctx))

	pending, err := store.Outbox().GetPendingMessages(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
	require.NoError(t, producer.Close())
}

func TestOutboxSender_RetryThenFail(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	enqueue(t, store, "payment_settled", "u1")

	producer := mocks.NewSyncProducer(t, nil)
	for i := 0; i < 3; i++ {
		producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	}

	sender := NewOutboxSender(store, mq.NewKafkaPublisher(producer), 3)
	for i := 0; i < 3; i++ {
		assert.Equal(t, 0, sender.Flush(ctx))
	}

	pending, err := store.Outbox().GetPendingMessages(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	failed, err := sender.ListFailed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, 3, failed[0].RetryCount)

	// 已失败的消息不再投递
	assert.Equal(t, 0, sender.Flush(ctx))

	// 人工重新入队后按完整的重试次数再次投递
	n, err := sender.RequeueFailed(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	producer.ExpectSendMessageAndSucceed()
	assert.Equal(t, 1, sender.Flush(ctx))

	failed, err = sender.ListFailed(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, failed)
	require.NoError(t, producer.Close())
}

func TestOutboxSender_StartStop(t *testing.T) {
	store := memory.New()
	enqueue(t, store, "balance_changed", "u1")

	pub := &recordingPublisher{}
	sender := NewOutboxSender(store, pub, 3)
	sender.interval = 5 * time.Millisecond

	done := make(chan struct{})
	go func() {
		sender.Start(context.Background())
		close(done)
	}()

	assert.Eventually(t, func() bool { return pub.count() == 1 }, time.Second, 5*time.Millisecond)
	sender.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sender 未退出")
	}
}

func TestReconcileJob(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	healthy := &model.Account{ID: "u1", Email: "a@x.com", Credits: 75, Role: model.RoleUser}
	drifted := &model.Account{ID: "u2", Email: "b@x.com", Credits: 40, Role: model.RoleUser}
	require.NoError(t, store.Accounts().Create(ctx, healthy))
	require.NoError(t, store.Accounts().Create(ctx, drifted))

	require.NoError(t, store.Payments().Create(ctx, &model.Payment{
		ID: "PAY1", UserID: "u1", Amount: 79, Credits: 50,
		Method: model.PaymentMethodInstant, Status: model.PaymentStatusSuccess,
	}))
	require.NoError(t, store.LedgerEntries().Create(ctx, &model.LedgerEntry{
		ID: "TXN1", UserID: "u1", RefID: "PAY1", Amount: 50,
		Type: model.EntryTypePayment, BalanceBefore: 25, BalanceAfter: 75,
	}))

	// 成功但没有流水
	require.NoError(t, store.Payments().Create(ctx, &model.Payment{
		ID: "PAY2", UserID: "u2", Amount: 199, Credits: 150,
		Method: model.PaymentMethodManualTransfer, Status: model.PaymentStatusSuccess,
	}))
	// 待审核的支付不参与核对
	require.NoError(t, store.Payments().Create(ctx, &model.Payment{
		ID: "PAY3", UserID: "u2", Amount: 79, Credits: 50,
		Method: model.PaymentMethodManualTransfer, Status: model.PaymentStatusPending,
	}))
	require.NoError(t, store.LedgerEntries().Create(ctx, &model.LedgerEntry{
		ID: "TXN2", UserID: "u2", RefID: "ADMIN", Amount: 10,
		Type: model.EntryTypeAdjustment, BalanceBefore: 25, BalanceAfter: 35,
	}))

	report, err := NewReconcileJob(store, time.Minute).Run(ctx)
	require.NoError(t, err)
	assert.False(t, report.OK())
	assert.Equal(t, []string{"PAY2"}, report.UnsettledPayments)
	assert.Equal(t, []string{"u2"}, report.BalanceMismatches)
}

func TestReconcileJob_Clean(t *testing.T) {
	report, err := NewReconcileJob(memory.New(), 0).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.OK())
}
