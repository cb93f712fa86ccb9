package service

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"

	"imagepay/internal/event"
	"imagepay/internal/model"
	"imagepay/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// brokenOutboxStore 事务内写消息失败，用于验证结算回滚
type brokenOutboxStore struct {
	repository.Store
}

func (s brokenOutboxStore) Transaction(ctx context.Context, fn func(tx repository.Store) error) error {
	return s.Store.Transaction(ctx, func(tx repository.Store) error {
		return fn(brokenOutboxStore{Store: tx})
	})
}

func (s brokenOutboxStore) Outbox() repository.OutboxRepository {
	return brokenOutbox{OutboxRepository: s.Store.Outbox()}
}

type brokenOutbox struct {
	repository.OutboxRepository
}

func (brokenOutbox) Create(context.Context, *model.OutboxMessage) error {
	return errors.New("outbox unavailable")
}

func TestCreatePayment_Instant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "a@x.com")

	payment, err := env.payments.CreatePayment(ctx, alice.ID, 79, 50, model.PaymentMethodInstant, "")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusSuccess, payment.Status)
	assert.NotEmpty(t, payment.TransactionID)
	assert.NotNil(t, payment.SettledAt)
	assert.Equal(t, int64(75), env.balance(t, alice.ID))

	entry, err := env.store.LedgerEntries().GetByUserIDAndRefID(ctx, alice.ID, payment.ID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, model.EntryTypePayment, entry.Type)
	assert.Equal(t, int64(50), entry.Amount)

	topics := env.pendingTopics(t)
	assert.Equal(t, 1, topics[env.cfg.Kafka.Topic.PaymentSettled])
	assert.Equal(t, 1, topics[env.cfg.Kafka.Topic.BalanceChanged])

	settled := env.events.ofType(event.TypePaymentSettled)
	require.Len(t, settled, 1)
	assert.Equal(t, payment.ID, settled[0].RefID)
}

func TestCreatePayment_InstantSettlementFailure(t *testing.T) {
	env := newTestEnv(t, withStore(func(s repository.Store) repository.Store {
		return brokenOutboxStore{Store: s}
	}))
	ctx := context.Background()
	alice := env.register(t, "a@x.com")

	_, err := env.payments.CreatePayment(ctx, alice.ID, 79, 50, model.PaymentMethodInstant, "rzp_1")
	require.Error(t, err)
	assert.Equal(t, int64(25), env.balance(t, alice.ID))

	payments, err := env.payments.ListUserPayments(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, model.PaymentStatusFailed, payments[0].Status)
	assert.Equal(t, "rzp_1", payments[0].TransactionID)

	entry, err := env.store.LedgerEntries().GetByUserIDAndRefID(ctx, alice.ID, payments[0].ID)
	require.NoError(t, err)
	assert.Nil(t, entry)

	_, err = env.payments.Approve(ctx, payments[0].ID)
	assert.ErrorIs(t, err, ErrPaymentStatusInvalid)
	assert.Equal(t, int64(25), env.balance(t, alice.ID))
}

func TestCreatePayment_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "a@x.com")

	tests := []struct {
		name      string
		accountID string
		amount    int64
		credits   int64
		method    string
		wantErr   error
	}{
		{"zero amount", alice.ID, 0, 10, model.PaymentMethodInstant, ErrInvalidAmount},
		{"negative credits", alice.ID, 10, -1, model.PaymentMethodInstant, ErrInvalidAmount},
		{"credits overflow", alice.ID, 1, math.MaxInt64, model.PaymentMethodInstant, ErrInvalidAmount},
		{"amount over limit", alice.ID, maxPaymentValue + 1, 10, model.PaymentMethodManualTransfer, ErrInvalidAmount},
		{"unknown method", alice.ID, 10, 10, "CRYPTO", ErrInvalidMethod},
		{"unknown account", "missing", 10, 10, model.PaymentMethodManualTransfer, ErrAccountNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.payments.CreatePayment(ctx, tt.accountID, tt.amount, tt.credits, tt.method, "")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	all, err := env.payments.ListPayments(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestManualPayment_ApproveOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "a@x.com")

	payment, err := env.payments.CreatePayment(ctx, alice.ID, 199, 150, model.PaymentMethodManualTransfer, "UTR123456")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPending, payment.Status)
	assert.Nil(t, payment.SettledAt)
	assert.Equal(t, int64(25), env.balance(t, alice.ID))
	assert.Empty(t, env.pendingTopics(t))

	approved, err := env.payments.Approve(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusSuccess, approved.Status)
	assert.NotNil(t, approved.SettledAt)
	assert.Equal(t, int64(175), env.balance(t, alice.ID))

	again, err := env.payments.Approve(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusSuccess, again.Status)
	assert.Equal(t, int64(175), env.balance(t, alice.ID))

	assert.Equal(t, 1, env.pendingTopics(t)[env.cfg.Kafka.Topic.PaymentSettled])
	assert.Len(t, env.events.ofType(event.TypePaymentSettled), 1)
}

func TestApprove_Concurrent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "a@x.com")

	payment, err := env.payments.CreatePayment(ctx, alice.ID, 199, 150, model.PaymentMethodManualTransfer, "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := env.payments.Approve(ctx, payment.ID)
			if assert.NoError(t, err) {
				assert.Equal(t, model.PaymentStatusSuccess, p.Status)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(175), env.balance(t, alice.ID))
	entries, err := env.ledger.ListEntries(ctx, alice.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestApprove_NotFound(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.payments.Approve(context.Background(), "PAY_missing")
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestPurchasePlan(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "a@x.com")

	payment, err := env.payments.PurchasePlan(ctx, alice.ID, "pro", model.PaymentMethodManualTransfer, "UTR1")
	require.NoError(t, err)
	assert.Equal(t, "pro", payment.PlanID)
	assert.Equal(t, int64(199), payment.Amount)
	assert.Equal(t, int64(150), payment.Credits)

	_, err = env.payments.PurchasePlan(ctx, alice.ID, "enterprise", model.PaymentMethodInstant, "")
	assert.ErrorIs(t, err, ErrPlanNotFound)
}

func TestListPayments_FilterAndOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "a@x.com")
	bob := env.register(t, "b@x.com")

	first, err := env.payments.CreatePayment(ctx, alice.ID, 79, 50, model.PaymentMethodInstant, "")
	require.NoError(t, err)
	second, err := env.payments.CreatePayment(ctx, bob.ID, 199, 150, model.PaymentMethodManualTransfer, "")
	require.NoError(t, err)
	third, err := env.payments.CreatePayment(ctx, alice.ID, 499, 500, model.PaymentMethodManualTransfer, "")
	require.NoError(t, err)

	all, err := env.payments.ListPayments(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{first.ID, second.ID, third.ID}, []string{all[0].ID, all[1].ID, all[2].ID})

	pending, err := env.payments.ListPayments(ctx, "pending")
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, second.ID, pending[0].ID)

	_, err = env.payments.ListPayments(ctx, "REFUNDED")
	assert.ErrorIs(t, err, ErrInvalidInput)

	mine, err := env.payments.ListUserPayments(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, first.ID, mine[0].ID)
}

func TestPaymentSettledPayload(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "a@x.com")

	payment, err := env.payments.CreatePayment(ctx, alice.ID, 79, 50, model.PaymentMethodInstant, "")
	require.NoError(t, err)

	msgs, err := env.store.Outbox().GetPendingMessages(ctx, 10)
	require.NoError(t, err)

	var found bool
	for _, m := range msgs {
		if m.Topic != env.cfg.Kafka.Topic.PaymentSettled {
			continue
		}
		found = true
		var payload model.PaymentSettledPayload
		require.NoError(t, json.Unmarshal([]byte(m.Payload), &payload))
		assert.Equal(t, payment.ID, payload.PaymentID)
		assert.Equal(t, alice.ID, m.MessageKey)
		assert.Equal(t, int64(50), payload.Credits)
	}
	assert.True(t, found)
}

func TestApprove_CreditOverflowLeavesPending(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "a@x.com")

	_, err := env.ledger.Adjust(ctx, alice.ID, math.MaxInt64-100, DirectionCredit)
	require.NoError(t, err)

	payment, err := env.payments.CreatePayment(ctx, alice.ID, 79, 500, model.PaymentMethodManualTransfer, "utr-1")
	require.NoError(t, err)

	_, err = env.payments.Approve(ctx, payment.ID)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	assert.Equal(t, int64(math.MaxInt64-75), env.balance(t, alice.ID))

	got, err := env.store.Payments().GetByID(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPending, got.Status)
}
