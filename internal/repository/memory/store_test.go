package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"imagepay/internal/model"
	"imagepay/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedAccount(t *testing.T, s *Store, id, email string, credits int64) {
	t.Helper()
	require.NoError(t, s.Accounts().Create(context.Background(), &model.Account{
		ID: id, Email: email, Name: id, Credits: credits, Role: model.RoleUser,
	}))
}

func TestAccounts_CreateAndLookup(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedAccount(t, s, "u1", "a@x.com", 25)

	err := s.Accounts().Create(ctx, &model.Account{ID: "u2", Email: "a@x.com"})
	assert.ErrorIs(t, err, repository.ErrDuplicateAccount)

	// 邮箱区分大小写
	seedAccount(t, s, "u3", "A@x.com", 0)

	a, err := s.Accounts().GetByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", a.ID)

	_, err = s.Accounts().GetByID(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrAccountNotFound)

	n, err := s.Accounts().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	list, err := s.Accounts().List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "u1", list[0].ID)
	assert.Equal(t, "u3", list[1].ID)
}

func TestAccounts_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedAccount(t, s, "u1", "a@x.com", 25)

	a, err := s.Accounts().GetByID(ctx, "u1")
	require.NoError(t, err)
	a.Credits = 1000

	again, err := s.Accounts().GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(25), again.Credits)
}

func TestAccounts_DeductAndIncrease(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedAccount(t, s, "u1", "a@x.com", 10)
	repo := s.Accounts()

	require.NoError(t, repo.Deduct(ctx, "u1", 4, 0))
	assert.ErrorIs(t, repo.Deduct(ctx, "u1", 1, 0), repository.ErrOptimisticLock)
	assert.ErrorIs(t, repo.Deduct(ctx, "u1", 7, 1), repository.ErrBalanceNotEnough)
	require.NoError(t, repo.Increase(ctx, "u1", 5, 1))
	assert.ErrorIs(t, repo.Increase(ctx, "nobody", 5, 0), repository.ErrAccountNotFound)

	a, err := repo.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(11), a.Credits)
	assert.Equal(t, 2, a.Version)
}

func TestTransaction_RollbackOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedAccount(t, s, "u1", "a@x.com", 10)

	boom := errors.New("boom")
	err := s.Transaction(ctx, func(tx repository.Store) error {
		require.NoError(t, tx.Accounts().Increase(ctx, "u1", 100, 0))
		require.NoError(t, tx.Payments().Create(ctx, &model.Payment{ID: "p1", UserID: "u1", Status: model.PaymentStatusSuccess}))
		require.NoError(t, tx.Outbox().Create(ctx, &model.OutboxMessage{Topic: "t", MessageKey: "u1", Payload: "{}"}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	a, err := s.Accounts().GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), a.Credits)
	assert.Equal(t, 0, a.Version)

	_, err = s.Payments().GetByID(ctx, "p1")
	assert.ErrorIs(t, err, repository.ErrPaymentNotFound)

	pending, err := s.Outbox().GetPendingMessages(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestTransaction_Commit(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedAccount(t, s, "u1", "a@x.com", 10)

	err := s.Transaction(ctx, func(tx repository.Store) error {
		a, err := tx.Accounts().GetByIDForUpdate(ctx, "u1")
		if err != nil {
			return err
		}
		return tx.Accounts().Deduct(ctx, "u1", 3, a.Version)
	})
	require.NoError(t, err)

	a, err := s.Accounts().GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), a.Credits)
}

func TestTransaction_SerializesWriters(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedAccount(t, s, "u1", "a@x.com", 0)

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Transaction(ctx, func(tx repository.Store) error {
				a, err := tx.Accounts().GetByIDForUpdate(ctx, "u1")
				if err != nil {
					return err
				}
				return tx.Accounts().Increase(ctx, "u1", 1, a.Version)
			})
		}()
	}
	wg.Wait()

	a, err := s.Accounts().GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(workers), a.Credits)
}

func TestPayments_StatusAndOrdering(t *testing.T) {
	ctx := context.Background()
	s := New()
	repo := s.Payments()

	require.NoError(t, repo.Create(ctx, &model.Payment{ID: "p1", UserID: "u1", Amount: 79, Status: model.PaymentStatusSuccess}))
	require.NoError(t, repo.Create(ctx, &model.Payment{ID: "p2", UserID: "u2", Amount: 199, Status: model.PaymentStatusPending}))
	require.NoError(t, repo.Create(ctx, &model.Payment{ID: "p3", UserID: "u1", Amount: 499, Status: model.PaymentStatusPending}))
	assert.ErrorIs(t, repo.Create(ctx, &model.Payment{ID: "p1"}), ErrDuplicateID)

	pending, err := repo.List(ctx, model.PaymentStatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "p2", pending[0].ID)
	assert.Equal(t, "p3", pending[1].ID)

	require.NoError(t, repo.UpdateStatus(ctx, "p2", model.PaymentStatusPending, model.PaymentStatusSuccess))
	assert.ErrorIs(t, repo.UpdateStatus(ctx, "p2", model.PaymentStatusPending, model.PaymentStatusSuccess), repository.ErrPaymentStatusInvalid)
	assert.ErrorIs(t, repo.UpdateStatus(ctx, "p2", model.PaymentStatusSuccess, model.PaymentStatusPending), repository.ErrPaymentStatusInvalid)

	p2, err := repo.GetByID(ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusSuccess, p2.Status)
	assert.NotNil(t, p2.SettledAt)

	sum, err := repo.SumAmountByStatus(ctx, model.PaymentStatusSuccess)
	require.NoError(t, err)
	assert.Equal(t, int64(278), sum)

	mine, err := repo.ListByUserID(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "p1", mine[0].ID)
}

func TestGenerations_NewestFirst(t *testing.T) {
	ctx := context.Background()
	s := New()
	repo := s.Generations()

	for _, id := range []string{"g1", "g2", "g3"} {
		require.NoError(t, repo.Create(ctx, &model.Generation{ID: id, UserID: "u1", Cost: 2}))
	}
	require.NoError(t, repo.Create(ctx, &model.Generation{ID: "other", UserID: "u2", Cost: 2}))

	list, err := repo.ListByUserID(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "g3", list[0].ID)
	assert.Equal(t, "g1", list[2].ID)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	cost, err := repo.SumCost(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(8), cost)
}

func TestOutbox_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()
	repo := s.Outbox()

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Create(ctx, &model.OutboxMessage{Topic: "t", MessageKey: "k", Payload: "{}"}))
	}

	pending, err := repo.GetPendingMessages(ctx, 2)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, int64(1), pending[0].ID)

	require.NoError(t, repo.UpdateStatus(ctx, 1, model.OutboxStatusSent))
	require.NoError(t, repo.IncrementRetryCount(ctx, 2))
	require.NoError(t, repo.MarkAsFailed(ctx, 2))

	failed, err := repo.GetFailedMessages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, 1, failed[0].RetryCount)

	pending, err = repo.GetPendingMessages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, int64(3), pending[0].ID)

	// 已发送的消息不会被重新入队
	require.NoError(t, repo.Requeue(ctx, 1))
	require.NoError(t, repo.Requeue(ctx, 2))
	pending, err = repo.GetPendingMessages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, int64(2), pending[0].ID)
	assert.Equal(t, 0, pending[0].RetryCount)
}
