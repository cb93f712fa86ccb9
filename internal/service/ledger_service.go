package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"imagepay/internal/config"
	"imagepay/internal/event"
	"imagepay/internal/infrastructure/lock"
	"imagepay/internal/model"
	"imagepay/internal/repository"
	"imagepay/pkg/idgen"

	"github.com/google/uuid"
)

type Direction string

const (
	DirectionCredit Direction = "CREDIT"
	DirectionDebit  Direction = "DEBIT"
)

// RefAdmin 管理员手工调整的关联单号
const RefAdmin = "ADMIN"

// maxOptimisticRetry 乐观锁冲突时的重试次数
const maxOptimisticRetry = 3

// LedgerService 所有余额变动的唯一入口。
// 同一账户的变动先获取账户锁，再在存储事务内按版本号更新并追加流水
type LedgerService struct {
	store  repository.Store
	locker lock.Locker
	events event.Publisher
	cfg    *config.Config
}

func NewLedgerService(store repository.Store, locker lock.Locker, events event.Publisher, cfg *config.Config) *LedgerService {
	return &LedgerService{
		store:  store,
		locker: locker,
		events: events,
		cfg:    cfg,
	}
}

// posting 事务内的一次余额变动
type posting struct {
	accountID string
	amount    int64
	direction Direction
	entryType string
	refID     string
}

// Adjust 按方向增减积分，DEBIT 余额不足时返回 ErrInsufficientCredits 且余额不变
func (s *LedgerService) Adjust(ctx context.Context, accountID string, amount int64, direction Direction) (*model.Account, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if direction != DirectionCredit && direction != DirectionDebit {
		return nil, ErrInvalidDirection
	}

	var account *model.Account
	err := s.withAccount(ctx, accountID, func(tx repository.Store) error {
		var err error
		account, _, err = s.post(ctx, tx, posting{
			accountID: accountID,
			amount:    amount,
			direction: direction,
			entryType: model.EntryTypeAdjustment,
			refID:     RefAdmin,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[Ledger] 积分调整: accountID=%s, direction=%s, amount=%d, balance=%d",
		accountID, direction, amount, account.Credits)
	s.notifyBalance(ctx, account, RefAdmin)
	return account, nil
}

// ListEntries 账户流水，最新在前
func (s *LedgerService) ListEntries(ctx context.Context, accountID string) ([]*model.LedgerEntry, error) {
	if _, err := s.store.Accounts().GetByID(ctx, accountID); err != nil {
		return nil, err
	}
	return s.store.LedgerEntries().ListByUserID(ctx, accountID)
}

// withAccount 持有账户锁执行事务，版本冲突时整体重试
func (s *LedgerService) withAccount(ctx context.Context, accountID string, fn func(tx repository.Store) error) error {
	unlock, err := s.locker.Acquire(ctx, lock.AccountKey(accountID), uuid.NewString())
	if err != nil {
		return fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer unlock()

	for attempt := 1; ; attempt++ {
		err = s.store.Transaction(ctx, fn)
		if !errors.Is(err, repository.ErrOptimisticLock) || attempt >= maxOptimisticRetry {
			return err
		}
		log.Printf("[Ledger] 乐观锁冲突，重试第%d次: accountID=%s", attempt, accountID)
	}
}

// post 在事务 tx 内修改余额、写流水并写入 balance_changed 消息。
// 调用方需持有账户锁
func (s *LedgerService) post(ctx context.Context, tx repository.Store, p posting) (*model.Account, *model.LedgerEntry, error) {
	account, err := tx.Accounts().GetByIDForUpdate(ctx, p.accountID)
	if err != nil {
		return nil, nil, err
	}

	signed := p.amount
	switch p.direction {
	case DirectionDebit:
		if account.Credits < p.amount {
			return nil, nil, ErrInsufficientCredits
		}
		if err := tx.Accounts().Deduct(ctx, p.accountID, p.amount, account.Version); err != nil {
			return nil, nil, err
		}
		signed = -p.amount
	case DirectionCredit:
		if account.Credits > math.MaxInt64-p.amount {
			return nil, nil, fmt.Errorf("%w: 入账后余额溢出", ErrInvalidAmount)
		}
		if err := tx.Accounts().Increase(ctx, p.accountID, p.amount, account.Version); err != nil {
			return nil, nil, err
		}
	default:
		return nil, nil, ErrInvalidDirection
	}

	entry := &model.LedgerEntry{
		ID:            idgen.GenerateEntryNo(),
		UserID:        p.accountID,
		RefID:         p.refID,
		Amount:        signed,
		Type:          p.entryType,
		BalanceBefore: account.Credits,
		BalanceAfter:  account.Credits + signed,
		CreatedAt:     time.Now(),
	}
	if err := tx.LedgerEntries().Create(ctx, entry); err != nil {
		return nil, nil, fmt.Errorf("记录流水失败: %w", err)
	}

	msg, err := model.NewOutboxMessage(s.cfg.Kafka.Topic.BalanceChanged, p.accountID, model.BalanceChangedPayload{
		UserID:    p.accountID,
		EntryID:   entry.ID,
		RefID:     p.refID,
		Type:      p.entryType,
		Amount:    signed,
		Balance:   entry.BalanceAfter,
		ChangedAt: entry.CreatedAt.Format(time.RFC3339),
	})
	if err != nil {
		return nil, nil, err
	}
	if err := tx.Outbox().Create(ctx, msg); err != nil {
		return nil, nil, fmt.Errorf("写入消息失败: %w", err)
	}

	account.Credits = entry.BalanceAfter
	account.Version++
	return account, entry, nil
}

// notifyBalance 事务提交后调用
func (s *LedgerService) notifyBalance(ctx context.Context, account *model.Account, refID string) {
	s.events.Publish(ctx, event.Event{
		Type:      event.TypeBalanceChanged,
		AccountID: account.ID,
		RefID:     refID,
		Balance:   account.Credits,
	})
}
