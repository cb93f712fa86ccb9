// Package repository 定义各实体的持久化接口。
//
// 业务层只依赖这里的接口，多步操作（创建并入账、审核并入账、扣费并记录）
// 通过 Store.Transaction 获得事务边界，具体实现见 memory 与 gormstore。
package repository

import (
	"context"
	"errors"

	"imagepay/internal/model"
)

var (
	ErrAccountNotFound    = errors.New("账户不存在")
	ErrDuplicateAccount   = errors.New("账户已存在")
	ErrCredentialNotFound = errors.New("登录凭证不存在")
	ErrBalanceNotEnough   = errors.New("积分不足")
	ErrOptimisticLock     = errors.New("乐观锁冲突，请重试")

	ErrPaymentNotFound      = errors.New("支付记录不存在")
	ErrPaymentStatusInvalid = errors.New("支付状态不合法")
)

type AccountRepository interface {
	// Create 邮箱已存在时返回 ErrDuplicateAccount
	Create(ctx context.Context, account *model.Account) error
	GetByID(ctx context.Context, id string) (*model.Account, error)
	// GetByIDForUpdate 在事务中读取并锁定账户
	GetByIDForUpdate(ctx context.Context, id string) (*model.Account, error)
	GetByEmail(ctx context.Context, email string) (*model.Account, error)
	List(ctx context.Context) ([]*model.Account, error)
	Count(ctx context.Context) (int64, error)
	// Deduct 余额不足返回 ErrBalanceNotEnough，版本号不一致返回 ErrOptimisticLock
	Deduct(ctx context.Context, id string, amount int64, version int) error
	Increase(ctx context.Context, id string, amount int64, version int) error
}

type CredentialRepository interface {
	Create(ctx context.Context, credential *model.Credential) error
	GetByAccountID(ctx context.Context, accountID string) (*model.Credential, error)
}

type PaymentRepository interface {
	Create(ctx context.Context, payment *model.Payment) error
	GetByID(ctx context.Context, id string) (*model.Payment, error)
	// UpdateStatus 仅当当前状态为 fromStatus 时更新，否则返回 ErrPaymentStatusInvalid
	UpdateStatus(ctx context.Context, id string, fromStatus, toStatus string) error
	// List 按创建时间正序返回，status 为空表示不过滤
	List(ctx context.Context, status string) ([]*model.Payment, error)
	ListByUserID(ctx context.Context, userID string) ([]*model.Payment, error)
	SumAmountByStatus(ctx context.Context, status string) (int64, error)
}

type GenerationRepository interface {
	Create(ctx context.Context, generation *model.Generation) error
	// ListByUserID 按创建时间倒序返回
	ListByUserID(ctx context.Context, userID string) ([]*model.Generation, error)
	Count(ctx context.Context) (int64, error)
	SumCost(ctx context.Context) (int64, error)
}

type LedgerEntryRepository interface {
	Create(ctx context.Context, entry *model.LedgerEntry) error
	// GetByUserIDAndRefID 不存在时返回 nil, nil
	GetByUserIDAndRefID(ctx context.Context, userID, refID string) (*model.LedgerEntry, error)
	// ListByUserID 按创建时间倒序返回
	ListByUserID(ctx context.Context, userID string) ([]*model.LedgerEntry, error)
}

type OutboxRepository interface {
	Create(ctx context.Context, msg *model.OutboxMessage) error
	GetPendingMessages(ctx context.Context, limit int) ([]*model.OutboxMessage, error)
	UpdateStatus(ctx context.Context, id int64, status string) error
	IncrementRetryCount(ctx context.Context, id int64) error
	MarkAsFailed(ctx context.Context, id int64) error
	GetFailedMessages(ctx context.Context, limit int) ([]*model.OutboxMessage, error)
	// Requeue 仅对 FAILED 消息生效：恢复为 PENDING 并清零重试次数
	Requeue(ctx context.Context, id int64) error
}

// Store 聚合所有仓储。Transaction 内传入的 tx 上的所有操作要么全部生效，要么全部回滚
type Store interface {
	Accounts() AccountRepository
	Credentials() CredentialRepository
	Payments() PaymentRepository
	Generations() GenerationRepository
	LedgerEntries() LedgerEntryRepository
	Outbox() OutboxRepository

	Transaction(ctx context.Context, fn func(tx Store) error) error
}
