// Package gormstore 基于 gorm 的仓储实现（MySQL）。
package gormstore

import (
	"context"

	"imagepay/internal/repository"

	"gorm.io/gorm"
)

var _ repository.Store = (*Store)(nil)

// Store 所有仓储共享同一个 *gorm.DB；事务中的 Store 绑定到事务句柄
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Accounts() repository.AccountRepository {
	return NewAccountRepository(s.db)
}

func (s *Store) Credentials() repository.CredentialRepository {
	return NewCredentialRepository(s.db)
}

func (s *Store) Payments() repository.PaymentRepository {
	return NewPaymentRepository(s.db)
}

func (s *Store) Generations() repository.GenerationRepository {
	return NewGenerationRepository(s.db)
}

func (s *Store) LedgerEntries() repository.LedgerEntryRepository {
	return NewLedgerEntryRepository(s.db)
}

func (s *Store) Outbox() repository.OutboxRepository {
	return NewOutboxRepository(s.db)
}

func (s *Store) Transaction(ctx context.Context, fn func(tx repository.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}
