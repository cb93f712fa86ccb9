// Package memory 进程内仓储实现，所有写操作串行执行。
//
// 事务通过快照实现：Transaction 持有全局锁，fn 返回错误时恢复快照。
// 读写都返回记录副本，调用方修改返回值不会影响存储。
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"imagepay/internal/model"
	"imagepay/internal/repository"
)

var _ repository.Store = (*Store)(nil)

var ErrDuplicateID = errors.New("记录ID重复")

type data struct {
	accounts     map[string]*model.Account
	accountOrder []string
	credentials  map[string]*model.Credential
	payments     map[string]*model.Payment
	paymentOrder []string
	generations  []*model.Generation
	entries      []*model.LedgerEntry
	outbox       []*model.OutboxMessage
	outboxSeq    int64
}

func newData() *data {
	return &data{
		accounts:    make(map[string]*model.Account),
		credentials: make(map[string]*model.Credential),
		payments:    make(map[string]*model.Payment),
	}
}

func (d *data) clone() *data {
	c := &data{
		accounts:     make(map[string]*model.Account, len(d.accounts)),
		accountOrder: append([]string(nil), d.accountOrder...),
		credentials:  make(map[string]*model.Credential, len(d.credentials)),
		payments:     make(map[string]*model.Payment, len(d.payments)),
		paymentOrder: append([]string(nil), d.paymentOrder...),
		generations:  append([]*model.Generation(nil), d.generations...),
		entries:      append([]*model.LedgerEntry(nil), d.entries...),
		outbox:       make([]*model.OutboxMessage, len(d.outbox)),
		outboxSeq:    d.outboxSeq,
	}
	for k, v := range d.accounts {
		c.accounts[k] = copyAccount(v)
	}
	for k, v := range d.credentials {
		cred := *v
		c.credentials[k] = &cred
	}
	for k, v := range d.payments {
		c.payments[k] = copyPayment(v)
	}
	// 图片记录与流水不可变，共享指针即可
	for i, v := range d.outbox {
		msg := *v
		c.outbox[i] = &msg
	}
	return c
}

type Store struct {
	mu    *sync.Mutex
	state *data
	inTx  bool
}

func New() *Store {
	return &Store{
		mu:    &sync.Mutex{},
		state: newData(),
	}
}

// do 在锁内执行 fn；事务内调用时锁已由 Transaction 持有
func (s *Store) do(fn func(d *data) error) error {
	if !s.inTx {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	return fn(s.state)
}

func (s *Store) Transaction(ctx context.Context, fn func(tx repository.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	tx := &Store{mu: s.mu, state: s.state, inTx: true}

	committed := false
	defer func() {
		if !committed {
			*s.state = *snapshot
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	committed = true
	return nil
}

func (s *Store) Accounts() repository.AccountRepository {
	return &accountRepo{s: s}
}

func (s *Store) Credentials() repository.CredentialRepository {
	return &credentialRepo{s: s}
}

func (s *Store) Payments() repository.PaymentRepository {
	return &paymentRepo{s: s}
}

func (s *Store) Generations() repository.GenerationRepository {
	return &generationRepo{s: s}
}

func (s *Store) LedgerEntries() repository.LedgerEntryRepository {
	return &ledgerEntryRepo{s: s}
}

func (s *Store) Outbox() repository.OutboxRepository {
	return &outboxRepo{s: s}
}

func copyAccount(a *model.Account) *model.Account {
	c := *a
	return &c
}

func copyPayment(p *model.Payment) *model.Payment {
	c := *p
	if p.SettledAt != nil {
		t := *p.SettledAt
		c.SettledAt = &t
	}
	return &c
}

func stamp(t *time.Time) {
	if t.IsZero() {
		*t = time.Now()
	}
}
