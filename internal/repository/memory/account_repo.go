package memory

import (
	"context"

	"imagepay/internal/model"
	"imagepay/internal/repository"
)

type accountRepo struct {
	s *Store
}

func (r *accountRepo) Create(_ context.Context, account *model.Account) error {
	return r.s.do(func(d *data) error {
		if _, exists := d.accounts[account.ID]; exists {
			return repository.ErrDuplicateAccount
		}
		for _, a := range d.accounts {
			if a.Email == account.Email {
				return repository.ErrDuplicateAccount
			}
		}
		stamp(&account.CreatedAt)
		d.accounts[account.ID] = copyAccount(account)
		d.accountOrder = append(d.accountOrder, account.ID)
		return nil
	})
}

func (r *accountRepo) GetByID(_ context.Context, id string) (*model.Account, error) {
	var out *model.Account
	err := r.s.do(func(d *data) error {
		a, ok := d.accounts[id]
		if !ok {
			return repository.ErrAccountNotFound
		}
		out = copyAccount(a)
		return nil
	})
	return out, err
}

// GetByIDForUpdate 事务持有全局锁，无需额外加锁
func (r *accountRepo) GetByIDForUpdate(ctx context.Context, id string) (*model.Account, error) {
	return r.GetByID(ctx, id)
}

func (r *accountRepo) GetByEmail(_ context.Context, email string) (*model.Account, error) {
	var out *model.Account
	err := r.s.do(func(d *data) error {
		for _, a := range d.accounts {
			if a.Email == email {
				out = copyAccount(a)
				return nil
			}
		}
		return repository.ErrAccountNotFound
	})
	return out, err
}

func (r *accountRepo) List(_ context.Context) ([]*model.Account, error) {
	var out []*model.Account
	err := r.s.do(func(d *data) error {
		out = make([]*model.Account, 0, len(d.accountOrder))
		for _, id := range d.accountOrder {
			out = append(out, copyAccount(d.accounts[id]))
		}
		return nil
	})
	return out, err
}

func (r *accountRepo) Count(_ context.Context) (int64, error) {
	var n int64
	err := r.s.do(func(d *data) error {
		n = int64(len(d.accounts))
		return nil
	})
	return n, err
}

func (r *accountRepo) Deduct(_ context.Context, id string, amount int64, version int) error {
	return r.s.do(func(d *data) error {
		a, ok := d.accounts[id]
		if !ok {
			return repository.ErrAccountNotFound
		}
		if a.Credits < amount {
			return repository.ErrBalanceNotEnough
		}
		if a.Version != version {
			return repository.ErrOptimisticLock
		}
		a.Credits -= amount
		a.Version++
		return nil
	})
}

func (r *accountRepo) Increase(_ context.Context, id string, amount int64, version int) error {
	return r.s.do(func(d *data) error {
		a, ok := d.accounts[id]
		if !ok {
			return repository.ErrAccountNotFound
		}
		if a.Version != version {
			return repository.ErrOptimisticLock
		}
		a.Credits += amount
		a.Version++
		return nil
	})
}

type credentialRepo struct {
	s *Store
}

func (r *credentialRepo) Create(_ context.Context, credential *model.Credential) error {
	return r.s.do(func(d *data) error {
		stamp(&credential.CreatedAt)
		c := *credential
		d.credentials[credential.AccountID] = &c
		return nil
	})
}

func (r *credentialRepo) GetByAccountID(_ context.Context, accountID string) (*model.Credential, error) {
	var out *model.Credential
	err := r.s.do(func(d *data) error {
		c, ok := d.credentials[accountID]
		if !ok {
			return repository.ErrCredentialNotFound
		}
		cp := *c
		out = &cp
		return nil
	})
	return out, err
}
