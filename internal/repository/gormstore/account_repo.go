package gormstore

import (
	"context"
	"errors"

	"imagepay/internal/model"
	"imagepay/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Create(ctx context.Context, account *model.Account) error {
	err := r.db.WithContext(ctx).Create(account).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return repository.ErrDuplicateAccount
	}
	return err
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*model.Account, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *AccountRepository) GetByIDForUpdate(ctx context.Context, id string) (*model.Account, error) {
	return r.first(r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id))
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	// email 列使用 utf8mb4_bin 排序规则，比较区分大小写
	return r.first(r.db.WithContext(ctx).Where("email = ?", email))
}

func (r *AccountRepository) first(query *gorm.DB) (*model.Account, error) {
	var account model.Account
	err := query.First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

func (r *AccountRepository) List(ctx context.Context) ([]*model.Account, error) {
	var accounts []*model.Account
	err := r.db.WithContext(ctx).Order("created_at ASC").Find(&accounts).Error
	return accounts, err
}

func (r *AccountRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&model.Account{}).Count(&total).Error
	return total, err
}

func (r *AccountRepository) Deduct(ctx context.Context, id string, amount int64, version int) error {
	result := r.db.WithContext(ctx).
		Model(&model.Account{}).
		Where("id = ? AND credits >= ? AND version = ?", id, amount, version).
		Updates(map[string]interface{}{
			"credits": gorm.Expr("credits - ?", amount),
			"version": gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		account, err := r.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if account.Credits < amount {
			return repository.ErrBalanceNotEnough
		}
		return repository.ErrOptimisticLock
	}

	return nil
}

func (r *AccountRepository) Increase(ctx context.Context, id string, amount int64, version int) error {
	result := r.db.WithContext(ctx).
		Model(&model.Account{}).
		Where("id = ? AND version = ?", id, version).
		Updates(map[string]interface{}{
			"credits": gorm.Expr("credits + ?", amount),
			"version": gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return repository.ErrOptimisticLock
	}

	return nil
}

type CredentialRepository struct {
	db *gorm.DB
}

func NewCredentialRepository(db *gorm.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

func (r *CredentialRepository) Create(ctx context.Context, credential *model.Credential) error {
	return r.db.WithContext(ctx).Create(credential).Error
}

func (r *CredentialRepository) GetByAccountID(ctx context.Context, accountID string) (*model.Credential, error) {
	var credential model.Credential
	err := r.db.WithContext(ctx).Where("account_id = ?", accountID).First(&credential).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrCredentialNotFound
		}
		return nil, err
	}
	return &credential, nil
}
