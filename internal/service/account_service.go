package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"imagepay/internal/config"
	"imagepay/internal/model"
	"imagepay/internal/repository"

	"github.com/google/uuid"
)

// IdentityService 注册、登录和账户查询
type IdentityService struct {
	store repository.Store
	cfg   *config.Config
}

func NewIdentityService(store repository.Store, cfg *config.Config) *IdentityService {
	return &IdentityService{store: store, cfg: cfg}
}

// Register 邮箱区分大小写；邮箱等于管理员邮箱时角色为 ADMIN
func (s *IdentityService) Register(ctx context.Context, email, secret, name string) (*model.Account, error) {
	email = strings.TrimSpace(email)
	if email == "" || secret == "" {
		return nil, ErrInvalidInput
	}
	if name == "" {
		name = email
	}

	role := model.RoleUser
	if email == s.cfg.Business.AdminEmail {
		role = model.RoleAdmin
	}

	account := &model.Account{
		ID:        uuid.NewString(),
		Email:     email,
		Name:      name,
		Credits:   s.cfg.Business.InitialCredits,
		Role:      role,
		CreatedAt: time.Now(),
	}

	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		if err := tx.Accounts().Create(ctx, account); err != nil {
			return err
		}
		return tx.Credentials().Create(ctx, &model.Credential{
			AccountID: account.ID,
			Secret:    secret,
		})
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateAccount) {
			return nil, ErrDuplicateAccount
		}
		return nil, fmt.Errorf("创建账户失败: %w", err)
	}

	log.Printf("[Identity] 注册成功: accountID=%s, role=%s, credits=%d", account.ID, account.Role, account.Credits)
	return account, nil
}

// Authenticate 邮箱不存在和密码错误返回同一个错误
// 邮箱与注册时一样去除首尾空白
func (s *IdentityService) Authenticate(ctx context.Context, email, secret string) (*model.Account, error) {
	account, err := s.store.Accounts().GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	credential, err := s.store.Credentials().GetByAccountID(ctx, account.ID)
	if err != nil {
		if errors.Is(err, repository.ErrCredentialNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if subtle.ConstantTimeCompare([]byte(credential.Secret), []byte(secret)) != 1 {
		return nil, ErrInvalidCredentials
	}
	return account, nil
}

func (s *IdentityService) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	return s.store.Accounts().GetByID(ctx, id)
}

// ListAccounts 按注册顺序返回
func (s *IdentityService) ListAccounts(ctx context.Context) ([]*model.Account, error) {
	return s.store.Accounts().List(ctx)
}
