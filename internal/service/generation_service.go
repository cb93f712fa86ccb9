package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"imagepay/internal/config"
	"imagepay/internal/event"
	"imagepay/internal/model"
	"imagepay/internal/provider"
	"imagepay/internal/repository"
	"imagepay/pkg/idgen"
)

// GenerationService 扣费生成图片
type GenerationService struct {
	store    repository.Store
	ledger   *LedgerService
	provider provider.Provider
	keys     *provider.KeyRing
	events   event.Publisher
	cfg      *config.Config
}

func NewGenerationService(store repository.Store, ledger *LedgerService, p provider.Provider, keys *provider.KeyRing, events event.Publisher, cfg *config.Config) *GenerationService {
	return &GenerationService{
		store:    store,
		ledger:   ledger,
		provider: p,
		keys:     keys,
		events:   events,
		cfg:      cfg,
	}
}

// Generate 生成一张图片并扣除 image_cost 积分。
//
// 顺序：检查 key，检查余额，调用图片服务，扣费并写入记录。
// 扣费与写入记录在同一事务内；如果调用期间余额被其他请求用掉，
// 返回 ErrInsufficientCredits，不写记录也不返回图片。
// 图片服务返回后不再响应 ctx 取消。
func (s *GenerationService) Generate(ctx context.Context, accountID, prompt, size string) (*model.Generation, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}
	if size == "" {
		size = model.Size1K
	}
	if !model.IsValidSize(size) {
		return nil, ErrInvalidSize
	}

	apiKey, ok := s.keys.Key(accountID)
	if !ok {
		return nil, ErrCredentialRequired
	}

	cost := s.cfg.Business.ImageCost
	account, err := s.store.Accounts().GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.Credits < cost {
		return nil, ErrInsufficientCredits
	}

	image, err := s.callProvider(ctx, accountID, provider.Request{Prompt: prompt, Size: size, APIKey: apiKey})
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		log.Printf("[Generation] 请求已取消，放弃扣费: accountID=%s", accountID)
		return nil, err
	}
	ctx = context.WithoutCancel(ctx)

	record := &model.Generation{
		ID:        idgen.GenerateImageNo(),
		UserID:    accountID,
		Prompt:    prompt,
		ImageURL:  image.URL,
		Model:     image.Model,
		Size:      size,
		Cost:      cost,
		CreatedAt: time.Now(),
	}

	err = s.ledger.withAccount(ctx, accountID, func(tx repository.Store) error {
		var err error
		account, _, err = s.ledger.post(ctx, tx, posting{
			accountID: accountID,
			amount:    cost,
			direction: DirectionDebit,
			entryType: model.EntryTypeGeneration,
			refID:     record.ID,
		})
		if err != nil {
			return err
		}
		return tx.Generations().Create(ctx, record)
	})
	if err != nil {
		log.Printf("[Generation] 扣费失败，丢弃图片: accountID=%s, err=%v", accountID, err)
		return nil, err
	}

	log.Printf("[Generation] 生成成功: imageID=%s, accountID=%s, size=%s, balance=%d",
		record.ID, accountID, size, account.Credits)

	s.ledger.notifyBalance(ctx, account, record.ID)
	s.events.Publish(ctx, event.Event{
		Type:      event.TypeGenerationCreated,
		AccountID: accountID,
		RefID:     record.ID,
		Balance:   account.Credits,
	})
	return record, nil
}

func (s *GenerationService) callProvider(ctx context.Context, accountID string, req provider.Request) (*provider.Image, error) {
	callCtx := ctx
	if s.cfg.Provider.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.cfg.Provider.Timeout)
		defer cancel()
	}

	image, err := s.provider.Generate(callCtx, req)
	if err == nil {
		return image, nil
	}

	var pe *provider.ProviderError
	isProviderErr := errors.As(err, &pe)
	if isProviderErr && pe.CredentialInvalid() {
		s.keys.Clear(accountID)
		log.Printf("[Generation] API key 失效，需要重新选择: accountID=%s", accountID)
		return nil, fmt.Errorf("%w: %s", ErrCredentialRequired, pe.Message)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if isProviderErr {
		return nil, fmt.Errorf("图片生成失败: %w", err)
	}

	// 调用方仍在等待，超时或其他失败都归为生成服务错误
	msg := err.Error()
	if errors.Is(err, context.DeadlineExceeded) {
		msg = fmt.Sprintf("请求超时(%s)", s.cfg.Provider.Timeout)
		log.Printf("[Generation] 图片生成超时: accountID=%s, timeout=%s", accountID, s.cfg.Provider.Timeout)
	}
	return nil, &provider.ProviderError{Message: msg, Err: err}
}

// ListUserGenerations 最新在前
func (s *GenerationService) ListUserGenerations(ctx context.Context, accountID string) ([]*model.Generation, error) {
	return s.store.Generations().ListByUserID(ctx, accountID)
}

func (s *GenerationService) HasKey(accountID string) bool {
	return s.keys.HasKey(accountID)
}

// SetKey 用户选择自己的 API key
func (s *GenerationService) SetKey(accountID, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrInvalidInput
	}
	s.keys.Set(accountID, key)
	return nil
}

func (s *GenerationService) ClearKey(accountID string) {
	s.keys.Clear(accountID)
}
