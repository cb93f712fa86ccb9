package service

import (
	"context"

	"imagepay/internal/model"
	"imagepay/internal/repository"
)

type Summary struct {
	AccountCount    int64 `json:"account_count"`
	ImageCount      int64 `json:"image_count"`
	TotalRevenue    int64 `json:"total_revenue"`
	CreditsConsumed int64 `json:"credits_consumed"`
}

// AnalyticsService 只读统计，每次调用重新计算
type AnalyticsService struct {
	store repository.Store
}

func NewAnalyticsService(store repository.Store) *AnalyticsService {
	return &AnalyticsService{store: store}
}

// Summarize 收入只统计成功的支付；消耗积分按每条生成记录的实际扣费累加
func (s *AnalyticsService) Summarize(ctx context.Context) (*Summary, error) {
	var (
		summary Summary
		err     error
	)
	if summary.AccountCount, err = s.store.Accounts().Count(ctx); err != nil {
		return nil, err
	}
	if summary.ImageCount, err = s.store.Generations().Count(ctx); err != nil {
		return nil, err
	}
	if summary.TotalRevenue, err = s.store.Payments().SumAmountByStatus(ctx, model.PaymentStatusSuccess); err != nil {
		return nil, err
	}
	if summary.CreditsConsumed, err = s.store.Generations().SumCost(ctx); err != nil {
		return nil, err
	}
	return &summary, nil
}
