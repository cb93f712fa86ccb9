package job

import (
	"context"
	"log"
	"time"

	"imagepay/internal/model"
	"imagepay/internal/repository"
)

// ReconcileReport 一次对账的结果
type ReconcileReport struct {
	// UnsettledPayments 状态为 SUCCESS 但没有入账流水的支付
	UnsettledPayments []string
	// BalanceMismatches 余额与最后一条流水的 balance_after 不一致的账户
	BalanceMismatches []string
}

func (r *ReconcileReport) OK() bool {
	return len(r.UnsettledPayments) == 0 && len(r.BalanceMismatches) == 0
}

// ReconcileJob 定期核对支付、流水和账户余额，只记录异常不自动修复
type ReconcileJob struct {
	store    repository.Store
	stopCh   chan struct{}
	interval time.Duration
}

func NewReconcileJob(store repository.Store, interval time.Duration) *ReconcileJob {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ReconcileJob{
		store:    store,
		stopCh:   make(chan struct{}),
		interval: interval,
	}
}

func (j *ReconcileJob) Start(ctx context.Context) {
	log.Println("[ReconcileJob] 对账任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[ReconcileJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[ReconcileJob] 任务停止")
			return
		case <-ticker.C:
			if _, err := j.Run(ctx); err != nil {
				log.Printf("[ReconcileJob] 对账失败: %v", err)
			}
		}
	}
}

func (j *ReconcileJob) Stop() {
	close(j.stopCh)
}

func (j *ReconcileJob) Run(ctx context.Context) (*ReconcileReport, error) {
	report := &ReconcileReport{}

	payments, err := j.store.Payments().List(ctx, model.PaymentStatusSuccess)
	if err != nil {
		return nil, err
	}
	for _, p := range payments {
		entry, err := j.store.LedgerEntries().GetByUserIDAndRefID(ctx, p.UserID, p.ID)
		if err != nil {
			return nil, err
		}
		if entry == nil {
			log.Printf("[ReconcileJob] 发现已成功但未入账的支付: paymentID=%s, userID=%s, credits=%d",
				p.ID, p.UserID, p.Credits)
			report.UnsettledPayments = append(report.UnsettledPayments, p.ID)
		}
	}

	accounts, err := j.store.Accounts().List(ctx)
	if err != nil {
		return nil, err
	}
	for _, a := range accounts {
		entries, err := j.store.LedgerEntries().ListByUserID(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			continue
		}
		if latest := entries[0]; latest.BalanceAfter != a.Credits {
			log.Printf("[ReconcileJob] 余额与流水不一致: accountID=%s, credits=%d, lastEntry=%s, balanceAfter=%d",
				a.ID, a.Credits, latest.ID, latest.BalanceAfter)
			report.BalanceMismatches = append(report.BalanceMismatches, a.ID)
		}
	}

	if !report.OK() {
		log.Printf("[ReconcileJob] 本次对账发现 %d 个未入账支付，%d 个余额异常账户",
			len(report.UnsettledPayments), len(report.BalanceMismatches))
	}
	return report, nil
}
