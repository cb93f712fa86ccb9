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
	"imagepay/internal/infrastructure/lock"
	"imagepay/internal/model"
	"imagepay/internal/repository"
	"imagepay/pkg/idgen"

	"github.com/google/uuid"
)

// PaymentService 积分购买与结算
//
// INSTANT 支付创建即结算；MANUAL_TRANSFER 支付保持 PENDING，
// 由管理员 Approve 后结算。结算（状态更新、入账、写消息）在同一事务内完成
type PaymentService struct {
	store  repository.Store
	locker lock.Locker
	ledger *LedgerService
	events event.Publisher
	cfg    *config.Config
}

func NewPaymentService(store repository.Store, locker lock.Locker, ledger *LedgerService, events event.Publisher, cfg *config.Config) *PaymentService {
	return &PaymentService{
		store:  store,
		locker: locker,
		ledger: ledger,
		events: events,
		cfg:    cfg,
	}
}

// CreatePayment 创建支付记录。
// INSTANT 结算失败时记录以 FAILED 保存且不入账，同时返回错误
func (s *PaymentService) CreatePayment(ctx context.Context, accountID string, amount, credits int64, method, externalRef string) (*model.Payment, error) {
	return s.create(ctx, &model.Payment{
		UserID:        accountID,
		Amount:        amount,
		Credits:       credits,
		Method:        method,
		TransactionID: strings.TrimSpace(externalRef),
	})
}

// PurchasePlan 按套餐价格和积分创建支付
func (s *PaymentService) PurchasePlan(ctx context.Context, accountID, planID, method, externalRef string) (*model.Payment, error) {
	plan, ok := s.cfg.FindPlan(planID)
	if !ok {
		return nil, ErrPlanNotFound
	}
	return s.create(ctx, &model.Payment{
		UserID:        accountID,
		Amount:        plan.Price,
		Credits:       plan.Credits,
		Method:        method,
		TransactionID: strings.TrimSpace(externalRef),
		PlanID:        plan.ID,
	})
}

// maxPaymentValue 单笔支付金额与积分的上限
const maxPaymentValue int64 = 1_000_000_000_000

func (s *PaymentService) create(ctx context.Context, payment *model.Payment) (*model.Payment, error) {
	if payment.Amount <= 0 || payment.Credits <= 0 ||
		payment.Amount > maxPaymentValue || payment.Credits > maxPaymentValue {
		return nil, ErrInvalidAmount
	}
	if !model.IsValidPaymentMethod(payment.Method) {
		return nil, ErrInvalidMethod
	}
	if _, err := s.store.Accounts().GetByID(ctx, payment.UserID); err != nil {
		return nil, err
	}

	payment.ID = idgen.GeneratePaymentNo()
	payment.CreatedAt = time.Now()

	if payment.Method == model.PaymentMethodManualTransfer {
		payment.Status = model.PaymentStatusPending
		if err := s.store.Payments().Create(ctx, payment); err != nil {
			return nil, fmt.Errorf("创建支付记录失败: %w", err)
		}
		log.Printf("[Payment] 待审核: paymentID=%s, userID=%s, amount=%d, credits=%d",
			payment.ID, payment.UserID, payment.Amount, payment.Credits)
		return payment, nil
	}

	// 模拟网关同步确认，没有网关流水号时分配一个
	if payment.TransactionID == "" {
		payment.TransactionID = "GW" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	}

	var account *model.Account
	err := s.ledger.withAccount(ctx, payment.UserID, func(tx repository.Store) error {
		now := time.Now()
		settled := *payment
		settled.Status = model.PaymentStatusSuccess
		settled.SettledAt = &now
		if err := tx.Payments().Create(ctx, &settled); err != nil {
			return fmt.Errorf("创建支付记录失败: %w", err)
		}

		var err error
		account, err = s.settle(ctx, tx, &settled)
		return err
	})
	if err != nil {
		payment.Status = model.PaymentStatusFailed
		// 调用方可能已取消，失败记录仍需落库
		if saveErr := s.store.Payments().Create(context.WithoutCancel(ctx), payment); saveErr != nil {
			log.Printf("[Payment] 保存失败记录出错: paymentID=%s, err=%v", payment.ID, saveErr)
		}
		log.Printf("[Payment] 即时支付结算失败: paymentID=%s, userID=%s, err=%v", payment.ID, payment.UserID, err)
		return nil, fmt.Errorf("支付结算失败: %w", err)
	}

	log.Printf("[Payment] 即时支付成功: paymentID=%s, userID=%s, amount=%d, credits=%d",
		payment.ID, payment.UserID, payment.Amount, payment.Credits)
	s.notifySettled(ctx, account, payment.ID)

	return s.store.Payments().GetByID(ctx, payment.ID)
}

// Approve 审核通过待审核支付。已成功的支付原样返回，不会重复入账
func (s *PaymentService) Approve(ctx context.Context, paymentID string) (*model.Payment, error) {
	payment, err := s.store.Payments().GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if res, err := settledResult(payment); res != nil || err != nil {
		return res, err
	}

	unlock, err := s.locker.Acquire(ctx, lock.PaymentKey(paymentID), uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer unlock()

	// 获取锁后再次检查
	payment, err = s.store.Payments().GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if res, err := settledResult(payment); res != nil || err != nil {
		return res, err
	}

	var account *model.Account
	err = s.ledger.withAccount(ctx, payment.UserID, func(tx repository.Store) error {
		if err := tx.Payments().UpdateStatus(ctx, paymentID, model.PaymentStatusPending, model.PaymentStatusSuccess); err != nil {
			return err
		}
		settled, err := tx.Payments().GetByID(ctx, paymentID)
		if err != nil {
			return err
		}
		account, err = s.settle(ctx, tx, settled)
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrPaymentStatusInvalid) {
			// 其他进程已处理，按当前状态返回
			current, getErr := s.store.Payments().GetByID(ctx, paymentID)
			if getErr != nil {
				return nil, getErr
			}
			if res, checkErr := settledResult(current); res != nil || checkErr != nil {
				return res, checkErr
			}
		}
		return nil, fmt.Errorf("审核支付失败: %w", err)
	}

	log.Printf("[Payment] 审核通过: paymentID=%s, userID=%s, credits=%d", paymentID, payment.UserID, payment.Credits)
	s.notifySettled(ctx, account, paymentID)

	return s.store.Payments().GetByID(ctx, paymentID)
}

// settledResult 已成功的支付原样返回，不可审核的返回错误，待审核的返回 nil, nil
func settledResult(payment *model.Payment) (*model.Payment, error) {
	switch payment.Status {
	case model.PaymentStatusSuccess:
		return payment, nil
	case model.PaymentStatusPending:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: 当前状态 %s", ErrPaymentStatusInvalid, payment.Status)
	}
}

// settle 在事务内为已标记成功的支付入账并写入 payment_settled 消息
func (s *PaymentService) settle(ctx context.Context, tx repository.Store, payment *model.Payment) (*model.Account, error) {
	account, _, err := s.ledger.post(ctx, tx, posting{
		accountID: payment.UserID,
		amount:    payment.Credits,
		direction: DirectionCredit,
		entryType: model.EntryTypePayment,
		refID:     payment.ID,
	})
	if err != nil {
		return nil, err
	}

	settledAt := time.Now()
	if payment.SettledAt != nil {
		settledAt = *payment.SettledAt
	}
	msg, err := model.NewOutboxMessage(s.cfg.Kafka.Topic.PaymentSettled, payment.UserID, model.PaymentSettledPayload{
		PaymentID: payment.ID,
		UserID:    payment.UserID,
		Amount:    payment.Amount,
		Credits:   payment.Credits,
		Method:    payment.Method,
		Status:    model.PaymentStatusSuccess,
		SettledAt: settledAt.Format(time.RFC3339),
	})
	if err != nil {
		return nil, err
	}
	if err := tx.Outbox().Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("写入消息失败: %w", err)
	}
	return account, nil
}

func (s *PaymentService) notifySettled(ctx context.Context, account *model.Account, paymentID string) {
	s.ledger.notifyBalance(ctx, account, paymentID)
	s.events.Publish(ctx, event.Event{
		Type:      event.TypePaymentSettled,
		AccountID: account.ID,
		RefID:     paymentID,
		Balance:   account.Credits,
	})
}

// ListPayments 按创建时间正序，status 为空时返回全部
func (s *PaymentService) ListPayments(ctx context.Context, status string) ([]*model.Payment, error) {
	status = strings.ToUpper(strings.TrimSpace(status))
	switch status {
	case "", model.PaymentStatusPending, model.PaymentStatusSuccess, model.PaymentStatusFailed:
	default:
		return nil, fmt.Errorf("%w: 未知的支付状态 %s", ErrInvalidInput, status)
	}
	return s.store.Payments().List(ctx, status)
}

func (s *PaymentService) ListUserPayments(ctx context.Context, accountID string) ([]*model.Payment, error) {
	return s.store.Payments().ListByUserID(ctx, accountID)
}
