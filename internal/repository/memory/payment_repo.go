package memory

import (
	"context"
	"time"

	"imagepay/internal/model"
	"imagepay/internal/repository"
)

type paymentRepo struct {
	s *Store
}

func (r *paymentRepo) Create(_ context.Context, payment *model.Payment) error {
	return r.s.do(func(d *data) error {
		if _, exists := d.payments[payment.ID]; exists {
			return ErrDuplicateID
		}
		stamp(&payment.CreatedAt)
		d.payments[payment.ID] = copyPayment(payment)
		d.paymentOrder = append(d.paymentOrder, payment.ID)
		return nil
	})
}

func (r *paymentRepo) GetByID(_ context.Context, id string) (*model.Payment, error) {
	var out *model.Payment
	err := r.s.do(func(d *data) error {
		p, ok := d.payments[id]
		if !ok {
			return repository.ErrPaymentNotFound
		}
		out = copyPayment(p)
		return nil
	})
	return out, err
}

func (r *paymentRepo) UpdateStatus(_ context.Context, id string, fromStatus, toStatus string) error {
	if !model.CanTransitionTo(fromStatus, toStatus) {
		return repository.ErrPaymentStatusInvalid
	}
	return r.s.do(func(d *data) error {
		p, ok := d.payments[id]
		if !ok || p.Status != fromStatus {
			return repository.ErrPaymentStatusInvalid
		}
		p.Status = toStatus
		if toStatus == model.PaymentStatusSuccess {
			now := time.Now()
			p.SettledAt = &now
		}
		return nil
	})
}

func (r *paymentRepo) List(_ context.Context, status string) ([]*model.Payment, error) {
	return r.filter(func(p *model.Payment) bool {
		return status == "" || p.Status == status
	})
}

func (r *paymentRepo) ListByUserID(_ context.Context, userID string) ([]*model.Payment, error) {
	return r.filter(func(p *model.Payment) bool {
		return p.UserID == userID
	})
}

func (r *paymentRepo) filter(keep func(p *model.Payment) bool) ([]*model.Payment, error) {
	out := make([]*model.Payment, 0)
	err := r.s.do(func(d *data) error {
		for _, id := range d.paymentOrder {
			if p := d.payments[id]; keep(p) {
				out = append(out, copyPayment(p))
			}
		}
		return nil
	})
	return out, err
}

func (r *paymentRepo) SumAmountByStatus(_ context.Context, status string) (int64, error) {
	var total int64
	err := r.s.do(func(d *data) error {
		for _, p := range d.payments {
			if p.Status == status {
				total += p.Amount
			}
		}
		return nil
	})
	return total, err
}
