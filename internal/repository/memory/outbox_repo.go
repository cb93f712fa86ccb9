package memory

import (
	"context"
	"time"

	"imagepay/internal/model"
)

type outboxRepo struct {
	s *Store
}

func (r *outboxRepo) Create(_ context.Context, msg *model.OutboxMessage) error {
	return r.s.do(func(d *data) error {
		d.outboxSeq++
		msg.ID = d.outboxSeq
		if msg.Status == "" {
			msg.Status = model.OutboxStatusPending
		}
		stamp(&msg.CreatedAt)
		msg.UpdatedAt = msg.CreatedAt
		m := *msg
		d.outbox = append(d.outbox, &m)
		return nil
	})
}

func (r *outboxRepo) GetPendingMessages(_ context.Context, limit int) ([]*model.OutboxMessage, error) {
	return r.listByStatus(model.OutboxStatusPending, limit)
}

func (r *outboxRepo) GetFailedMessages(_ context.Context, limit int) ([]*model.OutboxMessage, error) {
	return r.listByStatus(model.OutboxStatusFailed, limit)
}

func (r *outboxRepo) listByStatus(status string, limit int) ([]*model.OutboxMessage, error) {
	out := make([]*model.OutboxMessage, 0)
	err := r.s.do(func(d *data) error {
		for _, m := range d.outbox {
			if limit > 0 && len(out) >= limit {
				break
			}
			if m.Status == status {
				cp := *m
				out = append(out, &cp)
			}
		}
		return nil
	})
	return out, err
}

func (r *outboxRepo) update(id int64, fn func(m *model.OutboxMessage)) error {
	return r.s.do(func(d *data) error {
		for _, m := range d.outbox {
			if m.ID == id {
				fn(m)
				m.UpdatedAt = time.Now()
				return nil
			}
		}
		return nil
	})
}

func (r *outboxRepo) UpdateStatus(_ context.Context, id int64, status string) error {
	return r.update(id, func(m *model.OutboxMessage) { m.Status = status })
}

func (r *outboxRepo) IncrementRetryCount(_ context.Context, id int64) error {
	return r.update(id, func(m *model.OutboxMessage) { m.RetryCount++ })
}

func (r *outboxRepo) Requeue(_ context.Context, id int64) error {
	return r.update(id, func(m *model.OutboxMessage) {
		if m.Status == model.OutboxStatusFailed {
			m.Status = model.OutboxStatusPending
			m.RetryCount = 0
		}
	})
}

func (r *outboxRepo) MarkAsFailed(_ context.Context, id int64) error {
	return r.update(id, func(m *model.OutboxMessage) { m.Status = model.OutboxStatusFailed })
}
