package memory

import (
	"context"

	"imagepay/internal/model"
)

type generationRepo struct {
	s *Store
}

func (r *generationRepo) Create(_ context.Context, generation *model.Generation) error {
	return r.s.do(func(d *data) error {
		stamp(&generation.CreatedAt)
		g := *generation
		d.generations = append(d.generations, &g)
		return nil
	})
}

func (r *generationRepo) ListByUserID(_ context.Context, userID string) ([]*model.Generation, error) {
	out := make([]*model.Generation, 0)
	err := r.s.do(func(d *data) error {
		for i := len(d.generations) - 1; i >= 0; i-- {
			if g := d.generations[i]; g.UserID == userID {
				cp := *g
				out = append(out, &cp)
			}
		}
		return nil
	})
	return out, err
}

func (r *generationRepo) Count(_ context.Context) (int64, error) {
	var n int64
	err := r.s.do(func(d *data) error {
		n = int64(len(d.generations))
		return nil
	})
	return n, err
}

func (r *generationRepo) SumCost(_ context.Context) (int64, error) {
	var total int64
	err := r.s.do(func(d *data) error {
		for _, g := range d.generations {
			total += g.Cost
		}
		return nil
	})
	return total, err
}

type ledgerEntryRepo struct {
	s *Store
}

func (r *ledgerEntryRepo) Create(_ context.Context, entry *model.LedgerEntry) error {
	return r.s.do(func(d *data) error {
		stamp(&entry.CreatedAt)
		e := *entry
		d.entries = append(d.entries, &e)
		return nil
	})
}

func (r *ledgerEntryRepo) GetByUserIDAndRefID(_ context.Context, userID, refID string) (*model.LedgerEntry, error) {
	var out *model.LedgerEntry
	err := r.s.do(func(d *data) error {
		for _, e := range d.entries {
			if e.UserID == userID && e.RefID == refID {
				cp := *e
				out = &cp
				return nil
			}
		}
		return nil
	})
	return out, err
}

func (r *ledgerEntryRepo) ListByUserID(_ context.Context, userID string) ([]*model.LedgerEntry, error) {
	out := make([]*model.LedgerEntry, 0)
	err := r.s.do(func(d *data) error {
		for i := len(d.entries) - 1; i >= 0; i-- {
			if e := d.entries[i]; e.UserID == userID {
				cp := *e
				out = append(out, &cp)
			}
		}
		return nil
	})
	return out, err
}
