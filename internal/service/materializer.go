package service

import (
	"context"
	"sort"

	"github.com/richardliu001/ledger-service/internal/metrics"
	"github.com/richardliu001/ledger-service/internal/model"
	"github.com/richardliu001/ledger-service/internal/repo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Materializer rebuilds an apartment's Balance rows from its open debts.
// Every pass is a full recomputation; the result is a pure function of the
// open-debt set, so concurrent or repeated passes converge.
type Materializer struct {
	base
}

// NewMaterializer returns Materializer.
func NewMaterializer(r repo.RepositoryInterface, logger *zap.SugaredLogger) *Materializer {
	return &Materializer{base: newBase(r, logger)}
}

// Recompute runs one pass for apartmentID and returns the resulting rows
// ordered by user id. trigger labels the pass in logs and metrics.
func (m *Materializer) Recompute(ctx context.Context, apartmentID, trigger string) ([]model.Balance, error) {
	var out []model.Balance
	written := 0
	err := m.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		debts, err := m.repo.ListOpenDebts(ctx, tx, apartmentID)
		if err != nil {
			return err
		}
		existing, err := m.repo.ListBalances(ctx, tx, apartmentID)
		if err != nil {
			return err
		}

		acc := make(map[string]decimal.Decimal)
		for _, d := range debts {
			acc[d.DebtorID] = acc[d.DebtorID].Sub(d.Amount)
			acc[d.CreditorID] = acc[d.CreditorID].Add(d.Amount)
		}

		now := m.now()
		current := make(map[string]model.Balance, len(existing))
		for _, b := range existing {
			current[b.UserID] = b
		}

		var changed []model.Balance
		final := make(map[string]model.Balance, len(acc)+len(existing))
		for user, net := range acc {
			final[user] = model.Balance{ApartmentID: apartmentID, UserID: user, Net: net.Round(2), HasOpenDebts: true}
		}
		// users with a row but no open debt fall back to zero
		for user := range current {
			if _, ok := final[user]; !ok {
				final[user] = model.Balance{ApartmentID: apartmentID, UserID: user, Net: decimal.Zero}
			}
		}
		for user, b := range final {
			if cur, ok := current[user]; ok && cur.Net.Equal(b.Net) && cur.HasOpenDebts == b.HasOpenDebts {
				out = append(out, cur)
				continue
			}
			b.UpdatedAt = now
			changed = append(changed, b)
			out = append(out, b)
		}
		sort.Slice(changed, func(i, j int) bool { return changed[i].UserID < changed[j].UserID })
		if err := m.repo.UpsertBalances(ctx, tx, changed); err != nil {
			return err
		}
		written = len(changed)

		last, err := m.repo.LastProtocol(ctx, tx, apartmentID)
		if err != nil {
			return err
		}
		if last != model.ProtocolRecompute {
			return m.repo.SetLastProtocol(ctx, tx, apartmentID, model.ProtocolRecompute, now)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.Recomputes.WithLabelValues(trigger).Inc()
	metrics.BalanceRowsWritten.Add(float64(written))
	if err := m.repo.InvalidateBalances(ctx, apartmentID); err != nil {
		m.log.Warnw("invalidate balance cache", "apartment_id", apartmentID, "err", err)
	}
	m.log.Infow("balances materialized", "apartment_id", apartmentID, "trigger", trigger, "rows_written", written)

	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}
