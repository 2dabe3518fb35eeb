package service

import (
	"context"
	"sort"

	"github.com/richardliu001/ledger-service/internal/apperr"
	"github.com/richardliu001/ledger-service/internal/model"
	"github.com/richardliu001/ledger-service/internal/repo"
	"github.com/richardliu001/ledger-service/internal/simplify"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Balance source names.
const (
	SourceMaterialized = "materialized"
	SourceHistory      = "history"
)

// BalanceSource yields per-user net balances for an apartment. A displayed
// figure must come from exactly one source.
type BalanceSource interface {
	Name() string
	Balances(ctx context.Context, tx *gorm.DB, apartmentID string) ([]model.Balance, error)
}

// MaterializedSource reads the Balance rows written by the Materializer.
// It is the authoritative source. Snapshots are cached in Redis.
type MaterializedSource struct {
	repo repo.RepositoryInterface
	log  *zap.SugaredLogger
}

func NewMaterializedSource(r repo.RepositoryInterface, logger *zap.SugaredLogger) *MaterializedSource {
	return &MaterializedSource{repo: r, log: logger}
}

func (m *MaterializedSource) Name() string { return SourceMaterialized }

func (m *MaterializedSource) Balances(ctx context.Context, tx *gorm.DB, apartmentID string) ([]model.Balance, error) {
	if rows, err := m.repo.GetCachedBalances(ctx, apartmentID); err == nil {
		return rows, nil
	}
	// version first: a recompute committing after the DB read bumps it
	version, verr := m.repo.BalanceCacheVersion(ctx, apartmentID)
	rows, err := m.repo.ListBalances(ctx, tx, apartmentID)
	if err != nil {
		return nil, err
	}
	if verr != nil {
		m.log.Warnw("read balance cache version", "apartment_id", apartmentID, "err", verr)
		return rows, nil
	}
	if _, err := m.repo.CacheBalances(ctx, apartmentID, version, rows); err != nil {
		m.log.Warnw("cache balances", "apartment_id", apartmentID, "err", err)
	}
	return rows, nil
}

// HistorySource derives balances from visible shared expenses and transfers.
// Direct settlement records are never read, so a settled expense debt is
// counted once, through its transfer. A created-and-closed debt has no
// originating expense: its record is counted and its transfer is not.
type HistorySource struct {
	repo repo.RepositoryInterface
}

func NewHistorySource(r repo.RepositoryInterface) *HistorySource {
	return &HistorySource{repo: r}
}

func (h *HistorySource) Name() string { return SourceHistory }

func (h *HistorySource) Balances(ctx context.Context, tx *gorm.DB, apartmentID string) ([]model.Balance, error) {
	expenses, err := h.repo.ListExpenses(ctx, tx, apartmentID, false)
	if err != nil {
		return nil, err
	}
	transfers, err := h.repo.ListTransfers(ctx, tx, apartmentID)
	if err != nil {
		return nil, err
	}

	acc := make(map[string]decimal.Decimal)
	recorded := make(map[string]bool)
	for _, e := range expenses {
		switch {
		case e.Kind == model.ExpenseShared && e.Visible:
		case e.Kind == model.ExpenseMonthlySettlement && e.LinkedDebtID != nil:
			recorded[*e.LinkedDebtID] = true
		default:
			continue
		}
		for user, share := range SplitShares(e.Amount, e.PayerID, e.ParticipantIDs()) {
			acc[user] = acc[user].Sub(share)
			acc[e.PayerID] = acc[e.PayerID].Add(share)
		}
	}
	for _, t := range transfers {
		if t.DebtID != nil && recorded[*t.DebtID] {
			continue
		}
		acc[t.FromUserID] = acc[t.FromUserID].Add(t.Amount)
		acc[t.ToUserID] = acc[t.ToUserID].Sub(t.Amount)
	}

	out := make([]model.Balance, 0, len(acc))
	for user, net := range acc {
		net = net.Round(2)
		out = append(out, model.Balance{
			ApartmentID: apartmentID, UserID: user, Net: net,
			HasOpenDebts: !net.IsZero(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// BalanceService serves balance reads and the manual recompute.
type BalanceService struct {
	base
	mat     *Materializer
	sources map[string]BalanceSource
}

// NewBalanceService returns BalanceService. The first source is the default.
func NewBalanceService(r repo.RepositoryInterface, mat *Materializer, logger *zap.SugaredLogger, sources ...BalanceSource) *BalanceService {
	s := &BalanceService{base: newBase(r, logger), mat: mat, sources: make(map[string]BalanceSource)}
	for _, src := range sources {
		s.sources[src.Name()] = src
	}
	return s
}

func (s *BalanceService) source(name string) (BalanceSource, error) {
	if name == "" {
		name = SourceMaterialized
	}
	src, ok := s.sources[name]
	if !ok {
		return nil, apperr.New(apperr.InvalidArgument, "", "unknown balance source %q", name)
	}
	return src, nil
}

// GetBalances returns the apartment's balances from the named source.
func (s *BalanceService) GetBalances(ctx context.Context, apartmentID, actorID, sourceName string) ([]model.Balance, error) {
	src, err := s.source(sourceName)
	if err != nil {
		return nil, apperr.WithLogID(err, newLogID())
	}
	var rows []model.Balance
	err = s.readTx(ctx, apartmentID, actorID, func(tx *gorm.DB) error {
		rows, err = src.Balances(ctx, tx, apartmentID)
		return err
	})
	return rows, apperr.WithLogID(err, newLogID())
}

// SuggestedTransfers simplifies the balances of one source into transfers.
func (s *BalanceService) SuggestedTransfers(ctx context.Context, apartmentID, actorID, sourceName string) ([]simplify.Transfer, error) {
	rows, err := s.GetBalances(ctx, apartmentID, actorID, sourceName)
	if err != nil {
		return nil, err
	}
	in := make([]simplify.Balance, len(rows))
	for i, b := range rows {
		in[i] = simplify.Balance{UserID: b.UserID, Net: b.Net}
	}
	return simplify.Simplify(in), nil
}

// RecomputeBalances runs a full materializer pass on behalf of a member.
// The audit entry is written after the pass commits and its failure is only
// logged.
func (s *BalanceService) RecomputeBalances(ctx context.Context, apartmentID, actorID string) ([]model.Balance, error) {
	logID := newLogID()
	if err := requireActor(actorID); err != nil {
		return nil, apperr.WithLogID(err, logID)
	}
	if err := s.requireMember(ctx, s.repo.DB(ctx), apartmentID, actorID); err != nil {
		return nil, apperr.WithLogID(err, logID)
	}
	rows, err := s.mat.Recompute(ctx, apartmentID, "manual")
	if err != nil {
		s.log.Warnw("recompute failed", "apartment_id", apartmentID, "log_id", logID, "err", err)
		return nil, apperr.WithLogID(err, logID)
	}
	if err := s.repo.AppendAudit(ctx, s.repo.DB(ctx), &model.AuditEntry{
		ID: logID, ApartmentID: apartmentID, Action: model.ActionBalancesRecompute,
		ActorID: actorID, CreatedAt: s.now(),
		Detail: detail(map[string]interface{}{"rows": len(rows)}),
	}); err != nil {
		s.log.Warnw("recompute audit write failed", "apartment_id", apartmentID, "log_id", logID, "err", err)
	}
	return rows, nil
}
