package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/richardliu001/ledger-service/internal/apperr"
	"github.com/richardliu001/ledger-service/internal/metrics"
	"github.com/richardliu001/ledger-service/internal/model"
	"github.com/richardliu001/ledger-service/internal/repo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SettlementService is the only writer of debt status.
type SettlementService struct {
	base
	mat             *Materializer
	syncMaterialize bool
}

// NewSettlementService returns SettlementService.
func NewSettlementService(r repo.RepositoryInterface, mat *Materializer, syncMaterialize bool, logger *zap.SugaredLogger) *SettlementService {
	return &SettlementService{base: newBase(r, logger), mat: mat, syncMaterialize: syncMaterialize}
}

type SettleDebtInput struct {
	ApartmentID    string
	DebtID         string
	ActorID        string
	IdempotencyKey string
}

type SettleDebtResult struct {
	SettlementID string `json:"settlement_id"`
	Replayed     bool   `json:"replayed"`
}

// SettleDebt closes an open debt directly. It writes the hidden 2x
// settlement record, a transfer and an audit entry in the same transaction.
func (s *SettlementService) SettleDebt(ctx context.Context, in SettleDebtInput) (res *SettleDebtResult, err error) {
	logID := newLogID()
	defer func() { metrics.Settlements.WithLabelValues("direct", outcome(err)).Inc() }()

	if err := requireActor(in.ActorID); err != nil {
		return nil, apperr.WithLogID(err, logID)
	}
	if in.DebtID == "" {
		return nil, apperr.WithLogID(apperr.New(apperr.InvalidArgument, apperr.ReasonMissingField, "debt id is required"), logID)
	}

	res = &SettleDebtResult{}
	mixed := false
	err = s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.requireMember(ctx, tx, in.ApartmentID, in.ActorID); err != nil {
			return err
		}
		prev, err := s.repo.FindAuditByKey(ctx, tx, in.ApartmentID, model.ActionDebtSettled, in.IdempotencyKey)
		if err != nil {
			return err
		}
		if prev != nil && prev.ResultRef != nil {
			res.SettlementID, res.Replayed = *prev.ResultRef, true
			return nil
		}

		d, err := s.repo.GetDebtForUpdate(ctx, tx, in.DebtID)
		if err != nil {
			return err
		}
		if d.ApartmentID != in.ApartmentID {
			return apperr.New(apperr.NotFound, apperr.ReasonDebtNotFound, "debt %s not found", in.DebtID)
		}
		if !d.IsOpen() {
			return apperr.New(apperr.FailedPrecondition, apperr.ReasonDebtAlreadyClosed, "debt %s is already closed", d.ID)
		}
		if err := repo.ValidateDebt(d); err != nil {
			return apperr.New(apperr.FailedPrecondition, apperr.ReasonDebtMalformed, "debt %s is malformed: %v", d.ID, err)
		}

		now := s.now()
		settlementID := uuid.NewString()
		if err := s.closeWithRecord(ctx, tx, d, settlementID, model.ExpenseSettlement, in.ActorID, nil); err != nil {
			return err
		}
		if err := s.repo.CreateOutboxEvent(ctx, tx, outboxEvent(in.ApartmentID, d.ID, model.EventDebtClosed)); err != nil {
			return err
		}

		last, err := s.repo.LastProtocol(ctx, tx, in.ApartmentID)
		if err != nil {
			return err
		}
		mixed = last == model.ProtocolIncremental

		amt := d.Amount
		if err := s.repo.AppendAudit(ctx, tx, &model.AuditEntry{
			ID: logID, ApartmentID: in.ApartmentID, Action: model.ActionDebtSettled,
			IdempotencyKey: keyPtr(in.IdempotencyKey), ActorID: in.ActorID, Amount: &amt,
			DebtID: &d.ID, ResultRef: &settlementID, CreatedAt: now,
			Detail: detail(map[string]interface{}{"debtor_id": d.DebtorID, "creditor_id": d.CreditorID, "protocol": "direct"}),
		}); err != nil {
			return err
		}
		res.SettlementID = settlementID
		return nil
	})
	if err != nil {
		prev, kerr := s.keyedConflict(ctx, in.ApartmentID, model.ActionDebtSettled, in.IdempotencyKey, err)
		if prev != nil {
			return &SettleDebtResult{SettlementID: *prev.ResultRef, Replayed: true}, nil
		}
		s.log.Warnw("settle debt failed", "apartment_id", in.ApartmentID, "debt_id", in.DebtID, "log_id", logID, "err", err)
		return nil, apperr.WithLogID(kerr, logID)
	}
	if res.Replayed {
		return res, nil
	}

	s.log.Infow("debt settled", "apartment_id", in.ApartmentID, "debt_id", in.DebtID, "settlement_id", res.SettlementID)
	if s.syncMaterialize || mixed {
		s.materialize(ctx, in.ApartmentID, "settlement")
	}
	return res, nil
}

type CreateAndCloseInput struct {
	ApartmentID string
	FromUserID  string
	ToUserID    string
	Amount      decimal.Decimal
	ActorID     string
	// DebtID is optional; a fresh uuid is minted when empty.
	DebtID         string
	IdempotencyKey string
}

type CreateAndCloseResult struct {
	DebtID       string `json:"debt_id"`
	SettlementID string `json:"settlement_id"`
	Replayed     bool   `json:"replayed"`
}

// CreateAndCloseDebt records a debt that is cleared on creation and applies
// the amount to the incremental balance ledger: FromUserID's row -amount,
// ToUserID's row +amount.
func (s *SettlementService) CreateAndCloseDebt(ctx context.Context, in CreateAndCloseInput) (res *CreateAndCloseResult, err error) {
	logID := newLogID()
	defer func() { metrics.Settlements.WithLabelValues("create_and_close", outcome(err)).Inc() }()

	if err := requireActor(in.ActorID); err != nil {
		return nil, apperr.WithLogID(err, logID)
	}
	if err := validAmount(in.Amount); err != nil {
		return nil, apperr.WithLogID(err, logID)
	}
	debtID := in.DebtID
	if debtID == "" {
		debtID = uuid.NewString()
	}
	now := s.now()
	d := &model.Debt{
		ID: debtID, ApartmentID: in.ApartmentID, DebtorID: in.FromUserID, CreditorID: in.ToUserID,
		Amount: in.Amount, Status: model.DebtOpen, CreatedBy: in.ActorID, CreatedAt: now,
	}
	if err := repo.ValidateDebt(d); err != nil {
		return nil, apperr.WithLogID(err, logID)
	}

	res = &CreateAndCloseResult{}
	mixed := false
	err = s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.requireMember(ctx, tx, in.ApartmentID, in.ActorID); err != nil {
			return err
		}
		prev, err := s.repo.FindAuditByKey(ctx, tx, in.ApartmentID, model.ActionDebtCreatedClosed, in.IdempotencyKey)
		if err != nil {
			return err
		}
		if prev != nil && prev.ResultRef != nil && prev.DebtID != nil {
			res.DebtID, res.SettlementID, res.Replayed = *prev.DebtID, *prev.ResultRef, true
			return nil
		}
		if err := s.requireParties(ctx, tx, in.ApartmentID, in.FromUserID, in.ToUserID); err != nil {
			return err
		}
		exists, err := s.repo.DebtExists(ctx, tx, debtID)
		if err != nil {
			return err
		}
		if exists {
			return apperr.New(apperr.AlreadyExists, apperr.ReasonDebtExists, "debt %s already exists", debtID)
		}

		if err := s.repo.CreateDebt(ctx, tx, d); err != nil {
			return err
		}
		settlementID := uuid.NewString()
		cleared := in.Amount
		if err := s.closeWithRecord(ctx, tx, d, settlementID, model.ExpenseMonthlySettlement, in.ActorID, &cleared); err != nil {
			return err
		}

		last, err := s.repo.LastProtocol(ctx, tx, in.ApartmentID)
		if err != nil {
			return err
		}
		mixed = last == model.ProtocolRecompute
		if err := s.repo.AdjustBalance(ctx, tx, in.ApartmentID, d.DebtorID, in.Amount.Neg(), now); err != nil {
			return err
		}
		if err := s.repo.AdjustBalance(ctx, tx, in.ApartmentID, d.CreditorID, in.Amount, now); err != nil {
			return err
		}
		if err := s.repo.SetLastProtocol(ctx, tx, in.ApartmentID, model.ProtocolIncremental, now); err != nil {
			return err
		}
		if err := s.repo.CreateOutboxEvent(ctx, tx, outboxEvent(in.ApartmentID, d.ID, model.EventBalancesAdjusted)); err != nil {
			return err
		}

		if err := s.repo.AppendAudit(ctx, tx, &model.AuditEntry{
			ID: logID, ApartmentID: in.ApartmentID, Action: model.ActionDebtCreatedClosed,
			IdempotencyKey: keyPtr(in.IdempotencyKey), ActorID: in.ActorID, Amount: &cleared,
			DebtID: &d.ID, ResultRef: &settlementID, CreatedAt: now,
			Detail: detail(map[string]interface{}{"from_user_id": d.DebtorID, "to_user_id": d.CreditorID, "protocol": "create_and_close"}),
		}); err != nil {
			return err
		}
		res.DebtID, res.SettlementID = d.ID, settlementID
		return nil
	})
	if err != nil {
		prev, kerr := s.keyedConflict(ctx, in.ApartmentID, model.ActionDebtCreatedClosed, in.IdempotencyKey, err)
		if prev != nil && prev.DebtID != nil {
			return &CreateAndCloseResult{DebtID: *prev.DebtID, SettlementID: *prev.ResultRef, Replayed: true}, nil
		}
		s.log.Warnw("create and close failed", "apartment_id", in.ApartmentID, "log_id", logID, "err", err)
		return nil, apperr.WithLogID(kerr, logID)
	}
	if res.Replayed {
		return res, nil
	}

	s.log.Infow("debt created closed", "apartment_id", in.ApartmentID, "debt_id", res.DebtID, "amount", in.Amount.String())
	if err := s.repo.InvalidateBalances(ctx, in.ApartmentID); err != nil {
		s.log.Warnw("invalidate balance cache", "apartment_id", in.ApartmentID, "err", err)
	}
	if mixed {
		s.materialize(ctx, in.ApartmentID, "protocol_mix")
	}
	return res, nil
}

// closeWithRecord closes d and writes the hidden settlement record and the
// transfer that discharge it.
func (s *SettlementService) closeWithRecord(ctx context.Context, tx *gorm.DB, d *model.Debt, settlementID string, kind model.ExpenseKind, actorID string, cleared *decimal.Decimal) error {
	now := s.now()
	_, err := s.repo.CloseDebt(ctx, tx, d.ID, repo.DebtClosure{
		ClosedBy: actorID, ClosedAt: now, SettlementID: &settlementID, ClearedAmount: cleared,
	})
	if errors.Is(err, repo.ErrCloseConflict) {
		return apperr.New(apperr.FailedPrecondition, apperr.ReasonDebtAlreadyClosed, "debt %s is already closed", d.ID)
	}
	if err != nil {
		return err
	}

	record := &model.Expense{
		ID: settlementID, ApartmentID: d.ApartmentID, PayerID: d.CreditorID, Amount: d.Amount.Mul(decimal.NewFromInt(2)),
		Kind: kind, Visible: false, LinkedDebtID: &d.ID, CreatedBy: actorID, CreatedAt: now,
		Participants: []model.ExpenseParticipant{{UserID: d.DebtorID}, {UserID: d.CreditorID}},
	}
	if err := s.repo.CreateExpense(ctx, tx, record); err != nil {
		return err
	}
	return s.repo.CreateTransfer(ctx, tx, &model.Transfer{
		ID: uuid.NewString(), ApartmentID: d.ApartmentID, FromUserID: d.DebtorID, ToUserID: d.CreditorID,
		Amount: d.Amount, DebtID: &d.ID, CreatedAt: now,
	})
}

func (s *SettlementService) materialize(ctx context.Context, apartmentID, trigger string) {
	if s.mat == nil {
		return
	}
	if _, err := s.mat.Recompute(ctx, apartmentID, trigger); err != nil {
		s.log.Warnw("post-commit materialize failed", "apartment_id", apartmentID, "trigger", trigger, "err", err)
	}
}
