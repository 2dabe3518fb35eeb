package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/richardliu001/ledger-service/internal/apperr"
	"github.com/richardliu001/ledger-service/internal/model"
	"github.com/richardliu001/ledger-service/internal/repo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DebtService records debts and shared expenses and serves debt reads.
type DebtService struct {
	base
	mat             *Materializer
	syncMaterialize bool
}

// NewDebtService returns DebtService. When syncMaterialize is set balances
// are recomputed right after every committed write.
func NewDebtService(r repo.RepositoryInterface, mat *Materializer, syncMaterialize bool, logger *zap.SugaredLogger) *DebtService {
	return &DebtService{base: newBase(r, logger), mat: mat, syncMaterialize: syncMaterialize}
}

type CreateDebtInput struct {
	ApartmentID    string
	DebtorID       string
	CreditorID     string
	Amount         decimal.Decimal
	Description    string
	ActorID        string
	IdempotencyKey string
}

// CreateDebt records an open debt directly.
func (s *DebtService) CreateDebt(ctx context.Context, in CreateDebtInput) (*model.Debt, error) {
	logID := newLogID()
	if err := requireActor(in.ActorID); err != nil {
		return nil, apperr.WithLogID(err, logID)
	}
	if err := validAmount(in.Amount); err != nil {
		return nil, apperr.WithLogID(err, logID)
	}

	d := &model.Debt{
		ID: uuid.NewString(), ApartmentID: in.ApartmentID, DebtorID: in.DebtorID, CreditorID: in.CreditorID,
		Amount: in.Amount, Status: model.DebtOpen, Description: in.Description,
		CreatedBy: in.ActorID, CreatedAt: s.now(),
	}
	if err := repo.ValidateDebt(d); err != nil {
		return nil, apperr.WithLogID(err, logID)
	}

	replayed := false
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.requireMember(ctx, tx, in.ApartmentID, in.ActorID); err != nil {
			return err
		}
		prev, err := s.repo.FindAuditByKey(ctx, tx, in.ApartmentID, model.ActionDebtCreated, in.IdempotencyKey)
		if err != nil {
			return err
		}
		if prev != nil && prev.ResultRef != nil {
			replayed = true
			d, err = s.repo.GetDebt(ctx, tx, *prev.ResultRef)
			return err
		}
		if err := s.requireParties(ctx, tx, in.ApartmentID, in.DebtorID, in.CreditorID); err != nil {
			return err
		}
		if err := s.repo.CreateDebt(ctx, tx, d); err != nil {
			return err
		}
		if err := s.repo.CreateOutboxEvent(ctx, tx, outboxEvent(in.ApartmentID, d.ID, model.EventDebtCreated)); err != nil {
			return err
		}
		amt := d.Amount
		return s.repo.AppendAudit(ctx, tx, &model.AuditEntry{
			ID: logID, ApartmentID: in.ApartmentID, Action: model.ActionDebtCreated,
			IdempotencyKey: keyPtr(in.IdempotencyKey), ActorID: in.ActorID, Amount: &amt,
			DebtID: &d.ID, ResultRef: &d.ID, CreatedAt: d.CreatedAt,
			Detail: detail(map[string]interface{}{"debtor_id": d.DebtorID, "creditor_id": d.CreditorID}),
		})
	})
	if err != nil {
		s.log.Warnw("create debt failed", "apartment_id", in.ApartmentID, "log_id", logID, "err", err)
		return nil, apperr.WithLogID(err, logID)
	}
	if !replayed {
		s.log.Infow("debt created", "apartment_id", in.ApartmentID, "debt_id", d.ID, "amount", d.Amount.String())
		s.afterWrite(ctx, in.ApartmentID)
	}
	return d, nil
}

type CreateExpenseInput struct {
	ApartmentID    string
	PayerID        string
	Amount         decimal.Decimal
	ParticipantIDs []string
	Description    string
	ActorID        string
	IdempotencyKey string
}

// ExpenseResult is a recorded expense and the debts it produced. Debts is
// empty on an idempotent replay.
type ExpenseResult struct {
	Expense  *model.Expense `json:"expense"`
	Debts    []model.Debt   `json:"debts"`
	Replayed bool           `json:"replayed"`
}

// SplitShares divides amount evenly among participants, rounding each share
// down to cents. The payer absorbs the remainder, so the returned map holds
// only non-payer participants with a positive share.
func SplitShares(amount decimal.Decimal, payerID string, participants []string) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	if len(participants) == 0 {
		return out
	}
	share := amount.Div(decimal.NewFromInt(int64(len(participants)))).Truncate(2)
	if !share.IsPositive() {
		return out
	}
	for _, p := range participants {
		if p != payerID {
			out[p] = share
		}
	}
	return out
}

// CreateExpense records a visible shared expense and one open debt per
// non-payer participant.
func (s *DebtService) CreateExpense(ctx context.Context, in CreateExpenseInput) (*ExpenseResult, error) {
	logID := newLogID()
	if err := requireActor(in.ActorID); err != nil {
		return nil, apperr.WithLogID(err, logID)
	}
	if err := validAmount(in.Amount); err != nil {
		return nil, apperr.WithLogID(err, logID)
	}
	if in.PayerID == "" || len(in.ParticipantIDs) == 0 {
		return nil, apperr.WithLogID(apperr.New(apperr.InvalidArgument, apperr.ReasonMissingField, "payer and participants are required"), logID)
	}
	seen := make(map[string]bool, len(in.ParticipantIDs))
	for _, p := range in.ParticipantIDs {
		if p == "" || seen[p] {
			return nil, apperr.WithLogID(apperr.New(apperr.InvalidArgument, apperr.ReasonMissingField, "participants must be distinct and non-empty"), logID)
		}
		seen[p] = true
	}

	now := s.now()
	exp := &model.Expense{
		ID: uuid.NewString(), ApartmentID: in.ApartmentID, PayerID: in.PayerID, Amount: in.Amount,
		Kind: model.ExpenseShared, Visible: true, Description: in.Description,
		CreatedBy: in.ActorID, CreatedAt: now,
	}
	for _, p := range in.ParticipantIDs {
		exp.Participants = append(exp.Participants, model.ExpenseParticipant{UserID: p})
	}

	res := &ExpenseResult{Expense: exp}
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.requireMember(ctx, tx, in.ApartmentID, in.ActorID); err != nil {
			return err
		}
		prev, err := s.repo.FindAuditByKey(ctx, tx, in.ApartmentID, model.ActionExpenseCreated, in.IdempotencyKey)
		if err != nil {
			return err
		}
		if prev != nil && prev.ResultRef != nil {
			res.Replayed = true
			res.Expense, err = s.repo.GetExpense(ctx, tx, *prev.ResultRef)
			return err
		}
		if err := s.requireParties(ctx, tx, in.ApartmentID, append([]string{in.PayerID}, in.ParticipantIDs...)...); err != nil {
			return err
		}
		if err := s.repo.CreateExpense(ctx, tx, exp); err != nil {
			return err
		}

		shares := SplitShares(in.Amount, in.PayerID, in.ParticipantIDs)
		for _, p := range in.ParticipantIDs {
			share, ok := shares[p]
			if !ok {
				continue
			}
			d := model.Debt{
				ID: uuid.NewString(), ApartmentID: in.ApartmentID, DebtorID: p, CreditorID: in.PayerID,
				Amount: share, Status: model.DebtOpen, Description: in.Description,
				CreatedBy: in.ActorID, CreatedAt: now,
			}
			if err := s.repo.CreateDebt(ctx, tx, &d); err != nil {
				return err
			}
			if err := s.repo.CreateOutboxEvent(ctx, tx, outboxEvent(in.ApartmentID, d.ID, model.EventDebtCreated)); err != nil {
				return err
			}
			res.Debts = append(res.Debts, d)
		}

		amt := in.Amount
		return s.repo.AppendAudit(ctx, tx, &model.AuditEntry{
			ID: logID, ApartmentID: in.ApartmentID, Action: model.ActionExpenseCreated,
			IdempotencyKey: keyPtr(in.IdempotencyKey), ActorID: in.ActorID, Amount: &amt,
			ResultRef: &exp.ID, CreatedAt: now,
			Detail: detail(map[string]interface{}{"payer_id": in.PayerID, "debts": len(res.Debts)}),
		})
	})
	if err != nil {
		s.log.Warnw("create expense failed", "apartment_id", in.ApartmentID, "log_id", logID, "err", err)
		return nil, apperr.WithLogID(err, logID)
	}
	if !res.Replayed {
		s.log.Infow("expense created", "apartment_id", in.ApartmentID, "expense_id", exp.ID, "debts", len(res.Debts))
		s.afterWrite(ctx, in.ApartmentID)
	}
	return res, nil
}

// GetDebt reads one debt of the apartment.
func (s *DebtService) GetDebt(ctx context.Context, apartmentID, debtID, actorID string) (*model.Debt, error) {
	var d *model.Debt
	err := s.readTx(ctx, apartmentID, actorID, func(tx *gorm.DB) error {
		var err error
		d, err = s.repo.GetDebt(ctx, tx, debtID)
		if err != nil {
			return err
		}
		if d.ApartmentID != apartmentID {
			return apperr.New(apperr.NotFound, apperr.ReasonDebtNotFound, "debt %s not found", debtID)
		}
		return nil
	})
	return d, apperr.WithLogID(err, newLogID())
}

// ListOpenDebts returns the apartment's open debts, oldest first.
func (s *DebtService) ListOpenDebts(ctx context.Context, apartmentID, actorID string) ([]model.Debt, error) {
	var debts []model.Debt
	err := s.readTx(ctx, apartmentID, actorID, func(tx *gorm.DB) error {
		var err error
		debts, err = s.repo.ListOpenDebts(ctx, tx, apartmentID)
		return err
	})
	return debts, apperr.WithLogID(err, newLogID())
}

// History is the displayable ledger: visible expenses and transfers.
type History struct {
	Expenses  []model.Expense  `json:"expenses"`
	Transfers []model.Transfer `json:"transfers"`
}

// ListHistory returns visible expenses and transfers. Hidden settlement
// records are excluded.
func (s *DebtService) ListHistory(ctx context.Context, apartmentID, actorID string) (*History, error) {
	h := &History{}
	err := s.readTx(ctx, apartmentID, actorID, func(tx *gorm.DB) error {
		var err error
		if h.Expenses, err = s.repo.ListExpenses(ctx, tx, apartmentID, true); err != nil {
			return err
		}
		h.Transfers, err = s.repo.ListTransfers(ctx, tx, apartmentID)
		return err
	})
	if err != nil {
		return nil, apperr.WithLogID(err, newLogID())
	}
	return h, nil
}

func (s *DebtService) afterWrite(ctx context.Context, apartmentID string) {
	if !s.syncMaterialize || s.mat == nil {
		return
	}
	if _, err := s.mat.Recompute(ctx, apartmentID, "debt_write"); err != nil {
		s.log.Warnw("synchronous materialize failed", "apartment_id", apartmentID, "err", err)
	}
}
