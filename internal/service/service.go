package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/richardliu001/ledger-service/internal/apperr"
	"github.com/richardliu001/ledger-service/internal/model"
	"github.com/richardliu001/ledger-service/internal/repo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// base carries what every ledger service needs.
type base struct {
	repo repo.RepositoryInterface
	log  *zap.SugaredLogger
	now  func() time.Time
}

func newBase(r repo.RepositoryInterface, logger *zap.SugaredLogger) base {
	return base{repo: r, log: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Repo exposes underlying repository (unit tests helper).
func (b *base) Repo() repo.RepositoryInterface { return b.repo }

func requireActor(actorID string) error {
	if actorID == "" {
		return apperr.New(apperr.Unauthenticated, apperr.ReasonNoActor, "no authenticated actor")
	}
	return nil
}

// requireMember fails permission-denied unless actorID belongs to apartmentID.
func (b *base) requireMember(ctx context.Context, tx *gorm.DB, apartmentID, actorID string) error {
	ok, err := b.repo.IsMember(ctx, tx, apartmentID, actorID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.New(apperr.PermissionDenied, apperr.ReasonNotMember, "%s is not a member of %s", actorID, apartmentID)
	}
	return nil
}

// requireParties fails invalid-argument when a named party is not a member.
func (b *base) requireParties(ctx context.Context, tx *gorm.DB, apartmentID string, userIDs ...string) error {
	for _, id := range userIDs {
		ok, err := b.repo.IsMember(ctx, tx, apartmentID, id)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.New(apperr.InvalidArgument, apperr.ReasonNotMember, "%s is not a member of %s", id, apartmentID)
		}
	}
	return nil
}

// readTx runs a read-only unit after checking the actor's membership.
func (b *base) readTx(ctx context.Context, apartmentID, actorID string, fn func(tx *gorm.DB) error) error {
	if err := requireActor(actorID); err != nil {
		return err
	}
	db := b.repo.DB(ctx)
	if err := b.requireMember(ctx, db, apartmentID, actorID); err != nil {
		return err
	}
	return fn(db)
}

// keyedConflict resolves a write that lost a race to a concurrent call with
// the same idempotency key. The winner's entry is returned when it has
// committed; otherwise a unique violation becomes already-exists.
func (b *base) keyedConflict(ctx context.Context, apartmentID string, action model.AuditAction, key string, err error) (*model.AuditEntry, error) {
	dup := errors.Is(err, gorm.ErrDuplicatedKey)
	if key != "" && (dup || errors.Is(err, apperr.ErrAlreadyClosed)) {
		prev, ferr := b.repo.FindAuditByKey(ctx, b.repo.DB(ctx), apartmentID, action, key)
		if ferr == nil && prev != nil && prev.ResultRef != nil {
			return prev, nil
		}
	}
	if dup {
		return nil, &apperr.Error{Kind: apperr.AlreadyExists, Reason: apperr.ReasonDuplicate, Message: "conflicting concurrent write", Err: err}
	}
	return nil, err
}

func validAmount(amt decimal.Decimal) error {
	if !amt.IsPositive() {
		return apperr.New(apperr.InvalidArgument, apperr.ReasonInvalidAmount, "amount must be positive, got %s", amt)
	}
	if !amt.Equal(amt.Round(2)) {
		return apperr.New(apperr.InvalidArgument, apperr.ReasonInvalidAmount, "amount %s has more than two decimals", amt)
	}
	return nil
}

func newLogID() string { return uuid.NewString() }

func keyPtr(key string) *string {
	if key == "" {
		return nil
	}
	return &key
}

func detail(v map[string]interface{}) datatypes.JSON {
	b, _ := json.Marshal(v)
	return datatypes.JSON(b)
}

func outboxEvent(apartmentID, debtID, eventType string) *model.OutboxEvent {
	payload, _ := json.Marshal(model.LedgerEvent{ApartmentID: apartmentID, DebtID: debtID, Event: eventType})
	return &model.OutboxEvent{
		Aggregate: "Apartment", AggregateID: apartmentID, EventType: eventType, Payload: string(payload),
	}
}

// outcome labels a result for the Prometheus counters.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(apperr.KindOf(err))
}
