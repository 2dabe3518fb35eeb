package repo

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/richardliu001/ledger-service/internal/model"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrCloseConflict is returned when a debt left the open state between read and close.
var ErrCloseConflict = errors.New("debt close conflict")

// RepositoryInterface restricts Repo methods. Methods taking tx run inside the
// caller's transaction so a settlement composes into one atomic unit.
type RepositoryInterface interface {
	DB(ctx context.Context) *gorm.DB

	IsMember(ctx context.Context, tx *gorm.DB, apartmentID, userID string) (bool, error)

	CreateDebt(ctx context.Context, tx *gorm.DB, d *model.Debt) error
	GetDebt(ctx context.Context, tx *gorm.DB, debtID string) (*model.Debt, error)
	GetDebtForUpdate(ctx context.Context, tx *gorm.DB, debtID string) (*model.Debt, error)
	DebtExists(ctx context.Context, tx *gorm.DB, debtID string) (bool, error)
	ListOpenDebts(ctx context.Context, tx *gorm.DB, apartmentID string) ([]model.Debt, error)
	CloseDebt(ctx context.Context, tx *gorm.DB, debtID string, c DebtClosure) (*model.Debt, error)

	CreateExpense(ctx context.Context, tx *gorm.DB, e *model.Expense) error
	GetExpense(ctx context.Context, tx *gorm.DB, expenseID string) (*model.Expense, error)
	ListExpenses(ctx context.Context, tx *gorm.DB, apartmentID string, visibleOnly bool) ([]model.Expense, error)
	CreateTransfer(ctx context.Context, tx *gorm.DB, t *model.Transfer) error
	ListTransfers(ctx context.Context, tx *gorm.DB, apartmentID string) ([]model.Transfer, error)

	ListBalances(ctx context.Context, tx *gorm.DB, apartmentID string) ([]model.Balance, error)
	UpsertBalances(ctx context.Context, tx *gorm.DB, rows []model.Balance) error
	AdjustBalance(ctx context.Context, tx *gorm.DB, apartmentID, userID string, delta decimal.Decimal, at time.Time) error
	LastProtocol(ctx context.Context, tx *gorm.DB, apartmentID string) (model.LedgerProtocol, error)
	SetLastProtocol(ctx context.Context, tx *gorm.DB, apartmentID string, p model.LedgerProtocol, at time.Time) error

	FindAuditByKey(ctx context.Context, tx *gorm.DB, apartmentID string, action model.AuditAction, key string) (*model.AuditEntry, error)
	AppendAudit(ctx context.Context, tx *gorm.DB, e *model.AuditEntry) error

	CreateOutboxEvent(ctx context.Context, tx *gorm.DB, evt *model.OutboxEvent) error
	PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	MarkOutboxProcessed(ctx context.Context, id uint64) error
	PublishEvent(ctx context.Context, evt model.OutboxEvent) error

	BalanceCacheVersion(ctx context.Context, apartmentID string) (int64, error)
	CacheBalances(ctx context.Context, apartmentID string, version int64, rows []model.Balance) (bool, error)
	GetCachedBalances(ctx context.Context, apartmentID string) ([]model.Balance, error)
	InvalidateBalances(ctx context.Context, apartmentID string) error
}

// Repository implements RepositoryInterface.
type Repository struct {
	db         *gorm.DB
	rdb        *redis.Client
	writer     *kafka.Writer
	log        *zap.SugaredLogger
	balanceTTL time.Duration
}

// NewRepository constructs repo.
func NewRepository(db *gorm.DB, rdb *redis.Client, w *kafka.Writer, logger *zap.SugaredLogger) *Repository {
	return &Repository{db: db, rdb: rdb, writer: w, log: logger, balanceTTL: 5 * time.Minute}
}

// WithBalanceTTL sets how long cached balance snapshots live.
func (r *Repository) WithBalanceTTL(ttl time.Duration) *Repository {
	if ttl > 0 {
		r.balanceTTL = ttl
	}
	return r
}

// Migrate creates or updates every ledger table.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(model.All()...)
}

// DB returns underlying *gorm.DB
func (r *Repository) DB(ctx context.Context) *gorm.DB { return r.db.WithContext(ctx) }

// IsMember reports whether userID belongs to apartmentID.
func (r *Repository) IsMember(ctx context.Context, tx *gorm.DB, apartmentID, userID string) (bool, error) {
	var n int64
	err := tx.WithContext(ctx).Model(&model.Membership{}).
		Where("apartment_id = ? AND user_id = ?", apartmentID, userID).
		Count(&n).Error
	return n > 0, err
}

// LastProtocol returns the protocol that last wrote the apartment's balances,
// or "" when none has.
func (r *Repository) LastProtocol(ctx context.Context, tx *gorm.DB, apartmentID string) (model.LedgerProtocol, error) {
	var l model.ApartmentLedger
	res := tx.WithContext(ctx).Where("apartment_id = ?", apartmentID).Limit(1).Find(&l)
	if res.Error != nil || res.RowsAffected == 0 {
		return "", res.Error
	}
	return l.LastProtocol, nil
}

// SetLastProtocol upserts the apartment's ledger protocol marker.
func (r *Repository) SetLastProtocol(ctx context.Context, tx *gorm.DB, apartmentID string, p model.LedgerProtocol, at time.Time) error {
	return tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "apartment_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_protocol", "updated_at"}),
		}).
		Create(&model.ApartmentLedger{ApartmentID: apartmentID, LastProtocol: p, UpdatedAt: at}).Error
}
