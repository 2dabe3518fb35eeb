package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/richardliu001/ledger-service/internal/model"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ListBalances returns the apartment's balance rows ordered by user id.
func (r *Repository) ListBalances(ctx context.Context, tx *gorm.DB, apartmentID string) ([]model.Balance, error) {
	var rows []model.Balance
	err := tx.WithContext(ctx).Where("apartment_id = ?", apartmentID).Order("user_id").Find(&rows).Error
	return rows, err
}

// UpsertBalances merge-writes rows keyed by (apartment_id, user_id). Columns
// other than net, has_open_debts and updated_at are preserved.
func (r *Repository) UpsertBalances(ctx context.Context, tx *gorm.DB, rows []model.Balance) error {
	if len(rows) == 0 {
		return nil
	}
	return tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "apartment_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"net", "has_open_debts", "updated_at"}),
		}).
		Create(&rows).Error
}

// AdjustBalance adds delta to one user's row, creating it when absent.
func (r *Repository) AdjustBalance(ctx context.Context, tx *gorm.DB, apartmentID, userID string, delta decimal.Decimal, at time.Time) error {
	row := model.Balance{ApartmentID: apartmentID, UserID: userID, Net: delta, UpdatedAt: at}
	return tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "apartment_id"}, {Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"net":        gorm.Expr("balance.net + ?", delta),
				"updated_at": at,
			}),
		}).
		Create(&row).Error
}

func balanceKey(apartmentID string) string { return fmt.Sprintf("ledger:balances:%s", apartmentID) }

func balanceVersionKey(apartmentID string) string { return balanceKey(apartmentID) + ":ver" }

// cacheIfCurrent sets KEYS[1] only while KEYS[2] still holds ARGV[1].
var cacheIfCurrent = redis.NewScript(`
if (redis.call('GET', KEYS[2]) or '0') ~= ARGV[1] then
  return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// BalanceCacheVersion returns the apartment's cache version. Read it before
// loading the rows later passed to CacheBalances.
func (r *Repository) BalanceCacheVersion(ctx context.Context, apartmentID string) (int64, error) {
	v, err := r.rdb.Get(ctx, balanceVersionKey(apartmentID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

// CacheBalances writes Redis unless the apartment was invalidated after
// version was read. It reports whether the snapshot was stored.
func (r *Repository) CacheBalances(ctx context.Context, apartmentID string, version int64, rows []model.Balance) (bool, error) {
	data, err := json.Marshal(rows)
	if err != nil {
		return false, err
	}
	keys := []string{balanceKey(apartmentID), balanceVersionKey(apartmentID)}
	n, err := cacheIfCurrent.Run(ctx, r.rdb, keys, version, data, r.balanceTTL.Milliseconds()).Int()
	return n == 1, err
}

// GetCachedBalances reads Redis. A miss returns redis.Nil.
func (r *Repository) GetCachedBalances(ctx context.Context, apartmentID string) ([]model.Balance, error) {
	data, err := r.rdb.Get(ctx, balanceKey(apartmentID)).Bytes()
	if err != nil {
		return nil, err
	}
	var rows []model.Balance
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// InvalidateBalances bumps the cache version, then drops the snapshot.
// Call it after the balance change has committed.
func (r *Repository) InvalidateBalances(ctx context.Context, apartmentID string) error {
	if err := r.rdb.Incr(ctx, balanceVersionKey(apartmentID)).Err(); err != nil {
		return err
	}
	return r.rdb.Del(ctx, balanceKey(apartmentID)).Err()
}
