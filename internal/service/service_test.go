package service

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/google/uuid"
	"github.com/richardliu001/ledger-service/internal/logger"
	"github.com/richardliu001/ledger-service/internal/model"
	"github.com/richardliu001/ledger-service/internal/repo"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const apt = "apt-1"

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type testLedger struct {
	db       *gorm.DB
	repo     *repo.Repository
	mock     redismock.ClientMock
	mat      *Materializer
	debts    *DebtService
	settle   *SettlementService
	balances *BalanceService
}

func newTestLedger(t *testing.T, members ...string) (*testLedger, context.Context) {
	t.Helper()
	// private in-memory DB; one connection serializes transactions
	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, repo.Migrate(db))

	if len(members) == 0 {
		members = []string{"u1", "u2", "u3"}
	}
	for _, m := range members {
		require.NoError(t, db.Create(&model.Membership{ApartmentID: apt, UserID: m, JoinedAt: t0}).Error)
	}

	// Redis mock without expectations behaves like an unavailable cache
	rdb, mock := redismock.NewClientMock()
	log, err := logger.NewLogger("error")
	require.NoError(t, err)

	r := repo.NewRepository(db, rdb, &kafka.Writer{}, log)
	mat := NewMaterializer(r, log)
	l := &testLedger{
		db:       db,
		repo:     r,
		mock:     mock,
		mat:      mat,
		debts:    NewDebtService(r, mat, false, log),
		settle:   NewSettlementService(r, mat, false, log),
		balances: NewBalanceService(r, mat, log, NewMaterializedSource(r, log), NewHistorySource(r)),
	}
	l.setClock(t0)
	return l, context.Background()
}

func (l *testLedger) setClock(at time.Time) {
	now := func() time.Time { return at }
	l.mat.now, l.debts.now, l.settle.now, l.balances.now = now, now, now, now
}

func (l *testLedger) createDebt(t *testing.T, ctx context.Context, debtor, creditor string, amount int64) *model.Debt {
	t.Helper()
	d, err := l.debts.CreateDebt(ctx, CreateDebtInput{
		ApartmentID: apt, DebtorID: debtor, CreditorID: creditor,
		Amount: decimal.NewFromInt(amount), ActorID: debtor,
	})
	require.NoError(t, err)
	return d
}

func (l *testLedger) storedBalances(t *testing.T) map[string]model.Balance {
	t.Helper()
	rows, err := l.repo.ListBalances(context.Background(), l.db, apt)
	require.NoError(t, err)
	out := make(map[string]model.Balance, len(rows))
	for _, b := range rows {
		out[b.UserID] = b
	}
	return out
}

func sumNet(rows []model.Balance) decimal.Decimal {
	sum := decimal.Zero
	for _, b := range rows {
		sum = sum.Add(b.Net)
	}
	return sum
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }
