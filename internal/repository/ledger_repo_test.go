package repository_test

import (
	"context"
	"testing"

	"loanbook/internal/infrastructure/database"
	"loanbook/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

func dec(n int64) decimal.Decimal {
	return decimal.NewFromInt(n)
}

func TestApplyDelta_GlobalRoundTrip(t *testing.T) {
	repo := repository.NewLedgerRepository(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.ApplyDelta(ctx, nil, repository.GlobalScope(), repository.FieldValidAmount, dec(10000)))
	require.NoError(t, repo.ApplyDelta(ctx, nil, repository.GlobalScope(), repository.FieldValidOrders, dec(1)))
	require.NoError(t, repo.ApplyDelta(ctx, nil, repository.GlobalScope(), repository.FieldValidAmount, dec(-4000)))

	row, err := repo.GetGlobal(ctx)
	require.NoError(t, err)
	assert.True(t, row.ValidAmount.Equal(dec(6000)), "valid_amount=%s", row.ValidAmount)
	assert.Equal(t, int64(1), row.ValidOrders)
}

func TestApplyDelta_GroupRoundTrip(t *testing.T) {
	repo := repository.NewLedgerRepository(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.ApplyDelta(ctx, nil, repository.GroupScope("G1"), repository.FieldInterest, dec(500)))
	require.NoError(t, repo.ApplyDelta(ctx, nil, repository.GroupScope("G1"), repository.FieldInterest, dec(300)))
	require.NoError(t, repo.ApplyDelta(ctx, nil, repository.GroupScope("G2"), repository.FieldInterest, dec(100)))

	g1, err := repo.GetGroup(ctx, "G1")
	require.NoError(t, err)
	assert.True(t, g1.Interest.Equal(dec(800)))

	g2, err := repo.GetGroup(ctx, "G2")
	require.NoError(t, err)
	assert.True(t, g2.Interest.Equal(dec(100)))
}

func TestApplyDelta_DailyRoundTrip(t *testing.T) {
	repo := repository.NewLedgerRepository(newTestDB(t))
	ctx := context.Background()

	// 同一业务日期下全局行（group_id 为空）与归属行互不影响
	require.NoError(t, repo.ApplyDelta(ctx, nil, repository.DailyScope("2026-03-10", ""), repository.FieldLiquidFlow, dec(-10000)))
	require.NoError(t, repo.ApplyDelta(ctx, nil, repository.DailyScope("2026-03-10", "G1"), repository.FieldInterest, dec(200)))

	global, err := repo.GetDaily(ctx, "2026-03-10", "")
	require.NoError(t, err)
	assert.True(t, global.LiquidFlow.Equal(dec(-10000)))
	assert.True(t, global.Interest.Equal(dec(0)))

	g1, err := repo.GetDaily(ctx, "2026-03-10", "G1")
	require.NoError(t, err)
	assert.True(t, g1.Interest.Equal(dec(200)))
}

func TestApplyDelta_UnknownFieldFailsClosed(t *testing.T) {
	repo := repository.NewLedgerRepository(newTestDB(t))
	ctx := context.Background()

	err := repo.ApplyDelta(ctx, nil, repository.GlobalScope(), repository.Field("total; DROP TABLE orders"), dec(1))
	assert.ErrorIs(t, err, repository.ErrInvalidField)

	err = repo.ApplyDelta(ctx, nil, repository.GlobalScope(), repository.Field(""), dec(1))
	assert.ErrorIs(t, err, repository.ErrInvalidField)
}

func TestApplyDelta_ScopeMismatchFailsClosed(t *testing.T) {
	repo := repository.NewLedgerRepository(newTestDB(t))
	ctx := context.Background()

	// 日结表没有有效订单和流动资金存量列
	err := repo.ApplyDelta(ctx, nil, repository.DailyScope("2026-03-10", ""), repository.FieldValidAmount, dec(1))
	assert.ErrorIs(t, err, repository.ErrInvalidScope)

	err = repo.ApplyDelta(ctx, nil, repository.DailyScope("2026-03-10", ""), repository.FieldLiquidFunds, dec(1))
	assert.ErrorIs(t, err, repository.ErrInvalidScope)

	// 开销和流水列只在日结表
	err = repo.ApplyDelta(ctx, nil, repository.GlobalScope(), repository.FieldLiquidFlow, dec(1))
	assert.ErrorIs(t, err, repository.ErrInvalidScope)

	err = repo.ApplyDelta(ctx, nil, repository.GroupScope("G1"), repository.FieldCompanyExpenses, dec(1))
	assert.ErrorIs(t, err, repository.ErrInvalidScope)
}

func TestGetSnapshots_EmptyReturnsZero(t *testing.T) {
	repo := repository.NewLedgerRepository(newTestDB(t))
	ctx := context.Background()

	global, err := repo.GetGlobal(ctx)
	require.NoError(t, err)
	assert.True(t, global.LiquidFunds.Equal(dec(0)))

	group, err := repo.GetGroup(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, "missing", group.GroupID)
	assert.Equal(t, int64(0), group.ValidOrders)

	daily, err := repo.GetDaily(ctx, "2026-03-10", "missing")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-10", daily.Date)
}
