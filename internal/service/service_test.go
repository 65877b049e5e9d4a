package service_test

import (
	"context"
	"testing"

	"loanbook/internal/infrastructure/database"
	"loanbook/internal/infrastructure/lock"
	"loanbook/internal/model"
	"loanbook/internal/repository"
	"loanbook/internal/service"
	"loanbook/pkg/dates"
	"loanbook/pkg/idgen"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// =============================================================================
// 测试夹具
// =============================================================================

type fixture struct {
	db       *gorm.DB
	calendar *dates.Calendar
	bizDate  string

	orderRepo     *repository.OrderRepository
	ledgerRepo    *repository.LedgerRepository
	incomeRepo    *repository.IncomeRepository
	expenseRepo   *repository.ExpenseRepository
	operationRepo *repository.OperationRepository
	outboxRepo    *repository.OutboxRepository

	orders    *service.OrderService
	incomes   *service.IncomeService
	undo      *service.UndoService
	reconcile *service.ReconcileService
}

func newFixture(t *testing.T) *fixture {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.Migrate(db))

	calendar, err := dates.NewCalendar("Asia/Shanghai", 23)
	require.NoError(t, err)

	idGen, err := idgen.New(1)
	require.NoError(t, err)

	orderRepo := repository.NewOrderRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	incomeRepo := repository.NewIncomeRepository(db)
	expenseRepo := repository.NewExpenseRepository(db)
	operationRepo := repository.NewOperationRepository(db)
	outboxRepo := repository.NewOutboxRepository(db)

	aggregator := service.NewAggregator(ledgerRepo)
	undoCounter := service.NewUndoCounter(3)
	locker := lock.NewLocalLocker()

	return &fixture{
		db:            db,
		calendar:      calendar,
		bizDate:       calendar.PeriodDate(),
		orderRepo:     orderRepo,
		ledgerRepo:    ledgerRepo,
		incomeRepo:    incomeRepo,
		expenseRepo:   expenseRepo,
		operationRepo: operationRepo,
		outboxRepo:    outboxRepo,
		orders: service.NewOrderService(
			db, orderRepo, incomeRepo, operationRepo, outboxRepo,
			aggregator, calendar, idGen, undoCounter, "test.notify"),
		incomes: service.NewIncomeService(
			db, orderRepo, incomeRepo, expenseRepo, operationRepo, outboxRepo,
			aggregator, calendar, idGen, undoCounter, "test.notify"),
		undo: service.NewUndoService(
			db, orderRepo, incomeRepo, expenseRepo, operationRepo, outboxRepo,
			aggregator, calendar, idGen, locker, undoCounter, "test.notify"),
		reconcile: service.NewReconcileService(db, orderRepo, incomeRepo, ledgerRepo),
	}
}

func dec(n int64) decimal.Decimal {
	return decimal.NewFromInt(n)
}

func (f *fixture) globalStats(t *testing.T) *model.FinancialData {
	row, err := f.ledgerRepo.GetGlobal(context.Background())
	require.NoError(t, err)
	return row
}

func (f *fixture) groupStats(t *testing.T, groupID string) *model.GroupedData {
	row, err := f.ledgerRepo.GetGroup(context.Background(), groupID)
	require.NoError(t, err)
	return row
}

func (f *fixture) dailyStats(t *testing.T, groupID string) *model.DailyData {
	row, err := f.ledgerRepo.GetDaily(context.Background(), f.bizDate, groupID)
	require.NoError(t, err)
	return row
}

// createOrder 用默认参数创建一笔订单：新客户，归属 G1
func (f *fixture) createOrder(t *testing.T, userID, chatID int64, amount int64) *model.Order {
	order, err := f.orders.CreateOrder(context.Background(), service.CreateOrderRequest{
		UserID:   userID,
		ChatID:   chatID,
		GroupID:  "G1",
		Amount:   dec(amount),
		Customer: model.CustomerNew,
	})
	require.NoError(t, err)
	return order
}
