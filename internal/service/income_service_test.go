package service_test

import (
	"context"
	"testing"

	"loanbook/internal/model"
	"loanbook/internal/repository"
	"loanbook/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordInterest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.createOrder(t, 1, 100, 10000)

	record, err := f.incomes.RecordInterest(ctx, 1, 100, dec(500))
	require.NoError(t, err)
	assert.Equal(t, model.IncomeTypeInterest, record.Type)

	global := f.globalStats(t)
	assert.True(t, global.Interest.Equal(dec(500)))
	assert.True(t, global.LiquidFunds.Equal(dec(-9500)))

	group := f.groupStats(t, "G1")
	assert.True(t, group.Interest.Equal(dec(500)))

	daily := f.dailyStats(t, "")
	assert.True(t, daily.Interest.Equal(dec(500)))
	dailyGroup := f.dailyStats(t, "G1")
	assert.True(t, dailyGroup.Interest.Equal(dec(500)))
}

func TestRecordInterest_RequiresActiveOrder(t *testing.T) {
	f := newFixture(t)

	_, err := f.incomes.RecordInterest(context.Background(), 1, 100, dec(500))
	assert.ErrorIs(t, err, repository.ErrOrderNotFound)
}

func TestRecordInterest_AmountMustBePositive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.createOrder(t, 1, 100, 10000)

	_, err := f.incomes.RecordInterest(ctx, 1, 100, dec(0))
	var validationErr *service.ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

func TestReducePrincipal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.createOrder(t, 1, 100, 10000)

	record, err := f.incomes.ReducePrincipal(ctx, 1, 100, dec(4000))
	require.NoError(t, err)
	assert.Equal(t, model.IncomeTypePrincipalReduction, record.Type)

	order, err := f.orders.GetCurrentOrder(ctx, 100)
	require.NoError(t, err)
	assert.True(t, order.Amount.Equal(dec(6000)))

	// 金额转移，笔数不变
	global := f.globalStats(t)
	assert.Equal(t, int64(1), global.ValidOrders)
	assert.True(t, global.ValidAmount.Equal(dec(6000)))
	assert.Equal(t, int64(0), global.CompletedOrders)
	assert.True(t, global.CompletedAmount.Equal(dec(4000)))
	assert.True(t, global.LiquidFunds.Equal(dec(-6000)))
}

func TestReducePrincipal_CannotExceedPrincipal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.createOrder(t, 1, 100, 10000)

	_, err := f.incomes.ReducePrincipal(ctx, 1, 100, dec(10001))
	var validationErr *service.ValidationError
	assert.ErrorAs(t, err, &validationErr)

	// 全额归还走订单完成，本金减少允许到等额
	_, err = f.incomes.ReducePrincipal(ctx, 1, 100, dec(10000))
	require.NoError(t, err)

	order, err := f.orders.GetCurrentOrder(ctx, 100)
	require.NoError(t, err)
	assert.True(t, order.Amount.Equal(dec(0)))
}

func TestRecordExpense(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	record, err := f.incomes.RecordExpense(ctx, 1, 100, model.ExpenseTypeCompany, dec(300), "房租")
	require.NoError(t, err)
	assert.Equal(t, model.ExpenseTypeCompany, record.Type)

	global := f.globalStats(t)
	assert.True(t, global.LiquidFunds.Equal(dec(-300)))

	daily := f.dailyStats(t, "")
	assert.True(t, daily.CompanyExpenses.Equal(dec(300)))
	assert.True(t, daily.OtherExpenses.Equal(dec(0)))
	assert.True(t, daily.LiquidFlow.Equal(dec(-300)))
}

func TestRecordExpense_InvalidType(t *testing.T) {
	f := newFixture(t)

	_, err := f.incomes.RecordExpense(context.Background(), 1, 100, "misc", dec(300), "")
	var validationErr *service.ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

func TestRecordExpense_OplogFailureWritesAlert(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// 操作历史表不可写时，业务变更保留，并产生一条告警外发消息
	require.NoError(t, f.db.Migrator().DropTable(&model.OperationLog{}))

	_, err := f.incomes.RecordExpense(ctx, 1, 100, model.ExpenseTypeOther, dec(300), "")
	var partialErr *service.PartialWriteError
	require.ErrorAs(t, err, &partialErr)

	// 开销与统计已生效
	records, err := f.expenseRepo.Query(ctx, "", "", "", false)
	require.NoError(t, err)
	assert.Len(t, records, 1)
	global := f.globalStats(t)
	assert.True(t, global.LiquidFunds.Equal(dec(-300)))

	msgs, err := f.outboxRepo.GetPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "test.notify", msgs[0].Topic)
	assert.Contains(t, msgs[0].Payload, "partial_write")
}
