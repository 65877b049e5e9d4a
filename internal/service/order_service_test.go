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

func TestCreateOrder_Basic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order := f.createOrder(t, 1, 100, 10000)
	assert.Equal(t, model.OrderStateNormal, order.State)
	assert.NotEmpty(t, order.OrderID)
	assert.NotEmpty(t, order.WeekdayGroup)

	global := f.globalStats(t)
	assert.Equal(t, int64(1), global.ValidOrders)
	assert.True(t, global.ValidAmount.Equal(dec(10000)))
	assert.True(t, global.LiquidFunds.Equal(dec(-10000)))
	assert.Equal(t, int64(1), global.NewClients)
	assert.True(t, global.NewClientsAmount.Equal(dec(10000)))

	group := f.groupStats(t, "G1")
	assert.Equal(t, int64(1), group.ValidOrders)
	assert.True(t, group.ValidAmount.Equal(dec(10000)))

	daily := f.dailyStats(t, "")
	assert.True(t, daily.LiquidFlow.Equal(dec(-10000)))
	assert.Equal(t, int64(1), daily.NewClients)

	// 操作记录已写入
	op, err := f.operationRepo.GetLastUndoable(ctx, 1, 100, f.bizDate)
	require.NoError(t, err)
	assert.Equal(t, model.OpOrderCreated, op.OperationType)
}

func TestCreateOrder_OneActivePerChat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.createOrder(t, 1, 100, 10000)

	_, err := f.orders.CreateOrder(ctx, service.CreateOrderRequest{
		UserID:   1,
		ChatID:   100,
		GroupID:  "G1",
		Amount:   dec(5000),
		Customer: model.CustomerNew,
	})
	assert.ErrorIs(t, err, repository.ErrOrderExists)
}

func TestCreateOrder_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []service.CreateOrderRequest{
		{UserID: 1, ChatID: 100, GroupID: "G1", Amount: dec(0), Customer: "A"},
		{UserID: 1, ChatID: 100, GroupID: "G1", Amount: dec(-10), Customer: "A"},
		{UserID: 1, ChatID: 100, GroupID: "G1", Amount: dec(100), Customer: "C"},
		{UserID: 1, ChatID: 100, GroupID: "", Amount: dec(100), Customer: "A"},
		{UserID: 1, ChatID: 100, GroupID: "G1", Amount: dec(100), Customer: "A", Date: "bad-date"},
		{UserID: 1, ChatID: 100, GroupID: "G1", Amount: dec(100), Customer: "A", InitialState: "completed"},
	}
	for i, req := range cases {
		_, err := f.orders.CreateOrder(ctx, req)
		var validationErr *service.ValidationError
		assert.ErrorAs(t, err, &validationErr, "case %d", i)
	}

	// 校验失败不留任何痕迹
	global := f.globalStats(t)
	assert.Equal(t, int64(0), global.ValidOrders)
}

func TestCreateOrder_Historical(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// 历史违约单补录：进违约统计，不动流动资金和客户统计
	order, err := f.orders.CreateOrder(ctx, service.CreateOrderRequest{
		UserID:       1,
		ChatID:       100,
		GroupID:      "G1",
		Amount:       dec(8000),
		Customer:     model.CustomerReturning,
		InitialState: model.OrderStateBreach,
		Historical:   true,
		Date:         "2026-01-05",
	})
	require.NoError(t, err)
	assert.Equal(t, model.OrderStateBreach, order.State)
	assert.Equal(t, "2026-01-05", order.Date)

	global := f.globalStats(t)
	assert.Equal(t, int64(1), global.BreachOrders)
	assert.True(t, global.BreachAmount.Equal(dec(8000)))
	assert.True(t, global.LiquidFunds.Equal(dec(0)))
	assert.Equal(t, int64(0), global.OldClients)
}

func TestMarkOverdueAndNormal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.createOrder(t, 1, 100, 10000)

	order, err := f.orders.MarkOverdue(ctx, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStateOverdue, order.State)

	// 已逾期不能再标逾期
	_, err = f.orders.MarkOverdue(ctx, 1, 100)
	var stateErr *service.StateError
	assert.ErrorAs(t, err, &stateErr)

	order, err = f.orders.MarkNormal(ctx, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStateNormal, order.State)

	// 逾期标记不影响统计
	global := f.globalStats(t)
	assert.Equal(t, int64(1), global.ValidOrders)
	assert.True(t, global.ValidAmount.Equal(dec(10000)))
}

func TestMarkBreach_MovesValidToBreach(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.createOrder(t, 1, 100, 10000)

	order, err := f.orders.MarkBreach(ctx, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStateBreach, order.State)

	global := f.globalStats(t)
	assert.Equal(t, int64(0), global.ValidOrders)
	assert.True(t, global.ValidAmount.Equal(dec(0)))
	assert.Equal(t, int64(1), global.BreachOrders)
	assert.True(t, global.BreachAmount.Equal(dec(10000)))

	group := f.groupStats(t, "G1")
	assert.Equal(t, int64(1), group.BreachOrders)
}

// 订单完成全流程 + 撤销恢复
func TestCompleteOrder_ThenUndo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.createOrder(t, 1, 100, 10000)

	order, err := f.orders.CompleteOrder(ctx, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStateCompleted, order.State)

	global := f.globalStats(t)
	assert.Equal(t, int64(0), global.ValidOrders)
	assert.True(t, global.ValidAmount.Equal(dec(0)))
	assert.Equal(t, int64(1), global.CompletedOrders)
	assert.True(t, global.CompletedAmount.Equal(dec(10000)))
	// 放款 -10000 回款 +10000
	assert.True(t, global.LiquidFunds.Equal(dec(0)))

	incomes, err := f.incomeRepo.Query(ctx, repository.IncomeFilter{Type: model.IncomeTypeCompleted})
	require.NoError(t, err)
	require.Len(t, incomes, 1)
	assert.True(t, incomes[0].Amount.Equal(dec(10000)))

	// 撤销完成：恢复到完成前的状态
	result, err := f.undo.Undo(ctx, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, model.OpOrderCompleted, result.UndoneOperationType)

	restored, err := f.orders.GetCurrentOrder(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStateNormal, restored.State)

	global = f.globalStats(t)
	assert.Equal(t, int64(1), global.ValidOrders)
	assert.True(t, global.ValidAmount.Equal(dec(10000)))
	assert.Equal(t, int64(0), global.CompletedOrders)
	assert.True(t, global.CompletedAmount.Equal(dec(0)))
	assert.True(t, global.LiquidFunds.Equal(dec(-10000)))

	// 收入明细软撤销，默认查询不可见
	incomes, err = f.incomeRepo.Query(ctx, repository.IncomeFilter{Type: model.IncomeTypeCompleted})
	require.NoError(t, err)
	assert.Len(t, incomes, 0)

	incomes, err = f.incomeRepo.Query(ctx, repository.IncomeFilter{Type: model.IncomeTypeCompleted, IncludeUndone: true})
	require.NoError(t, err)
	assert.Len(t, incomes, 1)
}

func TestCompleteBreach_SettlementMustBePositive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.createOrder(t, 1, 100, 10000)
	_, err := f.orders.MarkBreach(ctx, 1, 100)
	require.NoError(t, err)

	globalBefore := f.globalStats(t)

	_, err = f.orders.CompleteBreach(ctx, 1, 100, dec(0))
	assert.ErrorIs(t, err, service.ErrSettlementInvalid)
	_, err = f.orders.CompleteBreach(ctx, 1, 100, dec(-100))
	assert.ErrorIs(t, err, service.ErrSettlementInvalid)

	// 拒绝时零写入
	order, err := f.orders.GetCurrentOrder(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStateBreach, order.State)

	globalAfter := f.globalStats(t)
	assert.Equal(t, globalBefore.BreachOrders, globalAfter.BreachOrders)
	assert.True(t, globalBefore.LiquidFunds.Equal(globalAfter.LiquidFunds))

	incomes, err := f.incomeRepo.Query(ctx, repository.IncomeFilter{Type: model.IncomeTypeBreachEnd, IncludeUndone: true})
	require.NoError(t, err)
	assert.Len(t, incomes, 0)
}

func TestCompleteBreach_ThenUndo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.createOrder(t, 1, 100, 10000)
	_, err := f.orders.MarkBreach(ctx, 1, 100)
	require.NoError(t, err)

	// 结算金额低于本金
	order, err := f.orders.CompleteBreach(ctx, 1, 100, dec(6000))
	require.NoError(t, err)
	assert.Equal(t, model.OrderStateBreachCompleted, order.State)

	global := f.globalStats(t)
	assert.Equal(t, int64(0), global.BreachOrders)
	assert.True(t, global.BreachAmount.Equal(dec(0)))
	assert.Equal(t, int64(1), global.BreachEndOrders)
	assert.True(t, global.BreachEndAmount.Equal(dec(6000)))
	assert.True(t, global.LiquidFunds.Equal(dec(-4000)))

	// 撤销违约完成：违约统计精确恢复
	_, err = f.undo.Undo(ctx, 1, 100)
	require.NoError(t, err)

	global = f.globalStats(t)
	assert.Equal(t, int64(1), global.BreachOrders)
	assert.True(t, global.BreachAmount.Equal(dec(10000)))
	assert.Equal(t, int64(0), global.BreachEndOrders)
	assert.True(t, global.BreachEndAmount.Equal(dec(0)))
	assert.True(t, global.LiquidFunds.Equal(dec(-10000)))

	restored, err := f.orders.GetCurrentOrder(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStateBreach, restored.State)
}

func TestCompleteOrder_RequiresActiveNonBreach(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.createOrder(t, 1, 100, 10000)
	_, err := f.orders.MarkBreach(ctx, 1, 100)
	require.NoError(t, err)

	// 违约单只能走违约完成
	_, err = f.orders.CompleteOrder(ctx, 1, 100)
	var stateErr *service.StateError
	assert.ErrorAs(t, err, &stateErr)
}

func TestChangeOrderGroup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.createOrder(t, 1, 100, 10000)

	order, err := f.orders.ChangeOrderGroup(ctx, 1, 100, "G2")
	require.NoError(t, err)
	assert.Equal(t, "G2", order.GroupID)

	g1 := f.groupStats(t, "G1")
	assert.Equal(t, int64(0), g1.ValidOrders)
	assert.True(t, g1.ValidAmount.Equal(dec(0)))

	g2 := f.groupStats(t, "G2")
	assert.Equal(t, int64(1), g2.ValidOrders)
	assert.True(t, g2.ValidAmount.Equal(dec(10000)))

	// 全局不受归属迁移影响
	global := f.globalStats(t)
	assert.Equal(t, int64(1), global.ValidOrders)

	// 相同归属ID拒绝
	_, err = f.orders.ChangeOrderGroup(ctx, 1, 100, "G2")
	var validationErr *service.ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

func TestGetCurrentOrder_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.orders.GetCurrentOrder(context.Background(), 999)
	assert.ErrorIs(t, err, repository.ErrOrderNotFound)
}

func TestSearchOrders_MultipleStates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.createOrder(t, 1, 100, 10000)
	f.createOrder(t, 1, 200, 20000)
	f.createOrder(t, 1, 300, 30000)
	_, err := f.orders.MarkBreach(ctx, 1, 200)
	require.NoError(t, err)
	_, err = f.orders.CompleteOrder(ctx, 1, 300)
	require.NoError(t, err)

	// 多状态过滤：在保单（正常+逾期+违约）不含已完成
	orders, err := f.orders.SearchOrders(ctx, repository.SearchCriteria{
		States: []string{model.OrderStateNormal, model.OrderStateOverdue, model.OrderStateBreach},
	})
	require.NoError(t, err)
	require.Len(t, orders, 2)
	for _, o := range orders {
		assert.NotEqual(t, model.OrderStateCompleted, o.State)
	}
}
