package service_test

import (
	"context"
	"testing"

	"loanbook/internal/model"
	"loanbook/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcile_CleanLedgerHasNoDiff(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// 跑一段正常业务流
	f.createOrder(t, 1, 100, 10000)
	_, err := f.incomes.RecordInterest(ctx, 1, 100, dec(500))
	require.NoError(t, err)
	_, err = f.orders.CompleteOrder(ctx, 1, 100)
	require.NoError(t, err)

	f.createOrder(t, 1, 200, 8000)
	_, err = f.orders.MarkBreach(ctx, 1, 200)
	require.NoError(t, err)
	_, err = f.orders.CompleteBreach(ctx, 1, 200, dec(5000))
	require.NoError(t, err)

	diffs, err := f.reconcile.RecomputeAndDiff(ctx)
	require.NoError(t, err)
	assert.Empty(t, diffs)

	// 对账本身不改数据，重复执行仍然无偏差
	diffs, err = f.reconcile.RecomputeAndDiff(ctx)
	require.NoError(t, err)
	assert.Empty(t, diffs)
}

func TestReconcile_UndoneIncomeExcluded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.createOrder(t, 1, 100, 10000)
	_, err := f.incomes.RecordInterest(ctx, 1, 100, dec(500))
	require.NoError(t, err)
	_, err = f.undo.Undo(ctx, 1, 100)
	require.NoError(t, err)

	// 撤销后的明细不计入期望值，账面也已回退，仍然对平
	diffs, err := f.reconcile.RecomputeAndDiff(ctx)
	require.NoError(t, err)
	assert.Empty(t, diffs)
}

func TestReconcile_DetectsAndFixesDrift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.createOrder(t, 1, 100, 10000)

	// 注入偏差：全局有效金额多了 777
	require.NoError(t, f.ledgerRepo.ApplyDelta(ctx, nil, repository.GlobalScope(), repository.FieldValidAmount, dec(777)))

	diffs, err := f.reconcile.RecomputeAndDiff(ctx)
	require.NoError(t, err)
	require.Len(t, diffs, 1)
	assert.Equal(t, repository.FieldValidAmount, diffs[0].Field)
	assert.True(t, diffs[0].Current.Equal(dec(10777)))
	assert.True(t, diffs[0].Expected.Equal(dec(10000)))
	assert.True(t, diffs[0].Delta.Equal(dec(-777)))

	require.NoError(t, f.reconcile.ApplyFixes(ctx, diffs))

	diffs, err = f.reconcile.RecomputeAndDiff(ctx)
	require.NoError(t, err)
	assert.Empty(t, diffs)

	global := f.globalStats(t)
	assert.True(t, global.ValidAmount.Equal(dec(10000)))
}

func TestReconcile_DetectsGroupAndDailyDrift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.createOrder(t, 1, 100, 10000)
	_, err := f.incomes.RecordInterest(ctx, 1, 100, dec(500))
	require.NoError(t, err)

	require.NoError(t, f.ledgerRepo.ApplyDelta(ctx, nil, repository.GroupScope("G1"), repository.FieldInterest, dec(-200)))
	require.NoError(t, f.ledgerRepo.ApplyDelta(ctx, nil, repository.DailyScope(f.bizDate, "G1"), repository.FieldInterest, dec(100)))

	diffs, err := f.reconcile.RecomputeAndDiff(ctx)
	require.NoError(t, err)
	require.Len(t, diffs, 2)

	require.NoError(t, f.reconcile.ApplyFixes(ctx, diffs))

	diffs, err = f.reconcile.RecomputeAndDiff(ctx)
	require.NoError(t, err)
	assert.Empty(t, diffs)
}

func TestReconcile_MissingGroupRowReported(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// 绕过统计直接插入收入明细，模拟统计行丢失
	require.NoError(t, f.incomeRepo.Append(ctx, nil, &model.IncomeRecord{
		Date:    f.bizDate,
		Type:    model.IncomeTypeInterest,
		Amount:  dec(900),
		GroupID: "GHOST",
		OrderID: "ORD-X",
	}))

	diffs, err := f.reconcile.RecomputeAndDiff(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, diffs)

	require.NoError(t, f.reconcile.ApplyFixes(ctx, diffs))

	diffs, err = f.reconcile.RecomputeAndDiff(ctx)
	require.NoError(t, err)
	assert.Empty(t, diffs)

	group := f.groupStats(t, "GHOST")
	assert.True(t, group.Interest.Equal(dec(900)))
}
