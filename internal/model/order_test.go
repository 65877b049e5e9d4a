package model_test

import (
	"testing"

	"loanbook/internal/model"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionTo(t *testing.T) {
	cases := []struct {
		from    string
		to      string
		allowed bool
	}{
		{model.OrderStateNormal, model.OrderStateOverdue, true},
		{model.OrderStateNormal, model.OrderStateBreach, true},
		{model.OrderStateNormal, model.OrderStateCompleted, true},
		{model.OrderStateNormal, model.OrderStateBreachCompleted, false},
		{model.OrderStateOverdue, model.OrderStateNormal, true},
		{model.OrderStateOverdue, model.OrderStateBreach, true},
		{model.OrderStateOverdue, model.OrderStateCompleted, true},
		{model.OrderStateOverdue, model.OrderStateBreachCompleted, false},
		{model.OrderStateBreach, model.OrderStateBreachCompleted, true},
		{model.OrderStateBreach, model.OrderStateCompleted, false},
		{model.OrderStateBreach, model.OrderStateNormal, false},
		{model.OrderStateBreach, model.OrderStateOverdue, false},
		// 终态不允许转出
		{model.OrderStateCompleted, model.OrderStateNormal, false},
		{model.OrderStateCompleted, model.OrderStateOverdue, false},
		{model.OrderStateBreachCompleted, model.OrderStateBreach, false},
		// 未知状态
		{"unknown", model.OrderStateNormal, false},
		{model.OrderStateNormal, "unknown", false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.allowed, model.CanTransitionTo(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestIsActiveState(t *testing.T) {
	assert.True(t, model.IsActiveState(model.OrderStateNormal))
	assert.True(t, model.IsActiveState(model.OrderStateOverdue))
	assert.True(t, model.IsActiveState(model.OrderStateBreach))
	assert.False(t, model.IsActiveState(model.OrderStateCompleted))
	assert.False(t, model.IsActiveState(model.OrderStateBreachCompleted))
}
