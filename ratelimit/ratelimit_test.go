package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandshakeLimiterDisabledWhenZero(t *testing.T) {
	h := NewHandshakeLimiter(0)
	for i := 0; i < 1000; i++ {
		_, ok := h.Allow("1.2.3.4")
		require.True(t, ok)
	}
}

func TestHandshakeLimiterBlocksOverLimit(t *testing.T) {
	h := NewHandshakeLimiter(2)
	_, ok1 := h.Allow("1.2.3.4")
	_, ok2 := h.Allow("1.2.3.4")
	_, ok3 := h.Allow("1.2.3.4")
	require.True(t, ok1)
	require.True(t, ok2)
	require.False(t, ok3)
}

func TestHandshakeLimiterCategoriesAreIndependent(t *testing.T) {
	h := NewHandshakeLimiter(1)
	_, okA := h.Allow("10.0.0.1")
	_, okB := h.Allow("10.0.0.2")
	require.True(t, okA)
	require.True(t, okB)
}
