package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNowTracksWallClock(t *testing.T) {
	t.Parallel()

	clk := New()

	lower := time.Now().UTC().Add(-time.Second)
	got := clk.Now()
	upper := time.Now().UTC().Add(time.Second)

	require.Equal(t, time.UTC, got.Location())
	require.False(t, got.Before(lower), "timestamp %v precedes %v", got, lower)
	require.False(t, got.After(upper), "timestamp %v follows %v", got, upper)
}

func TestNowNeverGoesBackwards(t *testing.T) {
	t.Parallel()

	clk := New()
	prev := clk.Now()
	for i := 0; i < 10; i++ {
		next := clk.Now()
		require.False(t, next.Before(prev))
		prev = next
	}
}
