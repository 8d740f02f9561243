package confirmation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingHousekeeping struct {
	mu      sync.Mutex
	expires int
	purges  int
	cutoffs []time.Time
}

func (c *countingHousekeeping) ExpireStale(context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expires++
	return 2, nil
}

func (c *countingHousekeeping) PurgeTerminalBefore(_ context.Context, cutoff time.Time) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.purges++
	c.cutoffs = append(c.cutoffs, cutoff)
	return 1, nil
}

func (c *countingHousekeeping) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expires, c.purges
}

func TestSweeper_SweepExpiresAndPurges(t *testing.T) {
	hk := &countingHousekeeping{}
	s := NewSweeper(hk, time.Minute, 30*24*time.Hour)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	s.sweep(context.Background())

	expires, purges := hk.counts()
	assert.Equal(t, 1, expires)
	assert.Equal(t, 1, purges)
	require.Len(t, hk.cutoffs, 1)
	assert.Equal(t, base.Add(-30*24*time.Hour), hk.cutoffs[0])
}

func TestSweeper_ZeroRetentionSkipsPurge(t *testing.T) {
	hk := &countingHousekeeping{}
	s := NewSweeper(hk, time.Minute, 0)

	s.sweep(context.Background())

	expires, purges := hk.counts()
	assert.Equal(t, 1, expires)
	assert.Equal(t, 0, purges)
}

func TestSweeper_DisabledIntervalReturnsImmediately(t *testing.T) {
	hk := &countingHousekeeping{}
	s := NewSweeper(hk, 0, time.Hour)

	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run() with zero interval should return immediately")
	}
	expires, _ := hk.counts()
	assert.Equal(t, 0, expires)
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	hk := &countingHousekeeping{}
	s := NewSweeper(hk, 5*time.Millisecond, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	// Let a few ticks land, then cancel.
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run() did not stop on context cancel")
	}
	expires, _ := hk.counts()
	assert.GreaterOrEqual(t, expires, 1)
}
