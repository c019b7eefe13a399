package progress

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestAggregatorSpeedAndETA(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	agg := New(4, WithClock(clock.Now))
	agg.SetTotal(4000)

	agg.Add(500)
	st := agg.Snapshot()
	assert.Equal(t, int64(500), st.Current)
	assert.Zero(t, st.Speed, "no speed before warmup")
	assert.Zero(t, st.ETA)

	clock.Advance(2 * time.Second)
	agg.Add(500)
	st = agg.Snapshot()
	assert.InDelta(t, 500.0, st.Speed, 0.001)
	assert.Equal(t, 6*time.Second, st.ETA)
	assert.InDelta(t, 25.0, st.Percent(), 0.001)
}

func TestAggregatorSeedExcludedFromSpeed(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	agg := New(2, WithClock(clock.Now))
	agg.SetTotal(1000)
	agg.Seed(600)
	clock.Advance(4 * time.Second)
	agg.Add(200)

	st := agg.Snapshot()
	assert.Equal(t, int64(800), st.Current)
	assert.InDelta(t, 50.0, st.Speed, 0.001)
	assert.Equal(t, 4*time.Second, st.ETA)
}

func TestAggregatorWithdraw(t *testing.T) {
	agg := New(1)
	agg.Add(300)
	agg.Add(-300)
	assert.Zero(t, agg.Snapshot().Current)
}

func TestAggregatorChunkAverages(t *testing.T) {
	agg := New(10)
	agg.RecordChunk(100)
	agg.RecordChunk(300)
	st := agg.Snapshot()
	assert.Equal(t, int64(300), st.LastChunk)
	assert.InDelta(t, 200.0, st.AverageChunk, 0.001)
	assert.Equal(t, int64(2000), st.EstimatedTotal)
}

func TestAggregatorConcurrentAdds(t *testing.T) {
	agg := New(8)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				agg.Add(1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int64(8000), agg.Snapshot().Current)
}

func TestFormatSeconds(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, ""},
		{42, "42s"},
		{150, "2m 30s"},
		{120, "2m"},
		{3605, "1h 0m 5s"},
		{7200, "2h 0m"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatSeconds(tt.in), "seconds=%d", tt.in)
	}
}

func TestStateString(t *testing.T) {
	st := State{Current: 1024 * 1024, Total: 4 * 1024 * 1024, Speed: 1024 * 1024, ETA: 3 * time.Second}
	assert.Equal(t, "3s left - 1.0 MiB of 4.0 MiB (1.0 MiB/s)", st.String())
	assert.Equal(t, "512 B", State{Current: 512}.String())
}

func TestReportEmitsFinalSnapshot(t *testing.T) {
	agg := New(1)
	agg.SetTotal(10)
	var mu sync.Mutex
	var states []State
	stop := Report(agg, time.Millisecond, func(st State) {
		mu.Lock()
		states = append(states, st)
		mu.Unlock()
	})
	agg.Add(10)
	stop()
	stop()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, states)
	assert.Equal(t, int64(10), states[len(states)-1].Current)
}
