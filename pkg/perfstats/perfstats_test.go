package perfstats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimeAccumulator(t *testing.T) {
	var a TimeAccumulator
	require.Equal(t, time.Duration(0), a.Average())
	require.Equal(t, 0.0, a.PerSecond())

	a.AddSample(10 * time.Millisecond)
	a.AddSample(30 * time.Millisecond)
	require.Equal(t, 20*time.Millisecond, a.Average())
	require.InDelta(t, 50.0, a.PerSecond(), 1e-9)

	var b TimeAccumulator
	b.AddSample(80 * time.Millisecond)
	a.Merge(b)
	require.EqualValues(t, 3, a.Samples)
	require.Equal(t, 120*time.Millisecond, a.Total)

	a.Reset()
	require.EqualValues(t, 0, a.Samples)
}

func TestStopwatch(t *testing.T) {
	var a TimeAccumulator
	sw := StartStopwatch()
	elapsed := sw.StopInto(&a)
	require.GreaterOrEqual(t, elapsed, time.Duration(0))
	require.EqualValues(t, 1, a.Samples)
}
