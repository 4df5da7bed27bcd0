package geom

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func randomRect(rng *rand.Rand) Rect {
	return NewRect(rng.Intn(100)-20, rng.Intn(100)-20, rng.Intn(60)+1, rng.Intn(60)+1)
}

func TestIOUProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 500; i++ {
		a := randomRect(rng)
		b := randomRect(rng)
		require.Equal(t, a.IOU(b), b.IOU(a))
		require.Equal(t, 1.0, a.IOU(a))
		iou := a.IOU(b)
		require.GreaterOrEqual(t, iou, 0.0)
		require.LessOrEqual(t, iou, 1.0)
	}
}

func TestIOUDisjoint(t *testing.T) {
	a := NewRect(0, 0, 10, 10)
	require.Equal(t, 0.0, a.IOU(NewRect(10, 0, 10, 10)))
	require.Equal(t, 0.0, a.IOU(NewRect(50, 50, 3, 3)))
	require.Equal(t, 0.0, a.IOU(Rect{}))
	require.Equal(t, 0.0, Rect{}.IOU(Rect{}))
}

func TestIOUValue(t *testing.T) {
	a := NewRect(0, 0, 10, 10)
	b := NewRect(5, 0, 10, 10)
	// intersection 50, union 150
	require.InDelta(t, 1.0/3.0, a.IOU(b), 1e-12)
}

func TestMirror(t *testing.T) {
	r := NewRect(10, 5, 20, 7)
	m := r.Mirror(100)
	require.Equal(t, NewRect(70, 5, 20, 7), m)
	require.Equal(t, r, m.Mirror(100))
}

func TestScaleAndCenter(t *testing.T) {
	r := NewRect(10, 10, 20, 40)
	require.Equal(t, NewRect(5, 5, 10, 20), r.Scale(0.5, 0.5))
	require.Equal(t, NewRect(5, 10, 30, 40), r.ScaleAroundCenter(1.5, 1))
	require.Equal(t, r, r.ScaleAroundCenter(1, 1))

	sq := NewRect(0, 0, 20, 20).WithAspectRatio(0.25)
	require.Equal(t, NewRect(5, -10, 10, 40), sq)
}

func TestInside(t *testing.T) {
	bounds := NewRect(0, 0, 100, 50)
	require.True(t, NewRect(0, 0, 100, 50).Inside(bounds))
	require.True(t, NewRect(10, 10, 5, 5).Inside(bounds))
	require.False(t, NewRect(-1, 10, 5, 5).Inside(bounds))
	require.False(t, NewRect(96, 10, 5, 5).Inside(bounds))
}
