package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWindowAdmitsUpToLimit(t *testing.T) {
	t.Parallel()

	now := time.Unix(1000, 0)
	w := NewWindow(time.Minute, 10)
	w.now = func() time.Time { return now }

	for i := 0; i < 10; i++ {
		require.Zero(t, w.Reserve(7))
	}
	wait := w.Reserve(7)
	require.Equal(t, time.Minute, wait)
}

func TestWindowSlides(t *testing.T) {
	t.Parallel()

	now := time.Unix(1000, 0)
	w := NewWindow(time.Minute, 2)
	w.now = func() time.Time { return now }

	require.Zero(t, w.Reserve(1))
	now = now.Add(30 * time.Second)
	require.Zero(t, w.Reserve(1))

	wait := w.Reserve(1)
	require.Equal(t, 30*time.Second, wait)

	// The first operation ages out of the window.
	now = now.Add(31 * time.Second)
	require.Zero(t, w.Reserve(1))
}

func TestWindowActorsAreIndependent(t *testing.T) {
	t.Parallel()

	w := NewWindow(time.Minute, 1)
	require.Zero(t, w.Reserve(1))
	require.Zero(t, w.Reserve(2))
	require.NotZero(t, w.Reserve(1))
}

func TestWindowConcurrentAccess(t *testing.T) {
	t.Parallel()

	w := NewWindow(time.Minute, 5)
	var wg sync.WaitGroup
	for actor := int64(0); actor < 64; actor++ {
		wg.Add(1)
		go func(a int64) {
			defer wg.Done()
			admitted := 0
			for i := 0; i < 20; i++ {
				if w.Reserve(a) == 0 {
					admitted++
				}
			}
			require.Equal(t, 5, admitted)
		}(actor)
	}
	wg.Wait()
}
