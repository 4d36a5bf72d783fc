package registry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

const key = "https://www.costco.com.mx/p/1"

func TestStartRejectsDuplicate(t *testing.T) {
	r := New()

	_, release, err := r.Start(context.Background(), Entry{URL: key})
	require.NoError(t, err)

	_, _, err = r.Start(context.Background(), Entry{URL: key})
	require.ErrorIs(t, err, ErrAlreadyRunning)

	release()
	require.False(t, r.Has(key))

	_, release, err = r.Start(context.Background(), Entry{URL: key})
	require.NoError(t, err)
	release()
}

func TestConcurrentStartAcceptsExactlyOne(t *testing.T) {
	r := New()
	var accepted, rejected atomic.Int32
	var releases sync.Map

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, release, err := r.Start(context.Background(), Entry{URL: key})
			if errors.Is(err, ErrAlreadyRunning) {
				rejected.Add(1)
				return
			}
			if err != nil {
				t.Error(err)
				return
			}
			accepted.Add(1)
			releases.Store(i, release)
		}(i)
	}
	close(start)
	wg.Wait()

	require.EqualValues(t, 1, accepted.Load())
	require.EqualValues(t, 31, rejected.Load())

	releases.Range(func(_, v any) bool {
		v.(func())()
		return true
	})
	require.Zero(t, r.Len())
}

func TestTerminateCancelsWithCause(t *testing.T) {
	r := New()
	ctx, release, err := r.Start(context.Background(), Entry{URL: key})
	require.NoError(t, err)
	defer release()

	require.NoError(t, r.Terminate(key))
	<-ctx.Done()
	require.ErrorIs(t, context.Cause(ctx), ErrTerminated)
	require.False(t, r.Has(key))

	require.ErrorIs(t, r.Terminate(key), ErrNotRunning)
}

func TestTerminatedKeyStaysBusyUntilRelease(t *testing.T) {
	r := New()
	_, oldRelease, err := r.Start(context.Background(), Entry{URL: key, ID: "old"})
	require.NoError(t, err)
	require.NoError(t, r.Terminate(key))

	_, _, err = r.Start(context.Background(), Entry{URL: key, ID: "new"})
	require.ErrorIs(t, err, ErrAlreadyRunning)
	require.Empty(t, r.Running())
	require.Equal(t, 1, r.Len())

	oldRelease()
	oldRelease()
	require.Zero(t, r.Len())

	_, newRelease, err := r.Start(context.Background(), Entry{URL: key, ID: "new"})
	require.NoError(t, err)

	running := r.Running()
	require.Len(t, running, 1)
	require.Equal(t, "new", running[0].ID)

	newRelease()
	require.Zero(t, r.Len())
}

func TestReleaseDoesNotReportTermination(t *testing.T) {
	r := New()
	ctx, release, err := r.Start(context.Background(), Entry{URL: key})
	require.NoError(t, err)
	release()
	require.ErrorIs(t, context.Cause(ctx), context.Canceled)
	require.NotErrorIs(t, context.Cause(ctx), ErrTerminated)
}
