package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/paiml/universal-bot/relay/adaptor"
	"github.com/paiml/universal-bot/relay/adaptor/mock"
	"github.com/paiml/universal-bot/relay/model"
)

func newTestPool(t *testing.T, size int) *Pool {
	t.Helper()
	p, err := New(context.Background(), Params{Size: size, Factory: mock.New().Factory()})
	require.NoError(t, err)
	return p
}

func requireInvariant(t *testing.T, p *Pool) {
	t.Helper()
	s := p.Stats()
	require.Equal(t, s.TotalClients, s.ActiveClients+s.AvailableClients)
	require.GreaterOrEqual(t, s.ActiveClients, 0)
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Params{Size: 0, Factory: mock.New().Factory()})
	require.True(t, model.IsKind(err, model.KindConfiguration))

	_, err = New(context.Background(), Params{Size: 2})
	require.True(t, model.IsKind(err, model.KindConfiguration))

	factoryErr := errors.New("no credentials")
	_, err = New(context.Background(), Params{
		Size: 2,
		Factory: func(context.Context, int) (adaptor.Upstream, error) {
			return nil, factoryErr
		},
	})
	require.True(t, model.IsKind(err, model.KindConfiguration))
	require.ErrorIs(t, err, factoryErr)
}

func TestAcquireRelease(t *testing.T) {
	t.Parallel()

	p := newTestPool(t, 2)
	l1, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.NotNil(t, l1.Client())
	requireInvariant(t, p)

	s := p.Stats()
	require.Equal(t, 1, s.ActiveClients)
	require.Equal(t, 1, s.AvailableClients)
	require.EqualValues(t, 1, s.TotalAcquisitions)

	l1.Release()
	l1.Release()
	s = p.Stats()
	require.Zero(t, s.ActiveClients)
	require.EqualValues(t, 1, s.TotalReleases, "double release counts once")
	requireInvariant(t, p)
}

func TestRoundRobin(t *testing.T) {
	t.Parallel()

	p := newTestPool(t, 3)
	var got []int
	for range 6 {
		l, err := p.Acquire(context.Background())
		require.NoError(t, err)
		got = append(got, l.Index())
		l.Release()
	}
	require.Equal(t, []int{0, 1, 2, 0, 1, 2}, got)
}

func TestTryAcquire(t *testing.T) {
	t.Parallel()

	p := newTestPool(t, 1)
	l, err := p.TryAcquire()
	require.NoError(t, err)

	_, err = p.TryAcquire()
	require.True(t, model.IsKind(err, model.KindPoolExhausted))
	require.Equal(t, model.CategoryResource, model.Classify(err).Category())

	l.Release()
	l, err = p.TryAcquire()
	require.NoError(t, err)
	l.Release()
	require.Zero(t, p.Stats().TotalWaitTime)
}

func TestAcquire_Cancellation(t *testing.T) {
	t.Parallel()

	p := newTestPool(t, 1)
	held, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer held.Release()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := p.Acquire(ctx)
		errCh <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.Error(t, err)
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("acquire did not observe cancellation")
	}
	requireInvariant(t, p)
	require.Equal(t, 1, p.Stats().ActiveClients)
}

func TestAcquireWithTimeout(t *testing.T) {
	t.Parallel()

	p := newTestPool(t, 1)
	held, err := p.Acquire(context.Background())
	require.NoError(t, err)

	_, err = p.AcquireWithTimeout(context.Background(), 20*time.Millisecond)
	require.True(t, model.IsKind(err, model.KindPoolExhausted))
	require.EqualValues(t, 1, p.Stats().AcquisitionTimeouts)

	held.Release()
	l, err := p.AcquireWithTimeout(context.Background(), time.Second)
	require.NoError(t, err)
	l.Release()
}

func TestConcurrentAcquisitionsNeverExceedSize(t *testing.T) {
	t.Parallel()

	const size = 3
	p := newTestPool(t, size)

	var active, peak atomic.Int32
	g, ctx := errgroup.WithContext(context.Background())
	for range 30 {
		g.Go(func() error {
			l, err := p.Acquire(ctx)
			if err != nil {
				return err
			}
			defer l.Release()

			n := active.Add(1)
			for {
				cur := peak.Load()
				if n <= cur || peak.CompareAndSwap(cur, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			active.Add(-1)
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.LessOrEqual(t, int(peak.Load()), size)

	s := p.Stats()
	require.EqualValues(t, 30, s.TotalAcquisitions)
	require.EqualValues(t, 30, s.TotalReleases)
	requireInvariant(t, p)
}

func TestClose(t *testing.T) {
	t.Parallel()

	p := newTestPool(t, 2)
	l, err := p.Acquire(context.Background())
	require.NoError(t, err)

	var wg sync.WaitGroup
	var closeErr error
	wg.Go(func() {
		closeErr = p.Close(context.Background())
	})

	require.Eventually(t, p.Closed, time.Second, time.Millisecond)
	_, err = p.Acquire(context.Background())
	require.True(t, model.IsKind(err, model.KindPoolClosed))
	_, err = p.TryAcquire()
	require.True(t, model.IsKind(err, model.KindPoolClosed))

	l.Release()
	wg.Wait()
	require.NoError(t, closeErr)
	require.NoError(t, p.Close(context.Background()), "second close is a no-op")
}

func TestClose_DeadlineWithOutstandingLease(t *testing.T) {
	t.Parallel()

	p := newTestPool(t, 1)
	l, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer l.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err = p.Close(ctx)
	require.Error(t, err)
	require.True(t, model.IsKind(err, model.KindTimeout))
}

func TestClose_NoLeaseGrantedAfterDrain(t *testing.T) {
	t.Parallel()

	for range 20 {
		p := newTestPool(t, 4)

		var drained atomic.Bool
		var lateLeases atomic.Int64
		var g errgroup.Group
		for range 8 {
			g.Go(func() error {
				for {
					l, err := p.TryAcquire()
					switch {
					case err == nil:
						if drained.Load() {
							lateLeases.Add(1)
						}
						l.Release()
					case model.IsKind(err, model.KindPoolClosed):
						return nil
					case model.IsKind(err, model.KindPoolExhausted):
					default:
						return err
					}
				}
			})
		}

		time.Sleep(time.Millisecond)
		require.NoError(t, p.Close(context.Background()))
		drained.Store(true)
		require.NoError(t, g.Wait())

		require.Zero(t, lateLeases.Load())
		require.Zero(t, p.Stats().ActiveClients)
		requireInvariant(t, p)
	}
}

func TestStatsHelpers(t *testing.T) {
	t.Parallel()

	require.Zero(t, Stats{}.AverageWaitTime())
	require.Zero(t, Stats{}.Utilization())

	s := Stats{TotalClients: 4, ActiveClients: 1, TotalAcquisitions: 2, TotalWaitTime: 10 * time.Millisecond}
	require.Equal(t, 5*time.Millisecond, s.AverageWaitTime())
	require.InDelta(t, 0.25, s.Utilization(), 1e-9)
}
