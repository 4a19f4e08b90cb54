// Package pool bounds concurrent upstream calls with a fixed set of handles and
// weighted-semaphore permits.
package pool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"golang.org/x/sync/semaphore"

	"github.com/paiml/universal-bot/relay/adaptor"
	"github.com/paiml/universal-bot/relay/model"
)

// closePollInterval is how often Close checks for returned permits.
const closePollInterval = 10 * time.Millisecond

// Stats is a point-in-time snapshot of the pool.
type Stats struct {
	TotalClients        int           `json:"total_clients"`
	ActiveClients       int           `json:"active_clients"`
	AvailableClients    int           `json:"available_clients"`
	TotalAcquisitions   uint64        `json:"total_acquisitions"`
	TotalReleases       uint64        `json:"total_releases"`
	TotalWaitTime       time.Duration `json:"total_wait_time"`
	AcquisitionTimeouts uint64        `json:"acquisition_timeouts"`
}

// AverageWaitTime is the mean time spent waiting in Acquire.
func (s Stats) AverageWaitTime() time.Duration {
	if s.TotalAcquisitions == 0 {
		return 0
	}
	return s.TotalWaitTime / time.Duration(s.TotalAcquisitions)
}

// Utilization is the share of busy handles in [0, 1].
func (s Stats) Utilization() float64 {
	if s.TotalClients == 0 {
		return 0
	}
	return float64(s.ActiveClients) / float64(s.TotalClients)
}

// Params configures a Pool.
type Params struct {
	// Size is the number of handles and permits; it must be at least 1.
	Size    int
	Factory adaptor.Factory
	Logger  *zap.Logger
}

// Pool hands out upstream handles to at most Size concurrent holders.
type Pool struct {
	clients []adaptor.Upstream
	sem     *semaphore.Weighted
	logger  *zap.Logger

	// next picks the handle of the next acquisition, round-robin.
	next   atomic.Uint64
	closed atomic.Bool

	mu    sync.RWMutex
	stats Stats
}

// New builds Size handles with the factory. A factory failure is reported as a
// configuration error.
func New(ctx context.Context, params Params) (*Pool, error) {
	if params.Size < 1 {
		return nil, model.NewError(model.KindConfiguration, "pool size must be at least 1, got %d", params.Size)
	}
	if params.Factory == nil {
		return nil, model.NewError(model.KindConfiguration, "pool factory is required")
	}
	if params.Logger == nil {
		params.Logger = zap.NewNop()
	}

	clients := make([]adaptor.Upstream, 0, params.Size)
	for i := 0; i < params.Size; i++ {
		client, err := params.Factory(ctx, i)
		if err != nil {
			return nil, model.WrapError(model.KindConfiguration, err,
				fmt.Sprintf("create pool client %d", i))
		}
		clients = append(clients, client)
	}

	params.Logger.Debug("connection pool created", zap.Int("size", params.Size))
	return &Pool{
		clients: clients,
		sem:     semaphore.NewWeighted(int64(params.Size)),
		logger:  params.Logger,
		stats: Stats{
			TotalClients:     params.Size,
			AvailableClients: params.Size,
		},
	}, nil
}

// Lease is a borrowed handle. Release returns the permit and is idempotent.
type Lease struct {
	client adaptor.Upstream
	index  int
	pool   *Pool
	once   sync.Once
}

// Client returns the borrowed handle.
func (l *Lease) Client() adaptor.Upstream {
	return l.client
}

// Index is the slot of the borrowed handle.
func (l *Lease) Index() int {
	return l.index
}

// Release gives the handle back to the pool.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.pool.release()
	})
}

// Acquire blocks until a permit is free or ctx ends. Cancellation is reported as
// a Timeout (deadline) or RequestFailed (cancel) error.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	if p.closed.Load() {
		return nil, model.NewError(model.KindPoolClosed, "pool is closed")
	}

	start := time.Now()
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, model.Classify(errors.Wrap(err, "wait for pool permit"))
	}

	return p.lease(time.Since(start))
}

// AcquireWithTimeout is Acquire with a bound on the caller's patience. Running out of
// patience yields PoolExhausted and counts an acquisition timeout.
func (p *Pool) AcquireWithTimeout(ctx context.Context, patience time.Duration) (*Lease, error) {
	waitCtx, cancel := context.WithTimeout(ctx, patience)
	defer cancel()

	lease, err := p.Acquire(waitCtx)
	if err == nil {
		return lease, nil
	}
	if ctx.Err() == nil && errors.Is(waitCtx.Err(), context.DeadlineExceeded) &&
		!model.IsKind(err, model.KindPoolClosed) {
		p.mu.Lock()
		p.stats.AcquisitionTimeouts++
		p.mu.Unlock()
		return nil, model.WrapError(model.KindPoolExhausted, err,
			fmt.Sprintf("no client available within %s", patience))
	}
	return nil, err
}

// TryAcquire takes a permit without waiting. It returns PoolExhausted when every
// handle is busy. Wait time is not recorded.
func (p *Pool) TryAcquire() (*Lease, error) {
	if p.closed.Load() {
		return nil, model.NewError(model.KindPoolClosed, "pool is closed")
	}
	if !p.sem.TryAcquire(1) {
		return nil, model.NewError(model.KindPoolExhausted, "all %d clients are busy", len(p.clients))
	}
	return p.lease(0)
}

// lease turns a held permit into a Lease. closed is re-read under mu so a lease is
// either counted before Close samples ActiveClients or refused.
func (p *Pool) lease(wait time.Duration) (*Lease, error) {
	p.mu.Lock()
	if p.closed.Load() {
		p.mu.Unlock()
		p.sem.Release(1)
		return nil, model.NewError(model.KindPoolClosed, "pool is closed")
	}
	index := int((p.next.Add(1) - 1) % uint64(len(p.clients)))
	p.stats.ActiveClients++
	p.stats.AvailableClients--
	p.stats.TotalAcquisitions++
	p.stats.TotalWaitTime += wait
	p.mu.Unlock()

	return &Lease{client: p.clients[index], index: index, pool: p}, nil
}

func (p *Pool) release() {
	p.mu.Lock()
	p.stats.ActiveClients--
	p.stats.AvailableClients++
	p.stats.TotalReleases++
	p.mu.Unlock()

	p.sem.Release(1)
}

// Stats returns a consistent snapshot of the counters.
func (p *Pool) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stats
}

// Size is the number of handles.
func (p *Pool) Size() int {
	return len(p.clients)
}

// Closed reports whether Close has been called.
func (p *Pool) Closed() bool {
	return p.closed.Load()
}

// Close refuses new acquisitions and waits until every outstanding lease is released
// or ctx ends.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed.CompareAndSwap(false, true) {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	ticker := time.NewTicker(closePollInterval)
	defer ticker.Stop()

	for {
		active := p.Stats().ActiveClients
		if active == 0 {
			p.logger.Debug("connection pool closed")
			return nil
		}

		select {
		case <-ctx.Done():
			p.logger.Warn("connection pool closed with outstanding leases",
				zap.Int("active", active))
			return model.WrapError(model.KindTimeout, ctx.Err(),
				fmt.Sprintf("%d leases still outstanding", active))
		case <-ticker.C:
		}
	}
}
