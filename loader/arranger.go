package loader

import (
	"context"

	"github.com/anacrolix/log"
	"golang.org/x/time/rate"
)

// Locker is the minimal mutex surface the cache-arranger needs from the
// ORM facade's world lock. It's declared here rather than importing
// package orm's lock type directly, since orm constructs and owns a
// Loader (and a CacheArranger over it) — importing orm back from loader
// would cycle.
type Locker interface {
	Lock()
	Unlock()
}

// PrefetchRequest asks the arranger to bring (branch,turn,tick) into the
// cache for graphs in the background, ahead of being asked for it
// synchronously (spec.md §5's auxiliary-thread cache arranger). Shutdown
// is the sentinel that drains the queue and stops Run.
type PrefetchRequest struct {
	Graphs   []string
	Branch   string
	Turn     Turn
	Tick     Tick
	Shutdown bool
}

// CacheArranger runs prefetch requests against a Loader on a background
// goroutine, rate-limited via golang.org/x/time/rate so a burst of
// speculative requests can't starve a foreground caller's own LoadAt for
// the world lock.
type CacheArranger struct {
	loader  *Loader
	lock    Locker
	limiter *rate.Limiter
	reqs    chan PrefetchRequest
	log     log.Logger
}

// NewCacheArranger builds an arranger over l, serializing against lock
// (the ORM facade's world lock) and throttled to ratePerSec requests per
// second with the given burst.
func NewCacheArranger(l *Loader, lock Locker, ratePerSec float64, burst int, logger log.Logger) *CacheArranger {
	return &CacheArranger{
		loader:  l,
		lock:    lock,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), burst),
		reqs:    make(chan PrefetchRequest, 64),
		log:     logger,
	}
}

// Submit enqueues req, dropping it if the queue is already full —
// prefetching is an optimization, never a correctness requirement, so a
// full queue just means the arranger is already behind and another
// synchronous LoadAt will happen anyway if the cursor gets there first.
func (a *CacheArranger) Submit(req PrefetchRequest) {
	select {
	case a.reqs <- req:
	default:
		a.log.Printf("cache-arranger: queue full, dropping prefetch for %s@%d.%d", req.Branch, req.Turn, req.Tick)
	}
}

// Shutdown enqueues the sentinel request that stops Run once it's drained.
func (a *CacheArranger) Shutdown() {
	a.reqs <- PrefetchRequest{Shutdown: true}
}

// Run processes requests until a Shutdown request is received or ctx is
// cancelled. Intended to run on its own goroutine for the life of the
// process.
func (a *CacheArranger) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-a.reqs:
			if req.Shutdown {
				return
			}
			if err := a.limiter.Wait(ctx); err != nil {
				return
			}
			a.lock.Lock()
			err := a.loader.LoadAt(ctx, req.Graphs, req.Branch, req.Turn, req.Tick)
			a.lock.Unlock()
			if err != nil {
				a.log.Printf("cache-arranger: prefetch %s@%d.%d failed: %v", req.Branch, req.Turn, req.Tick, err)
			}
		}
	}
}
