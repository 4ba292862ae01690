package browser

import (
	"context"
	"fmt"

	"github.com/AditiPrabhuA/gomarble/scrape"
)

// Pool is the fixed-size admission gate over browser tabs. Each scrape
// session acquires one slot for its whole lifetime; sessions past the
// bound block rather than spawning unbounded Chrome contexts.
type Pool struct {
	mgr   *Manager
	slots chan struct{}
}

// NewPool creates a Pool over the manager's Chrome instance.
func NewPool(mgr *Manager) *Pool {
	slots := make(chan struct{}, mgr.cfg.PoolSize)
	for i := 0; i < mgr.cfg.PoolSize; i++ {
		slots <- struct{}{}
	}
	return &Pool{mgr: mgr, slots: slots}
}

// Acquire blocks until a slot frees up or ctx is done, then opens a
// fresh stealth tab. The returned release func closes the tab and frees
// the slot; callers must invoke it on every exit path.
func (p *Pool) Acquire(ctx context.Context) (scrape.Fetcher, func(), error) {
	select {
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	case <-p.slots:
	}

	tab, err := openTab(p.mgr)
	if err != nil {
		p.slots <- struct{}{}
		return nil, nil, fmt.Errorf("browser: open tab: %w", err)
	}

	var released bool
	release := func() {
		if released {
			return
		}
		released = true
		tab.close()
		p.slots <- struct{}{}
	}
	return tab, release, nil
}
