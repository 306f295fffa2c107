package scheduling

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper reclaims expired slot holds on a fixed interval. It is started
// once at process bootstrap and stopped on graceful shutdown; running it
// from several instances at once is safe because the delete predicate is
// self-cleaning.
type Sweeper struct {
	svc      *Service
	log      *zap.Logger
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

func NewSweeper(svc *Service, interval time.Duration, log *zap.Logger) *Sweeper {
	return &Sweeper{
		svc:      svc,
		log:      log,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop. One pass runs immediately.
func (w *Sweeper) Start(ctx context.Context) {
	go w.run(ctx)
}

// Stop signals the loop and waits for the in-flight pass to finish.
func (w *Sweeper) Stop() {
	close(w.stop)
	<-w.done
}

func (w *Sweeper) run(ctx context.Context) {
	defer close(w.done)

	w.runOnce(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

// runOnce tolerates a transiently unreachable store: log, skip, retry on
// the next tick. It must never take the process down.
func (w *Sweeper) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	purged, err := w.svc.PurgeExpiredHolds(runCtx)
	if err != nil {
		w.log.Warn("hold sweep failed, will retry next tick", zap.Error(err))
		return
	}
	if purged > 0 {
		w.log.Info("expired holds purged", zap.Int64("count", purged))
	}
}
