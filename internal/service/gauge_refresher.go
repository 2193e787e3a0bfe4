package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/finlend/loan-service/internal/domain"
	"github.com/finlend/loan-service/internal/observability"
	"github.com/finlend/loan-service/internal/repository"
)

// GaugeRefresher periodically recounts loans per status and publishes the
// counts as gauges. Counting runs outside any transaction; the gauges are a
// monitoring view, not a consistency guarantee.
type GaugeRefresher struct {
	loans    repository.LoanRepository
	metrics  *observability.Metrics
	interval time.Duration
	logger   zerolog.Logger

	started int32
	closed  int32
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewGaugeRefresher creates a refresher over the pool-scoped repository.
func NewGaugeRefresher(pool repository.DBTX, metrics *observability.Metrics, interval time.Duration, logger zerolog.Logger) *GaugeRefresher {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &GaugeRefresher{
		loans:    repository.NewPgLoanRepository(pool),
		metrics:  metrics,
		interval: interval,
		logger:   logger.With().Str("component", "gauge_refresher").Logger(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins the refresh loop with an immediate first refresh. Calling
// Start more than once has no effect.
func (g *GaugeRefresher) Start() {
	if !atomic.CompareAndSwapInt32(&g.started, 0, 1) {
		return
	}

	g.wg.Add(1)
	go func() {
		ticker := time.NewTicker(g.interval)

		defer g.wg.Done()
		defer ticker.Stop()

		g.Refresh(g.ctx)

		for {
			select {
			case <-ticker.C:
				g.Refresh(g.ctx)
			case <-g.ctx.Done():
				return
			}
		}
	}()
}

// Stop shuts down the refresh loop. The context bounds the wait for an
// in-flight refresh. Calling Stop multiple times is safe.
func (g *GaugeRefresher) Stop(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&g.closed, 0, 1) {
		return nil
	}

	g.cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		g.wg.Wait()
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Refresh recounts loans and updates every status gauge. Statuses with no
// loans are reset to zero so stale counts do not linger after the last loan
// leaves a state.
func (g *GaugeRefresher) Refresh(ctx context.Context) {
	counts, err := g.loans.CountByStatus(ctx)
	if err != nil {
		g.logger.Error().Err(err).Msg("failed to count loans by status")
		return
	}

	for _, status := range domain.AllLoanStatuses {
		g.metrics.LoansByStatus.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}
