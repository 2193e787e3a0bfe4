package outbox

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

// Publisher sends a single outbox entry to the broker. It may be called more
// than once for the same entry; downstream consumers must tolerate duplicates.
type Publisher interface {
	Publish(ctx context.Context, event domain.OutboxEvent) error
}

// Poller drains unsent outbox entries in the background. Each tick reads one
// batch oldest-first, publishes entry by entry, and marks every acknowledged
// entry sent. A failed entry stays unsent and is retried on a later tick;
// entries behind it in the batch are still attempted so one poisoned event
// cannot stall the stream.
type Poller struct {
	repo      repository.OutboxRepository
	publisher Publisher
	logger    zerolog.Logger
	metrics   *observability.Metrics

	interval       time.Duration
	batchSize      int
	publishTimeout time.Duration

	started int32
	closed  int32
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// PollerConfig holds the poller timing knobs.
type PollerConfig struct {
	// Interval is the time between drain cycles.
	Interval time.Duration
	// BatchSize is the maximum number of entries read per cycle.
	BatchSize int
	// PublishTimeout bounds a single broker publish.
	PublishTimeout time.Duration
}

// NewPoller creates a poller over the given repository and publisher.
func NewPoller(cfg PollerConfig, repo repository.OutboxRepository, publisher Publisher, metrics *observability.Metrics, logger zerolog.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Poller{
		repo:           repo,
		publisher:      publisher,
		logger:         logger.With().Str("component", "outbox_poller").Logger(),
		metrics:        metrics,
		interval:       cfg.Interval,
		batchSize:      cfg.BatchSize,
		publishTimeout: cfg.PublishTimeout,
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Start begins the background drain loop. Ticks run strictly one at a time:
// the loop is a single goroutine and a tick that fires while a drain is in
// progress is coalesced by the ticker, so slow broker publishes never pile up
// concurrent cycles. Calling Start more than once has no effect.
func (p *Poller) Start() {
	if !atomic.CompareAndSwapInt32(&p.started, 0, 1) {
		return
	}

	p.logger.Info().
		Dur("interval", p.interval).
		Int("batch_size", p.batchSize).
		Msg("starting outbox poller")

	p.wg.Add(1)
	go func() {
		ticker := time.NewTicker(p.interval)

		defer p.wg.Done()
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				p.drain()
			case <-p.ctx.Done():
				return
			}
		}
	}()
}

// Stop shuts down the drain loop and waits for an in-flight cycle to finish.
// The provided context bounds the wait. Calling Stop multiple times is safe.
func (p *Poller) Stop(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&p.closed, 0, 1) {
		return nil
	}

	p.cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.wg.Wait()
	}()

	select {
	case <-done:
		p.logger.Info().Msg("outbox poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// drain runs one cycle: read a batch and publish it entry by entry.
func (p *Poller) drain() {
	entries, err := p.repo.SelectUnsent(p.ctx, p.batchSize)
	if err != nil {
		p.logger.Error().Err(err).Msg("failed to read unsent outbox entries")
		return
	}

	if p.metrics != nil {
		p.metrics.OutboxBatchSize.Observe(float64(len(entries)))
	}

	if len(entries) == 0 {
		return
	}

	var published, failed int
	for i := range entries {
		if p.handleEntry(&entries[i]) {
			published++
		} else {
			failed++
		}
	}

	p.logger.Debug().
		Int("published", published).
		Int("failed", failed).
		Msg("outbox drain cycle complete")
}

// handleEntry publishes one entry and marks it sent on acknowledgement.
// Returns false when the entry stays unsent and will be retried.
func (p *Poller) handleEntry(entry *domain.OutboxEvent) bool {
	logger := observability.WithOutboxContext(p.logger, entry.ID.String(), entry.EventType)

	if err := p.publish(entry); err != nil {
		if p.metrics != nil {
			p.metrics.OutboxPublishFailures.Inc()
		}
		logger.Error().Err(err).Msg("failed to publish outbox entry")
		return false
	}

	if err := p.repo.MarkSent(p.ctx, entry.ID); err != nil {
		// The broker has the message but the flag did not stick. The entry
		// will be published again next cycle, which at-least-once allows.
		logger.Error().Err(err).Msg("failed to mark outbox entry sent")
		return false
	}

	if p.metrics != nil {
		p.metrics.OutboxPublished.Inc()
	}
	logger.Debug().Msg("outbox entry published")
	return true
}

func (p *Poller) publish(entry *domain.OutboxEvent) error {
	ctx, cancel := context.WithTimeout(p.ctx, p.publishTimeout)
	defer cancel()

	return p.publisher.Publish(ctx, *entry)
}
