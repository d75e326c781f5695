package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/whalefollow/tradepipe/internal/tradepipe/chain"
	"github.com/whalefollow/tradepipe/internal/tradepipe/classify"
	"github.com/whalefollow/tradepipe/internal/tradepipe/dedup"
	"github.com/whalefollow/tradepipe/internal/tradepipe/enrich"
	"github.com/whalefollow/tradepipe/internal/tradepipe/filter"
	"github.com/whalefollow/tradepipe/internal/tradepipe/metrics"
	"github.com/whalefollow/tradepipe/internal/tradepipe/model"
	"github.com/whalefollow/tradepipe/internal/tradepipe/sink"
	"github.com/whalefollow/tradepipe/internal/tradepipe/store"
	"github.com/whalefollow/tradepipe/pkg/retry"
)

// State of the pipeline. Transitions are linear per poll:
// Idle -> FetchingHead -> FetchingBlocks -> Queueing -> Draining -> Idle.
type State int32

const (
	StateIdle State = iota
	StateFetchingHead
	StateFetchingBlocks
	StateQueueing
	StateDraining
)

type Config struct {
	// Concurrency is the classification fan-out per batch. Kept low by
	// default to respect the paid provider's rate limit.
	Concurrency int
	// BatchDelay is slept between batches while draining.
	BatchDelay time.Duration
	// ClassifyTimeout bounds each decode call.
	ClassifyTimeout time.Duration
	// ClassifyRetry governs retries of a failed decode. Default is a
	// single attempt: a failed hash is skipped for good, matching the
	// containment design. Substitute a bounded-backoff policy to harden.
	ClassifyRetry retry.Policy
}

func (c *Config) applyDefaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.BatchDelay <= 0 {
		c.BatchDelay = 500 * time.Millisecond
	}
	if c.ClassifyTimeout <= 0 {
		c.ClassifyTimeout = 20 * time.Second
	}
	if c.ClassifyRetry.MaxAttempts <= 0 {
		c.ClassifyRetry = retry.None()
	}
}

// Deps are the pipeline's collaborators. Source, Classifier, Store, Filter
// and Enricher are required; Deduper, Sink and Checkpoint are optional.
type Deps struct {
	Source     chain.Source
	Classifier classify.Classifier
	Store      store.Store
	Filter     *filter.Filter
	Enricher   *enrich.Enricher
	Deduper    dedup.Deduper
	Sink       sink.Sink
	Checkpoint Checkpoint
}

// Pipeline walks new blocks, filters candidates, classifies them and writes
// enriched records. One instance per process; all cursor state lives here,
// nothing is ambient.
type Pipeline struct {
	src  chain.Source
	cls  classify.Classifier
	st   store.Store
	fil  *filter.Filter
	enr  *enrich.Enricher
	ded  dedup.Deduper
	snk  sink.Sink
	ckpt Checkpoint

	cfg Config
	log *zap.Logger

	state     atomic.Int32
	cursor    int64
	cursorSet bool
}

func New(deps Deps, cfg Config, log *zap.Logger) (*Pipeline, error) {
	if deps.Source == nil || deps.Classifier == nil || deps.Store == nil {
		return nil, errors.New("pipeline: source, classifier and store are required")
	}
	if deps.Filter == nil {
		deps.Filter = filter.New(filter.Config{})
	}
	if deps.Enricher == nil {
		deps.Enricher = enrich.New(nil)
	}
	if deps.Deduper == nil {
		deps.Deduper = dedup.Nop{}
	}
	if deps.Sink == nil {
		deps.Sink = sink.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	cfg.applyDefaults()

	return &Pipeline{
		src:  deps.Source,
		cls:  deps.Classifier,
		st:   deps.Store,
		fil:  deps.Filter,
		enr:  deps.Enricher,
		ded:  deps.Deduper,
		snk:  deps.Sink,
		ckpt: deps.Checkpoint,
		cfg:  cfg,
		log:  log.With(zap.String("component", "pipeline")),
	}, nil
}

// State returns the current pipeline state.
func (p *Pipeline) State() State { return State(p.state.Load()) }

// Cursor returns the last fully processed height (0 before the first poll).
func (p *Pipeline) Cursor() int64 { return atomic.LoadInt64(&p.cursor) }

// Poll runs one ingestion pass. A call that arrives while a previous pass
// is still running is dropped, not queued; the Idle guard is the only
// concurrency control the pipeline needs.
func (p *Pipeline) Poll(ctx context.Context) error {
	if !p.state.CompareAndSwap(int32(StateIdle), int32(StateFetchingHead)) {
		metrics.PollsDropped.Inc()
		p.log.Debug("poll dropped, previous run still active")
		return nil
	}
	defer p.state.Store(int32(StateIdle))

	start := time.Now()
	defer func() { metrics.PollDuration.Observe(time.Since(start).Seconds()) }()

	head, err := p.src.HeadNumber(ctx)
	if err != nil {
		return fmt.Errorf("fetch head: %w", err)
	}

	if !p.cursorSet {
		resumed, err := p.initCursor(head)
		if err != nil {
			return err
		}
		if !resumed {
			// cold start: cursor pinned to head, skip the historical backlog
			return nil
		}
	}

	cursor := p.Cursor()
	if head <= cursor {
		return nil
	}

	p.state.Store(int32(StateFetchingBlocks))
	queue := p.collectCandidates(ctx, cursor+1, head)

	p.state.Store(int32(StateDraining))
	p.drain(ctx, queue)

	p.advanceCursor(head)
	if err := p.ded.Evict(time.Now()); err != nil {
		p.log.Warn("dedup evict failed", zap.Error(err))
	}
	p.log.Info("poll complete",
		zap.Int64("from", cursor+1),
		zap.Int64("to", head),
		zap.Int("candidates", len(queue)))
	return nil
}

// Backfill runs the same filter/classify/enrich/store flow over an explicit
// block range. The live cursor is not touched, so a backfill can run before
// or alongside normal operation of a separate monitor process.
func (p *Pipeline) Backfill(ctx context.Context, from, to int64) error {
	if from <= 0 || to < from {
		return fmt.Errorf("invalid range [%d, %d]", from, to)
	}
	if !p.state.CompareAndSwap(int32(StateIdle), int32(StateFetchingBlocks)) {
		return errors.New("pipeline busy")
	}
	defer p.state.Store(int32(StateIdle))

	queue := p.collectCandidates(ctx, from, to)
	p.state.Store(int32(StateDraining))
	p.drain(ctx, queue)

	p.log.Info("backfill complete",
		zap.Int64("from", from),
		zap.Int64("to", to),
		zap.Int("candidates", len(queue)))
	return nil
}

func (p *Pipeline) initCursor(head int64) (resumed bool, err error) {
	if p.ckpt != nil {
		if h, ok, err := p.ckpt.Load(); err != nil {
			return false, fmt.Errorf("load checkpoint: %w", err)
		} else if ok && h > 0 {
			atomic.StoreInt64(&p.cursor, h)
			p.cursorSet = true
			p.log.Info("resuming from checkpoint", zap.Int64("cursor", h), zap.Int64("head", head))
			return true, nil
		}
	}
	atomic.StoreInt64(&p.cursor, head)
	p.cursorSet = true
	p.saveCheckpoint(head)
	p.log.Info("cold start, cursor pinned to head", zap.Int64("head", head))
	return false, nil
}

func (p *Pipeline) advanceCursor(height int64) {
	atomic.StoreInt64(&p.cursor, height)
	p.saveCheckpoint(height)
}

func (p *Pipeline) saveCheckpoint(height int64) {
	if p.ckpt == nil {
		return
	}
	if err := p.ckpt.Save(height); err != nil {
		p.log.Warn("checkpoint save failed", zap.Int64("height", height), zap.Error(err))
	}
}

// collectCandidates fetches each block in [from, to] and filters its
// transactions. A failed block fetch is logged and skipped; its height is
// still considered consumed, an accepted gap.
func (p *Pipeline) collectCandidates(ctx context.Context, from, to int64) []string {
	var queue []string
	for h := from; h <= to; h++ {
		if ctx.Err() != nil {
			return queue
		}
		txs, err := p.src.BlockTransactions(ctx, h)
		if err != nil {
			metrics.BlockFetchErrors.Inc()
			p.log.Warn("block fetch failed, skipping", zap.Int64("height", h), zap.Error(err))
			continue
		}
		metrics.BlocksScanned.Inc()

		p.state.Store(int32(StateQueueing))
		for _, tx := range txs {
			if p.fil.ShouldProcess(tx) {
				queue = append(queue, tx.Hash)
				metrics.CandidatesEnqueued.Inc()
			}
		}
		p.state.Store(int32(StateFetchingBlocks))
	}
	return queue
}

// drain pops bounded batches off the queue and classifies each batch
// concurrently. All outcomes in a batch are awaited jointly; one failed
// hash never cancels its siblings.
func (p *Pipeline) drain(ctx context.Context, queue []string) {
	for len(queue) > 0 {
		if ctx.Err() != nil {
			return
		}
		n := p.cfg.Concurrency
		if n > len(queue) {
			n = len(queue)
		}
		batch := queue[:n]
		queue = queue[n:]

		var g errgroup.Group
		for _, hash := range batch {
			g.Go(func() error {
				p.processHash(ctx, hash) // contains its own errors
				return nil
			})
		}
		_ = g.Wait()

		if len(queue) > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.cfg.BatchDelay):
			}
		}
	}
}

func (p *Pipeline) processHash(ctx context.Context, hash string) {
	seen, err := p.ded.SeenOrAdd(hash, time.Now())
	if err != nil {
		p.log.Warn("dedup check failed", zap.String("hash", hash), zap.Error(err))
	} else if seen {
		metrics.ClassifyOutcomes.WithLabelValues("deduped").Inc()
		p.log.Debug("hash already handled", zap.String("hash", hash))
		return
	}

	var c *model.Classification
	err = retry.Do(ctx, p.cfg.ClassifyRetry, func(ctx context.Context) error {
		cctx, cancel := context.WithTimeout(ctx, p.cfg.ClassifyTimeout)
		defer cancel()
		var derr error
		c, derr = p.cls.Decode(cctx, hash)
		return derr
	})
	if err != nil {
		// no retry queue: this hash will not come around again
		metrics.ClassifyOutcomes.WithLabelValues("error").Inc()
		p.log.Warn("classification failed, skipping hash", zap.String("hash", hash), zap.Error(err))
		return
	}
	if c == nil {
		metrics.ClassifyOutcomes.WithLabelValues("not_found").Inc()
		p.log.Debug("no classification for hash", zap.String("hash", hash))
		return
	}
	metrics.ClassifyOutcomes.WithLabelValues("ok").Inc()

	rec, ok := p.enr.Enrich(hash, *c)
	if !ok {
		metrics.InsertOutcomes.WithLabelValues("dropped").Inc()
		return
	}

	inserted, err := p.st.InsertIfAbsent(ctx, rec)
	if err != nil {
		metrics.InsertOutcomes.WithLabelValues("error").Inc()
		p.log.Warn("insert failed", zap.String("hash", hash), zap.Error(err))
		return
	}
	if !inserted {
		metrics.InsertOutcomes.WithLabelValues("duplicate").Inc()
		p.log.Debug("duplicate record", zap.String("hash", hash))
		return
	}
	metrics.InsertOutcomes.WithLabelValues("inserted").Inc()

	if err := p.snk.Emit(ctx, rec); err != nil {
		p.log.Warn("sink emit failed", zap.String("hash", hash), zap.Error(err))
	}
}
