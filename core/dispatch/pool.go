package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"vkcoursebot/core/logger"
	"vkcoursebot/core/longpoll"
)

// Pool fans events out to a fixed set of workers, sharded by user id.
// One user always lands on the same worker, which gives both per-user
// mutual exclusion and per-user arrival order without a global lock.
type Pool struct {
	process func(ctx context.Context, msg Message) error
	shards  []chan Message

	wg        sync.WaitGroup
	closeOnce sync.Once

	dispatched atomic.Uint64
	failed     atomic.Uint64
}

// PoolStats is a snapshot of the pool counters for the ops endpoint.
type PoolStats struct {
	Workers    int    `json:"workers"`
	Dispatched uint64 `json:"dispatched"`
	Failed     uint64 `json:"failed"`
	Queued     int    `json:"queued"`
}

func NewPool(workers, queueSize int, process func(ctx context.Context, msg Message) error) (*Pool, error) {
	if workers <= 0 {
		return nil, errors.New("dispatch: pool needs at least one worker")
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	if process == nil {
		return nil, errors.New("dispatch: nil process func")
	}
	p := &Pool{process: process, shards: make([]chan Message, workers)}
	for i := range p.shards {
		p.shards[i] = make(chan Message, queueSize)
	}
	return p, nil
}

// Start launches the workers. ctx is the base context for processing;
// cancelling it does not stop the workers, Close does.
func (p *Pool) Start(ctx context.Context) {
	for i, shard := range p.shards {
		p.wg.Add(1)
		go p.worker(ctx, i, shard)
	}
	logger.DISP.Info("worker pool started",
		slog.String("event", "pool.start"),
		slog.Int("count", len(p.shards)),
	)
}

// Submit queues the message on its user's shard. A full shard blocks
// the caller, which backpressures the poll loop instead of reordering
// or dropping events. Submit must not be called once Close has begun:
// Close closes the shard channels, and a late Submit would panic. The
// runner upholds this by closing the pool only after the poll loop has
// returned.
func (p *Pool) Submit(ctx context.Context, msg Message) error {
	shard := p.shards[uint64(msg.UserID)%uint64(len(p.shards))]
	select {
	case shard <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops intake and waits for the workers to drain their shards.
// The caller must guarantee no Submit is in flight or will follow; see
// the Submit contract.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		for _, shard := range p.shards {
			close(shard)
		}
	})
	p.wg.Wait()
	logger.DISP.Info("worker pool drained",
		slog.String("event", "pool.stop"),
		slog.Uint64("dispatched", p.dispatched.Load()),
		slog.Uint64("failed", p.failed.Load()),
	)
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() PoolStats {
	queued := 0
	for _, shard := range p.shards {
		queued += len(shard)
	}
	return PoolStats{
		Workers:    len(p.shards),
		Dispatched: p.dispatched.Load(),
		Failed:     p.failed.Load(),
		Queued:     queued,
	}
}

func (p *Pool) worker(ctx context.Context, id int, jobs <-chan Message) {
	defer p.wg.Done()
	for msg := range jobs {
		if err := p.process(ctx, msg); err != nil {
			p.failed.Add(1)
			logger.DISP.Error("event processing failed",
				slog.String("event", "pool.process"),
				slog.String("status", "fail"),
				slog.Int64("user_id", msg.UserID),
				slog.String("err", err.Error()),
			)
			continue
		}
		p.dispatched.Add(1)
	}
}

// Sink adapts the pool into the poll loop's event sink: decode the
// message_new object, then queue it on the user's shard.
func (d *Dispatcher) Sink(pool *Pool) longpoll.Sink {
	return func(ctx context.Context, u longpoll.Update) error {
		msg, err := DecodeMessage(u.Object)
		if err != nil {
			logger.DISP.Error("event decode failed",
				slog.String("event", "dispatch.decode"),
				slog.String("err", err.Error()),
			)
			return err
		}
		return pool.Submit(ctx, msg)
	}
}
