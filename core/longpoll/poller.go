package longpoll

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"vkcoursebot/core/logger"
	"vkcoursebot/core/vk"

	"log/slog"
)

// messageNew is the only update type forwarded to the dispatcher.
const messageNew = "message_new"

// Gateway acquires fresh long-poll descriptors.
type Gateway interface {
	AcquirePollServer(ctx context.Context) (vk.PollServer, error)
}

// Sink consumes qualifying updates, in batch order.
type Sink func(ctx context.Context, u Update) error

// Options configures the Poller.
type Options struct {
	Gateway Gateway
	// WaitSeconds is the server-side hold time for a_check; 0 -> 25.
	WaitSeconds int
	// Backoff is the pause after a transport fault before a full
	// descriptor re-acquire; 0 -> 5s.
	Backoff time.Duration
	// HTTPClient overrides the long-poll HTTP client, used in tests.
	HTTPClient *http.Client
}

// Stats is a snapshot of poll loop counters for the ops endpoint.
type Stats struct {
	Polls     uint64 `json:"polls"`
	Events    uint64 `json:"events"`
	Dropped   uint64 `json:"dropped"`
	Transport uint64 `json:"transport_faults"`
	Repairs   uint64 `json:"protocol_repairs"`
	Cursor    string `json:"cursor"`
}

// Poller owns the long-poll descriptor and drives the blocking poll loop.
// It is not safe for concurrent Run calls; counters may be read concurrently.
type Poller struct {
	gw      Gateway
	http    *http.Client
	wait    int
	backoff time.Duration

	descMu sync.Mutex
	desc   vk.PollServer

	polls     atomic.Uint64
	events    atomic.Uint64
	dropped   atomic.Uint64
	transport atomic.Uint64
	repairs   atomic.Uint64
}

// New builds a Poller with sane defaults for zeroed options.
func New(opts Options) (*Poller, error) {
	if opts.Gateway == nil {
		return nil, errors.New("longpoll: nil gateway")
	}
	if opts.WaitSeconds <= 0 {
		opts.WaitSeconds = 25
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 5 * time.Second
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = vk.BuildLongPollClient()
	}
	return &Poller{
		gw:      opts.Gateway,
		http:    httpClient,
		wait:    opts.WaitSeconds,
		backoff: opts.Backoff,
	}, nil
}

// Descriptor returns a copy of the current poll descriptor.
func (p *Poller) Descriptor() vk.PollServer {
	p.descMu.Lock()
	defer p.descMu.Unlock()
	return p.desc
}

func (p *Poller) setDescriptor(d vk.PollServer) {
	p.descMu.Lock()
	p.desc = d
	p.descMu.Unlock()
}

// Stats returns a snapshot of the loop counters.
func (p *Poller) Stats() Stats {
	return Stats{
		Polls:     p.polls.Load(),
		Events:    p.events.Load(),
		Dropped:   p.dropped.Load(),
		Transport: p.transport.Load(),
		Repairs:   p.repairs.Load(),
		Cursor:    p.Descriptor().TS,
	}
}

// Run acquires the initial descriptor and polls until ctx is cancelled.
// Failure to acquire the initial descriptor is a startup fault and is
// returned to the caller; after that the loop only exits on cancellation.
// Sink errors are logged per event and never stop the loop.
func (p *Poller) Run(ctx context.Context, sink Sink) error {
	desc, err := p.gw.AcquirePollServer(ctx)
	if err != nil {
		return fmt.Errorf("longpoll: initial descriptor: %w", err)
	}
	p.setDescriptor(desc)
	logger.LP.Info("poll loop started",
		slog.String("event", "loop.start"),
		slog.String("cursor", desc.TS),
		slog.Int("wait", p.wait),
	)

	for {
		if err := ctx.Err(); err != nil {
			logger.LP.Info("poll loop stopped", slog.String("event", "loop.stop"))
			return nil
		}

		switch res := p.poll(ctx).(type) {
		case Events:
			p.handleBatch(ctx, res, sink)
		case Recoverable:
			p.repairs.Add(1)
			if err := p.repair(ctx, res); err != nil {
				// Repair needed a fresh descriptor and the gateway call
				// failed; fall back to the transport path with backoff.
				logger.LP.Warn("descriptor repair failed",
					slog.String("event", "poll.repair"),
					slog.String("cause", res.Kind.String()),
					slog.String("err", err.Error()),
				)
				p.reacquire(ctx)
			}
		case TransportError:
			if errors.Is(res.Cause, context.Canceled) {
				continue
			}
			p.transport.Add(1)
			logger.LP.Warn("poll transport fault",
				slog.String("event", "poll.transport"),
				slog.String("err", res.Cause.Error()),
				slog.Duration("backoff", p.backoff),
			)
			p.reacquire(ctx)
		}
	}
}

// poll performs one blocking a_check call against the current descriptor.
func (p *Poller) poll(ctx context.Context) Result {
	desc := p.Descriptor()

	params := url.Values{}
	params.Set("act", "a_check")
	params.Set("key", desc.Key)
	params.Set("ts", desc.TS)
	params.Set("wait", strconv.Itoa(p.wait))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, desc.Server, nil)
	if err != nil {
		return TransportError{Cause: err}
	}
	req.URL.RawQuery = params.Encode()

	resp, err := p.http.Do(req)
	if err != nil {
		return TransportError{Cause: err}
	}
	defer resp.Body.Close()
	p.polls.Add(1)

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return TransportError{Cause: err}
	}
	if resp.StatusCode != http.StatusOK {
		return TransportError{Cause: fmt.Errorf("a_check status %s", resp.Status)}
	}

	result, err := parseCheckResponse(body)
	if err != nil {
		return TransportError{Cause: err}
	}
	return result
}

func (p *Poller) handleBatch(ctx context.Context, batch Events, sink Sink) {
	desc := p.Descriptor()
	desc.TS = batch.Cursor
	p.setDescriptor(desc)

	if len(batch.Updates) == 0 {
		// Empty batches are the common case; sample them out of debug logs.
		if logger.ShouldSampleDebug() {
			logger.LP.Debug("empty batch",
				slog.String("event", "poll.batch"),
				slog.String("cursor", batch.Cursor),
			)
		}
		return
	}

	forwarded := 0
	for _, u := range batch.Updates {
		if u.Type != messageNew {
			p.dropped.Add(1)
			continue
		}
		p.events.Add(1)
		forwarded++
		if err := sink(ctx, u); err != nil {
			logger.LP.Error("event sink failed",
				slog.String("event", "poll.sink"),
				slog.String("err", err.Error()),
			)
		}
	}
	logger.LP.Debug("batch forwarded",
		slog.String("event", "poll.batch"),
		slog.String("cursor", batch.Cursor),
		slog.Int("events", forwarded),
		slog.Int("count", len(batch.Updates)),
	)
}

// repair fixes the descriptor according to the failure kind and returns
// without delay: these signals are expected, frequent, and cheap.
func (p *Poller) repair(ctx context.Context, r Recoverable) error {
	desc := p.Descriptor()

	switch r.Kind {
	case KindCursorStale:
		desc.TS = r.Cursor
	case KindKeyExpired:
		fresh, err := p.gw.AcquirePollServer(ctx)
		if err != nil {
			return err
		}
		desc.Key = fresh.Key
		desc.Server = fresh.Server
	case KindKeyCursorExpired:
		fresh, err := p.gw.AcquirePollServer(ctx)
		if err != nil {
			return err
		}
		desc.Key = fresh.Key
		desc.TS = fresh.TS
	}

	p.setDescriptor(desc)
	logger.LP.Debug("descriptor repaired",
		slog.String("event", "poll.repair"),
		slog.String("cause", r.Kind.String()),
		slog.String("cursor", desc.TS),
	)
	return nil
}

// reacquire waits out the backoff and replaces the descriptor wholesale:
// after a network fault the server address itself may be invalid, so a
// partial repair is not enough.
func (p *Poller) reacquire(ctx context.Context) {
	timer := time.NewTimer(p.backoff)
	select {
	case <-ctx.Done():
		timer.Stop()
		return
	case <-timer.C:
	}

	fresh, err := p.gw.AcquirePollServer(ctx)
	if err != nil {
		logger.LP.Warn("descriptor re-acquire failed",
			slog.String("event", "poll.reacquire"),
			slog.String("err", err.Error()),
		)
		return
	}
	p.setDescriptor(fresh)
	logger.LP.Info("descriptor re-acquired",
		slog.String("event", "poll.reacquire"),
		slog.String("cursor", fresh.TS),
	)
}
