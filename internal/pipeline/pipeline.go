package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	ctxerrors "github.com/sandy-sachin7/contextd/internal/errors"
	"github.com/sandy-sachin7/contextd/internal/watcher"
)

// Pipeline is C2 through C6 wired together: a fixed-size worker pool reading
// debounced Events, single-flighted per path, each driven through
// filter/parse/chunk/embed/store.
type Pipeline struct {
	deps Dependencies
	cfg  Config

	flights *flightMap

	inFlight sync.WaitGroup // tracks jobs actually running, for graceful drain
}

// New builds a Pipeline. cfg.Workers, cfg.MaxFileSize, and cfg.ShutdownGrace
// should come from config.PipelineConfig; a zero cfg.RetryConfig falls back
// to errors.DefaultStoreBusyRetry().
func New(deps Dependencies, cfg Config) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 10 * time.Second
	}
	if cfg.RetryConfig.MaxRetries == 0 && cfg.RetryConfig.InitialDelay == 0 {
		cfg.RetryConfig = ctxerrors.DefaultStoreBusyRetry()
	}
	return &Pipeline{
		deps:    deps,
		cfg:     cfg,
		flights: newFlightMap(),
	}
}

// Run consumes events until ctx is cancelled or the channel closes, fanning
// out across cfg.Workers goroutines via errgroup.Group, per §5's "fixed-size
// errgroup.Group reading from a bounded channel" model. On cancellation, it
// drains in-flight jobs up to cfg.ShutdownGrace before returning.
func (p *Pipeline) Run(ctx context.Context, events <-chan watcher.Event) error {
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < p.cfg.Workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case ev, ok := <-events:
					if !ok {
						return nil
					}
					p.dispatch(gctx, ev)
				}
			}
		})
	}

	err := g.Wait()

	drained := make(chan struct{})
	go func() {
		p.inFlight.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(p.cfg.ShutdownGrace):
		slog.Warn("pipeline: shutdown grace period elapsed with jobs still in flight")
	}

	return err
}

// dispatch applies the per-path single-flight map: a path already being
// processed has ev coalesced into the running job instead of starting a
// second concurrent run, per §5's single-flight contract. It runs the chain
// on the calling worker goroutine rather than spawning one, so cfg.Workers
// is the actual bound on concurrent parse/embed/store work, not merely a
// channel buffer hint.
func (p *Pipeline) dispatch(ctx context.Context, ev watcher.Event) {
	start, merged := p.flights.acquire(ev)
	if !start {
		return
	}

	p.inFlight.Add(1)
	p.runChain(ctx, merged)
}

// runChain processes ev and then checks whether a newer event was coalesced
// in while it ran; if so, it re-runs immediately with the latest parameters
// rather than returning to idle, per §5's re-check contract.
func (p *Pipeline) runChain(ctx context.Context, ev watcher.Event) {
	defer p.inFlight.Done()

	for {
		if err := p.processWithRetry(ctx, ev); err != nil {
			slog.Error("pipeline: processing failed", "path", ev.Path, "error", err)
		}

		rerun, next := p.flights.release(ev.Path)
		if !rerun {
			return
		}
		ev = next
	}
}

// processWithRetry wraps processEvent in the store-busy retry policy: only a
// write contending with another writer (ErrStoreBusy) is retried with
// jittered backoff, up to cfg.RetryConfig.MaxRetries times; every other
// error (parse failure, oversize, bad UTF-8) is terminal for this event and
// returns immediately, per §7's per-kind disposition table.
func (p *Pipeline) processWithRetry(ctx context.Context, ev watcher.Event) error {
	var attemptErr error
	retryErr := ctxerrors.Retry(ctx, p.cfg.RetryConfig, func() error {
		attemptErr = p.processEvent(ctx, ev)
		if attemptErr != nil && !errors.Is(attemptErr, ctxerrors.ErrStoreBusy) {
			return nil // non-retryable: report success to Retry so it stops looping
		}
		return attemptErr
	})
	if retryErr != nil {
		return retryErr // exhausted retries on a genuine StoreBusy condition
	}
	return attemptErr // nil, or a non-retryable error surfaced as-is
}
