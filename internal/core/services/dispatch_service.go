package services

import (
	"context"
	"errors"

	"weallmesh/internal/core/domain"
	"weallmesh/internal/core/ports"
	apperrors "weallmesh/pkg/errors"
	"weallmesh/pkg/tracing"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Dispatcher executes one logical remote operation against a selected
// endpoint, rotating to a fresh peer on failure. It never inspects the
// operation itself; callers must pass idempotent or safely retryable
// work.
type Dispatcher struct {
	pool    ports.PoolManager
	refresh *RefreshService
	factory ports.ClientFactory
	logger  *zap.SugaredLogger
	metrics ports.MetricsSink
}

func NewDispatcher(pool ports.PoolManager, refresh *RefreshService, factory ports.ClientFactory, logger *zap.SugaredLogger, metrics ports.MetricsSink) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Dispatcher{
		pool:    pool,
		refresh: refresh,
		factory: factory,
		logger:  logger,
		metrics: metrics,
	}
}

// Call runs op with up to retries additional attempts. Each attempt
// gives the refresh loop a debounced chance to run, selects a peer,
// and executes op under the pool's call timeout. An empty pool fails
// immediately with a NO_PEERS error instead of burning attempts.
func (d *Dispatcher) Call(ctx context.Context, retries int, op ports.Operation) error {
	attempts := retries
	if attempts < 0 {
		attempts = 0
	}
	attempts++

	ctx, span := tracing.StartSpan(ctx, "dispatch.call")
	defer span.End()
	span.SetAttributes(attribute.Int("attempts_max", attempts))

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		d.refresh.MaybeRefresh(ctx)

		base, err := d.pool.Select()
		if err != nil {
			if errors.Is(err, domain.ErrNoPeers) {
				d.observe("no_peers")
				return apperrors.NewNoPeersError()
			}
			return err
		}

		rules := d.pool.Rules()
		callCtx, cancel := context.WithTimeout(ctx, rules.CallTimeout)
		err = op(callCtx, d.factory(base))
		cancel()

		if err == nil {
			d.pool.RecordSuccess(base)
			d.pool.Save(ctx)
			d.observe("ok")
			return nil
		}

		// A rejected request and a broken endpoint look identical from
		// here; both penalize the selected peer.
		d.pool.RecordFailure(base)
		d.pool.Save(ctx)
		d.observe("failure")
		d.logger.Warnw("dispatched call failed",
			"base", base,
			"attempt", attempt+1,
			"attempts_max", attempts,
			"error", err,
		)
		lastErr = err
	}

	if _, rejected := apperrors.IsRemoteRejected(lastErr); rejected {
		return lastErr
	}
	return apperrors.NewTransientError(lastErr)
}

// Dispatch runs an operation that produces a result, with the same
// rotation semantics as Call.
func Dispatch[T any](ctx context.Context, d *Dispatcher, retries int, fn func(ctx context.Context, client ports.MeshClient) (T, error)) (T, error) {
	var result T
	err := d.Call(ctx, retries, func(ctx context.Context, client ports.MeshClient) error {
		var opErr error
		result, opErr = fn(ctx, client)
		return opErr
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

func (d *Dispatcher) observe(outcome string) {
	if d.metrics != nil {
		d.metrics.ObserveDispatch(outcome)
	}
}
