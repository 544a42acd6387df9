package services

import (
	"context"
	"math/rand"
	"time"

	"weallmesh/internal/core/domain"
	"weallmesh/internal/core/ports"

	"go.uber.org/zap"
)

// A refresh probes at most this many candidates per cycle.
const maxRefreshCandidates = 6

// RefreshService periodically asks the mesh itself for better pool
// membership and updated client-side tuning rules. Refreshes are
// debounced through the pool's BeginRefresh stamp, so concurrent
// triggers from in-flight calls collapse into one network cycle.
type RefreshService struct {
	pool    ports.PoolManager
	factory ports.ClientFactory
	seeds   []string
	logger  *zap.SugaredLogger
	metrics ports.MetricsSink
	rng     *rand.Rand
}

func NewRefreshService(pool ports.PoolManager, factory ports.ClientFactory, seeds []string, logger *zap.SugaredLogger, metrics ports.MetricsSink) *RefreshService {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &RefreshService{
		pool:    pool,
		factory: factory,
		seeds:   seeds,
		logger:  logger,
		metrics: metrics,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// MaybeRefresh runs one refresh cycle unless the refresh interval has
// not elapsed yet. Candidates are drawn from configured seeds plus all
// currently known pool bases; the first one that answers wins. When
// every candidate fails, the pool is left as-is but capacity and
// persistence bookkeeping still run so a transient all-down state
// cannot corrupt state.
func (r *RefreshService) MaybeRefresh(ctx context.Context) {
	if !r.pool.BeginRefresh() {
		return
	}

	candidates := r.candidates()
	rules := r.pool.Rules()
	purpose := r.pool.Purpose()

	learned := false
	for _, base := range candidates {
		callCtx, cancel := context.WithTimeout(ctx, rules.CallTimeout)
		result, err := r.factory(base).Learn(callCtx, purpose, rules.PickK)
		cancel()
		if err != nil {
			r.logger.Debugw("refresh candidate failed", "base", base, "error", err)
			continue
		}

		if result.Rules != nil {
			r.pool.MergeRules(*result.Rules)
		}
		for _, advice := range result.Peers {
			r.pool.Upsert(advice.Address, advice.Score)
		}
		for _, seed := range result.Seeds {
			r.pool.Upsert(seed, 0)
		}

		r.logger.Infow("pool refreshed",
			"from", base,
			"peers", len(result.Peers),
			"seeds", len(result.Seeds),
			"rules_override", result.Rules != nil,
		)
		learned = true
		break
	}

	r.pool.EnforceCapacity()
	r.pool.Save(ctx)

	if r.metrics != nil {
		outcome := "ok"
		if !learned {
			outcome = "unreachable"
		}
		r.metrics.ObserveRefresh(outcome)
	}
	if !learned {
		r.logger.Debugw("refresh found no reachable candidate", "candidates", len(candidates))
	}
}

// Run drives MaybeRefresh until the context is cancelled. The tick is
// deliberately shorter than the refresh interval; debouncing keeps the
// network cost at one cycle per interval.
func (r *RefreshService) Run(ctx context.Context, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	r.MaybeRefresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.MaybeRefresh(ctx)
		}
	}
}

// candidates returns a shuffled, deduplicated draw of seeds plus known
// pool bases, capped to bound the cost of one refresh cycle.
func (r *RefreshService) candidates() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, base := range append(append([]string{}, r.seeds...), r.pool.Bases()...) {
		norm, err := domain.NormalizeBase(base)
		if err != nil {
			continue
		}
		if _, ok := seen[norm]; ok {
			continue
		}
		seen[norm] = struct{}{}
		out = append(out, norm)
	}

	r.rng.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	if len(out) > maxRefreshCandidates {
		out = out[:maxRefreshCandidates]
	}
	return out
}
