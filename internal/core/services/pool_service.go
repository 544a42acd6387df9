package services

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"weallmesh/internal/core/domain"
	"weallmesh/internal/core/ports"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// Top-slice sizing for weighted-random selection: at least this many
// candidates, or 30% of the eligible set, whichever is larger.
const (
	topSliceMin   = 3
	topSliceShare = 0.3
)

type poolService struct {
	mu      sync.Mutex
	clk     clock.Clock
	store   ports.SnapshotStore
	seeds   []string
	logger  *zap.SugaredLogger
	metrics ports.MetricsSink
	rng     *rand.Rand

	purpose       domain.Purpose
	rules         domain.Rules
	lastRefreshAt time.Time
	records       map[string]*domain.PeerRecord
}

// NewPoolService builds a pool manager over the given snapshot store
// and configured seed endpoints. Call Load before first use to restore
// the persisted snapshot.
func NewPoolService(store ports.SnapshotStore, seeds []string, rules domain.Rules, clk clock.Clock, logger *zap.SugaredLogger, metrics ports.MetricsSink) ports.PoolManager {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &poolService{
		clk:     clk,
		store:   store,
		seeds:   seeds,
		logger:  logger,
		metrics: metrics,
		rng:     rand.New(rand.NewSource(clk.Now().UnixNano())),
		purpose: domain.PurposeFeed,
		rules:   rules,
		records: make(map[string]*domain.PeerRecord),
	}
}

func (p *poolService) Upsert(base string, score float64) {
	norm, err := domain.NormalizeBase(base)
	if err != nil {
		p.logger.Debugw("ignoring unusable endpoint", "base", base, "error", err)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.upsertLocked(norm, score)
	p.publishSizeLocked()
}

// upsertLocked expects an already normalized base.
func (p *poolService) upsertLocked(norm string, score float64) {
	now := p.clk.Now()
	score = domain.ClampScore(score)

	rec, ok := p.records[norm]
	if !ok {
		p.records[norm] = &domain.PeerRecord{
			Base:       norm,
			Score:      score,
			LastSeenAt: now,
		}
		return
	}

	// Upsert never punishes a peer; only direct failures lower score.
	if score > rec.Score {
		rec.Score = score
	}
	rec.LastSeenAt = now
}

func (p *poolService) RecordSuccess(base string) {
	norm, err := domain.NormalizeBase(base)
	if err != nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clk.Now()
	rec, ok := p.records[norm]
	if !ok {
		rec = &domain.PeerRecord{Base: norm}
		p.records[norm] = rec
	}
	rec.Score = domain.ClampScore(rec.Score + domain.ScoreSuccessDelta)
	rec.LastSuccessAt = now
	rec.LastSeenAt = now
	rec.CooldownUntil = time.Time{}
	p.publishSizeLocked()
}

func (p *poolService) RecordFailure(base string) {
	norm, err := domain.NormalizeBase(base)
	if err != nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clk.Now()
	rec, ok := p.records[norm]
	if !ok {
		rec = &domain.PeerRecord{Base: norm, LastSeenAt: now}
		p.records[norm] = rec
	}
	rec.Score = domain.ClampScore(rec.Score - domain.ScoreFailureDelta)
	rec.LastFailureAt = now
	rec.CooldownUntil = now.Add(p.rules.FailCooldown)
	p.publishSizeLocked()
}

func (p *poolService) Select() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.records) == 0 {
		return "", domain.ErrNoPeers
	}

	now := p.clk.Now()
	eligible := make([]*domain.PeerRecord, 0, len(p.records))
	for _, rec := range p.records {
		if rec.Eligible(now) {
			eligible = append(eligible, rec)
		}
	}
	// A pool where everything is cooling down still serves; cooldowns
	// shape preference, they never empty the candidate set.
	if len(eligible) == 0 {
		for _, rec := range p.records {
			eligible = append(eligible, rec)
		}
	}

	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].Score != eligible[j].Score {
			return eligible[i].Score > eligible[j].Score
		}
		return eligible[i].Base < eligible[j].Base
	})

	k := int(math.Ceil(topSliceShare * float64(len(eligible))))
	if k < topSliceMin {
		k = topSliceMin
	}
	if k > len(eligible) {
		k = len(eligible)
	}
	top := eligible[:k]

	var total float64
	for _, rec := range top {
		total += rec.SelectionWeight()
	}
	r := p.rng.Float64() * total
	for _, rec := range top {
		r -= rec.SelectionWeight()
		if r <= 0 {
			return rec.Base, nil
		}
	}
	return top[len(top)-1].Base, nil
}

func (p *poolService) EnforceCapacity() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.records) <= p.rules.MaxPool {
		return
	}

	now := p.clk.Now()
	ranked := make([]*domain.PeerRecord, 0, len(p.records))
	for _, rec := range p.records {
		ranked = append(ranked, rec)
	}
	sort.Slice(ranked, func(i, j int) bool {
		ri, rj := ranked[i].Rank(now), ranked[j].Rank(now)
		if ri != rj {
			return ri > rj
		}
		return ranked[i].Base < ranked[j].Base
	})

	for _, rec := range ranked[p.rules.MaxPool:] {
		delete(p.records, rec.Base)
	}
	p.logger.Debugw("pool capacity enforced", "kept", len(p.records), "max_pool", p.rules.MaxPool)
	p.publishSizeLocked()
}

func (p *poolService) SetPurpose(tag string) {
	purpose, ok := domain.ParsePurpose(tag)
	if !ok {
		// Silent no-op: unknown tags from newer pages must not break
		// older clients.
		p.logger.Debugw("ignoring unknown purpose tag", "tag", tag)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.purpose = purpose
	// Force the next refresh check to fire immediately.
	p.lastRefreshAt = time.Time{}
}

func (p *poolService) Purpose() domain.Purpose {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.purpose
}

func (p *poolService) Rules() domain.Rules {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rules
}

func (p *poolService) MergeRules(patch domain.RulesPatch) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rules.Merge(patch)
}

func (p *poolService) Bases() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	bases := make([]string, 0, len(p.records))
	for base := range p.records {
		bases = append(bases, base)
	}
	sort.Strings(bases)
	return bases
}

func (p *poolService) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.records)
}

func (p *poolService) BeginRefresh() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clk.Now()
	if now.Sub(p.lastRefreshAt) < p.rules.RefreshInterval {
		return false
	}
	// Stamped before any network attempt so concurrent triggers from
	// in-flight calls cannot re-enter the same refresh.
	p.lastRefreshAt = now
	return true
}

func (p *poolService) Snapshot() domain.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

func (p *poolService) snapshotLocked() domain.Snapshot {
	pool := make([]domain.PeerRecord, 0, len(p.records))
	for _, rec := range p.records {
		pool = append(pool, *rec)
	}
	sort.Slice(pool, func(i, j int) bool { return pool[i].Base < pool[j].Base })

	return domain.Snapshot{
		LastRefreshAt: p.lastRefreshAt,
		Purpose:       p.purpose,
		Rules:         p.rules,
		Pool:          pool,
	}
}

func (p *poolService) Load(ctx context.Context) {
	snap, err := p.store.Load(ctx)
	if err != nil {
		p.logger.Warnw("snapshot load failed, starting from seeds", "error", err)
		snap = nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if snap != nil {
		if snap.Rules.MaxPool > 0 && snap.Rules.CallTimeout > 0 {
			p.rules = snap.Rules
		}
		if purpose, ok := domain.ParsePurpose(string(snap.Purpose)); ok {
			p.purpose = purpose
		}
		p.lastRefreshAt = snap.LastRefreshAt
		for i := range snap.Pool {
			rec := snap.Pool[i]
			norm, err := domain.NormalizeBase(rec.Base)
			if err != nil {
				continue
			}
			rec.Base = norm
			p.records[norm] = &rec
		}
	}

	for _, seed := range p.seeds {
		norm, err := domain.NormalizeBase(seed)
		if err != nil {
			p.logger.Warnw("ignoring unusable seed", "seed", seed, "error", err)
			continue
		}
		if _, ok := p.records[norm]; !ok {
			p.upsertLocked(norm, 0)
		}
	}

	p.logger.Infow("pool loaded", "size", len(p.records), "purpose", p.purpose)
	p.publishSizeLocked()
}

func (p *poolService) Save(ctx context.Context) {
	p.mu.Lock()
	snap := p.snapshotLocked()
	p.mu.Unlock()

	if err := p.store.Save(ctx, &snap); err != nil {
		// Persistence is soft: the pool keeps working in memory.
		p.logger.Warnw("snapshot save failed, pool is in-memory only", "error", err)
	}
}

func (p *poolService) publishSizeLocked() {
	if p.metrics != nil {
		p.metrics.SetPoolSize(len(p.records))
	}
}
