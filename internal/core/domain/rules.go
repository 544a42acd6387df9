package domain

import "time"

// Rules is the client-side tuning bundle. Any endpoint may volunteer an
// override during a refresh; overrides are merged key-by-key.
type Rules struct {
	// PickK is how many peer recommendations to request per learn call.
	PickK int `json:"pick_k" yaml:"pick_k"`
	// RefreshInterval debounces the background refresh loop.
	RefreshInterval time.Duration `json:"refresh_interval" yaml:"refresh_interval"`
	// CallTimeout bounds every dispatched operation and learn call.
	CallTimeout time.Duration `json:"call_timeout" yaml:"call_timeout"`
	// FailCooldown is how long a failing peer is excluded from selection.
	FailCooldown time.Duration `json:"fail_cooldown" yaml:"fail_cooldown"`
	// MaxPool caps pool size; capacity eviction keeps the highest ranked.
	MaxPool int `json:"max_pool" yaml:"max_pool"`
	// Mix is the top-vs-random selection ratio. Present as a tunable;
	// reserved for a future selection strategy.
	Mix float64 `json:"mix" yaml:"mix"`
}

// DefaultRules returns the built-in tuning used before any endpoint has
// volunteered overrides.
func DefaultRules() Rules {
	return Rules{
		PickK:           8,
		RefreshInterval: 60 * time.Second,
		CallTimeout:     8 * time.Second,
		FailCooldown:    45 * time.Second,
		MaxPool:         32,
		Mix:             0.7,
	}
}

// RulesPatch is the optional-field wire schema for rules volunteered by
// a remote endpoint. Durations travel as milliseconds; absent fields
// leave the local value untouched.
type RulesPatch struct {
	PickK      *int     `json:"pick_k,omitempty"`
	RefreshMS  *int64   `json:"refresh_ms,omitempty"`
	TimeoutMS  *int64   `json:"timeout_ms,omitempty"`
	CooldownMS *int64   `json:"cooldown_ms,omitempty"`
	MaxPool    *int     `json:"max_pool,omitempty"`
	Mix        *float64 `json:"mix,omitempty"`
}

// Merge applies a patch conservatively: every present field overwrites
// the local value, absent fields are kept. No validation beyond type.
func (r *Rules) Merge(p RulesPatch) {
	if p.PickK != nil {
		r.PickK = *p.PickK
	}
	if p.RefreshMS != nil {
		r.RefreshInterval = time.Duration(*p.RefreshMS) * time.Millisecond
	}
	if p.TimeoutMS != nil {
		r.CallTimeout = time.Duration(*p.TimeoutMS) * time.Millisecond
	}
	if p.CooldownMS != nil {
		r.FailCooldown = time.Duration(*p.CooldownMS) * time.Millisecond
	}
	if p.MaxPool != nil {
		r.MaxPool = *p.MaxPool
	}
	if p.Mix != nil {
		r.Mix = *p.Mix
	}
}
