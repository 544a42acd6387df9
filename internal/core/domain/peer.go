package domain

import (
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"
)

// Score bounds and adjustment deltas for peer records. Failures are
// penalized harder than successes are rewarded, so the pool drifts
// toward endpoints with a proven track record.
const (
	ScoreMin = -50.0
	ScoreMax = 50.0

	ScoreSuccessDelta = 2.0
	ScoreFailureDelta = 8.0

	// Recency boost parameters used when ranking records for eviction.
	recencyBoostWeight  = 10.0
	recencyHalfLifeSecs = 300.0

	// Minimum selection weight. Keeps badly scored peers selectable
	// with a small but non-zero probability.
	minSelectionWeight = 0.1
)

// PeerRecord is everything the pool knows about one candidate endpoint.
// Identity is the normalized base URL; there is at most one record per
// base in a pool.
type PeerRecord struct {
	Base          string    `json:"base"`
	Score         float64   `json:"score"`
	LastSuccessAt time.Time `json:"last_success_at,omitempty"`
	LastFailureAt time.Time `json:"last_failure_at,omitempty"`
	CooldownUntil time.Time `json:"cooldown_until,omitempty"`
	LastSeenAt    time.Time `json:"last_seen_at,omitempty"`
}

// NormalizeBase canonicalizes an endpoint string: scheme and host are
// lowercased, a missing scheme defaults to https, and trailing slashes
// are stripped. Two spellings of the same endpoint normalize to the
// same base.
func NormalizeBase(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ErrEmptyBase
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", raw, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid endpoint %q: missing host", raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""

	return u.String(), nil
}

// ClampScore bounds a score to [ScoreMin, ScoreMax].
func ClampScore(s float64) float64 {
	if s < ScoreMin {
		return ScoreMin
	}
	if s > ScoreMax {
		return ScoreMax
	}
	return s
}

// Eligible reports whether the record is outside its failure cooldown.
func (r *PeerRecord) Eligible(now time.Time) bool {
	return r.CooldownUntil.IsZero() || !now.Before(r.CooldownUntil)
}

// SelectionWeight is the weight used for weighted-random selection
// within the top slice. Never returns less than minSelectionWeight.
func (r *PeerRecord) SelectionWeight() float64 {
	return math.Max(minSelectionWeight, 1+r.Score)
}

// Rank orders records for capacity eviction: raw score plus a boost
// that decays with the age of the last successful call.
func (r *PeerRecord) Rank(now time.Time) float64 {
	if r.LastSuccessAt.IsZero() {
		return r.Score
	}
	age := now.Sub(r.LastSuccessAt).Seconds()
	if age < 0 {
		age = 0
	}
	return r.Score + recencyBoostWeight/(1+age/recencyHalfLifeSecs)
}
