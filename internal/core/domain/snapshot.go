package domain

import "time"

// Snapshot is the persisted image of the whole pool. Absent or
// malformed snapshots degrade to an empty pool, never an error.
type Snapshot struct {
	LastRefreshAt time.Time    `json:"last_refresh_at"`
	Purpose       Purpose      `json:"purpose"`
	Rules         Rules        `json:"rules"`
	Pool          []PeerRecord `json:"pool"`
}
