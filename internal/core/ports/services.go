package ports

import (
	"context"
	"encoding/json"

	"weallmesh/internal/core/domain"
)

// PoolManager learns, scores, ranks and selects candidate endpoints.
// Implementations are safe for concurrent use.
type PoolManager interface {
	// Upsert creates or refreshes a record. Score only ever ratchets
	// upward here; upsert never punishes a peer.
	Upsert(base string, score float64)
	RecordSuccess(base string)
	RecordFailure(base string)
	// Select picks an endpoint by weighted random choice within the
	// top slice of eligible records. Returns domain.ErrNoPeers only
	// when the pool itself is empty.
	Select() (string, error)
	EnforceCapacity()
	// SetPurpose accepts only known purpose tags; unknown tags are a
	// silent no-op. Accepting a tag forces the next refresh to run.
	SetPurpose(tag string)
	Purpose() domain.Purpose
	Rules() domain.Rules
	MergeRules(patch domain.RulesPatch)
	Bases() []string
	Size() int
	// BeginRefresh implements the refresh debounce: it returns false
	// while the interval has not elapsed, and stamps the refresh time
	// before any network attempt when it returns true.
	BeginRefresh() bool
	Snapshot() domain.Snapshot
	Load(ctx context.Context)
	// Save persists the snapshot; persistence failures are swallowed
	// (the pool degrades to in-memory for the session).
	Save(ctx context.Context)
}

// PeerAdvice is one endpoint recommendation returned by a learn call.
type PeerAdvice struct {
	Address string  `json:"address"`
	Score   float64 `json:"score"`
}

// LearnResult is what a candidate endpoint teaches us during a refresh.
// Rules and Seeds are optional.
type LearnResult struct {
	Peers []PeerAdvice
	Rules *domain.RulesPatch
	Seeds []string
}

// MeshClient is a JSON-over-HTTP client bound to one base endpoint.
type MeshClient interface {
	Base() string
	// Learn asks for a purpose-aware peer recommendation list, falling
	// back to the generic lookup on endpoints that predate purposes.
	Learn(ctx context.Context, purpose domain.Purpose, count int) (*LearnResult, error)
	// Do performs one JSON request against the bound endpoint and
	// decodes the 2xx body into out when out is non-nil.
	Do(ctx context.Context, method, path string, body, out any) error
}

// ClientFactory binds a MeshClient to a selected base endpoint.
type ClientFactory func(base string) MeshClient

// Operation is one logical remote call executed by the dispatcher.
// Operations must be idempotent or safely retryable; the dispatcher is
// idempotency-agnostic.
type Operation func(ctx context.Context, client MeshClient) error

// RoomOptions carries the local intent when creating or joining a room.
// The granted role and publishing flag come back in the roster.
type RoomOptions struct {
	Policy  string
	PanelID string
	Role    string
	Publish bool
}

// PollResult is one page of the room's ordered message log.
type PollResult struct {
	Messages []domain.SignalMessage
	Cursor   int64
	Roster   map[string]domain.Participant
}

// SignalingClient talks to the signaling relay. The relay exposes an
// ordered polling cursor instead of a persistent socket.
type SignalingClient interface {
	CreateRoom(ctx context.Context, opts RoomOptions) (*domain.Room, error)
	JoinRoom(ctx context.Context, roomID, clientID string, opts RoomOptions) (*domain.Room, error)
	RoomState(ctx context.Context, roomID string) (*domain.Room, error)
	Publish(ctx context.Context, roomID, clientID string) error
	Unpublish(ctx context.Context, roomID, clientID string) error
	Send(ctx context.Context, roomID string, msg domain.SignalMessage) error
	Poll(ctx context.Context, roomID, clientID string, since int64) (*PollResult, error)
	// Leave is a best-effort operation; callers discard its failure.
	Leave(ctx context.Context, roomID, clientID string) error
	ICEServers(ctx context.Context) ([]domain.ICEServer, error)
}

// PeerConnection is one real-time connection to a remote participant.
// SDP and ICE payloads are opaque JSON relayed through the signaling
// channel.
type PeerConnection interface {
	CreateOffer(ctx context.Context) (json.RawMessage, error)
	AcceptOffer(ctx context.Context, offer json.RawMessage) (json.RawMessage, error)
	AcceptAnswer(answer json.RawMessage) error
	// AddICECandidate is best-effort by contract; late or duplicate
	// candidates are expected and harmless.
	AddICECandidate(candidate json.RawMessage) error
	OnICECandidate(fn func(candidate json.RawMessage))
	Close() error
}

// ConnectionFactory creates peer connections for the session arena.
type ConnectionFactory interface {
	NewConnection(ctx context.Context, remoteID string, publish bool) (PeerConnection, error)
}

// MediaSource is the session's handle on local capture state. This is
// bookkeeping only; the media pipeline itself lives elsewhere.
type MediaSource interface {
	Acquire(ctx context.Context) error
	// Enable/Disable toggle held tracks without releasing the device,
	// so a later publish does not re-acquire.
	Enable()
	Disable()
	Stop()
}

// MetricsSink receives operational counters. A nil sink is valid; all
// components guard against it.
type MetricsSink interface {
	ObserveDispatch(outcome string)
	ObserveRefresh(outcome string)
	SetPoolSize(n int)
	ObservePoll(outcome string)
	ObserveSignal(msgType string)
}
