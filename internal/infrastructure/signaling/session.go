package signaling

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"weallmesh/internal/core/domain"
	"weallmesh/internal/core/ports"
	apperrors "weallmesh/pkg/errors"
	"weallmesh/pkg/utils"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// State is the session's room-membership phase.
type State string

const (
	StateIdle    State = "idle"
	StateJoining State = "joining"
	StateJoined  State = "joined"
	StateLeaving State = "leaving"
)

// Config tunes the polling loop and the outgoing signal budget.
type Config struct {
	PollTimeout    time.Duration
	PollBackoff    time.Duration
	SendsPerSecond float64
	SendBurst      int
}

func DefaultConfig() Config {
	return Config{
		PollTimeout:    10 * time.Second,
		PollBackoff:    2 * time.Second,
		SendsPerSecond: 20,
		SendBurst:      40,
	}
}

// JoinOptions carries the local intent for a join. The server decides
// the granted role and publishing flag.
type JoinOptions struct {
	ClientID string
	Role     string
	Publish  bool
}

// Callbacks surface room events to the embedding application. All are
// optional.
type Callbacks struct {
	// OnGeneric receives messages whose type this client does not
	// recognize; they are surfaced, never dropped.
	OnGeneric         func(msg domain.SignalMessage)
	OnParticipantGone func(id string)
	OnDisconnect      func()
}

// SessionManager owns one active room membership: the roster, the
// per-participant connection arena and the offer/answer/ICE exchange
// driven by the relay's polling cursor.
type SessionManager struct {
	relay   ports.SignalingClient
	factory ports.ConnectionFactory
	media   ports.MediaSource
	logger  *zap.SugaredLogger
	metrics ports.MetricsSink
	cfg     Config
	cb      Callbacks
	limiter *rate.Limiter

	mu        sync.Mutex
	state     State
	room      *domain.Room
	clientID  string
	publisher bool
	lastMid   int64
	conns     map[string]ports.PeerConnection
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewSessionManager(relay ports.SignalingClient, factory ports.ConnectionFactory, media ports.MediaSource, cfg Config, cb Callbacks, logger *zap.SugaredLogger, metrics ports.MetricsSink) *SessionManager {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = DefaultConfig().PollTimeout
	}
	if cfg.PollBackoff <= 0 {
		cfg.PollBackoff = DefaultConfig().PollBackoff
	}
	if cfg.SendsPerSecond <= 0 {
		cfg.SendsPerSecond = DefaultConfig().SendsPerSecond
	}
	if cfg.SendBurst <= 0 {
		cfg.SendBurst = DefaultConfig().SendBurst
	}
	return &SessionManager{
		relay:   relay,
		factory: factory,
		media:   media,
		logger:  logger,
		metrics: metrics,
		cfg:     cfg,
		cb:      cb,
		limiter: rate.NewLimiter(rate.Limit(cfg.SendsPerSecond), cfg.SendBurst),
		state:   StateIdle,
	}
}

// JoinRoom joins an existing room and starts the polling loop. The
// locally generated client id is only a request; the granted role and
// publishing flag are read back from the returned roster. A media
// acquisition failure is fatal for the join and is propagated; the
// caller must retry or opt out of publishing explicitly.
func (s *SessionManager) JoinRoom(ctx context.Context, roomID string, opts JoinOptions) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return domain.ErrRoomActive
	}
	s.state = StateJoining
	clientID := opts.ClientID
	if clientID == "" {
		clientID = utils.GenerateClientID()
	}
	s.clientID = clientID
	s.mu.Unlock()

	room, err := s.relay.JoinRoom(ctx, roomID, clientID, ports.RoomOptions{Role: opts.Role, Publish: opts.Publish})
	if err != nil {
		s.resetToIdle()
		return apperrors.NewSignalingError(err)
	}

	granted, ok := room.Roster[clientID]
	publisher := ok && granted.IsPublisher
	if publisher {
		if err := s.media.Acquire(ctx); err != nil {
			// Best-effort: tell the relay we are gone before bailing.
			_ = s.relay.Leave(ctx, room.ID, clientID)
			s.resetToIdle()
			return apperrors.NewMediaError(err)
		}
	} else {
		// Keep any held tracks around but muted, so a later publish
		// does not re-acquire the device.
		s.media.Disable()
	}

	// The join response already carries a roster; a fresh room state
	// wins when the relay can serve one.
	if current, err := s.relay.RoomState(ctx, room.ID); err == nil && current != nil {
		room = current
	}

	pollCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.mu.Lock()
	s.state = StateJoined
	s.room = room
	s.publisher = publisher
	s.lastMid = 0
	s.conns = make(map[string]ports.PeerConnection)
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	s.logger.Infow("joined room",
		"room_id", room.ID,
		"client_id", clientID,
		"publisher", publisher,
		"participants", len(room.Roster),
	)

	// Exactly one side of each pair initiates: the lexicographically
	// smaller client id sends the offer. This is a private convention
	// of this client, not a relay guarantee.
	for id := range room.Roster {
		if id == clientID {
			continue
		}
		pc, created, err := s.ensureConnection(pollCtx, id)
		if err != nil {
			s.logger.Warnw("failed to prepare connection", "remote_id", id, "error", err)
			continue
		}
		if created && clientID < id {
			s.sendOffer(pollCtx, id, pc)
		}
	}

	go s.pollLoop(pollCtx, done)
	return nil
}

// LeaveRoom tears down the local membership. Idempotent: calling it
// while idle is a no-op. The relay notification is best-effort by
// contract; local cleanup always runs.
func (s *SessionManager) LeaveRoom() error {
	s.mu.Lock()
	if s.state == StateIdle || s.state == StateLeaving {
		s.mu.Unlock()
		return nil
	}
	s.state = StateLeaving
	cancel := s.cancel
	done := s.done
	room := s.room
	clientID := s.clientID
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	if room != nil {
		leaveCtx, cancelLeave := context.WithTimeout(context.Background(), 5*time.Second)
		_ = s.relay.Leave(leaveCtx, room.ID, clientID)
		cancelLeave()
	}

	for id, pc := range conns {
		if err := pc.Close(); err != nil {
			s.logger.Debugw("connection close failed", "remote_id", id, "error", err)
		}
	}
	s.media.Stop()

	s.mu.Lock()
	s.state = StateIdle
	s.room = nil
	s.clientID = ""
	s.publisher = false
	s.lastMid = 0
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	s.logger.Infow("left room", "room_id", roomIDOf(room))
	if s.cb.OnDisconnect != nil {
		s.cb.OnDisconnect()
	}
	return nil
}

// SetPublishing toggles this client's publishing state mid-session.
// Tracks are enabled or muted in place; the device is not re-acquired.
func (s *SessionManager) SetPublishing(ctx context.Context, publish bool) error {
	s.mu.Lock()
	if s.state != StateJoined {
		s.mu.Unlock()
		return domain.ErrNotInRoom
	}
	roomID := s.room.ID
	clientID := s.clientID
	s.publisher = publish
	s.mu.Unlock()

	if publish {
		if err := s.media.Acquire(ctx); err != nil {
			return apperrors.NewMediaError(err)
		}
		s.media.Enable()
		return s.relay.Publish(ctx, roomID, clientID)
	}
	s.media.Disable()
	return s.relay.Unpublish(ctx, roomID, clientID)
}

// State returns the current membership phase.
func (s *SessionManager) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ClientID returns the local client identifier, empty while idle.
func (s *SessionManager) ClientID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientID
}

// Cursor returns the poll cursor. Monotonic for the life of one
// membership.
func (s *SessionManager) Cursor() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastMid
}

// Connections returns the ids with a live connection in the arena.
func (s *SessionManager) Connections() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.conns))
	for id := range s.conns {
		ids = append(ids, id)
	}
	return ids
}

func (s *SessionManager) pollLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		if ctx.Err() != nil {
			return
		}

		s.mu.Lock()
		room := s.room
		clientID := s.clientID
		since := s.lastMid
		s.mu.Unlock()
		if room == nil {
			return
		}

		pollCtx, cancel := context.WithTimeout(ctx, s.cfg.PollTimeout)
		result, err := s.relay.Poll(pollCtx, room.ID, clientID, since)
		cancel()

		if err != nil {
			// Relay trouble is transient: back off and keep the
			// membership.
			s.observePoll("error")
			s.logger.Debugw("poll failed", "room_id", room.ID, "error", err)
			if !sleepCtx(ctx, s.cfg.PollBackoff) {
				return
			}
			continue
		}

		s.observePoll("ok")
		pending := s.ingest(result)
		for _, msg := range pending {
			s.handleMessage(ctx, msg)
		}

		// Idle rooms poll at the backoff cadence; the relay does not
		// hold requests open.
		if len(result.Messages) == 0 {
			if !sleepCtx(ctx, s.cfg.PollBackoff) {
				return
			}
		}
	}
}

// ingest advances the cursor and filters the batch down to messages
// this client must react to. The cursor moves to the maximum of the
// server-reported cursor and every observed mid, and never regresses.
func (s *SessionManager) ingest(result *ports.PollResult) []domain.SignalMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := s.lastMid
	cursor := s.lastMid
	if result.Cursor > cursor {
		cursor = result.Cursor
	}

	var pending []domain.SignalMessage
	for _, msg := range result.Messages {
		if msg.MID > cursor {
			cursor = msg.MID
		}
		if msg.MID <= seen {
			continue
		}
		if msg.From == s.clientID {
			continue
		}
		if !msg.Broadcast() && msg.To != s.clientID {
			continue
		}
		pending = append(pending, msg)
	}
	s.lastMid = cursor

	if result.Roster != nil && s.room != nil {
		s.room.Roster = result.Roster
	}
	return pending
}

func (s *SessionManager) handleMessage(ctx context.Context, msg domain.SignalMessage) {
	s.observeSignal(string(msg.Type))

	switch msg.Type {
	case domain.SignalOffer:
		pc, _, err := s.ensureConnection(ctx, msg.From)
		if err != nil {
			s.logger.Warnw("cannot answer offer", "remote_id", msg.From, "error", err)
			return
		}
		answer, err := pc.AcceptOffer(ctx, msg.Data)
		if err != nil {
			s.logger.Warnw("offer handling failed", "remote_id", msg.From, "error", err)
			return
		}
		s.send(ctx, domain.SignalAnswer, msg.From, answer)

	case domain.SignalAnswer:
		pc := s.connection(msg.From)
		if pc == nil {
			// The connection went away between offer and answer.
			return
		}
		if err := pc.AcceptAnswer(msg.Data); err != nil {
			s.logger.Warnw("answer handling failed", "remote_id", msg.From, "error", err)
		}

	case domain.SignalICECandidate:
		// Best-effort by contract: late or duplicate candidates are
		// expected and harmless.
		if pc := s.connection(msg.From); pc != nil {
			if err := pc.AddICECandidate(msg.Data); err != nil {
				s.logger.Debugw("discarded ice candidate", "remote_id", msg.From, "error", err)
			}
		}

	case domain.SignalLeaveNotice:
		s.dropConnection(msg.From)
		s.refreshRoster(ctx)
		if s.cb.OnParticipantGone != nil {
			s.cb.OnParticipantGone(msg.From)
		}

	case domain.SignalPresence:
		s.refreshRoster(ctx)
		s.mu.Lock()
		publisher := s.publisher
		s.mu.Unlock()
		if publisher {
			pc, created, err := s.ensureConnection(ctx, msg.From)
			if err != nil {
				s.logger.Warnw("cannot reach announced participant", "remote_id", msg.From, "error", err)
				return
			}
			if created {
				s.sendOffer(ctx, msg.From, pc)
			}
		}

	default:
		if s.cb.OnGeneric != nil {
			s.cb.OnGeneric(msg)
		}
	}
}

// ensureConnection returns the arena connection for remoteID, creating
// one when absent. The bool reports whether this call created it.
func (s *SessionManager) ensureConnection(ctx context.Context, remoteID string) (ports.PeerConnection, bool, error) {
	s.mu.Lock()
	if pc, ok := s.conns[remoteID]; ok {
		s.mu.Unlock()
		return pc, false, nil
	}
	publisher := s.publisher
	s.mu.Unlock()

	pc, err := s.factory.NewConnection(ctx, remoteID, publisher)
	if err != nil {
		return nil, false, err
	}
	pc.OnICECandidate(func(candidate json.RawMessage) {
		// Trickle ICE rides the relay; each send is best-effort.
		s.send(context.Background(), domain.SignalICECandidate, remoteID, candidate)
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.conns[remoteID]; ok {
		// Lost the race; keep the arena's copy.
		go pc.Close()
		return existing, false, nil
	}
	if s.conns == nil {
		go pc.Close()
		return nil, false, domain.ErrNotInRoom
	}
	s.conns[remoteID] = pc
	return pc, true, nil
}

func (s *SessionManager) connection(remoteID string) ports.PeerConnection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns[remoteID]
}

func (s *SessionManager) dropConnection(remoteID string) {
	s.mu.Lock()
	pc := s.conns[remoteID]
	delete(s.conns, remoteID)
	s.mu.Unlock()

	if pc != nil {
		if err := pc.Close(); err != nil {
			s.logger.Debugw("connection close failed", "remote_id", remoteID, "error", err)
		}
	}
}

func (s *SessionManager) sendOffer(ctx context.Context, remoteID string, pc ports.PeerConnection) {
	offer, err := pc.CreateOffer(ctx)
	if err != nil {
		s.logger.Warnw("offer creation failed", "remote_id", remoteID, "error", err)
		return
	}
	s.send(ctx, domain.SignalOffer, remoteID, offer)
}

func (s *SessionManager) send(ctx context.Context, typ domain.SignalType, to string, data json.RawMessage) {
	s.mu.Lock()
	room := s.room
	clientID := s.clientID
	s.mu.Unlock()
	if room == nil {
		return
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return
	}
	msg := domain.SignalMessage{From: clientID, To: to, Type: typ, Data: data}
	if err := s.relay.Send(ctx, room.ID, msg); err != nil {
		s.logger.Debugw("signal send failed", "type", typ, "to", to, "error", err)
	}
}

// refreshRoster is best-effort: a stale roster corrects itself on the
// next poll that carries one.
func (s *SessionManager) refreshRoster(ctx context.Context) {
	s.mu.Lock()
	room := s.room
	s.mu.Unlock()
	if room == nil {
		return
	}

	current, err := s.relay.RoomState(ctx, room.ID)
	if err != nil || current == nil {
		return
	}
	s.mu.Lock()
	if s.room != nil {
		s.room.Roster = current.Roster
	}
	s.mu.Unlock()
}

func (s *SessionManager) resetToIdle() {
	s.mu.Lock()
	s.state = StateIdle
	s.clientID = ""
	s.mu.Unlock()
}

func (s *SessionManager) observePoll(outcome string) {
	if s.metrics != nil {
		s.metrics.ObservePoll(outcome)
	}
}

func (s *SessionManager) observeSignal(msgType string) {
	if s.metrics != nil {
		s.metrics.ObserveSignal(msgType)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func roomIDOf(room *domain.Room) string {
	if room == nil {
		return ""
	}
	return room.ID
}
