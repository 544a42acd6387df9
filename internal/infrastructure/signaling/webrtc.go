package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"weallmesh/internal/core/domain"
	"weallmesh/internal/core/ports"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// WebRTCFactory creates pion-backed peer connections configured with
// the ICE servers the relay hands out.
type WebRTCFactory struct {
	relay  ports.SignalingClient
	media  *StaticMediaSource
	logger *zap.SugaredLogger
}

func NewWebRTCFactory(relay ports.SignalingClient, media *StaticMediaSource, logger *zap.SugaredLogger) *WebRTCFactory {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &WebRTCFactory{relay: relay, media: media, logger: logger}
}

func (f *WebRTCFactory) NewConnection(ctx context.Context, remoteID string, publish bool) (ports.PeerConnection, error) {
	servers, err := f.relay.ICEServers(ctx)
	if err != nil {
		// The relay caches a fallback internally; an error here means
		// not even that was possible.
		return nil, fmt.Errorf("no ice configuration: %w", err)
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: toPionICE(servers)})
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	if publish && f.media != nil {
		for _, track := range f.media.Tracks() {
			if _, err := pc.AddTrack(track); err != nil {
				pc.Close()
				return nil, fmt.Errorf("failed to attach local track: %w", err)
			}
		}
	}

	return &pionConnection{
		pc:     pc,
		logger: f.logger.With("remote_id", remoteID),
	}, nil
}

func toPionICE(servers []domain.ICEServer) []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(servers))
	for _, s := range servers {
		ice := webrtc.ICEServer{URLs: s.URLs}
		if s.Username != "" {
			ice.Username = s.Username
			ice.Credential = s.Credential
		}
		out = append(out, ice)
	}
	return out
}

// pionConnection adapts a pion PeerConnection to the session arena.
// SDP and ICE payloads stay opaque JSON on the relay side.
type pionConnection struct {
	pc     *webrtc.PeerConnection
	logger *zap.SugaredLogger
}

func (c *pionConnection) CreateOffer(ctx context.Context) (json.RawMessage, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return nil, err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return nil, err
	}
	return json.Marshal(offer)
}

func (c *pionConnection) AcceptOffer(ctx context.Context, offer json.RawMessage) (json.RawMessage, error) {
	var remote webrtc.SessionDescription
	if err := json.Unmarshal(offer, &remote); err != nil {
		return nil, fmt.Errorf("malformed offer: %w", err)
	}
	if err := c.pc.SetRemoteDescription(remote); err != nil {
		return nil, err
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return nil, err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return nil, err
	}
	return json.Marshal(answer)
}

func (c *pionConnection) AcceptAnswer(answer json.RawMessage) error {
	var remote webrtc.SessionDescription
	if err := json.Unmarshal(answer, &remote); err != nil {
		return fmt.Errorf("malformed answer: %w", err)
	}
	return c.pc.SetRemoteDescription(remote)
}

func (c *pionConnection) AddICECandidate(candidate json.RawMessage) error {
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal(candidate, &init); err != nil {
		return fmt.Errorf("malformed candidate: %w", err)
	}
	return c.pc.AddICECandidate(init)
}

func (c *pionConnection) OnICECandidate(fn func(candidate json.RawMessage)) {
	c.pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		payload, err := json.Marshal(candidate.ToJSON())
		if err != nil {
			c.logger.Debugw("failed to encode local candidate", "error", err)
			return
		}
		fn(payload)
	})
}

func (c *pionConnection) Close() error {
	return c.pc.Close()
}

// StaticMediaSource holds the local outgoing tracks. It is session
// bookkeeping only: frames are produced by the embedding application,
// not here. Disable mutes tracks without releasing them, so a later
// publish does not re-acquire anything.
type StaticMediaSource struct {
	mu       sync.Mutex
	tracks   []webrtc.TrackLocal
	acquired bool
	enabled  bool
	logger   *zap.SugaredLogger
}

func NewStaticMediaSource(logger *zap.SugaredLogger) *StaticMediaSource {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &StaticMediaSource{logger: logger}
}

func (m *StaticMediaSource) Acquire(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.acquired {
		m.enabled = true
		return nil
	}

	audio, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "weallmesh")
	if err != nil {
		return err
	}
	video, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "weallmesh")
	if err != nil {
		return err
	}

	m.tracks = []webrtc.TrackLocal{audio, video}
	m.acquired = true
	m.enabled = true
	m.logger.Debugw("local media acquired", "tracks", len(m.tracks))
	return nil
}

func (m *StaticMediaSource) Enable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.acquired {
		m.enabled = true
	}
}

func (m *StaticMediaSource) Disable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = false
}

func (m *StaticMediaSource) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracks = nil
	m.acquired = false
	m.enabled = false
}

// Enabled reports whether held tracks are currently live.
func (m *StaticMediaSource) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// Tracks returns the held local tracks for attachment.
func (m *StaticMediaSource) Tracks() []webrtc.TrackLocal {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]webrtc.TrackLocal, len(m.tracks))
	copy(out, m.tracks)
	return out
}
