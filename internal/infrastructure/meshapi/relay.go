package meshapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"weallmesh/internal/core/domain"
	"weallmesh/internal/core/ports"
)

// fallbackSTUN serves when the mesh does not hand out an ICE list.
var fallbackSTUN = domain.ICEServer{URLs: []string{"stun:stun.l.google.com:19302"}}

// Relay implements the signaling surface on top of a bound Client.
// The relay exposes an ordered message log per room; clients resume
// with a cursor instead of holding a socket open.
type Relay struct {
	client *Client

	mu         sync.Mutex
	iceServers []domain.ICEServer
}

func NewRelay(client *Client) *Relay {
	return &Relay{client: client}
}

type pollResponse struct {
	Messages []domain.SignalMessage        `json:"messages"`
	Cursor   int64                         `json:"cursor"`
	Roster   map[string]domain.Participant `json:"roster,omitempty"`
}

type iceResponse struct {
	Servers []domain.ICEServer `json:"ice_servers"`
}

func (r *Relay) CreateRoom(ctx context.Context, opts ports.RoomOptions) (*domain.Room, error) {
	reqBody := map[string]any{
		"policy":   opts.Policy,
		"panel_id": opts.PanelID,
	}
	var room domain.Room
	if err := r.client.Do(ctx, http.MethodPost, "/rooms", reqBody, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

func (r *Relay) JoinRoom(ctx context.Context, roomID, clientID string, opts ports.RoomOptions) (*domain.Room, error) {
	reqBody := map[string]any{
		"client_id": clientID,
		"role":      opts.Role,
		"publish":   opts.Publish,
	}
	var room domain.Room
	if err := r.client.Do(ctx, http.MethodPost, roomPath(roomID, "join"), reqBody, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

func (r *Relay) RoomState(ctx context.Context, roomID string) (*domain.Room, error) {
	var room domain.Room
	if err := r.client.Do(ctx, http.MethodGet, roomPath(roomID, ""), nil, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

func (r *Relay) Publish(ctx context.Context, roomID, clientID string) error {
	return r.client.Do(ctx, http.MethodPost, roomPath(roomID, "publish"), map[string]any{"client_id": clientID}, nil)
}

func (r *Relay) Unpublish(ctx context.Context, roomID, clientID string) error {
	return r.client.Do(ctx, http.MethodPost, roomPath(roomID, "unpublish"), map[string]any{"client_id": clientID}, nil)
}

func (r *Relay) Send(ctx context.Context, roomID string, msg domain.SignalMessage) error {
	return r.client.Do(ctx, http.MethodPost, roomPath(roomID, "signal"), msg, nil)
}

func (r *Relay) Poll(ctx context.Context, roomID, clientID string, since int64) (*ports.PollResult, error) {
	path := fmt.Sprintf("%s?since=%d&client_id=%s", roomPath(roomID, "messages"), since, url.QueryEscape(clientID))
	var resp pollResponse
	if err := r.client.Do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &ports.PollResult{
		Messages: resp.Messages,
		Cursor:   resp.Cursor,
		Roster:   resp.Roster,
	}, nil
}

func (r *Relay) Leave(ctx context.Context, roomID, clientID string) error {
	return r.client.Do(ctx, http.MethodPost, roomPath(roomID, "leave"), map[string]any{"client_id": clientID}, nil)
}

// ICEServers is fetched once and cached for the relay's lifetime. A
// failed fetch caches the public STUN fallback; sessions should not
// flap between server sets mid-room.
func (r *Relay) ICEServers(ctx context.Context) ([]domain.ICEServer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.iceServers != nil {
		return r.iceServers, nil
	}

	var resp iceResponse
	if err := r.client.Do(ctx, http.MethodGet, "/webrtc/ice", nil, &resp); err != nil || len(resp.Servers) == 0 {
		r.client.logger.Debugw("ice server fetch failed, using fallback STUN", "error", err)
		r.iceServers = []domain.ICEServer{fallbackSTUN}
		return r.iceServers, nil
	}

	r.iceServers = resp.Servers
	return r.iceServers, nil
}

func roomPath(roomID, suffix string) string {
	p := "/rooms/" + url.PathEscape(roomID)
	if suffix != "" {
		p += "/" + suffix
	}
	return p
}
