package meshapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"weallmesh/internal/core/domain"
	"weallmesh/internal/core/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelay_PollCarriesCursorAndClientID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rooms/room-1/messages", r.URL.Path)
		assert.Equal(t, "42", r.URL.Query().Get("since"))
		assert.Equal(t, "c-abc", r.URL.Query().Get("client_id"))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"messages": []map[string]any{
				{"mid": 43, "from": "c-def", "type": "presence"},
			},
			"cursor": 43,
			"roster": map[string]any{
				"c-def": map[string]any{"role": "viewer", "publisher": false},
			},
		})
	}))
	defer srv.Close()

	relay := NewRelay(New(srv.URL, Options{}))
	result, err := relay.Poll(context.Background(), "room-1", "c-abc", 42)
	require.NoError(t, err)

	assert.Equal(t, int64(43), result.Cursor)
	require.Len(t, result.Messages, 1)
	assert.Equal(t, int64(43), result.Messages[0].MID)
	assert.Equal(t, domain.SignalPresence, result.Messages[0].Type)
	assert.Contains(t, result.Roster, "c-def")
}

func TestRelay_CreateRoom(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rooms", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "public", req["policy"])
		assert.Equal(t, "panel-7", req["panel_id"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "room-9",
			"policy": "public",
			"owner":  "acct-1",
		})
	}))
	defer srv.Close()

	relay := NewRelay(New(srv.URL, Options{}))
	room, err := relay.CreateRoom(context.Background(), ports.RoomOptions{Policy: "public", PanelID: "panel-7"})
	require.NoError(t, err)

	assert.Equal(t, "room-9", room.ID)
	assert.Equal(t, "acct-1", room.Owner)
}

func TestRelay_JoinRoomReturnsRoster(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rooms/room-1/join", r.URL.Path)

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "c-abc", req["client_id"])
		assert.Equal(t, true, req["publish"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "room-1",
			"roster": map[string]any{
				// Server downgraded the publish request.
				"c-abc": map[string]any{"role": "viewer", "publisher": false},
			},
		})
	}))
	defer srv.Close()

	relay := NewRelay(New(srv.URL, Options{}))
	room, err := relay.JoinRoom(context.Background(), "room-1", "c-abc", ports.RoomOptions{Role: "viewer", Publish: true})
	require.NoError(t, err)

	assert.Equal(t, "room-1", room.ID)
	assert.False(t, room.Roster["c-abc"].IsPublisher)
}

func TestRelay_SendPostsSignalMessage(t *testing.T) {
	var got domain.SignalMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rooms/room-1/signal", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	relay := NewRelay(New(srv.URL, Options{}))
	err := relay.Send(context.Background(), "room-1", domain.SignalMessage{
		From: "c-abc",
		To:   "c-def",
		Type: domain.SignalOffer,
		Data: json.RawMessage(`{"sdp":"v=0"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.SignalOffer, got.Type)
	assert.Equal(t, "c-def", got.To)
}

func TestRelay_ICEServersCached(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ice_servers": []map[string]any{
				{"urls": []string{"turn:turn.weall.example"}, "username": "u", "credential": "c"},
			},
		})
	}))
	defer srv.Close()

	relay := NewRelay(New(srv.URL, Options{}))
	ctx := context.Background()

	first, err := relay.ICEServers(ctx)
	require.NoError(t, err)
	second, err := relay.ICEServers(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)
	assert.Equal(t, []string{"turn:turn.weall.example"}, first[0].URLs)
}

func TestRelay_ICEServersFallbackOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	relay := NewRelay(New(srv.URL, Options{}))
	servers, err := relay.ICEServers(context.Background())
	require.NoError(t, err)
	require.Len(t, servers, 1)
	assert.Equal(t, fallbackSTUN.URLs, servers[0].URLs)
}
