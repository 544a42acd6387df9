package domain

import "encoding/json"

// SignalType classifies relayed signaling messages. Types outside the
// known set are delivered to the application as generic messages
// instead of being dropped.
type SignalType string

const (
	SignalOffer        SignalType = "offer"
	SignalAnswer       SignalType = "answer"
	SignalICECandidate SignalType = "ice-candidate"
	SignalPresence     SignalType = "presence"
	SignalLeaveNotice  SignalType = "leave-notice"
	SignalGeneric      SignalType = "generic"
)

// SignalMessage is one entry in a room's ordered message log. MIDs are
// issued by the relay and increase monotonically per room.
type SignalMessage struct {
	MID  int64           `json:"mid"`
	From string          `json:"from"`
	To   string          `json:"to,omitempty"`
	Type SignalType      `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Broadcast reports whether the message is addressed to the whole room.
func (m SignalMessage) Broadcast() bool {
	return m.To == ""
}

// Participant is one roster entry. The server is the source of truth
// for the granted role and publishing flag.
type Participant struct {
	Role        string `json:"role"`
	IsPublisher bool   `json:"publisher"`
	AccountID   string `json:"account_id,omitempty"`
}

// Room is a server-tracked real-time session. This client only manages
// its own membership; remote room lifecycle stays with the server.
type Room struct {
	ID      string                 `json:"id"`
	Policy  string                 `json:"policy,omitempty"`
	Owner   string                 `json:"owner,omitempty"`
	PanelID string                 `json:"panel_id,omitempty"`
	Roster  map[string]Participant `json:"roster,omitempty"`
}

// ICEServer is one STUN/TURN entry handed out by the mesh.
type ICEServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}
