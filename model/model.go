package model

import "encoding/json"

type Room struct {
	ID           string                 `json:"room_id"`
	Participants map[string]Participant `json:"participants"`
}

type Participant struct {
	ID string `json:"id"`
}

// Signal event names, shared by both directions of the signaling channel.
const (
	EventJoinRoom         = "join-room"
	EventLeaveRoom        = "leave-room"
	EventUserConnected    = "user-connected"
	EventUserDisconnected = "user-disconnected"
	EventOffer            = "offer"
	EventAnswer           = "answer"
	EventICECandidate     = "ice-candidate"
)

// Signal is a single message on the signaling channel. Room is only
// meaningful on join-room/leave-room. To names the forwarding target on
// inbound offer/answer/ice-candidate; From is re-assigned by the relay
// based on the websocket session, so clients cannot spoof it. Payload is
// opaque to the relay and forwarded byte-identical.
type Signal struct {
	Event   string          `json:"event"`
	Room    string          `json:"room,omitempty"`
	To      string          `json:"to,omitempty"`
	From    string          `json:"from,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// IsForward reports whether the signal is one of the three unicast
// negotiation events the relay forwards verbatim.
func (s Signal) IsForward() bool {
	switch s.Event {
	case EventOffer, EventAnswer, EventICECandidate:
		return true
	}
	return false
}

type Wire struct {
	RX chan Signal
	TX chan Signal
}

func NewWire() Wire {
	return Wire{
		RX: make(chan Signal),
		TX: make(chan Signal),
	}
}
