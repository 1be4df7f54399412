package peer

// LinkState tracks negotiation progress of a single peer link.
//
// Initiating side: Created -> LocalOfferPending -> Stable.
// Responding side: Created -> LocalAnswerSent -> Stable.
type LinkState int

const (
	StateCreated LinkState = iota
	StateLocalOfferPending
	StateLocalAnswerSent
	StateStable
)

func (s LinkState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateLocalOfferPending:
		return "local-offer-pending"
	case StateLocalAnswerSent:
		return "local-answer-sent"
	case StateStable:
		return "stable"
	}
	return "unknown"
}

// Link is one peer-to-peer connection, keyed by the remote participant's
// relay-assigned ID. State is guarded by the manager's lock.
type Link struct {
	remoteID string
	conn     Conn
	state    LinkState
}

// hasRemoteDescription reports whether ICE candidates can be applied
// directly; before that they are buffered by the manager.
func (l *Link) hasRemoteDescription() bool {
	return l.state == StateLocalAnswerSent || l.state == StateStable
}
