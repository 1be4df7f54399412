package peer

import (
	"github.com/Gustiele12/plataform/model"
	"github.com/pion/webrtc/v4"
)

// Conn is the subset of pion's PeerConnection driven by the session
// manager. Tests substitute fakes; production connections come from
// NewDialer.
type Conn interface {
	CreateOffer(*webrtc.OfferOptions) (webrtc.SessionDescription, error)
	CreateAnswer(*webrtc.AnswerOptions) (webrtc.SessionDescription, error)
	SetLocalDescription(webrtc.SessionDescription) error
	SetRemoteDescription(webrtc.SessionDescription) error
	AddICECandidate(webrtc.ICECandidateInit) error
	AddTrack(webrtc.TrackLocal) (*webrtc.RTPSender, error)
	OnICECandidate(func(*webrtc.ICECandidate))
	OnTrack(func(*webrtc.TrackRemote, *webrtc.RTPReceiver))
	OnConnectionStateChange(func(webrtc.PeerConnectionState))
	Close() error
}

// Dialer creates a fresh transport connection for one remote peer.
type Dialer func() (Conn, error)

// Signaler sends signals to the relay.
type Signaler interface {
	Send(model.Signal)
}

// Media is the local media stream shared across links.
type Media interface {
	Track() webrtc.TrackLocal
	Stop()
}

// View receives tile updates for remote streams.
type View interface {
	Upsert(peerID, streamID, kind string)
	Remove(peerID string)
	Clear()
}
