package peer

import "github.com/pion/webrtc/v4"

// DefaultSTUNServers are Google's public STUN servers.
var DefaultSTUNServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

// NewDialer returns a Dialer producing pion peer connections configured
// with the given STUN servers.
func NewDialer(stunServers []string) Dialer {
	return func() (Conn, error) {
		return webrtc.NewPeerConnection(webrtc.Configuration{
			ICEServers: []webrtc.ICEServer{
				{URLs: stunServers},
			},
		})
	}
}
