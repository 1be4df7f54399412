package peer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/Gustiele12/plataform/model"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

const (
	// maxPendingCandidates bounds the per-sender buffer of ICE candidates
	// that arrived before their link had a remote description.
	maxPendingCandidates = 16
)

var (
	ErrNotJoined = errors.New("not joined to a room")
	ErrMedia     = errors.New("unable to open local media")
)

type (
	// Manager owns every peer link of the local session: it reacts to
	// room membership broadcasts by opening links, drives each link's
	// offer/answer/ICE exchange and surfaces remote streams to the view.
	// A negotiation failure on one link never touches the others.
	Manager struct {
		logger    zerolog.Logger
		signaler  Signaler
		dial      Dialer
		view      View
		openMedia func() (Media, error)

		mx      sync.Mutex
		room    string
		media   Media
		links   map[string]*Link
		pending map[string][]webrtc.ICECandidateInit
	}

	Config struct {
		Logger    *zerolog.Logger
		Signaler  Signaler
		Dialer    Dialer
		View      View
		OpenMedia func() (Media, error)
	}
)

func NewManager(cfg Config) *Manager {
	return &Manager{
		logger:    cfg.Logger.With().Str("component", "peer-manager").Logger(),
		signaler:  cfg.Signaler,
		dial:      cfg.Dialer,
		view:      cfg.View,
		openMedia: cfg.OpenMedia,
		links:     make(map[string]*Link),
		pending:   make(map[string][]webrtc.ICECandidateInit),
	}
}

// Join acquires local media and asks the relay for room membership.
// Media failure aborts the join; the session does not start without it.
func (m *Manager) Join(roomID string) error {
	m.mx.Lock()
	defer m.mx.Unlock()

	if m.media == nil {
		media, err := m.openMedia()
		if err != nil {
			return errors.Join(ErrMedia, err)
		}
		m.media = media
	}
	m.room = roomID
	m.signaler.Send(model.Signal{
		Event: model.EventJoinRoom,
		Room:  roomID,
	})
	m.logger.Info().Str("roomID", roomID).Msg("joining room")
	return nil
}

// Leave closes every link, stops local media, clears the view and
// notifies the relay.
func (m *Manager) Leave() error {
	m.mx.Lock()
	defer m.mx.Unlock()

	if m.room == "" {
		return ErrNotJoined
	}

	for remoteID, link := range m.links {
		if err := link.conn.Close(); err != nil {
			m.logger.Error().Err(err).Str("peerID", remoteID).Msg("failed to close link")
		}
		delete(m.links, remoteID)
	}
	m.pending = make(map[string][]webrtc.ICECandidateInit)

	if m.media != nil {
		m.media.Stop()
		m.media = nil
	}
	m.view.Clear()

	m.signaler.Send(model.Signal{
		Event: model.EventLeaveRoom,
		Room:  m.room,
	})
	m.logger.Info().Str("roomID", m.room).Msg("left room")
	m.room = ""
	return nil
}

// Run consumes signals until the context is canceled or the channel
// closes.
func (m *Manager) Run(ctx context.Context, incoming <-chan model.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-incoming:
			if !ok {
				return
			}
			m.Handle(sig)
		}
	}
}

// Handle processes one inbound signal from the relay.
func (m *Manager) Handle(sig model.Signal) {
	switch sig.Event {
	case model.EventUserConnected:
		m.onUserConnected(sig.From)
	case model.EventUserDisconnected:
		m.onUserDisconnected(sig.From)
	case model.EventOffer:
		m.onOffer(sig.From, sig.Payload)
	case model.EventAnswer:
		m.onAnswer(sig.From, sig.Payload)
	case model.EventICECandidate:
		m.onCandidate(sig.From, sig.Payload)
	default:
		m.logger.Debug().Str("event", sig.Event).Msg("unknown event dropped")
	}
}

// onUserConnected opens a link to the newcomer and sends it an offer.
func (m *Manager) onUserConnected(remoteID string) {
	m.mx.Lock()
	defer m.mx.Unlock()

	m.logger.Info().Str("peerID", remoteID).Msg("user connected")

	link, err := m.createLink(remoteID)
	if err != nil {
		m.logger.Error().Err(err).Str("peerID", remoteID).Msg("failed to create link")
		return
	}

	offer, err := link.conn.CreateOffer(nil)
	if err != nil {
		m.logger.Error().Err(err).Str("peerID", remoteID).Msg("failed to create offer")
		m.dropLink(remoteID)
		return
	}
	if err = link.conn.SetLocalDescription(offer); err != nil {
		m.logger.Error().Err(err).Str("peerID", remoteID).Msg("failed to set local description")
		m.dropLink(remoteID)
		return
	}
	link.state = StateLocalOfferPending

	m.sendDescription(model.EventOffer, remoteID, offer)
}

// onOffer opens a link for a previously unknown sender, applies the
// offer and answers it. An offer from a sender with an existing link
// replaces that link.
func (m *Manager) onOffer(remoteID string, payload json.RawMessage) {
	m.mx.Lock()
	defer m.mx.Unlock()

	m.logger.Debug().Str("peerID", remoteID).Msg("received offer")

	var offer webrtc.SessionDescription
	if err := json.Unmarshal(payload, &offer); err != nil {
		m.logger.Error().Err(err).Str("peerID", remoteID).Msg("malformed offer dropped")
		return
	}

	if old, ok := m.links[remoteID]; ok {
		m.logger.Debug().Str("peerID", remoteID).Msg("renegotiation, replacing link")
		_ = old.conn.Close()
		delete(m.links, remoteID)
	}

	link, err := m.createLink(remoteID)
	if err != nil {
		m.logger.Error().Err(err).Str("peerID", remoteID).Msg("failed to create link")
		return
	}

	if err = link.conn.SetRemoteDescription(offer); err != nil {
		m.logger.Error().Err(err).Str("peerID", remoteID).Msg("failed to set remote description")
		m.dropLink(remoteID)
		return
	}

	answer, err := link.conn.CreateAnswer(nil)
	if err != nil {
		m.logger.Error().Err(err).Str("peerID", remoteID).Msg("failed to create answer")
		m.dropLink(remoteID)
		return
	}
	if err = link.conn.SetLocalDescription(answer); err != nil {
		m.logger.Error().Err(err).Str("peerID", remoteID).Msg("failed to set local description")
		m.dropLink(remoteID)
		return
	}
	link.state = StateLocalAnswerSent
	m.flushPending(link)

	m.sendDescription(model.EventAnswer, remoteID, answer)
}

// onAnswer completes negotiation on the initiating side. Answers for
// unknown links are stale and dropped; a duplicate answer on a stable
// link is a no-op.
func (m *Manager) onAnswer(remoteID string, payload json.RawMessage) {
	m.mx.Lock()
	defer m.mx.Unlock()

	link, ok := m.links[remoteID]
	if !ok {
		m.logger.Debug().Str("peerID", remoteID).Msg("answer for unknown link dropped")
		return
	}
	if link.state != StateLocalOfferPending {
		m.logger.Debug().
			Str("peerID", remoteID).
			Str("state", link.state.String()).
			Msg("unexpected answer dropped")
		return
	}

	var answer webrtc.SessionDescription
	if err := json.Unmarshal(payload, &answer); err != nil {
		m.logger.Error().Err(err).Str("peerID", remoteID).Msg("malformed answer dropped")
		return
	}
	if err := link.conn.SetRemoteDescription(answer); err != nil {
		m.logger.Error().Err(err).Str("peerID", remoteID).Msg("failed to set remote description")
		return
	}
	link.state = StateStable
	m.flushPending(link)
	m.logger.Debug().Str("peerID", remoteID).Msg("link is stable")
}

// onCandidate applies a remote ICE candidate, buffering it while the
// link has no remote description yet (or does not exist at all).
func (m *Manager) onCandidate(remoteID string, payload json.RawMessage) {
	m.mx.Lock()
	defer m.mx.Unlock()

	var candidate webrtc.ICECandidateInit
	if err := json.Unmarshal(payload, &candidate); err != nil {
		m.logger.Error().Err(err).Str("peerID", remoteID).Msg("malformed candidate dropped")
		return
	}

	link, ok := m.links[remoteID]
	if !ok || !link.hasRemoteDescription() {
		m.bufferCandidate(remoteID, candidate)
		return
	}

	if err := link.conn.AddICECandidate(candidate); err != nil {
		m.logger.Error().Err(err).Str("peerID", remoteID).Msg("failed to add candidate")
	}
}

// onUserDisconnected tears down the departed peer's link and tile.
func (m *Manager) onUserDisconnected(remoteID string) {
	m.mx.Lock()
	defer m.mx.Unlock()

	m.logger.Info().Str("peerID", remoteID).Msg("user disconnected")

	if link, ok := m.links[remoteID]; ok {
		if err := link.conn.Close(); err != nil {
			m.logger.Error().Err(err).Str("peerID", remoteID).Msg("failed to close link")
		}
		delete(m.links, remoteID)
	}
	delete(m.pending, remoteID)
	m.view.Remove(remoteID)
}

// createLink dials a transport connection, attaches local media and
// registers callbacks. Caller holds the lock.
func (m *Manager) createLink(remoteID string) (*Link, error) {
	conn, err := m.dial()
	if err != nil {
		return nil, err
	}

	if m.media != nil {
		if _, err = conn.AddTrack(m.media.Track()); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}

	link := &Link{remoteID: remoteID, conn: conn, state: StateCreated}

	conn.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			// gathering complete
			return
		}
		b, mErr := json.Marshal(c.ToJSON())
		if mErr != nil {
			m.logger.Error().Err(mErr).Str("peerID", remoteID).Msg("failed to marshal candidate")
			return
		}
		m.signaler.Send(model.Signal{
			Event:   model.EventICECandidate,
			To:      remoteID,
			Payload: b,
		})
	})

	conn.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		m.logger.Debug().
			Str("peerID", remoteID).
			Str("kind", track.Kind().String()).
			Msg("remote track arrived")
		m.view.Upsert(remoteID, track.StreamID(), track.Kind().String())
	})

	conn.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		m.logger.Debug().
			Str("peerID", remoteID).
			Str("state", state.String()).
			Msg("connection state changed")
		if state == webrtc.PeerConnectionStateConnected {
			m.mx.Lock()
			if l, ok := m.links[remoteID]; ok && l.state == StateLocalAnswerSent {
				l.state = StateStable
			}
			m.mx.Unlock()
		}
	})

	m.links[remoteID] = link
	return link, nil
}

// dropLink closes and deregisters a link whose negotiation failed
// before completing. Caller holds the lock.
func (m *Manager) dropLink(remoteID string) {
	link, ok := m.links[remoteID]
	if !ok {
		return
	}
	if err := link.conn.Close(); err != nil {
		m.logger.Error().Err(err).Str("peerID", remoteID).Msg("failed to close link")
	}
	delete(m.links, remoteID)
}

func (m *Manager) bufferCandidate(remoteID string, candidate webrtc.ICECandidateInit) {
	buf := m.pending[remoteID]
	if len(buf) >= maxPendingCandidates {
		m.logger.Debug().Str("peerID", remoteID).Msg("pending candidate buffer full, dropped")
		return
	}
	m.pending[remoteID] = append(buf, candidate)
	m.logger.Debug().
		Str("peerID", remoteID).
		Int("buffered", len(buf)+1).
		Msg("candidate buffered")
}

// flushPending applies candidates buffered before the link's remote
// description was set. Caller holds the lock.
func (m *Manager) flushPending(link *Link) {
	buf, ok := m.pending[link.remoteID]
	if !ok {
		return
	}
	delete(m.pending, link.remoteID)
	for _, candidate := range buf {
		if err := link.conn.AddICECandidate(candidate); err != nil {
			m.logger.Error().Err(err).
				Str("peerID", link.remoteID).
				Msg("failed to add buffered candidate")
		}
	}
	m.logger.Debug().
		Str("peerID", link.remoteID).
		Int("count", len(buf)).
		Msg("flushed buffered candidates")
}

func (m *Manager) sendDescription(event, remoteID string, desc webrtc.SessionDescription) {
	b, err := json.Marshal(desc)
	if err != nil {
		m.logger.Error().Err(err).Str("peerID", remoteID).Msg("failed to marshal description")
		return
	}
	m.signaler.Send(model.Signal{
		Event:   event,
		To:      remoteID,
		Payload: b,
	})
}

// LinkState reports the negotiation state of the link to remoteID.
func (m *Manager) LinkState(remoteID string) (LinkState, bool) {
	m.mx.Lock()
	defer m.mx.Unlock()
	link, ok := m.links[remoteID]
	if !ok {
		return StateCreated, false
	}
	return link.state, true
}

// Links returns the IDs of all currently known remote peers.
func (m *Manager) Links() []string {
	m.mx.Lock()
	defer m.mx.Unlock()
	ids := make([]string, 0, len(m.links))
	for id := range m.links {
		ids = append(ids, id)
	}
	return ids
}
