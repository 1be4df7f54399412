package service

import (
	"context"
	"errors"
	"sync"

	"github.com/Gustiele12/plataform/model"
	"github.com/davecgh/go-spew/spew"
	"github.com/rs/zerolog"
)

var (
	ErrJoin          = errors.New("unable to join room")
	ErrGet           = errors.New("unable to get room")
	ErrLeave         = errors.New("unable to leave room")
	ErrConnect       = errors.New("unable to connect")
	ErrSessionExists = errors.New("session already exists")
)

type (
	RoomStore interface {
		CreateOrJoinRoom(roomID string, userID string) (*model.Room, error)
		LeaveRoom(roomID string, userID string) error
		GetRoom(roomID string) (*model.Room, error)
	}

	Switch interface {
		Connect(roomID string, endpoint string, wire model.Wire) error
		Disconnect(roomID string, endpoint string) error
		Broadcast(ctx context.Context, sig model.Signal, roomID string) error
		Unicast(ctx context.Context, sig model.Signal, roomID string) bool
	}

	// Service implements relay semantics on top of the room store and the
	// switch: it owns one dispatch loop per websocket session, routes
	// join-room/leave-room to membership changes and forwards the three
	// negotiation events to their targets. Session teardown runs exactly
	// once per session and fans out one user-disconnected broadcast per
	// room the session had joined.
	Service struct {
		store    RoomStore
		sw       Switch
		logger   zerolog.Logger
		mx       sync.Mutex
		sessions map[string]*session
	}

	Config struct {
		RoomStore RoomStore
		Switch    Switch
		Logger    *zerolog.Logger
	}

	session struct {
		id    string
		wire  model.Wire
		rooms []string // in join order
	}
)

func NewService(cfg Config) *Service {
	return &Service{
		store:    cfg.RoomStore,
		sw:       cfg.Switch,
		logger:   cfg.Logger.With().Str("component", "relay").Logger(),
		sessions: make(map[string]*session),
	}
}

func (svc *Service) CreateSession(ctx context.Context, userID string, wire model.Wire) error {
	svc.mx.Lock()
	if _, ok := svc.sessions[userID]; ok {
		svc.mx.Unlock()
		return errors.Join(ErrConnect, ErrSessionExists)
	}
	sess := &session{id: userID, wire: wire}
	svc.sessions[userID] = sess
	svc.mx.Unlock()

	svc.logger.Debug().
		Str("userID", userID).
		Msg("signaling session created")

	go svc.dispatch(ctx, sess)
	return nil
}

// DestroySession removes the session and leaves every room it had
// joined, broadcasting a single user-disconnected per room. Safe to call
// for an already destroyed session.
func (svc *Service) DestroySession(ctx context.Context, userID string) error {
	svc.mx.Lock()
	sess, ok := svc.sessions[userID]
	if !ok {
		svc.mx.Unlock()
		return nil
	}
	delete(svc.sessions, userID)
	rooms := sess.rooms
	sess.rooms = nil
	svc.mx.Unlock()

	for _, roomID := range rooms {
		svc.departRoom(ctx, userID, roomID)
	}
	svc.logger.Debug().
		Str("userID", userID).
		Msg("signaling session destroyed")
	return nil
}

func (svc *Service) dispatch(ctx context.Context, sess *session) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sess.wire.RX:
			svc.handle(ctx, sess, sig)
		}
	}
}

func (svc *Service) handle(ctx context.Context, sess *session, sig model.Signal) {
	if e := svc.logger.Trace(); e.Enabled() {
		e.Str("userID", sess.id).Str("signal", spew.Sdump(sig)).Msg("signal received")
	}

	switch {
	case sig.Event == model.EventJoinRoom:
		if err := svc.joinRoom(ctx, sess, sig.Room); err != nil {
			svc.logger.Error().Err(err).
				Str("userID", sess.id).
				Str("roomID", sig.Room).
				Msg("join failed")
		}

	case sig.Event == model.EventLeaveRoom:
		svc.leaveRoom(ctx, sess, sig.Room)

	case sig.IsForward():
		svc.forward(ctx, sess, sig)

	default:
		svc.logger.Debug().
			Str("userID", sess.id).
			Str("event", sig.Event).
			Msg("unknown event dropped")
	}
}

func (svc *Service) joinRoom(ctx context.Context, sess *session, roomID string) error {
	if roomID == "" {
		return errors.Join(ErrJoin, errors.New("empty room id"))
	}

	svc.mx.Lock()
	joined := containsRoom(sess.rooms, roomID)
	if !joined {
		sess.rooms = append(sess.rooms, roomID)
	}
	svc.mx.Unlock()
	if joined {
		// re-join of the same room is a no-op
		return nil
	}

	// switch registration comes first so that anyone who can see the
	// participant in the room store can already reach it
	if err := svc.sw.Connect(roomID, sess.id, sess.wire); err != nil {
		return errors.Join(ErrJoin, err)
	}
	if _, err := svc.store.CreateOrJoinRoom(roomID, sess.id); err != nil {
		return errors.Join(ErrJoin, err)
	}
	svc.logger.Debug().
		Str("userID", sess.id).
		Str("roomID", roomID).
		Msg("user joined room")

	go func() {
		sig := model.Signal{
			Event: model.EventUserConnected,
			From:  sess.id,
		}
		_ = svc.sw.Broadcast(ctx, sig, roomID)
	}()
	return nil
}

func (svc *Service) leaveRoom(ctx context.Context, sess *session, roomID string) {
	svc.mx.Lock()
	idx := -1
	for i, r := range sess.rooms {
		if r == roomID {
			idx = i
			break
		}
	}
	if idx >= 0 {
		sess.rooms = append(sess.rooms[:idx], sess.rooms[idx+1:]...)
	}
	svc.mx.Unlock()

	if idx < 0 {
		svc.logger.Debug().
			Str("userID", sess.id).
			Str("roomID", roomID).
			Msg("leave for a room that was not joined")
		return
	}
	svc.departRoom(ctx, sess.id, roomID)
}

func (svc *Service) departRoom(ctx context.Context, userID, roomID string) {
	if err := svc.sw.Disconnect(roomID, userID); err != nil {
		svc.logger.Error().Err(err).
			Str("userID", userID).
			Str("roomID", roomID).
			Msg("switch disconnect failed")
	}
	if err := svc.store.LeaveRoom(roomID, userID); err != nil {
		svc.logger.Error().Err(errors.Join(ErrLeave, err)).
			Str("userID", userID).
			Str("roomID", roomID).
			Msg("room store leave failed")
	}
	svc.logger.Debug().
		Str("userID", userID).
		Str("roomID", roomID).
		Msg("user left room")

	// delivered before returning: the caller's context may not outlive
	// this call (the websocket server cancels it right after teardown)
	sig := model.Signal{
		Event: model.EventUserDisconnected,
		From:  userID,
	}
	_ = svc.sw.Broadcast(ctx, sig, roomID)
}

// forward unicasts a negotiation signal to sig.To. Lookup is scoped to
// the rooms the sender has joined; a target outside those rooms or no
// longer connected means the signal is silently dropped.
func (svc *Service) forward(ctx context.Context, sess *session, sig model.Signal) {
	if sig.To == "" {
		svc.logger.Debug().
			Str("userID", sess.id).
			Str("event", sig.Event).
			Msg("forward without target dropped")
		return
	}

	svc.mx.Lock()
	rooms := make([]string, len(sess.rooms))
	copy(rooms, sess.rooms)
	svc.mx.Unlock()

	for _, roomID := range rooms {
		if svc.sw.Unicast(ctx, sig, roomID) {
			return
		}
	}
	svc.logger.Debug().
		Str("userID", sess.id).
		Str("event", sig.Event).
		Str("to", sig.To).
		Msg("signal dropped, target not reachable")
}

func (svc *Service) GetRoom(roomID string) (*model.Room, error) {
	room, err := svc.store.GetRoom(roomID)
	if err != nil {
		return nil, errors.Join(ErrGet, err)
	}
	return room, nil
}

func containsRoom(rooms []string, roomID string) bool {
	for _, r := range rooms {
		if r == roomID {
			return true
		}
	}
	return false
}
