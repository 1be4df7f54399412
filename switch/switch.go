package _switch

import (
	"context"
	"sync"
	"time"

	"github.com/Gustiele12/plataform/model"
	"github.com/rs/zerolog"
)

const (
	defaultFwdTimout = time.Second
)

// Switch delivers signals between endpoints of the same room. Forwarding
// tables are keyed room-first, so a unicast can only ever reach an
// endpoint that shares a room with the sender.
type Switch struct {
	logger zerolog.Logger
	mx     *sync.RWMutex
	fwd    map[string]map[string]model.Wire
}

func NewSwitch(logger *zerolog.Logger) *Switch {
	return &Switch{
		logger: logger.With().Str("component", "switch").Logger(),
		mx:     &sync.RWMutex{},
		fwd:    make(map[string]map[string]model.Wire),
	}
}

func (sw *Switch) Disconnect(roomID, endpoint string) error {
	sw.mx.Lock()
	defer func() {
		sw.mx.Unlock()
		sw.logger.Debug().
			Str("roomID", roomID).
			Str("endpoint", endpoint).
			Msg("endpoint disconnected")
	}()

	room, ok := sw.fwd[roomID]
	if ok {
		delete(room, endpoint)
		if len(room) == 0 {
			delete(sw.fwd, roomID)
		}
	}
	return nil
}

func (sw *Switch) Connect(roomID, endpoint string, wire model.Wire) error {
	sw.mx.Lock()
	defer func() {
		sw.mx.Unlock()
		sw.logger.Debug().
			Str("roomID", roomID).
			Str("endpoint", endpoint).
			Msg("endpoint connected")
	}()

	room, ok := sw.fwd[roomID]
	if !ok {
		room = make(map[string]model.Wire)
	}
	room[endpoint] = wire
	sw.fwd[roomID] = room
	return nil
}

// Broadcast delivers sig to every endpoint of the room except the one
// named by sig.From.
func (sw *Switch) Broadcast(ctx context.Context, sig model.Signal, roomID string) error {
	sig.To = "" // clear dst just in case
	if !sw.deliver(ctx, sig, roomID) {
		sw.logger.Debug().
			Str("roomID", roomID).
			Str("event", sig.Event).
			Str("from", sig.From).
			Msg("broadcast did not reach anyone")
	}
	return nil
}

// Unicast delivers sig to the endpoint named by sig.To within the room.
// A missing target is not an error; the signal is dropped and false is
// returned.
func (sw *Switch) Unicast(ctx context.Context, sig model.Signal, roomID string) bool {
	return sw.deliver(ctx, sig, roomID)
}

func (sw *Switch) deliver(ctx context.Context, sig model.Signal, roomID string) bool {
	var (
		sent   bool
		logger = sw.logger.With().
			Str("roomID", roomID).
			Str("event", sig.Event).
			Str("from", sig.From).Logger()
	)

	sw.mx.RLock()
	room := sw.fwd[roomID]
	sw.mx.RUnlock()

	if sig.To == "" {
		// broadcast

		for dst, wire := range room {
			if dst != sig.From {
				sigSent, canceled := send(ctx, sig, wire.TX, &sw.logger)
				if canceled {
					break
				}
				if sigSent {
					sent = true
				}
			}
		}

	} else {
		// send to a particular endpoint

		wire, ok := room[sig.To]
		if !ok {
			logger.Debug().Str("to", sig.To).Msg("cannot forward, dst not found")
		} else {
			sent, _ = send(ctx, sig, wire.TX, &logger)
		}
	}
	return sent
}

func send(ctx context.Context, sig model.Signal, tx chan<- model.Signal, logger *zerolog.Logger) (bool, bool) {
	var sent, canceled bool
	tCh := time.NewTimer(defaultFwdTimout)
	select {
	case <-ctx.Done():
		canceled = true
	case <-tCh.C:
		logger.Error().Str("to", sig.To).Msg("dead endpoint")
	case tx <- sig:
		logger.Debug().Str("to", sig.To).Msg("signal is forwarded")
		sent = true
	}
	tCh.Stop()
	return sent, canceled
}
