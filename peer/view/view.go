package view

import (
	"sync"

	"github.com/rs/zerolog"
)

// Tile is one remote participant's video slot.
type Tile struct {
	PeerID   string
	StreamID string
	Kind     string
}

// Tiles keys video tiles by remote participant ID. Upsert updates an
// existing tile in place instead of duplicating it, and Remove for an
// unknown participant is a no-op.
type Tiles struct {
	logger zerolog.Logger
	mx     sync.Mutex
	tiles  map[string]*Tile
}

func NewTiles(logger *zerolog.Logger) *Tiles {
	return &Tiles{
		logger: logger.With().Str("component", "view").Logger(),
		tiles:  make(map[string]*Tile),
	}
}

func (t *Tiles) Upsert(peerID, streamID, kind string) {
	t.mx.Lock()
	defer t.mx.Unlock()

	tile, ok := t.tiles[peerID]
	if ok {
		tile.StreamID = streamID
		tile.Kind = kind
		t.logger.Debug().Str("peerID", peerID).Msg("tile updated")
		return
	}
	t.tiles[peerID] = &Tile{
		PeerID:   peerID,
		StreamID: streamID,
		Kind:     kind,
	}
	t.logger.Info().Str("peerID", peerID).Str("kind", kind).Msg("tile added")
}

func (t *Tiles) Remove(peerID string) {
	t.mx.Lock()
	defer t.mx.Unlock()

	if _, ok := t.tiles[peerID]; !ok {
		return
	}
	delete(t.tiles, peerID)
	t.logger.Info().Str("peerID", peerID).Msg("tile removed")
}

func (t *Tiles) Clear() {
	t.mx.Lock()
	defer t.mx.Unlock()

	for id := range t.tiles {
		delete(t.tiles, id)
	}
	t.logger.Debug().Msg("tiles cleared")
}

func (t *Tiles) Get(peerID string) (Tile, bool) {
	t.mx.Lock()
	defer t.mx.Unlock()

	tile, ok := t.tiles[peerID]
	if !ok {
		return Tile{}, false
	}
	return *tile, true
}

func (t *Tiles) Len() int {
	t.mx.Lock()
	defer t.mx.Unlock()
	return len(t.tiles)
}
