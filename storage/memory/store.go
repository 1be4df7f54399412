package memory

import (
	"errors"
	"sync"

	"github.com/Gustiele12/plataform/model"
)

var (
	ErrRoomNotFound = errors.New("room is not found")
)

// MemStore keeps room membership in process memory. Rooms are created on
// first join and dropped once the last participant leaves; there is no
// capacity limit and nothing survives a restart.
type MemStore struct {
	mx *sync.Mutex
	db map[string]*model.Room
}

func NewMemStore() *MemStore {
	return &MemStore{
		mx: &sync.Mutex{},
		db: make(map[string]*model.Room),
	}
}

func (ms *MemStore) CreateOrJoinRoom(roomID string, userID string) (*model.Room, error) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	room, ok := ms.db[roomID]
	if !ok {
		room = &model.Room{
			ID: roomID,
			Participants: map[string]model.Participant{
				userID: {ID: userID},
			},
		}
		ms.db[roomID] = room
		return snapshot(room), nil
	}

	room.Participants[userID] = model.Participant{
		ID: userID,
	}
	return snapshot(room), nil
}

func (ms *MemStore) LeaveRoom(roomID string, userID string) error {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	room, ok := ms.db[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	delete(room.Participants, userID)
	if len(room.Participants) == 0 {
		delete(ms.db, roomID)
	}
	return nil
}

func (ms *MemStore) GetRoom(roomID string) (*model.Room, error) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	room, ok := ms.db[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return snapshot(room), nil
}

// snapshot copies the room so that callers never see the live
// participant map, which keeps changing under the store lock.
func snapshot(room *model.Room) *model.Room {
	out := &model.Room{
		ID:           room.ID,
		Participants: make(map[string]model.Participant, len(room.Participants)),
	}
	for id, p := range room.Participants {
		out.Participants[id] = p
	}
	return out
}
