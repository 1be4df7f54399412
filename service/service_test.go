package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/Gustiele12/plataform/model"
	store "github.com/Gustiele12/plataform/storage/memory"
	sw "github.com/Gustiele12/plataform/switch"
	"github.com/rs/zerolog"
)

func newTestService() *Service {
	logger := zerolog.Nop()
	return NewService(Config{
		RoomStore: store.NewMemStore(),
		Switch:    sw.NewSwitch(&logger),
		Logger:    &logger,
	})
}

func bufferedWire() model.Wire {
	return model.Wire{
		RX: make(chan model.Signal, 10),
		TX: make(chan model.Signal, 10),
	}
}

func connect(t *testing.T, ctx context.Context, svc *Service, userID string) model.Wire {
	t.Helper()
	wire := bufferedWire()
	if err := svc.CreateSession(ctx, userID, wire); err != nil {
		t.Fatalf("failed to create session for %s: %v", userID, err)
	}
	return wire
}

func join(wire model.Wire, userID, roomID string) {
	wire.RX <- model.Signal{Event: model.EventJoinRoom, Room: roomID, From: userID}
}

// waitJoined polls until the join has been applied to the room store;
// joins are handled asynchronously on the session's dispatch loop.
func waitJoined(t *testing.T, svc *Service, roomID, userID string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		room, err := svc.GetRoom(roomID)
		if err == nil {
			if _, ok := room.Participants[userID]; ok {
				return
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("%s never joined %s: %v", userID, roomID, err)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func recvSignal(t *testing.T, wire model.Wire) model.Signal {
	t.Helper()
	select {
	case sig := <-wire.TX:
		return sig
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for signal")
	}
	return model.Signal{}
}

func assertNoSignal(t *testing.T, wire model.Wire) {
	t.Helper()
	select {
	case sig := <-wire.TX:
		t.Fatalf("unexpected signal: %+v", sig)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestJoinBroadcastsUserConnected(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc := newTestService()

	wireA := connect(t, ctx, svc, "A")
	join(wireA, "A", "abc12")
	waitJoined(t, svc, "abc12", "A")

	wireZ := connect(t, ctx, svc, "Z")
	join(wireZ, "Z", "other")
	waitJoined(t, svc, "other", "Z")

	wireB := connect(t, ctx, svc, "B")
	join(wireB, "B", "abc12")

	sig := recvSignal(t, wireA)
	if sig.Event != model.EventUserConnected {
		t.Errorf("expected user-connected, got %s", sig.Event)
	}
	if sig.From != "B" {
		t.Errorf("expected from B, got %s", sig.From)
	}

	// exactly one event, and nothing outside the room
	assertNoSignal(t, wireA)
	assertNoSignal(t, wireB)
	assertNoSignal(t, wireZ)
}

func TestRejoinSameRoomIsNoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc := newTestService()

	wireA := connect(t, ctx, svc, "A")
	join(wireA, "A", "abc12")
	waitJoined(t, svc, "abc12", "A")
	wireB := connect(t, ctx, svc, "B")
	join(wireB, "B", "abc12")

	_ = recvSignal(t, wireA) // user-connected B

	join(wireB, "B", "abc12")
	assertNoSignal(t, wireA)
}

func TestForwardAnnotatesSenderAndKeepsPayload(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc := newTestService()

	wireA := connect(t, ctx, svc, "A")
	join(wireA, "A", "abc12")
	waitJoined(t, svc, "abc12", "A")
	wireB := connect(t, ctx, svc, "B")
	join(wireB, "B", "abc12")
	_ = recvSignal(t, wireA) // user-connected B

	payload := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)
	wireA.RX <- model.Signal{Event: model.EventOffer, From: "A", To: "B", Payload: payload}

	sig := recvSignal(t, wireB)
	if sig.Event != model.EventOffer {
		t.Errorf("expected offer, got %s", sig.Event)
	}
	if sig.From != "A" {
		t.Errorf("expected from A, got %s", sig.From)
	}
	if string(sig.Payload) != string(payload) {
		t.Errorf("payload was modified: %s", sig.Payload)
	}
}

func TestForwardToUnknownTargetIsSilentlyDropped(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc := newTestService()

	wireA := connect(t, ctx, svc, "A")
	join(wireA, "A", "abc12")

	wireA.RX <- model.Signal{Event: model.EventOffer, From: "A", To: "ghost"}
	assertNoSignal(t, wireA)
}

func TestForwardAcrossRoomsIsDropped(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc := newTestService()

	wireA := connect(t, ctx, svc, "A")
	join(wireA, "A", "r1")
	wireB := connect(t, ctx, svc, "B")
	join(wireB, "B", "r2")
	waitJoined(t, svc, "r2", "B")

	wireA.RX <- model.Signal{Event: model.EventOffer, From: "A", To: "B"}
	assertNoSignal(t, wireB)
}

func TestLeaveRoomBroadcastsUserDisconnected(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc := newTestService()

	wireA := connect(t, ctx, svc, "A")
	join(wireA, "A", "abc12")
	waitJoined(t, svc, "abc12", "A")
	wireB := connect(t, ctx, svc, "B")
	join(wireB, "B", "abc12")
	_ = recvSignal(t, wireA) // user-connected B

	wireA.RX <- model.Signal{Event: model.EventLeaveRoom, Room: "abc12", From: "A"}

	sig := recvSignal(t, wireB)
	if sig.Event != model.EventUserDisconnected || sig.From != "A" {
		t.Errorf("unexpected signal: %+v", sig)
	}
	assertNoSignal(t, wireB)
}

func TestDestroySessionFansOutOncePerRoom(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc := newTestService()

	wireA := connect(t, ctx, svc, "A")
	join(wireA, "A", "r1")
	join(wireA, "A", "r2")
	waitJoined(t, svc, "r1", "A")
	waitJoined(t, svc, "r2", "A")

	wireB := connect(t, ctx, svc, "B")
	join(wireB, "B", "r1")
	wireC := connect(t, ctx, svc, "C")
	join(wireC, "C", "r2")

	_ = recvSignal(t, wireA) // user-connected B
	_ = recvSignal(t, wireA) // user-connected C

	if err := svc.DestroySession(ctx, "A"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for name, wire := range map[string]model.Wire{"B": wireB, "C": wireC} {
		sig := recvSignal(t, wire)
		if sig.Event != model.EventUserDisconnected || sig.From != "A" {
			t.Errorf("%s: unexpected signal: %+v", name, sig)
		}
		// no duplicate user-disconnected
		assertNoSignal(t, wire)
	}

	// second destroy is a no-op
	if err := svc.DestroySession(ctx, "A"); err != nil {
		t.Fatalf("unexpected error on repeated destroy: %v", err)
	}
	assertNoSignal(t, wireB)
	assertNoSignal(t, wireC)
}

func TestDestroySessionBroadcastSurvivesContextCancel(t *testing.T) {
	svc := newTestService()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wireA := connect(t, ctx, svc, "A")
	join(wireA, "A", "abc12")
	waitJoined(t, svc, "abc12", "A")
	wireB := connect(t, ctx, svc, "B")
	join(wireB, "B", "abc12")
	waitJoined(t, svc, "abc12", "B")
	_ = recvSignal(t, wireA) // user-connected B

	// the websocket server cancels the session context as soon as
	// teardown returns; the broadcast must be delivered by then
	if err := svc.DestroySession(ctx, "B"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cancel()

	sig := recvSignal(t, wireA)
	if sig.Event != model.EventUserDisconnected || sig.From != "B" {
		t.Fatalf("unexpected signal: %+v", sig)
	}
}

func TestDuplicateSessionRejected(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc := newTestService()

	_ = connect(t, ctx, svc, "A")
	if err := svc.CreateSession(ctx, "A", bufferedWire()); err == nil {
		t.Fatal("expected error for duplicate session")
	}
}

func TestGetRoom(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc := newTestService()

	wireA := connect(t, ctx, svc, "A")
	join(wireA, "A", "abc12")

	waitJoined(t, svc, "abc12", "A")

	room, err := svc.GetRoom("abc12")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := room.Participants["A"]; !ok {
		t.Error("A not found in room participants")
	}

	if _, err = svc.GetRoom("nope"); err == nil {
		t.Error("expected error for unknown room")
	}
}
