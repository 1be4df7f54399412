package _switch

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/Gustiele12/plataform/model"
	"github.com/rs/zerolog"
)

func newTestSwitch() *Switch {
	logger := zerolog.Nop()
	return NewSwitch(&logger)
}

func bufferedWire() model.Wire {
	return model.Wire{
		RX: make(chan model.Signal, 10),
		TX: make(chan model.Signal, 10),
	}
}

func recvSignal(t *testing.T, wire model.Wire) model.Signal {
	t.Helper()
	select {
	case sig := <-wire.TX:
		return sig
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for signal")
	}
	return model.Signal{}
}

func assertNoSignal(t *testing.T, wire model.Wire) {
	t.Helper()
	select {
	case sig := <-wire.TX:
		t.Fatalf("unexpected signal: %+v", sig)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBroadcastSkipsSender(t *testing.T) {
	sw := newTestSwitch()
	ctx := context.Background()

	wireA, wireB, wireC := bufferedWire(), bufferedWire(), bufferedWire()
	_ = sw.Connect("r1", "A", wireA)
	_ = sw.Connect("r1", "B", wireB)
	_ = sw.Connect("r1", "C", wireC)

	_ = sw.Broadcast(ctx, model.Signal{Event: model.EventUserConnected, From: "A"}, "r1")

	for _, wire := range []model.Wire{wireB, wireC} {
		sig := recvSignal(t, wire)
		if sig.Event != model.EventUserConnected || sig.From != "A" {
			t.Errorf("unexpected signal: %+v", sig)
		}
	}
	assertNoSignal(t, wireA)
}

func TestUnicast(t *testing.T) {
	sw := newTestSwitch()
	ctx := context.Background()

	wireA, wireB := bufferedWire(), bufferedWire()
	_ = sw.Connect("r1", "A", wireA)
	_ = sw.Connect("r1", "B", wireB)

	payload := json.RawMessage(`{"sdp":"test"}`)
	sent := sw.Unicast(ctx, model.Signal{
		Event:   model.EventOffer,
		From:    "A",
		To:      "B",
		Payload: payload,
	}, "r1")
	if !sent {
		t.Fatal("expected unicast to be delivered")
	}

	sig := recvSignal(t, wireB)
	if sig.From != "A" {
		t.Errorf("expected from A, got %s", sig.From)
	}
	if string(sig.Payload) != string(payload) {
		t.Errorf("payload was modified: %s", sig.Payload)
	}
	assertNoSignal(t, wireA)
}

func TestUnicastUnknownTarget(t *testing.T) {
	sw := newTestSwitch()
	ctx := context.Background()

	wireA := bufferedWire()
	_ = sw.Connect("r1", "A", wireA)

	sent := sw.Unicast(ctx, model.Signal{Event: model.EventOffer, From: "A", To: "ghost"}, "r1")
	if sent {
		t.Fatal("expected drop for unknown target")
	}
	assertNoSignal(t, wireA)
}

func TestUnicastIsRoomScoped(t *testing.T) {
	sw := newTestSwitch()
	ctx := context.Background()

	wireA, wireB := bufferedWire(), bufferedWire()
	_ = sw.Connect("r1", "A", wireA)
	_ = sw.Connect("r2", "B", wireB)

	sent := sw.Unicast(ctx, model.Signal{Event: model.EventOffer, From: "A", To: "B"}, "r1")
	if sent {
		t.Fatal("target in another room must be unreachable")
	}
	assertNoSignal(t, wireB)
}

func TestDisconnect(t *testing.T) {
	sw := newTestSwitch()
	ctx := context.Background()

	wireA, wireB := bufferedWire(), bufferedWire()
	_ = sw.Connect("r1", "A", wireA)
	_ = sw.Connect("r1", "B", wireB)
	_ = sw.Disconnect("r1", "B")

	if sent := sw.Unicast(ctx, model.Signal{Event: model.EventOffer, From: "A", To: "B"}, "r1"); sent {
		t.Fatal("expected drop after disconnect")
	}
}
