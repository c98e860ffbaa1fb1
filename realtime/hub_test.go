package realtime

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"
)

func newTestHub() *Hub {
	return NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestPublishToUser(t *testing.T) {
	h := newTestHub()
	alice := &Client{hub: h, send: make(chan []byte, 1), room: UserRoom("alice")}
	bob := &Client{hub: h, send: make(chan []byte, 1), room: UserRoom("bob")}
	h.add(alice)
	h.add(bob)

	h.PublishToUser("alice", "team_assigned", map[string]string{"team_id": "t1"})

	select {
	case data := <-alice.send:
		var msg struct {
			Type    string            `json:"type"`
			Payload map[string]string `json:"payload"`
			RoomID  string            `json:"room_id"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if msg.Type != "team_assigned" || msg.Payload["team_id"] != "t1" || msg.RoomID != "user:alice" {
			t.Errorf("unexpected message %+v", msg)
		}
	default:
		t.Fatal("alice received nothing")
	}
	if len(bob.send) != 0 {
		t.Error("bob received a message addressed to alice")
	}
}

func TestRemoveClosesClientAndDropsEmptyRoom(t *testing.T) {
	h := newTestHub()
	c := &Client{hub: h, send: make(chan []byte, 1), room: UserRoom("carol")}
	h.add(c)
	if got := h.RoomSize(c.room); got != 1 {
		t.Fatalf("RoomSize() = %d, want 1", got)
	}

	h.remove(c)
	h.remove(c)

	if got := h.RoomSize(c.room); got != 0 {
		t.Errorf("RoomSize() = %d, want 0", got)
	}
	if _, ok := <-c.send; ok {
		t.Error("send channel still open")
	}
	// a closed client must not panic on broadcast
	h.BroadcastToRoom(c.room, "ignored")
}

func TestBroadcastDropsWhenBufferFull(t *testing.T) {
	h := newTestHub()
	c := &Client{hub: h, send: make(chan []byte, 1), room: "r"}
	h.add(c)

	h.BroadcastToRoom("r", "first")
	h.BroadcastToRoom("r", "second")

	if got := len(c.send); got != 1 {
		t.Errorf("buffered = %d, want 1", got)
	}
}

func TestJoinAndLeaveAfterRunStopped(t *testing.T) {
	h := newTestHub()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()

	c := &Client{hub: h, send: make(chan []byte, 1), room: UserRoom("dave")}
	if !h.Join(c) {
		t.Fatal("Join() = false on a running hub")
	}
	cancel()
	<-stopped

	if _, ok := <-c.send; ok {
		t.Error("client still open after hub stopped")
	}

	late := &Client{hub: h, send: make(chan []byte, 1), room: UserRoom("erin")}
	joined := make(chan bool, 1)
	go func() { joined <- h.Join(late) }()
	select {
	case ok := <-joined:
		if ok {
			t.Error("Join() = true on a stopped hub")
		}
	case <-time.After(time.Second):
		t.Fatal("Join() blocked on a stopped hub")
	}

	left := make(chan struct{})
	go func() {
		h.leave(c)
		close(left)
	}()
	select {
	case <-left:
	case <-time.After(time.Second):
		t.Fatal("leave() blocked on a stopped hub")
	}
}
