package ws

import (
	"testing"
	"time"
)

func recvOrFail(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case data := <-c.Send:
		return data
	case <-time.After(2 * time.Second):
		t.Fatal("no message delivered")
		return nil
	}
}

func TestHubBroadcastIsRoomScoped(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	inRoom := &Client{Send: make(chan []byte, 4), Room: "room1", UserID: "u1"}
	alsoIn := &Client{Send: make(chan []byte, 4), Room: "room1", UserID: "u2"}
	elsewhere := &Client{Send: make(chan []byte, 4), Room: "room2", UserID: "u3"}
	hub.Register(inRoom)
	hub.Register(alsoIn)
	hub.Register(elsewhere)

	hub.Broadcast("room1", []byte(`{"room":null}`))

	if got := string(recvOrFail(t, inRoom)); got != `{"room":null}` {
		t.Errorf("got %q", got)
	}
	recvOrFail(t, alsoIn)

	select {
	case data := <-elsewhere.Send:
		t.Fatalf("client in another room received %q", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubUnregisterClosesSend(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	c := &Client{Send: make(chan []byte, 4), Room: "room1", UserID: "u1"}
	hub.Register(c)
	hub.Unregister(c)

	select {
	case _, open := <-c.Send:
		if open {
			t.Fatal("send channel delivered data instead of closing")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("send channel not closed on unregister")
	}

	// Unregistering again must not panic or double close.
	hub.Unregister(c)
	hub.Broadcast("room1", []byte("late"))
}

func TestHubSlowClientDropped(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	slow := &Client{Send: make(chan []byte, 1), Room: "room1", UserID: "slow"}
	hub.Register(slow)

	hub.Broadcast("room1", []byte("one"))
	hub.Broadcast("room1", []byte("two")) // buffer full, client gets dropped

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, open := <-slow.Send:
			if !open {
				return
			}
		case <-deadline:
			t.Fatal("slow client was never dropped")
		}
	}
}

func TestHubStopClosesAllClients(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	a := &Client{Send: make(chan []byte, 4), Room: "room1"}
	b := &Client{Send: make(chan []byte, 4), Room: "room2"}
	hub.Register(a)
	hub.Register(b)

	hub.Stop()
	hub.Stop() // idempotent

	for _, c := range []*Client{a, b} {
		select {
		case _, open := <-c.Send:
			if open {
				t.Fatal("expected closed channel after stop")
			}
		case <-time.After(2 * time.Second):
			t.Fatal("client channel not closed after stop")
		}
	}

	// Broadcast after stop must not block.
	hub.Broadcast("room1", []byte("late"))
}

func TestHubRegisterUnregisterAfterStop(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	c := &Client{Send: make(chan []byte, 4), Room: "room1", UserID: "u1"}
	hub.Register(c)
	hub.Stop()

	// Disconnect cleanup can race shutdown; neither call may block once
	// Run has exited.
	done := make(chan struct{})
	go func() {
		hub.Unregister(c)
		hub.Register(&Client{Send: make(chan []byte, 4), Room: "room1"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("hub call blocked after stop")
	}
}
