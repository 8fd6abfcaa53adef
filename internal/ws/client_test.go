package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"livesh/api/internal/registry"
)

func waitForState(t *testing.T, c *Client, want ClientState) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case s, ok := <-c.States():
			if !ok {
				t.Fatalf("state channel closed while waiting for %s", want)
			}
			if s == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %s", want)
		}
	}
}

func waitForMember(t *testing.T, reg *registry.Registry, room string, count int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(reg.MembersOf(room)) == count {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("room %s never reached %d members: %v", room, count, reg.MembersOf(room))
}

func TestClientIdentifiesAndReceivesEvents(t *testing.T) {
	hub, reg, url := func() (*Hub, *registry.Registry, string) {
		reg := registry.New()
		hub := NewHub(reg, "*")
		srv := httptest.NewServer(hub)
		t.Cleanup(func() { hub.Close(); srv.Close() })
		return hub, reg, "ws" + strings.TrimPrefix(srv.URL, "http")
	}()

	client := DialClient(context.Background(), ClientOptions{
		URL:      url,
		Identity: IdentifyPayload{UserID: "u2", UserName: "maya", Role: "collaborator", ShareID: "sh1"},
	})
	defer client.Close()

	waitForState(t, client, StateConnected)
	waitForMember(t, reg, ShareRoom("sh1"), 1)

	hub.Broadcast(ShareRoom("sh1"), EventChangeRejected, ResolutionPayload{ChangeID: "chg1", OriginalContent: "a"})

	select {
	case env := <-client.Events():
		if env.Event != EventChangeRejected {
			t.Fatalf("got %s", env.Event)
		}
		var p ResolutionPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if p.OriginalContent != "a" {
			t.Fatalf("payload: %+v", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
	}
}

// A dropped connection must come back re-identified in the same rooms,
// and events broadcast during the gap must not be replayed.
func TestClientReconnectRejoinsWithoutReplay(t *testing.T) {
	reg := registry.New()
	hub := NewHub(reg, "*")
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	client := DialClient(context.Background(), ClientOptions{
		URL:         url,
		Identity:    IdentifyPayload{UserID: "u2", UserName: "maya", Role: "collaborator", ShareID: "sh1"},
		BaseBackoff: 20 * time.Millisecond,
		MaxAttempts: 50,
	})
	defer client.Close()

	waitForState(t, client, StateConnected)
	waitForMember(t, reg, ShareRoom("sh1"), 1)

	// sever the connection from the server side
	connID := reg.MembersOf(ShareRoom("sh1"))[0]
	hub.mu.RLock()
	c := hub.conns[connID]
	hub.mu.RUnlock()
	hub.drop(c)
	waitForMember(t, reg, ShareRoom("sh1"), 0)

	// broadcast into the gap; nobody is connected so it is lost
	hub.Broadcast(ShareRoom("sh1"), EventChangeApproved, ResolutionPayload{ChangeID: "lost"})

	waitForState(t, client, StateConnected)
	waitForMember(t, reg, ShareRoom("sh1"), 1)

	newConnID := reg.MembersOf(ShareRoom("sh1"))[0]
	s, ok := reg.Lookup(newConnID)
	if !ok {
		t.Fatal("reconnected session not identified")
	}
	if s.Role != "collaborator" || s.ShareID != "sh1" || s.Name != "maya" {
		t.Fatalf("identity not restored: %+v", s)
	}

	// the gap event must not arrive, but a fresh one must
	hub.Broadcast(ShareRoom("sh1"), EventChangeApproved, ResolutionPayload{ChangeID: "fresh"})
	select {
	case env := <-client.Events():
		var p ResolutionPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if p.ChangeID != "fresh" {
			t.Fatalf("replayed gap event %q", p.ChangeID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event after reconnect")
	}
}

func TestClientGoesOfflineAfterMaxAttempts(t *testing.T) {
	client := DialClient(context.Background(), ClientOptions{
		URL:         "ws://127.0.0.1:1/ws",
		Identity:    IdentifyPayload{UserID: "u1", UserName: "pat", Role: "owner"},
		BaseBackoff: 5 * time.Millisecond,
		MaxAttempts: 3,
		DialTimeout: 200 * time.Millisecond,
	})
	defer client.Close()

	waitForState(t, client, StateOffline)

	if _, ok := <-client.Events(); ok {
		t.Fatal("event channel should be closed once offline")
	}
}

func TestClientSetIdentityRejoins(t *testing.T) {
	reg := registry.New()
	hub := NewHub(reg, "*")
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	client := DialClient(context.Background(), ClientOptions{
		URL:      url,
		Identity: IdentifyPayload{UserID: "u2", UserName: "maya", Role: "collaborator", ShareID: "sh1"},
	})
	defer client.Close()

	waitForState(t, client, StateConnected)
	waitForMember(t, reg, ShareRoom("sh1"), 1)

	// navigating out of the shared view makes the client the owner
	client.SetIdentity(IdentifyPayload{UserID: "u2", UserName: "maya", Role: "owner"})

	waitForMember(t, reg, OwnerRoom, 1)
	waitForMember(t, reg, ShareRoom("sh1"), 0)
	connID := reg.MembersOf(OwnerRoom)[0]
	s, _ := reg.Lookup(connID)
	if s.Role != "owner" || s.ShareID != "" {
		t.Fatalf("identity not updated: %+v", s)
	}
}

func TestEnqueueWaitsForOutboxSpace(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := &Client{ctx: ctx, cancel: cancel, outbox: make(chan Envelope, 1), rooms: map[string]bool{}}

	c.enqueue(EventPing, nil)

	queued := make(chan struct{})
	go func() {
		c.enqueue(EventIdentify, IdentifyPayload{UserName: "Marcus"})
		close(queued)
	}()

	select {
	case <-queued:
		t.Fatal("enqueue should wait for outbox space, not drop the frame")
	case <-time.After(50 * time.Millisecond):
	}

	if first := <-c.outbox; first.Event != EventPing {
		t.Fatalf("first frame = %q", first.Event)
	}
	select {
	case <-queued:
	case <-time.After(2 * time.Second):
		t.Fatal("enqueue never completed after the outbox drained")
	}
	if second := <-c.outbox; second.Event != EventIdentify {
		t.Fatalf("second frame = %q", second.Event)
	}
}

func TestEnqueueReturnsOnClose(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{ctx: ctx, cancel: cancel, outbox: make(chan Envelope, 1), rooms: map[string]bool{}}
	c.enqueue(EventPing, nil)

	done := make(chan struct{})
	go func() {
		c.enqueue(EventPing, nil)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("enqueue did not return after close")
	}
}
