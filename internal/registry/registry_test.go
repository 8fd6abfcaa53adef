package registry

import (
	"sort"
	"testing"
)

func TestIdentifyAndLookup(t *testing.T) {
	r := New()
	r.Identify("c1", "u1", "maya", "collaborator", "sh123")

	s, ok := r.Lookup("c1")
	if !ok {
		t.Fatal("expected session for c1")
	}
	if s.Name != "maya" || s.Role != "collaborator" || s.ShareID != "sh123" {
		t.Fatalf("unexpected session: %+v", s)
	}
	if _, ok := r.Lookup("nope"); ok {
		t.Fatal("lookup of unknown conn should miss")
	}
}

func TestReidentifyKeepsRooms(t *testing.T) {
	r := New()
	r.Identify("c1", "u1", "maya", "collaborator", "sh123")
	r.Join("c1", "share:sh123")

	r.Identify("c1", "u1", "maya", "owner", "")

	got := r.MembersOf("share:sh123")
	if len(got) != 1 || got[0] != "c1" {
		t.Fatalf("rooms lost on re-identify: %v", got)
	}
	s, _ := r.Lookup("c1")
	if s.Role != "owner" {
		t.Fatalf("identity not replaced: %+v", s)
	}
}

func TestJoinLeaveMembership(t *testing.T) {
	r := New()
	r.Join("c1", "owner-room")
	r.Join("c2", "owner-room")
	r.Join("c2", "share:abc")

	members := r.MembersOf("owner-room")
	sort.Strings(members)
	if len(members) != 2 || members[0] != "c1" || members[1] != "c2" {
		t.Fatalf("unexpected members: %v", members)
	}

	r.Leave("c1", "owner-room")
	members = r.MembersOf("owner-room")
	if len(members) != 1 || members[0] != "c2" {
		t.Fatalf("leave did not remove member: %v", members)
	}

	// leaving a room never joined is a no-op
	r.Leave("c1", "share:abc")
	if got := r.MembersOf("share:abc"); len(got) != 1 {
		t.Fatalf("no-op leave mutated membership: %v", got)
	}
}

func TestDropClearsEverything(t *testing.T) {
	r := New()
	r.Identify("c1", "u1", "maya", "collaborator", "sh1")
	r.Join("c1", "share:sh1")
	r.Join("c1", "owner-room")

	r.Drop("c1")

	if _, ok := r.Lookup("c1"); ok {
		t.Fatal("session should be gone after drop")
	}
	if got := r.MembersOf("share:sh1"); len(got) != 0 {
		t.Fatalf("drop left room membership: %v", got)
	}
	if got := r.MembersOf("owner-room"); len(got) != 0 {
		t.Fatalf("drop left room membership: %v", got)
	}

	// dropping an unknown conn is a no-op
	r.Drop("ghost")
}
