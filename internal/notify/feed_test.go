package notify

import (
	"testing"
	"time"

	"livesh/api/internal/rbac"
	"livesh/api/internal/ws"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClockedFeed(role rbac.Role) (*Feed, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)}
	return NewFeed(role, "maya", WithClock(clock.now)), clock
}

func mustApply(t *testing.T, f *Feed, event string, payload any) {
	t.Helper()
	env, err := ws.NewEnvelope(event, payload)
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	if err := f.Apply(env); err != nil {
		t.Fatalf("apply %s: %v", event, err)
	}
}

func TestPendingDedupByChangeID(t *testing.T) {
	f, _ := newClockedFeed(rbac.RoleOwner)

	payload := ws.ChangePayload{ID: "chg1", FileID: "f1", FileName: "main.go", CollaboratorName: "maya"}
	mustApply(t, f, ws.EventChangePending, payload)
	mustApply(t, f, ws.EventChangePending, payload)

	entries := f.List()
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if entries[0].Kind != KindChangePending || entries[0].ChangeID != "chg1" {
		t.Fatalf("entry: %+v", entries[0])
	}
}

func TestPendingHiddenFromCollaborator(t *testing.T) {
	f, _ := newClockedFeed(rbac.RoleCollaborator)

	mustApply(t, f, ws.EventChangePending, ws.ChangePayload{ID: "chg1", FileName: "main.go"})

	if entries := f.List(); len(entries) != 0 {
		t.Fatalf("collaborator must not see change-pending: %+v", entries)
	}
}

func TestTransientSweep(t *testing.T) {
	f, clock := newClockedFeed(rbac.RoleCollaborator)

	// the echo ack is transient
	mustApply(t, f, ws.EventChangeRequested, ws.ChangePayload{ID: "chg1", FileName: "main.go"})

	clock.advance(4 * time.Second)
	f.Sweep()
	if len(f.List()) != 1 {
		t.Fatal("transient entry evicted too early")
	}

	clock.advance(2 * time.Second)
	f.Sweep()
	if got := f.List(); len(got) != 0 {
		t.Fatalf("transient entry survived past expiry: %+v", got)
	}
}

func TestPendingAndErrorNeverSwept(t *testing.T) {
	f, clock := newClockedFeed(rbac.RoleOwner)

	mustApply(t, f, ws.EventChangePending, ws.ChangePayload{ID: "chg1", FileName: "main.go"})
	f.AddError("save failed")

	clock.advance(time.Minute)
	f.Sweep()

	entries := f.List()
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2: %+v", len(entries), entries)
	}
}

func TestResolutionRemovesPendingAndAcksRequesterOnly(t *testing.T) {
	owner, _ := newClockedFeed(rbac.RoleOwner)
	requester, _ := newClockedFeed(rbac.RoleCollaborator)

	pending := ws.ChangePayload{ID: "chg1", FileID: "f1", FileName: "main.go", CollaboratorName: "maya"}
	mustApply(t, owner, ws.EventChangePending, pending)
	mustApply(t, requester, ws.EventChangeRequested, pending)

	resolved := ws.ResolutionPayload{ChangeID: "chg1", FileID: "f1", FileName: "main.go", NewContent: "X"}
	mustApply(t, owner, ws.EventChangeApproved, resolved)
	mustApply(t, requester, ws.EventChangeApproved, resolved)

	// the owner's pending entry is gone with no terminal message
	for _, n := range owner.List() {
		if n.ChangeID == "chg1" && n.Kind == KindChangePending {
			t.Fatalf("pending entry not removed: %+v", n)
		}
		if n.Kind == KindApprovalSuccess {
			t.Fatalf("owner is not the requester, got %+v", n)
		}
	}

	// the requester gets exactly one success entry
	var successes int
	for _, n := range requester.List() {
		if n.Kind == KindApprovalSuccess {
			successes++
		}
	}
	if successes != 1 {
		t.Fatalf("requester successes = %d, want 1", successes)
	}
}

func TestRejectionInfoForRequester(t *testing.T) {
	requester, _ := newClockedFeed(rbac.RoleCollaborator)

	mustApply(t, requester, ws.EventChangeRequested, ws.ChangePayload{ID: "chg1", FileName: "main.go"})
	mustApply(t, requester, ws.EventChangeRejected, ws.ResolutionPayload{ChangeID: "chg1", FileName: "main.go", OriginalContent: "a"})

	entries := requester.List()
	if len(entries) != 1 || entries[0].Kind != KindRejectionInfo {
		t.Fatalf("entries: %+v", entries)
	}
}

func TestProcessingGuard(t *testing.T) {
	f, _ := newClockedFeed(rbac.RoleOwner)
	mustApply(t, f, ws.EventChangePending, ws.ChangePayload{ID: "chg1", FileName: "main.go"})

	if f.IsProcessing("chg1") {
		t.Fatal("fresh entry should not be processing")
	}
	f.MarkProcessing("chg1", true)
	if !f.IsProcessing("chg1") {
		t.Fatal("processing flag not set")
	}
	f.MarkProcessing("chg1", false)
	if f.IsProcessing("chg1") {
		t.Fatal("processing flag not cleared")
	}
}

func TestDismissError(t *testing.T) {
	f, _ := newClockedFeed(rbac.RoleOwner)
	id := f.AddError("approve failed")

	f.Dismiss(id)
	if got := f.List(); len(got) != 0 {
		t.Fatalf("error not dismissed: %+v", got)
	}
}

func TestFileUpdatedIsTransientInfo(t *testing.T) {
	f, clock := newClockedFeed(rbac.RoleCollaborator)
	mustApply(t, f, ws.EventFileChanged, ws.FilePayload{FileID: "f1", FileName: "main.go", UpdatedBy: "pat"})

	if entries := f.List(); len(entries) != 1 || entries[0].Kind != KindFileUpdated {
		t.Fatalf("entries: %+v", entries)
	}
	clock.advance(6 * time.Second)
	f.Sweep()
	if got := f.List(); len(got) != 0 {
		t.Fatalf("file-updated survived sweep: %+v", got)
	}
}

func TestUnhandledEventFails(t *testing.T) {
	f, _ := newClockedFeed(rbac.RoleOwner)
	if err := f.Apply(ws.Envelope{Event: "mystery"}); err == nil {
		t.Fatal("unknown event must be an error")
	}
}

func TestMostRecentFirstOrdering(t *testing.T) {
	f, clock := newClockedFeed(rbac.RoleOwner)
	mustApply(t, f, ws.EventChangePending, ws.ChangePayload{ID: "chg1", FileName: "a.go"})
	clock.advance(time.Second)
	mustApply(t, f, ws.EventChangePending, ws.ChangePayload{ID: "chg2", FileName: "b.go"})

	entries := f.List()
	if len(entries) != 2 || entries[0].ChangeID != "chg2" || entries[1].ChangeID != "chg1" {
		t.Fatalf("ordering: %+v", entries)
	}
}
