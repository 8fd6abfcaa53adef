package broker

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"livesh/api/internal/store"
	"livesh/api/internal/ws"
)

type memStore struct {
	mu    sync.Mutex
	items map[string]store.ChangeRequest
}

func newMemStore() *memStore {
	return &memStore{items: map[string]store.ChangeRequest{}}
}

func (m *memStore) CreateChangeRequest(_ context.Context, cr store.ChangeRequest) (store.ChangeRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cr.Status = store.StatusPending
	m.items[cr.ID] = cr
	return cr, nil
}

func (m *memStore) GetChangeRequest(_ context.Context, changeID string) (store.ChangeRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cr, ok := m.items[changeID]
	if !ok {
		return store.ChangeRequest{}, sql.ErrNoRows
	}
	return cr, nil
}

func (m *memStore) TransitionChangeRequest(_ context.Context, changeID, newStatus, resolvedBy string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cr, ok := m.items[changeID]
	if !ok {
		return sql.ErrNoRows
	}
	if cr.Status != store.StatusPending {
		return store.ErrAlreadyResolved
	}
	now := time.Now().UTC()
	cr.Status = newStatus
	cr.ResolvedBy = resolvedBy
	cr.ResolvedAt = &now
	m.items[changeID] = cr
	return nil
}

// staleReadStore hands out a pending snapshot on the first read even
// though the record is already terminal, the window a caller losing a
// resolution race observes.
type staleReadStore struct {
	*memStore
	mu        sync.Mutex
	staleGets int
}

func (s *staleReadStore) GetChangeRequest(ctx context.Context, changeID string) (store.ChangeRequest, error) {
	cr, err := s.memStore.GetChangeRequest(ctx, changeID)
	if err != nil {
		return cr, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.staleGets > 0 {
		s.staleGets--
		cr.Status = store.StatusPending
		cr.ResolvedAt = nil
		cr.ResolvedBy = ""
	}
	return cr, nil
}

type sent struct {
	room    string
	role    string
	connID  string
	event   string
	payload any
}

type fakeTransport struct {
	mu    sync.Mutex
	sends []sent
	conns map[string]string // user id -> conn id
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{conns: map[string]string{}}
}

func (f *fakeTransport) Broadcast(room, event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, sent{room: room, event: event, payload: payload})
}

func (f *fakeTransport) BroadcastRole(room, role, event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, sent{room: room, role: role, event: event, payload: payload})
}

func (f *fakeTransport) SendToConn(connID, event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, sent{connID: connID, event: event, payload: payload})
}

func (f *fakeTransport) ConnFor(userID string) (string, bool) {
	connID, ok := f.conns[userID]
	return connID, ok
}

func (f *fakeTransport) byEvent(event string) []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sent
	for _, s := range f.sends {
		if s.event == event {
			out = append(out, s)
		}
	}
	return out
}

type fakeFiles struct {
	mu     sync.Mutex
	writes []string // fileID=content
	err    error
}

func (f *fakeFiles) WriteFile(_ context.Context, fileID, content, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.writes = append(f.writes, fileID+"="+content)
	return nil
}

func (f *fakeFiles) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

type fakeShares struct {
	resolveFn func(shareID string) (Resolution, error)
	roomsFn   func(fileID string) []string
}

func (f *fakeShares) ResolveShare(_ context.Context, shareID string) (Resolution, error) {
	if f.resolveFn == nil {
		return Resolution{OwnerRoom: ws.OwnerRoom}, nil
	}
	return f.resolveFn(shareID)
}

func (f *fakeShares) RoomsForFile(_ context.Context, fileID string) []string {
	if f.roomsFn == nil {
		return nil
	}
	return f.roomsFn(fileID)
}

func newTestBroker() (*Broker, *memStore, *fakeFiles, *fakeShares, *fakeTransport) {
	st := newMemStore()
	files := &fakeFiles{}
	shares := &fakeShares{}
	transport := newFakeTransport()
	return New(st, files, shares, transport), st, files, shares, transport
}

func TestRequestChangeValidation(t *testing.T) {
	b, st, _, _, transport := newTestBroker()

	cases := []RequestInput{
		{FileID: "", ContentTo: "X"},
		{FileID: "   ", ContentTo: "X"},
		{FileID: "f1", ContentTo: ""},
	}
	for _, in := range cases {
		if _, err := b.RequestChange(context.Background(), in); !errors.Is(err, ErrValidation) {
			t.Fatalf("input %+v: got %v, want ErrValidation", in, err)
		}
	}
	if len(st.items) != 0 {
		t.Fatal("nothing should be stored on validation failure")
	}
	if len(transport.sends) != 0 {
		t.Fatal("nothing should be broadcast on validation failure")
	}
}

func TestRequestChangeFansOut(t *testing.T) {
	b, _, _, _, transport := newTestBroker()
	transport.conns["u2"] = "conn-9"

	cr, err := b.RequestChange(context.Background(), RequestInput{
		FileID: "f1", FileName: "main.go",
		ContentFrom: "a", ContentTo: "X",
		CollaboratorName: "maya", RequesterID: "u2", ShareID: "sh1",
	})
	if err != nil {
		t.Fatalf("request change: %v", err)
	}
	if cr.Status != store.StatusPending {
		t.Fatalf("status = %s", cr.Status)
	}

	pending := transport.byEvent(ws.EventChangePending)
	if len(pending) != 2 {
		t.Fatalf("change-pending sends = %d, want 2", len(pending))
	}
	if pending[0].room != ws.OwnerRoom {
		t.Fatalf("first target %q, want owner room", pending[0].room)
	}
	if pending[1].room != ws.ShareRoom("sh1") || pending[1].role != "owner" {
		t.Fatalf("share room send not owner-filtered: %+v", pending[1])
	}
	payload := pending[0].payload.(ws.ChangePayload)
	if payload.Changes.To != "X" || payload.Changes.From != "a" || payload.ID != cr.ID {
		t.Fatalf("payload: %+v", payload)
	}

	echoes := transport.byEvent(ws.EventChangeRequested)
	if len(echoes) != 1 || echoes[0].connID != "conn-9" {
		t.Fatalf("requester echo: %+v", echoes)
	}
}

func TestRequestChangeWithoutConnectedRequester(t *testing.T) {
	b, _, _, _, transport := newTestBroker()

	if _, err := b.RequestChange(context.Background(), RequestInput{
		FileID: "f1", FileName: "main.go", ContentTo: "X",
		CollaboratorName: "maya", RequesterID: "u2",
	}); err != nil {
		t.Fatalf("request change: %v", err)
	}
	if got := transport.byEvent(ws.EventChangeRequested); len(got) != 0 {
		t.Fatalf("echo sent with no connection: %+v", got)
	}
}

func TestApproveWritesAndBroadcasts(t *testing.T) {
	b, _, files, _, transport := newTestBroker()

	cr, err := b.RequestChange(context.Background(), RequestInput{
		FileID: "f1", FileName: "main.go",
		ContentFrom: "a", ContentTo: "X",
		CollaboratorName: "maya", ShareID: "sh1",
	})
	if err != nil {
		t.Fatalf("request change: %v", err)
	}

	resolved, alreadyResolved, err := b.Approve(context.Background(), cr.ID, "pat")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if alreadyResolved {
		t.Fatal("first approval reported as duplicate")
	}
	if resolved.Status != store.StatusApproved || resolved.ResolvedAt == nil {
		t.Fatalf("resolved = %+v", resolved)
	}

	if len(files.writes) != 1 || files.writes[0] != "f1=X" {
		t.Fatalf("writes: %v", files.writes)
	}

	approved := transport.byEvent(ws.EventChangeApproved)
	if len(approved) != 2 {
		t.Fatalf("change-approved sends = %d, want 2", len(approved))
	}
	rooms := map[string]bool{approved[0].room: true, approved[1].room: true}
	if !rooms[ws.OwnerRoom] || !rooms[ws.ShareRoom("sh1")] {
		t.Fatalf("rooms: %v", rooms)
	}
	payload := approved[0].payload.(ws.ResolutionPayload)
	if payload.NewContent != "X" || payload.ChangeID != cr.ID {
		t.Fatalf("payload: %+v", payload)
	}
}

func TestRejectNeverWrites(t *testing.T) {
	b, _, files, _, transport := newTestBroker()

	cr, err := b.RequestChange(context.Background(), RequestInput{
		FileID: "f1", FileName: "main.go",
		ContentFrom: "a", ContentTo: "X",
		CollaboratorName: "maya", ShareID: "sh1",
	})
	if err != nil {
		t.Fatalf("request change: %v", err)
	}

	resolved, alreadyResolved, err := b.Reject(context.Background(), cr.ID, "pat")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if alreadyResolved {
		t.Fatal("first rejection reported as duplicate")
	}
	if resolved.Status != store.StatusRejected {
		t.Fatalf("status = %s", resolved.Status)
	}
	if files.writeCount() != 0 {
		t.Fatal("reject must not touch file storage")
	}

	rejected := transport.byEvent(ws.EventChangeRejected)
	if len(rejected) != 2 {
		t.Fatalf("change-rejected sends = %d, want 2", len(rejected))
	}
	payload := rejected[0].payload.(ws.ResolutionPayload)
	if payload.OriginalContent != "a" {
		t.Fatalf("payload: %+v", payload)
	}
}

func TestApproveIdempotentOnResolved(t *testing.T) {
	b, _, files, _, transport := newTestBroker()

	cr, _ := b.RequestChange(context.Background(), RequestInput{
		FileID: "f1", FileName: "main.go", ContentTo: "X", ShareID: "sh1",
	})
	if _, _, err := b.Approve(context.Background(), cr.ID, "pat"); err != nil {
		t.Fatalf("first approve: %v", err)
	}
	broadcasts := len(transport.byEvent(ws.EventChangeApproved))

	again, alreadyResolved, err := b.Approve(context.Background(), cr.ID, "pat")
	if err != nil {
		t.Fatalf("second approve should be idempotent success: %v", err)
	}
	if !alreadyResolved || again.ResolvedAt == nil {
		t.Fatalf("duplicate approve: alreadyResolved=%v record=%+v", alreadyResolved, again)
	}
	if files.writeCount() != 1 {
		t.Fatalf("writes = %d, want 1", files.writeCount())
	}
	if got := len(transport.byEvent(ws.EventChangeApproved)); got != broadcasts {
		t.Fatalf("re-broadcast on duplicate approve: %d then %d", broadcasts, got)
	}

	// approve-then-reject must not flip the terminal state either
	if _, _, err := b.Reject(context.Background(), cr.ID, "pat"); err != nil {
		t.Fatalf("reject after approve: %v", err)
	}
	if got := len(transport.byEvent(ws.EventChangeRejected)); got != 0 {
		t.Fatalf("rejected broadcast after approval: %d", got)
	}
}

func TestConcurrentApprovalsWriteOnce(t *testing.T) {
	b, _, files, _, transport := newTestBroker()

	cr, _ := b.RequestChange(context.Background(), RequestInput{
		FileID: "f1", FileName: "main.go", ContentTo: "X", ShareID: "sh1",
	})

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	duplicates := make([]bool, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, duplicates[i], errs[i] = b.Approve(context.Background(), cr.ID, "pat")
		}(i)
	}
	wg.Wait()

	winners := 0
	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: %v", i, err)
		}
		if !duplicates[i] {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("winners = %d, want exactly 1", winners)
	}
	if files.writeCount() != 1 {
		t.Fatalf("writes = %d, want exactly 1", files.writeCount())
	}
	if got := len(transport.byEvent(ws.EventChangeApproved)); got != 2 {
		t.Fatalf("broadcast sends = %d, want one per room", got)
	}
}

func TestApproveUnknownChange(t *testing.T) {
	b, _, _, _, _ := newTestBroker()
	if _, _, err := b.Approve(context.Background(), "missing", "pat"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("got %v, want sql.ErrNoRows", err)
	}
}

func TestApproveLoserReportsTerminalRecord(t *testing.T) {
	st := newMemStore()
	stale := &staleReadStore{memStore: st}
	files := &fakeFiles{}
	b := New(stale, files, &fakeShares{}, newFakeTransport())

	cr, _ := b.RequestChange(context.Background(), RequestInput{
		FileID: "f1", FileName: "main.go", ContentTo: "X", ShareID: "sh1",
	})
	if _, _, err := b.Approve(context.Background(), cr.ID, "pat"); err != nil {
		t.Fatalf("first approve: %v", err)
	}

	// The loser's initial read races the winner's commit and still sees
	// PENDING; the outcome must reflect the terminal record anyway.
	stale.staleGets = 1
	resolved, alreadyResolved, err := b.Approve(context.Background(), cr.ID, "pat")
	if err != nil {
		t.Fatalf("losing approve: %v", err)
	}
	if !alreadyResolved {
		t.Fatal("loser not reported as alreadyResolved")
	}
	if resolved.Status != store.StatusApproved || resolved.ResolvedAt == nil {
		t.Fatalf("loser saw %+v, want terminal record", resolved)
	}
	if files.writeCount() != 1 {
		t.Fatalf("writes = %d, want 1", files.writeCount())
	}
}

func TestNotifyFileChangedReachesWatchingRooms(t *testing.T) {
	b, _, _, shares, transport := newTestBroker()
	shares.roomsFn = func(fileID string) []string {
		if fileID == "f1" {
			return []string{ws.ShareRoom("sh1"), ws.ShareRoom("sh2")}
		}
		return nil
	}

	b.NotifyFileChanged(context.Background(), "f1", "main.go", "pat")

	changed := transport.byEvent(ws.EventFileChanged)
	if len(changed) != 3 {
		t.Fatalf("file-changed sends = %d, want 3", len(changed))
	}
	rooms := map[string]bool{}
	for _, s := range changed {
		rooms[s.room] = true
	}
	if !rooms[ws.OwnerRoom] || !rooms[ws.ShareRoom("sh1")] || !rooms[ws.ShareRoom("sh2")] {
		t.Fatalf("rooms: %v", rooms)
	}
}
