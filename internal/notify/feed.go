// Package notify is the client-local projection of broker events: an
// ordered, deduplicated feed of notifications with auto-expiry for the
// transient kinds. It is derived state, never authoritative; a fresh
// feed is built for every connected session and thrown away on
// disconnect.
//
// The feed is not safe for concurrent use. Callers are expected to run
// event handling and the periodic sweep on one goroutine, which is how
// the transport client delivers events.
package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"livesh/api/internal/rbac"
	"livesh/api/internal/ws"
)

// Kind enumerates every notification variant the feed can hold. Apply
// handles each wire event with exactly one of these, so an unhandled
// event kind fails loudly instead of rendering nothing.
type Kind int

const (
	KindChangePending Kind = iota
	KindChangeRequested
	KindApprovalSuccess
	KindRejectionInfo
	KindFileUpdated
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindChangePending:
		return "change-pending"
	case KindChangeRequested:
		return "change-requested"
	case KindApprovalSuccess:
		return "approval-success"
	case KindRejectionInfo:
		return "rejection-info"
	case KindFileUpdated:
		return "file-updated"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// transient kinds are swept once they age out; pending and error
// entries stay until resolved or dismissed.
func (k Kind) transient() bool {
	switch k {
	case KindChangeRequested, KindApprovalSuccess, KindRejectionInfo, KindFileUpdated:
		return true
	default:
		return false
	}
}

const (
	// SweepInterval is the cadence the owner of a feed should call
	// Sweep at.
	SweepInterval = time.Second
	transientAge  = 5 * time.Second
)

type Notification struct {
	ID         int64
	Kind       Kind
	ChangeID   string
	FileID     string
	FileName   string
	Message    string
	Timestamp  time.Time
	Processing bool
}

type Feed struct {
	role     rbac.Role
	userName string
	now      func() time.Time

	nextID  int64
	entries []Notification // most recent first
	own     map[string]bool
}

type Option func(*Feed)

// WithClock substitutes the time source, for deterministic sweeps in
// tests.
func WithClock(now func() time.Time) Option {
	return func(f *Feed) { f.now = now }
}

func NewFeed(role rbac.Role, userName string, opts ...Option) *Feed {
	f := &Feed{
		role:     role,
		userName: userName,
		now:      time.Now,
		own:      map[string]bool{},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Apply folds one server event into the feed. Events that the current
// role must not see are consumed silently.
func (f *Feed) Apply(env ws.Envelope) error {
	switch env.Event {
	case ws.EventChangePending:
		var p ws.ChangePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return fmt.Errorf("decode %s: %w", env.Event, err)
		}
		f.applyPending(p)
	case ws.EventChangeRequested:
		var p ws.ChangePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return fmt.Errorf("decode %s: %w", env.Event, err)
		}
		f.own[p.ID] = true
		f.push(Notification{
			Kind:     KindChangeRequested,
			ChangeID: p.ID,
			FileID:   p.FileID,
			FileName: p.FileName,
			Message:  fmt.Sprintf("change request for %s sent", p.FileName),
		})
	case ws.EventChangeApproved:
		var p ws.ResolutionPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return fmt.Errorf("decode %s: %w", env.Event, err)
		}
		f.applyResolution(p, KindApprovalSuccess, fmt.Sprintf("change to %s approved", p.FileName))
	case ws.EventChangeRejected:
		var p ws.ResolutionPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return fmt.Errorf("decode %s: %w", env.Event, err)
		}
		f.applyResolution(p, KindRejectionInfo, fmt.Sprintf("change to %s rejected", p.FileName))
	case ws.EventFileChanged:
		var p ws.FilePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return fmt.Errorf("decode %s: %w", env.Event, err)
		}
		f.push(Notification{
			Kind:     KindFileUpdated,
			FileID:   p.FileID,
			FileName: p.FileName,
			Message:  fmt.Sprintf("%s was updated", p.FileName),
		})
	case ws.EventPong:
		// connectivity probe, nothing to project
	default:
		return fmt.Errorf("unhandled event %q", env.Event)
	}
	return nil
}

func (f *Feed) applyPending(p ws.ChangePayload) {
	if f.role != rbac.RoleOwner {
		return
	}
	for _, n := range f.entries {
		if n.Kind == KindChangePending && n.ChangeID == p.ID {
			return
		}
	}
	f.push(Notification{
		Kind:     KindChangePending,
		ChangeID: p.ID,
		FileID:   p.FileID,
		FileName: p.FileName,
		Message:  fmt.Sprintf("%s proposed a change to %s", p.CollaboratorName, p.FileName),
	})
}

func (f *Feed) applyResolution(p ws.ResolutionPayload, kind Kind, message string) {
	f.removeChange(p.ChangeID)
	if !f.own[p.ChangeID] {
		return
	}
	delete(f.own, p.ChangeID)
	f.push(Notification{
		Kind:     kind,
		ChangeID: p.ChangeID,
		FileID:   p.FileID,
		FileName: p.FileName,
		Message:  message,
	})
}

// AddError records a user-visible failure. Error entries persist until
// dismissed.
func (f *Feed) AddError(message string) int64 {
	return f.push(Notification{Kind: KindError, Message: message})
}

// Dismiss drops one entry by its local id.
func (f *Feed) Dismiss(id int64) {
	for i, n := range f.entries {
		if n.ID == id {
			f.entries = append(f.entries[:i], f.entries[i+1:]...)
			return
		}
	}
}

// MarkProcessing flags the pending entry for a change while an
// approve or reject call is in flight, so the UI can disable duplicate
// submission for that change.
func (f *Feed) MarkProcessing(changeID string, processing bool) {
	for i := range f.entries {
		if f.entries[i].ChangeID == changeID && f.entries[i].Kind == KindChangePending {
			f.entries[i].Processing = processing
		}
	}
}

func (f *Feed) IsProcessing(changeID string) bool {
	for _, n := range f.entries {
		if n.ChangeID == changeID && n.Kind == KindChangePending && n.Processing {
			return true
		}
	}
	return false
}

// Sweep evicts transient entries older than five seconds. Pending and
// error entries are never swept.
func (f *Feed) Sweep() {
	cutoff := f.now().Add(-transientAge)
	kept := f.entries[:0]
	for _, n := range f.entries {
		if n.Kind.transient() && n.Timestamp.Before(cutoff) {
			continue
		}
		kept = append(kept, n)
	}
	f.entries = kept
}

// List returns a copy of the feed, most recent first.
func (f *Feed) List() []Notification {
	out := make([]Notification, len(f.entries))
	copy(out, f.entries)
	return out
}

func (f *Feed) removeChange(changeID string) {
	kept := f.entries[:0]
	for _, n := range f.entries {
		if n.ChangeID == changeID {
			continue
		}
		kept = append(kept, n)
	}
	f.entries = kept
}

func (f *Feed) push(n Notification) int64 {
	f.nextID++
	n.ID = f.nextID
	n.Timestamp = f.now()
	f.entries = append([]Notification{n}, f.entries...)
	return n.ID
}
