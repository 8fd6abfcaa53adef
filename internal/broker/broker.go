// Package broker owns the change request lifecycle: it accepts
// proposals, drives the pending to terminal transition through the
// store, applies approved content to the file store, and fans events
// out to the right rooms.
package broker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"livesh/api/internal/store"
	"livesh/api/internal/util"
	"livesh/api/internal/ws"
)

// ErrValidation rejects a malformed request before anything is stored
// or broadcast.
var ErrValidation = errors.New("invalid change request")

type Store interface {
	CreateChangeRequest(ctx context.Context, cr store.ChangeRequest) (store.ChangeRequest, error)
	GetChangeRequest(ctx context.Context, changeID string) (store.ChangeRequest, error)
	TransitionChangeRequest(ctx context.Context, changeID, newStatus, resolvedBy string) error
}

type FileWriter interface {
	WriteFile(ctx context.Context, fileID, content, author string) error
}

// Resolution is what a share id expands to for routing purposes.
type Resolution struct {
	FileIDs   []string
	OwnerRoom string
}

type ShareResolver interface {
	ResolveShare(ctx context.Context, shareID string) (Resolution, error)
	RoomsForFile(ctx context.Context, fileID string) []string
}

type Broadcaster interface {
	Broadcast(room, event string, payload any)
	BroadcastRole(room, role, event string, payload any)
	SendToConn(connID, event string, payload any)
	ConnFor(userID string) (string, bool)
}

type Broker struct {
	store     Store
	files     FileWriter
	shares    ShareResolver
	transport Broadcaster
}

func New(st Store, files FileWriter, shares ShareResolver, transport Broadcaster) *Broker {
	return &Broker{store: st, files: files, shares: shares, transport: transport}
}

type RequestInput struct {
	FileID           string
	FileName         string
	ContentFrom      string
	ContentTo        string
	CollaboratorName string
	RequesterID      string
	ShareID          string
}

// RequestChange records a proposed edit and tells the owner about it.
// Multiple pending requests may exist for the same file; each is an
// independent record resolved on its own.
func (b *Broker) RequestChange(ctx context.Context, in RequestInput) (store.ChangeRequest, error) {
	if strings.TrimSpace(in.FileID) == "" {
		return store.ChangeRequest{}, fmt.Errorf("%w: fileId is required", ErrValidation)
	}
	if in.ContentTo == "" {
		return store.ChangeRequest{}, fmt.Errorf("%w: contentTo is required", ErrValidation)
	}

	ownerRoom := ws.OwnerRoom
	if in.ShareID != "" {
		resolution, err := b.shares.ResolveShare(ctx, in.ShareID)
		if err != nil {
			return store.ChangeRequest{}, fmt.Errorf("resolve share %s: %w", in.ShareID, err)
		}
		if resolution.OwnerRoom != "" {
			ownerRoom = resolution.OwnerRoom
		}
	}

	cr, err := b.store.CreateChangeRequest(ctx, store.ChangeRequest{
		ID:               util.NewID("chg"),
		FileID:           in.FileID,
		FileName:         in.FileName,
		CollaboratorName: in.CollaboratorName,
		ShareID:          in.ShareID,
		ContentFrom:      in.ContentFrom,
		ContentTo:        in.ContentTo,
	})
	if err != nil {
		return store.ChangeRequest{}, err
	}

	payload := changePayload(cr)
	b.transport.Broadcast(ownerRoom, ws.EventChangePending, payload)
	if cr.ShareID != "" {
		// an owner reviewing through the share link sees it there too
		b.transport.BroadcastRole(ws.ShareRoom(cr.ShareID), "owner", ws.EventChangePending, payload)
	}
	if connID, ok := b.transport.ConnFor(in.RequesterID); ok {
		b.transport.SendToConn(connID, ws.EventChangeRequested, payload)
	}
	return cr, nil
}

// Approve moves a request to APPROVED, writes the proposed content and
// broadcasts the outcome. A request already resolved is reported as
// success with alreadyResolved true and without a second write or
// broadcast, so duplicate clicks and racing callers are safe.
func (b *Broker) Approve(ctx context.Context, changeID, resolvedBy string) (store.ChangeRequest, bool, error) {
	cr, err := b.store.GetChangeRequest(ctx, changeID)
	if err != nil {
		return store.ChangeRequest{}, false, err
	}

	err = b.store.TransitionChangeRequest(ctx, changeID, store.StatusApproved, resolvedBy)
	if errors.Is(err, store.ErrAlreadyResolved) {
		// The snapshot above may predate losing the race, so re-read to
		// report the terminal record.
		cr, err = b.store.GetChangeRequest(ctx, changeID)
		if err != nil {
			return store.ChangeRequest{}, false, err
		}
		return cr, true, nil
	}
	if err != nil {
		return store.ChangeRequest{}, false, err
	}
	now := time.Now().UTC()
	cr.Status = store.StatusApproved
	cr.ResolvedBy = resolvedBy
	cr.ResolvedAt = &now

	if err := b.files.WriteFile(ctx, cr.FileID, cr.ContentTo, cr.CollaboratorName); err != nil {
		return store.ChangeRequest{}, false, fmt.Errorf("apply approved change %s: %w", changeID, err)
	}

	b.broadcastResolution(ws.EventChangeApproved, cr, ws.ResolutionPayload{
		ChangeID:   cr.ID,
		FileID:     cr.FileID,
		FileName:   cr.FileName,
		NewContent: cr.ContentTo,
	})
	return cr, false, nil
}

// Reject moves a request to REJECTED and broadcasts the original
// content so the requester's view can revert. Never touches file
// storage. Idempotent the same way Approve is.
func (b *Broker) Reject(ctx context.Context, changeID, resolvedBy string) (store.ChangeRequest, bool, error) {
	cr, err := b.store.GetChangeRequest(ctx, changeID)
	if err != nil {
		return store.ChangeRequest{}, false, err
	}

	err = b.store.TransitionChangeRequest(ctx, changeID, store.StatusRejected, resolvedBy)
	if errors.Is(err, store.ErrAlreadyResolved) {
		cr, err = b.store.GetChangeRequest(ctx, changeID)
		if err != nil {
			return store.ChangeRequest{}, false, err
		}
		return cr, true, nil
	}
	if err != nil {
		return store.ChangeRequest{}, false, err
	}
	now := time.Now().UTC()
	cr.Status = store.StatusRejected
	cr.ResolvedBy = resolvedBy
	cr.ResolvedAt = &now

	b.broadcastResolution(ws.EventChangeRejected, cr, ws.ResolutionPayload{
		ChangeID:        cr.ID,
		FileID:          cr.FileID,
		FileName:        cr.FileName,
		OriginalContent: cr.ContentFrom,
	})
	return cr, false, nil
}

// NotifyFileChanged tells every room watching a file that its content
// moved underneath them, e.g. after the owner's direct save.
func (b *Broker) NotifyFileChanged(ctx context.Context, fileID, fileName, updatedBy string) {
	payload := ws.FilePayload{
		FileID:    fileID,
		FileName:  fileName,
		UpdatedBy: updatedBy,
		UpdatedAt: time.Now().UTC(),
	}
	b.transport.Broadcast(ws.OwnerRoom, ws.EventFileChanged, payload)
	for _, room := range b.shares.RoomsForFile(ctx, fileID) {
		b.transport.Broadcast(room, ws.EventFileChanged, payload)
	}
}

func (b *Broker) broadcastResolution(event string, cr store.ChangeRequest, payload ws.ResolutionPayload) {
	b.transport.Broadcast(ws.OwnerRoom, event, payload)
	if cr.ShareID != "" {
		b.transport.Broadcast(ws.ShareRoom(cr.ShareID), event, payload)
	} else {
		log.Printf(`{"level":"info","msg":"resolution without share room","change":%q,"event":%q}`, cr.ID, event)
	}
}

func changePayload(cr store.ChangeRequest) ws.ChangePayload {
	return ws.ChangePayload{
		ID:               cr.ID,
		FileID:           cr.FileID,
		FileName:         cr.FileName,
		CollaboratorName: cr.CollaboratorName,
		ShareID:          cr.ShareID,
		Changes:          ws.ContentDiff{From: cr.ContentFrom, To: cr.ContentTo},
		Timestamp:        cr.CreatedAt,
	}
}
