package ws

import (
	"encoding/json"
	"fmt"
	"time"
)

// Server-to-client event names.
const (
	EventChangePending   = "change-pending"
	EventChangeRequested = "change-requested"
	EventChangeApproved  = "change-approved"
	EventChangeRejected  = "change-rejected"
	EventFileChanged     = "file-changed"
	EventPong            = "pong-test"
)

// Client-to-server event names.
const (
	EventIdentify  = "identify"
	EventJoinRoom  = "join-room"
	EventLeaveRoom = "leave-room"
	EventPing      = "ping-test"
)

// OwnerRoom is the broadcast group for every connection identified as
// owner. Share rooms are keyed per share id, see ShareRoom.
const OwnerRoom = "owner-room"

func ShareRoom(shareID string) string {
	return "share:" + shareID
}

// Envelope is the wire frame for every message in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func NewEnvelope(event string, payload any) (Envelope, error) {
	if payload == nil {
		return Envelope{Event: event}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", event, err)
	}
	return Envelope{Event: event, Data: data}, nil
}

// ContentDiff carries the before and after snapshots of a proposed edit.
type ContentDiff struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ChangePayload is the body of change-pending and change-requested.
type ChangePayload struct {
	ID               string      `json:"id"`
	FileID           string      `json:"fileId"`
	FileName         string      `json:"fileName"`
	CollaboratorName string      `json:"collaboratorName"`
	ShareID          string      `json:"shareId,omitempty"`
	Changes          ContentDiff `json:"changes"`
	Timestamp        time.Time   `json:"timestamp"`
}

// ResolutionPayload is the body of change-approved and change-rejected.
// NewContent is set on approval, OriginalContent on rejection.
type ResolutionPayload struct {
	ChangeID        string `json:"changeId"`
	FileID          string `json:"fileId"`
	FileName        string `json:"fileName"`
	NewContent      string `json:"newContent,omitempty"`
	OriginalContent string `json:"originalContent,omitempty"`
}

// FilePayload is the body of file-changed.
type FilePayload struct {
	FileID    string    `json:"fileId"`
	FileName  string    `json:"fileName"`
	UpdatedBy string    `json:"updatedBy,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IdentifyPayload is what a client announces about itself on connect
// and again after any role or share context change.
type IdentifyPayload struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	Role     string `json:"role"`
	ShareID  string `json:"shareId,omitempty"`
}

// RoomPayload is the body of join-room and leave-room.
type RoomPayload struct {
	Room string `json:"room"`
}
