package store

import "time"

// Change request lifecycle. PENDING is the only state that permits a
// transition; APPROVED and REJECTED are terminal.
const (
	StatusPending  = "PENDING"
	StatusApproved = "APPROVED"
	StatusRejected = "REJECTED"
)

type User struct {
	ID          string
	DisplayName string
	Role        string
	ShareID     string
	CreatedAt   time.Time
}

// File is the metadata record for an editable file or folder. Text
// content lives in the git file store; binary originals in the blob
// bucket.
type File struct {
	ID        string
	Name      string
	Path      string
	ParentID  string
	IsFolder  bool
	Language  string
	Size      int64
	BlobKey   string
	UpdatedBy string
	UpdatedAt time.Time
}

type Share struct {
	ID        string
	FolderID  string
	CreatedBy string
	CreatedAt time.Time
}

// ChangeRequest is the authoritative record of a proposed edit awaiting
// the owner's decision. Terminal records are retained for audit and are
// never deleted here.
type ChangeRequest struct {
	ID               string
	FileID           string
	FileName         string
	CollaboratorName string
	ShareID          string
	ContentFrom      string
	ContentTo        string
	Status           string
	CreatedAt        time.Time
	ResolvedAt       *time.Time
	ResolvedBy       string
}

type CommitInfo struct {
	Hash      string
	Message   string
	Author    string
	CreatedAt time.Time
	Added     int
	Removed   int
}
