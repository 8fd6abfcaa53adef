package app

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"net/http"
	"path"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"livesh/api/internal/auth"
	"livesh/api/internal/authpw"
	"livesh/api/internal/blob"
	"livesh/api/internal/broker"
	"livesh/api/internal/config"
	"livesh/api/internal/filestore"
	"livesh/api/internal/rbac"
	"livesh/api/internal/search"
	"livesh/api/internal/session"
	"livesh/api/internal/share"
	"livesh/api/internal/store"
	"livesh/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Role         string
	ShareID      string
	JTI          string
	ExpiresAt    time.Time
}

type LoginInput struct {
	Name       string `json:"name"`
	Passphrase string `json:"passphrase"`
	ShareID    string `json:"shareId"`
}

type CreateFileInput struct {
	Name     string `json:"name"`
	ParentID string `json:"parentId"`
	IsFolder bool   `json:"isFolder"`
	Content  string `json:"content"`
}

type RequestChangeInput struct {
	FileID      string `json:"fileId"`
	ContentFrom string `json:"contentFrom"`
	ContentTo   string `json:"contentTo"`
	ShareID     string `json:"shareId"`
}

// UploadEntry is one file out of an uploaded folder tree. RelPath is
// the path the browser reported, relative to the picked folder.
type UploadEntry struct {
	Name        string
	RelPath     string
	Content     []byte
	ContentType string
}

type dataStore interface {
	EnsureUserByName(ctx context.Context, name, role, shareID string) (store.User, error)
	GetUserByID(ctx context.Context, userID string) (store.User, error)
	RevokeAccessToken(ctx context.Context, jti string, expiresAt time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)
	ListFiles(ctx context.Context, parentID string) ([]store.File, error)
	GetFile(ctx context.Context, fileID string) (store.File, error)
	InsertFile(ctx context.Context, f store.File) error
	TouchFile(ctx context.Context, fileID string, size int64, content, updatedBy string) error
	ListFilesUnderFolder(ctx context.Context, folderID string) ([]store.File, error)
	GetShare(ctx context.Context, shareID string) (store.Share, error)
	ListChangeRequests(ctx context.Context, status string, limit int) ([]store.ChangeRequest, error)
	Ping(ctx context.Context) error
}

// RefreshStore is satisfied by the Redis session store and, when Redis
// is not configured, by the Postgres store.
type RefreshStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type fileStore interface {
	EnsureFile(ctx context.Context, fileID, content, author string) error
	ReadFile(ctx context.Context, fileID string) (string, error)
	WriteFile(ctx context.Context, fileID, content, author string) error
	ReadAt(ctx context.Context, fileID, hash string) (string, error)
	History(ctx context.Context, fileID string, limit int) ([]store.CommitInfo, error)
}

type changeBroker interface {
	RequestChange(ctx context.Context, in broker.RequestInput) (store.ChangeRequest, error)
	Approve(ctx context.Context, changeID, resolvedBy string) (store.ChangeRequest, bool, error)
	Reject(ctx context.Context, changeID, resolvedBy string) (store.ChangeRequest, bool, error)
	NotifyFileChanged(ctx context.Context, fileID, fileName, updatedBy string)
}

type shareService interface {
	CreateShare(ctx context.Context, folderID, createdBy string) (store.Share, error)
	ResolveShare(ctx context.Context, shareID string) (broker.Resolution, error)
	InvalidateForFile(ctx context.Context, fileID string)
}

type searchService interface {
	Search(q search.Query) search.Response
	IndexFile(f search.FileRecord)
	DeleteFile(id string)
	ReindexAllFromPG(ctx context.Context)
}

type blobStore interface {
	Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

type ownerVerifier interface {
	VerifyOwner(name, passphrase string) error
	OwnerName() string
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions RefreshStore
	files    fileStore
	broker   changeBroker
	shares   shareService
	search   searchService
	blobs    blobStore
	owner    ownerVerifier
}

func New(cfg config.Config, dataStore *store.PostgresStore, sessions RefreshStore, files *filestore.Service, chg *broker.Broker, shares *share.Service, searchSvc *search.Service, blobs *blob.Service, owner *authpw.Service) *Service {
	s := &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: sessions,
		files:    files,
		broker:   chg,
		shares:   shares,
		search:   searchSvc,
		owner:    owner,
	}
	if blobs != nil {
		s.blobs = blobs
	}
	return s
}

// Bootstrap ensures the owner account and a small starting workspace
// exist, then rebuilds the search index from the database.
func (s *Service) Bootstrap(ctx context.Context) error {
	owner, err := s.store.EnsureUserByName(ctx, s.owner.OwnerName(), string(rbac.RoleOwner), "")
	if err != nil {
		return err
	}

	existing, err := s.store.ListFiles(ctx, "")
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		folder := store.File{
			ID:        util.NewID("file"),
			Name:      "notes",
			Path:      "notes",
			IsFolder:  true,
			UpdatedBy: owner.DisplayName,
		}
		if err := s.store.InsertFile(ctx, folder); err != nil {
			return err
		}

		seeds := []struct {
			Name    string
			Content string
		}{
			{Name: "welcome.md", Content: "# Welcome\n\nShare the notes folder to let collaborators propose edits.\n"},
			{Name: "todo.txt", Content: "- invite collaborators\n- review pending changes\n"},
		}
		for _, seed := range seeds {
			f := store.File{
				ID:        util.NewID("file"),
				Name:      seed.Name,
				Path:      folder.Path + "/" + seed.Name,
				ParentID:  folder.ID,
				Language:  languageForName(seed.Name),
				Size:      int64(len(seed.Content)),
				UpdatedBy: owner.DisplayName,
			}
			if err := s.store.InsertFile(ctx, f); err != nil {
				return err
			}
			if err := s.files.EnsureFile(ctx, f.ID, seed.Content, owner.DisplayName); err != nil {
				return err
			}
			if err := s.store.TouchFile(ctx, f.ID, f.Size, seed.Content, owner.DisplayName); err != nil {
				return err
			}
		}
	}

	s.search.ReindexAllFromPG(ctx)
	return nil
}

func (s *Service) Login(ctx context.Context, in LoginInput) (Session, error) {
	name := strings.TrimSpace(in.Name)

	switch {
	case in.Passphrase != "":
		if err := s.owner.VerifyOwner(name, in.Passphrase); err != nil {
			return Session{}, domainError(http.StatusUnauthorized, "AUTH_INVALID", "invalid owner credentials", nil)
		}
		user, err := s.store.EnsureUserByName(ctx, s.owner.OwnerName(), string(rbac.RoleOwner), "")
		if err != nil {
			return Session{}, err
		}
		return s.issueSession(ctx, user)

	case in.ShareID != "":
		if name == "" {
			name = "Guest"
		}
		if _, err := s.shares.ResolveShare(ctx, in.ShareID); err != nil {
			if errors.Is(err, share.ErrNotFound) || errors.Is(err, sql.ErrNoRows) {
				return Session{}, domainError(http.StatusNotFound, "SHARE_NOT_FOUND", "share link is unknown or expired", nil)
			}
			return Session{}, err
		}
		user, err := s.store.EnsureUserByName(ctx, name, string(rbac.RoleCollaborator), in.ShareID)
		if err != nil {
			return Session{}, err
		}
		return s.issueSession(ctx, user)

	default:
		return Session{}, validationError("either passphrase or shareId is required", nil)
	}
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) || errors.Is(err, sql.ErrNoRows) {
			return Session{}, domainError(http.StatusUnauthorized, "AUTH_INVALID", "refresh token is unknown or expired", nil)
		}
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:     user.ID,
		Name:    user.DisplayName,
		Role:    user.Role,
		ShareID: user.ShareID,
		JTI:     jti,
		Exp:     expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Role:         user.Role,
		ShareID:      user.ShareID,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Role:      user.Role,
		ShareID:   user.ShareID,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, sess Session, refreshToken string) error {
	if sess.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, sess.JTI, sess.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

func (s *Service) ListFiles(ctx context.Context, parentID string) ([]map[string]any, error) {
	files, err := s.store.ListFiles(ctx, parentID)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(files))
	for _, f := range files {
		out = append(out, fileSummary(f))
	}
	return out, nil
}

func (s *Service) GetFile(ctx context.Context, fileID string) (map[string]any, error) {
	f, err := s.store.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	payload := fileSummary(f)
	if !f.IsFolder && f.BlobKey == "" {
		content, err := s.files.ReadFile(ctx, f.ID)
		if err != nil {
			return nil, err
		}
		payload["content"] = content
	}
	return payload, nil
}

func (s *Service) CreateFile(ctx context.Context, in CreateFileInput, createdBy string) (map[string]any, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" || strings.ContainsAny(name, "/\\") {
		return nil, validationError("a file name without path separators is required", nil)
	}

	filePath := name
	if in.ParentID != "" {
		parent, err := s.store.GetFile(ctx, in.ParentID)
		if err != nil {
			return nil, err
		}
		if !parent.IsFolder {
			return nil, validationError("parentId must be a folder", nil)
		}
		filePath = parent.Path + "/" + name
	}

	f := store.File{
		ID:        util.NewID("file"),
		Name:      name,
		Path:      filePath,
		ParentID:  in.ParentID,
		IsFolder:  in.IsFolder,
		Language:  languageForName(name),
		Size:      int64(len(in.Content)),
		UpdatedBy: createdBy,
	}
	if err := s.store.InsertFile(ctx, f); err != nil {
		return nil, err
	}
	if !f.IsFolder {
		if err := s.files.EnsureFile(ctx, f.ID, in.Content, createdBy); err != nil {
			return nil, err
		}
		if err := s.store.TouchFile(ctx, f.ID, f.Size, in.Content, createdBy); err != nil {
			return nil, err
		}
		s.search.IndexFile(search.FileRecord{
			ID:       f.ID,
			Name:     f.Name,
			Path:     f.Path,
			Language: f.Language,
			Content:  in.Content,
		})
		// A file born under an already shared folder must show up on the
		// next resolve, not after the cache TTL.
		s.shares.InvalidateForFile(ctx, f.ID)
	}
	return fileSummary(f), nil
}

// SaveFile applies the owner's direct edit without the request/approve
// round trip and tells every room watching the file.
func (s *Service) SaveFile(ctx context.Context, fileID, content, author string) (map[string]any, error) {
	f, err := s.store.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if f.IsFolder {
		return nil, validationError("folders have no content to save", nil)
	}

	if err := s.files.WriteFile(ctx, f.ID, content, author); err != nil {
		return nil, err
	}
	if err := s.store.TouchFile(ctx, f.ID, int64(len(content)), content, author); err != nil {
		return nil, err
	}
	s.broker.NotifyFileChanged(ctx, f.ID, f.Name, author)
	s.search.IndexFile(search.FileRecord{
		ID:       f.ID,
		Name:     f.Name,
		Path:     f.Path,
		Language: f.Language,
		Content:  content,
	})

	f.Size = int64(len(content))
	f.UpdatedBy = author
	f.UpdatedAt = time.Now().UTC()
	return fileSummary(f), nil
}

func (s *Service) RequestChange(ctx context.Context, sess Session, in RequestChangeInput) (map[string]any, error) {
	f, err := s.store.GetFile(ctx, in.FileID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	shareID := in.ShareID
	if shareID == "" {
		shareID = sess.ShareID
	}

	cr, err := s.broker.RequestChange(ctx, broker.RequestInput{
		FileID:           in.FileID,
		FileName:         f.Name,
		ContentFrom:      in.ContentFrom,
		ContentTo:        in.ContentTo,
		CollaboratorName: sess.UserName,
		RequesterID:      sess.UserID,
		ShareID:          shareID,
	})
	if err != nil {
		if errors.Is(err, broker.ErrValidation) {
			return nil, validationError(err.Error(), nil)
		}
		return nil, err
	}
	return changeSummary(cr), nil
}

func (s *Service) ApproveChange(ctx context.Context, changeID, resolvedBy string) (map[string]any, error) {
	cr, alreadyResolved, err := s.broker.Approve(ctx, changeID, resolvedBy)
	if err != nil {
		return nil, err
	}
	if !alreadyResolved {
		if f, err := s.store.GetFile(ctx, cr.FileID); err == nil {
			_ = s.store.TouchFile(ctx, cr.FileID, int64(len(cr.ContentTo)), cr.ContentTo, resolvedBy)
			s.search.IndexFile(search.FileRecord{
				ID:       f.ID,
				Name:     f.Name,
				Path:     f.Path,
				Language: f.Language,
				Content:  cr.ContentTo,
			})
		}
	}
	payload := changeSummary(cr)
	payload["alreadyResolved"] = alreadyResolved
	return payload, nil
}

func (s *Service) RejectChange(ctx context.Context, changeID, resolvedBy string) (map[string]any, error) {
	cr, alreadyResolved, err := s.broker.Reject(ctx, changeID, resolvedBy)
	if err != nil {
		return nil, err
	}
	payload := changeSummary(cr)
	payload["alreadyResolved"] = alreadyResolved
	return payload, nil
}

func (s *Service) ListChangeRequests(ctx context.Context, status string, limit int) ([]map[string]any, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	requests, err := s.store.ListChangeRequests(ctx, status, limit)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(requests))
	for _, cr := range requests {
		out = append(out, changeSummary(cr))
	}
	return out, nil
}

func (s *Service) CreateShare(ctx context.Context, folderID, createdBy string) (map[string]any, error) {
	sh, err := s.shares.CreateShare(ctx, folderID, createdBy)
	if err != nil {
		if errors.Is(err, share.ErrNotFound) {
			return nil, validationError("shares target an existing folder", nil)
		}
		return nil, err
	}
	return map[string]any{
		"id":        sh.ID,
		"folderId":  sh.FolderID,
		"createdBy": sh.CreatedBy,
		"createdAt": sh.CreatedAt,
		"link":      "/shared/" + sh.ID,
	}, nil
}

// SharedView is what a collaborator following a share link sees: the
// shared folder and the files under it.
func (s *Service) SharedView(ctx context.Context, shareID string) (map[string]any, error) {
	sh, err := s.store.GetShare(ctx, shareID)
	if err != nil {
		return nil, err
	}
	folder, err := s.store.GetFile(ctx, sh.FolderID)
	if err != nil {
		return nil, err
	}
	files, err := s.store.ListFilesUnderFolder(ctx, sh.FolderID)
	if err != nil {
		return nil, err
	}

	items := make([]map[string]any, 0, len(files))
	for _, f := range files {
		items = append(items, fileSummary(f))
	}
	return map[string]any{
		"shareId":    sh.ID,
		"folderId":   folder.ID,
		"folderName": folder.Name,
		"files":      items,
	}, nil
}

// UploadFolder imports a browser folder upload. Text files become
// editable git-backed files; binary files keep their original bytes in
// the blob bucket.
func (s *Service) UploadFolder(ctx context.Context, folderName, uploadedBy string, entries []UploadEntry) (map[string]any, error) {
	folderName = strings.TrimSpace(folderName)
	if folderName == "" {
		return nil, validationError("folder name is required", nil)
	}
	if len(entries) == 0 {
		return nil, validationError("upload contains no files", nil)
	}

	folder := store.File{
		ID:        util.NewID("file"),
		Name:      folderName,
		Path:      folderName,
		IsFolder:  true,
		UpdatedBy: uploadedBy,
	}
	if err := s.store.InsertFile(ctx, folder); err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].RelPath < entries[j].RelPath })

	imported := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		rel := path.Clean(strings.TrimPrefix(entry.RelPath, "/"))
		if rel == "." || strings.HasPrefix(rel, "..") {
			continue
		}

		f := store.File{
			ID:        util.NewID("file"),
			Name:      entry.Name,
			Path:      folder.Path + "/" + rel,
			ParentID:  folder.ID,
			Size:      int64(len(entry.Content)),
			UpdatedBy: uploadedBy,
		}

		if isTextContent(entry.Content) {
			f.Language = languageForName(entry.Name)
			if err := s.store.InsertFile(ctx, f); err != nil {
				return nil, err
			}
			content := string(entry.Content)
			if err := s.files.EnsureFile(ctx, f.ID, content, uploadedBy); err != nil {
				return nil, err
			}
			if err := s.store.TouchFile(ctx, f.ID, f.Size, content, uploadedBy); err != nil {
				return nil, err
			}
			s.search.IndexFile(search.FileRecord{
				ID:       f.ID,
				Name:     f.Name,
				Path:     f.Path,
				Language: f.Language,
				Content:  content,
			})
		} else {
			if s.blobs == nil {
				return nil, validationError("binary uploads need blob storage configured", map[string]any{"file": entry.Name})
			}
			f.BlobKey = "uploads/" + f.ID + "/" + entry.Name
			if err := s.blobs.Put(ctx, f.BlobKey, bytes.NewReader(entry.Content), f.Size, entry.ContentType); err != nil {
				return nil, err
			}
			if err := s.store.InsertFile(ctx, f); err != nil {
				return nil, err
			}
		}
		imported = append(imported, fileSummary(f))
	}

	return map[string]any{
		"folder": fileSummary(folder),
		"files":  imported,
	}, nil
}

func (s *Service) DownloadBlob(ctx context.Context, fileID string) (io.ReadCloser, store.File, error) {
	f, err := s.store.GetFile(ctx, fileID)
	if err != nil {
		return nil, store.File{}, err
	}
	if f.BlobKey == "" {
		return nil, store.File{}, validationError("file has no stored original", nil)
	}
	if s.blobs == nil {
		return nil, store.File{}, domainError(http.StatusServiceUnavailable, "BLOB_UNAVAILABLE", "blob storage is not configured", nil)
	}
	reader, err := s.blobs.Get(ctx, f.BlobKey)
	if err != nil {
		return nil, store.File{}, err
	}
	return reader, f, nil
}

func (s *Service) Search(q search.Query) search.Response {
	return s.search.Search(q)
}

func (s *Service) FileHistory(ctx context.Context, fileID string, limit int) ([]map[string]any, error) {
	if _, err := s.store.GetFile(ctx, fileID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	commits, err := s.files.History(ctx, fileID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(commits))
	for _, commit := range commits {
		out = append(out, map[string]any{
			"hash":      commit.Hash,
			"message":   commit.Message,
			"author":    commit.Author,
			"createdAt": commit.CreatedAt,
		})
	}
	return out, nil
}

func (s *Service) FileVersion(ctx context.Context, fileID, hash string) (map[string]any, error) {
	f, err := s.store.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	content, err := s.files.ReadAt(ctx, fileID, hash)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"fileId":  f.ID,
		"name":    f.Name,
		"hash":    hash,
		"content": content,
	}, nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func fileSummary(f store.File) map[string]any {
	return map[string]any{
		"id":        f.ID,
		"name":      f.Name,
		"path":      f.Path,
		"parentId":  f.ParentID,
		"isFolder":  f.IsFolder,
		"language":  f.Language,
		"size":      f.Size,
		"hasBlob":   f.BlobKey != "",
		"updatedBy": f.UpdatedBy,
		"updatedAt": f.UpdatedAt,
	}
}

func changeSummary(cr store.ChangeRequest) map[string]any {
	payload := map[string]any{
		"id":               cr.ID,
		"fileId":           cr.FileID,
		"fileName":         cr.FileName,
		"collaboratorName": cr.CollaboratorName,
		"shareId":          cr.ShareID,
		"status":           cr.Status,
		"changes": map[string]any{
			"from": cr.ContentFrom,
			"to":   cr.ContentTo,
		},
		"timestamp": cr.CreatedAt,
	}
	if cr.ResolvedAt != nil {
		payload["resolvedAt"] = cr.ResolvedAt
		payload["resolvedBy"] = cr.ResolvedBy
	}
	return payload
}

// isTextContent reports whether uploaded bytes look like editable text.
func isTextContent(content []byte) bool {
	if len(content) == 0 {
		return true
	}
	if bytes.IndexByte(content, 0) >= 0 {
		return false
	}
	return utf8.Valid(content)
}

func languageForName(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".go":
		return "go"
	case ".js", ".mjs":
		return "javascript"
	case ".ts", ".tsx":
		return "typescript"
	case ".py":
		return "python"
	case ".md":
		return "markdown"
	case ".json":
		return "json"
	case ".html":
		return "html"
	case ".css":
		return "css"
	case ".sql":
		return "sql"
	case ".txt", "":
		return "plaintext"
	default:
		return "plaintext"
	}
}
