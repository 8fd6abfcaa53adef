package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Users

func (s *PostgresStore) EnsureUserByName(ctx context.Context, name, role, shareID string) (User, error) {
	const findUser = `SELECT id, display_name, role, COALESCE(share_id, '') FROM users WHERE display_name = $1`
	var user User
	err := s.db.QueryRowContext(ctx, findUser, name).Scan(&user.ID, &user.DisplayName, &user.Role, &user.ShareID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("lookup user: %w", err)
	}

	const insertUser = `
		INSERT INTO users (display_name, role, share_id)
		VALUES ($1, $2, NULLIF($3, ''))
		RETURNING id, display_name, role, COALESCE(share_id, '')
	`
	if err := s.db.QueryRowContext(ctx, insertUser, name, role, shareID).Scan(&user.ID, &user.DisplayName, &user.Role, &user.ShareID); err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, display_name, role, COALESCE(share_id, '') FROM users WHERE id=$1`, userID,
	).Scan(&user.ID, &user.DisplayName, &user.Role, &user.ShareID)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// Refresh sessions (Postgres fallback when Redis is not configured)

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash string, user User, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, user.ID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.display_name, u.role, COALESCE(u.share_id, '')
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&user.ID, &user.DisplayName, &user.Role, &user.ShareID)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, expiresAt)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM revoked_tokens WHERE jti=$1 AND expires_at > NOW()`, jti,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return count > 0, nil
}

// Files

func (s *PostgresStore) ListFiles(ctx context.Context, parentID string) ([]File, error) {
	const query = `
		SELECT id, name, path, COALESCE(parent_id, ''), is_folder, COALESCE(language, ''), size, COALESCE(blob_key, ''), updated_by, updated_at
		FROM files
		WHERE COALESCE(parent_id, '') = $1
		ORDER BY is_folder DESC, name ASC
	`
	rows, err := s.db.QueryContext(ctx, query, parentID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var files []File
	for rows.Next() {
		var f File
		if err := rows.Scan(&f.ID, &f.Name, &f.Path, &f.ParentID, &f.IsFolder, &f.Language, &f.Size, &f.BlobKey, &f.UpdatedBy, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

func (s *PostgresStore) GetFile(ctx context.Context, fileID string) (File, error) {
	const query = `
		SELECT id, name, path, COALESCE(parent_id, ''), is_folder, COALESCE(language, ''), size, COALESCE(blob_key, ''), updated_by, updated_at
		FROM files WHERE id=$1
	`
	var f File
	err := s.db.QueryRowContext(ctx, query, fileID).Scan(&f.ID, &f.Name, &f.Path, &f.ParentID, &f.IsFolder, &f.Language, &f.Size, &f.BlobKey, &f.UpdatedBy, &f.UpdatedAt)
	if err != nil {
		return File{}, err
	}
	return f, nil
}

func (s *PostgresStore) InsertFile(ctx context.Context, f File) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO files (id, name, path, parent_id, is_folder, language, size, blob_key, updated_by)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, NULLIF($6, ''), $7, NULLIF($8, ''), $9)
	`, f.ID, f.Name, f.Path, f.ParentID, f.IsFolder, f.Language, f.Size, f.BlobKey, f.UpdatedBy)
	if err != nil {
		return fmt.Errorf("insert file: %w", err)
	}
	return nil
}

// TouchFile refreshes a file's metadata after a content write. The new
// text also lands in content_text, which the generated fts vector
// derives its content weight from, so every write keeps search current.
func (s *PostgresStore) TouchFile(ctx context.Context, fileID string, size int64, content, updatedBy string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE files SET size=$2, content_text=$3, updated_by=$4, updated_at=NOW() WHERE id=$1
	`, fileID, size, content, updatedBy)
	if err != nil {
		return fmt.Errorf("touch file: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("touch file rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListFilesUnderFolder returns all non-folder files under the folder,
// including nested ones; path uses '/' separators so a prefix match is
// enough. Empty folderID means the workspace root.
func (s *PostgresStore) ListFilesUnderFolder(ctx context.Context, folderID string) ([]File, error) {
	if folderID == "" || folderID == "root" {
		const query = `
			SELECT id, name, path, COALESCE(parent_id, ''), is_folder, COALESCE(language, ''), size, COALESCE(blob_key, ''), updated_by, updated_at
			FROM files WHERE NOT is_folder ORDER BY path ASC
		`
		return s.queryFiles(ctx, query)
	}
	const query = `
		SELECT f.id, f.name, f.path, COALESCE(f.parent_id, ''), f.is_folder, COALESCE(f.language, ''), f.size, COALESCE(f.blob_key, ''), f.updated_by, f.updated_at
		FROM files f
		JOIN files folder ON folder.id = $1 AND folder.is_folder
		WHERE NOT f.is_folder AND f.path LIKE folder.path || '/%'
		ORDER BY f.path ASC
	`
	return s.queryFiles(ctx, query, folderID)
}

func (s *PostgresStore) queryFiles(ctx context.Context, query string, args ...any) ([]File, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query files: %w", err)
	}
	defer rows.Close()

	var files []File
	for rows.Next() {
		var f File
		if err := rows.Scan(&f.ID, &f.Name, &f.Path, &f.ParentID, &f.IsFolder, &f.Language, &f.Size, &f.BlobKey, &f.UpdatedBy, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// Shares

func (s *PostgresStore) InsertShare(ctx context.Context, share Share) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO shares (id, folder_id, created_by)
		VALUES ($1, NULLIF($2, ''), $3)
	`, share.ID, share.FolderID, share.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert share: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetShare(ctx context.Context, shareID string) (Share, error) {
	var share Share
	err := s.db.QueryRowContext(ctx,
		`SELECT id, COALESCE(folder_id, ''), created_by, created_at FROM shares WHERE id=$1`, shareID,
	).Scan(&share.ID, &share.FolderID, &share.CreatedBy, &share.CreatedAt)
	if err != nil {
		return Share{}, err
	}
	return share, nil
}

// Change requests

func (s *PostgresStore) CreateChangeRequest(ctx context.Context, cr ChangeRequest) (ChangeRequest, error) {
	const query = `
		INSERT INTO change_requests (id, file_id, file_name, collaborator_name, share_id, content_from, content_to, status)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8)
		RETURNING created_at
	`
	cr.Status = StatusPending
	err := s.db.QueryRowContext(ctx, query,
		cr.ID, cr.FileID, cr.FileName, cr.CollaboratorName, cr.ShareID, cr.ContentFrom, cr.ContentTo, cr.Status,
	).Scan(&cr.CreatedAt)
	if err != nil {
		return ChangeRequest{}, fmt.Errorf("create change request: %w", err)
	}
	return cr, nil
}

func (s *PostgresStore) GetChangeRequest(ctx context.Context, changeID string) (ChangeRequest, error) {
	const query = `
		SELECT id, file_id, file_name, collaborator_name, COALESCE(share_id, ''), content_from, content_to, status, created_at, resolved_at, COALESCE(resolved_by, '')
		FROM change_requests WHERE id=$1
	`
	var cr ChangeRequest
	err := s.db.QueryRowContext(ctx, query, changeID).Scan(
		&cr.ID, &cr.FileID, &cr.FileName, &cr.CollaboratorName, &cr.ShareID,
		&cr.ContentFrom, &cr.ContentTo, &cr.Status, &cr.CreatedAt, &cr.ResolvedAt, &cr.ResolvedBy,
	)
	if err != nil {
		return ChangeRequest{}, err
	}
	return cr, nil
}

// TransitionChangeRequest moves a PENDING request to a terminal status.
// The row-count check makes Postgres the serialization point: when two
// callers race, exactly one sees the update land and every other caller
// gets ErrAlreadyResolved.
func (s *PostgresStore) TransitionChangeRequest(ctx context.Context, changeID, newStatus, resolvedBy string) error {
	if newStatus != StatusApproved && newStatus != StatusRejected {
		return ErrInvalidStatus
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE change_requests
		SET status=$2, resolved_at=NOW(), resolved_by=$3
		WHERE id=$1 AND status=$4
	`, changeID, newStatus, resolvedBy, StatusPending)
	if err != nil {
		return fmt.Errorf("transition change request: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition rows: %w", err)
	}
	if affected == 0 {
		// Distinguish a resolved record from a missing one.
		var status string
		err := s.db.QueryRowContext(ctx, `SELECT status FROM change_requests WHERE id=$1`, changeID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return sql.ErrNoRows
		}
		if err != nil {
			return fmt.Errorf("read change request status: %w", err)
		}
		return ErrAlreadyResolved
	}
	return nil
}

func (s *PostgresStore) ListChangeRequests(ctx context.Context, status string, limit int) ([]ChangeRequest, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, file_id, file_name, collaborator_name, COALESCE(share_id, ''), content_from, content_to, status, created_at, resolved_at, COALESCE(resolved_by, '')
		FROM change_requests
	`
	args := []any{}
	if status != "" {
		query += ` WHERE status=$1 ORDER BY created_at DESC LIMIT $2`
		args = append(args, status, limit)
	} else {
		query += ` ORDER BY created_at DESC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list change requests: %w", err)
	}
	defer rows.Close()

	var items []ChangeRequest
	for rows.Next() {
		var cr ChangeRequest
		if err := rows.Scan(
			&cr.ID, &cr.FileID, &cr.FileName, &cr.CollaboratorName, &cr.ShareID,
			&cr.ContentFrom, &cr.ContentTo, &cr.Status, &cr.CreatedAt, &cr.ResolvedAt, &cr.ResolvedBy,
		); err != nil {
			return nil, fmt.Errorf("scan change request: %w", err)
		}
		items = append(items, cr)
	}
	return items, rows.Err()
}

// ListShareIDsForFile returns the ids of every share whose folder
// contains the file, used to route file-changed events.
func (s *PostgresStore) ListShareIDsForFile(ctx context.Context, fileID string) ([]string, error) {
	const query = `
		SELECT sh.id
		FROM shares sh
		JOIN files folder ON folder.id = sh.folder_id
		JOIN files f ON f.path LIKE folder.path || '/%'
		WHERE f.id = $1
	`
	rows, err := s.db.QueryContext(ctx, query, fileID)
	if err != nil {
		return nil, fmt.Errorf("list shares for file: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan share id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
