// Package share issues share links and resolves them to the file set
// and routing rooms they expose. Resolutions are cached in Redis since
// every change request on a shared view resolves its share first.
package share

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"livesh/api/internal/broker"
	"livesh/api/internal/store"
	"livesh/api/internal/util"
	"livesh/api/internal/ws"
)

var ErrNotFound = errors.New("share not found")

type Store interface {
	InsertShare(ctx context.Context, share store.Share) error
	GetShare(ctx context.Context, shareID string) (store.Share, error)
	GetFile(ctx context.Context, fileID string) (store.File, error)
	ListFilesUnderFolder(ctx context.Context, folderID string) ([]store.File, error)
	ListShareIDsForFile(ctx context.Context, fileID string) ([]string, error)
}

type Service struct {
	store Store
	cache *redis.Client
	ttl   time.Duration
}

// New builds the service. cache may be nil, in which case every
// resolve goes to the database.
func New(st Store, cache *redis.Client, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Service{store: st, cache: cache, ttl: ttl}
}

// CreateShare exposes a folder under a new short share id.
func (s *Service) CreateShare(ctx context.Context, folderID, createdBy string) (store.Share, error) {
	folder, err := s.store.GetFile(ctx, folderID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Share{}, fmt.Errorf("share target %s: %w", folderID, ErrNotFound)
	}
	if err != nil {
		return store.Share{}, fmt.Errorf("load share target: %w", err)
	}
	if !folder.IsFolder {
		return store.Share{}, fmt.Errorf("share target %s is not a folder", folderID)
	}

	sh := store.Share{
		ID:        util.ShortID(""),
		FolderID:  folderID,
		CreatedBy: createdBy,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.InsertShare(ctx, sh); err != nil {
		return store.Share{}, err
	}
	return sh, nil
}

type cachedResolution struct {
	FileIDs   []string `json:"fileIds"`
	OwnerRoom string   `json:"ownerRoom"`
}

// ResolveShare expands a share id into the file ids it exposes and the
// room the owner is reached in.
func (s *Service) ResolveShare(ctx context.Context, shareID string) (broker.Resolution, error) {
	if cached, ok := s.fromCache(ctx, shareID); ok {
		return cached, nil
	}

	sh, err := s.store.GetShare(ctx, shareID)
	if errors.Is(err, sql.ErrNoRows) {
		return broker.Resolution{}, ErrNotFound
	}
	if err != nil {
		return broker.Resolution{}, fmt.Errorf("load share: %w", err)
	}

	files, err := s.store.ListFilesUnderFolder(ctx, sh.FolderID)
	if err != nil {
		return broker.Resolution{}, fmt.Errorf("list shared files: %w", err)
	}
	fileIDs := make([]string, 0, len(files))
	for _, f := range files {
		if f.IsFolder {
			continue
		}
		fileIDs = append(fileIDs, f.ID)
	}

	resolution := broker.Resolution{FileIDs: fileIDs, OwnerRoom: ws.OwnerRoom}
	s.toCache(ctx, shareID, resolution)
	return resolution, nil
}

// InvalidateForFile drops the cached resolution of every share whose
// folder contains the file. Called when a file appears under a folder
// that may already be shared, so collaborators see it on the next
// resolve instead of after the cache TTL.
func (s *Service) InvalidateForFile(ctx context.Context, fileID string) {
	if s.cache == nil {
		return
	}
	ids, err := s.store.ListShareIDsForFile(ctx, fileID)
	if err != nil {
		log.Printf(`{"level":"warn","msg":"share invalidation lookup failed","file":%q,"error":%q}`, fileID, err.Error())
		return
	}
	for _, id := range ids {
		if err := s.cache.Del(ctx, s.cacheKey(id)).Err(); err != nil {
			log.Printf(`{"level":"warn","msg":"share cache delete failed","share":%q,"error":%q}`, id, err.Error())
		}
	}
}

// RoomsForFile lists the share rooms watching a file.
func (s *Service) RoomsForFile(ctx context.Context, fileID string) []string {
	ids, err := s.store.ListShareIDsForFile(ctx, fileID)
	if err != nil {
		log.Printf(`{"level":"warn","msg":"rooms for file lookup failed","file":%q,"error":%q}`, fileID, err.Error())
		return nil
	}
	rooms := make([]string, 0, len(ids))
	for _, id := range ids {
		rooms = append(rooms, ws.ShareRoom(id))
	}
	return rooms
}

func (s *Service) cacheKey(shareID string) string {
	return "share:" + shareID
}

func (s *Service) fromCache(ctx context.Context, shareID string) (broker.Resolution, bool) {
	if s.cache == nil {
		return broker.Resolution{}, false
	}
	raw, err := s.cache.Get(ctx, s.cacheKey(shareID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf(`{"level":"warn","msg":"share cache read failed","share":%q,"error":%q}`, shareID, err.Error())
		}
		return broker.Resolution{}, false
	}
	var cached cachedResolution
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		return broker.Resolution{}, false
	}
	return broker.Resolution{FileIDs: cached.FileIDs, OwnerRoom: cached.OwnerRoom}, true
}

func (s *Service) toCache(ctx context.Context, shareID string, resolution broker.Resolution) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(cachedResolution{FileIDs: resolution.FileIDs, OwnerRoom: resolution.OwnerRoom})
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, s.cacheKey(shareID), raw, s.ttl).Err(); err != nil {
		log.Printf(`{"level":"warn","msg":"share cache write failed","share":%q,"error":%q}`, shareID, err.Error())
	}
}
