package store

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/thewrongjames/steamwhistle/internal/docstore"
	"github.com/thewrongjames/steamwhistle/internal/model"
)

// Store implements every role view on top of a document store. Components
// should receive it through the narrowest interface that serves them.
type Store struct {
	docs   docstore.Store
	logger *zap.Logger
}

// New wraps a document store.
func New(docs docstore.Store, logger *zap.Logger) *Store {
	return &Store{docs: docs, logger: logger}
}

var (
	_ ReconcilerStore = (*Store)(nil)
	_ PollerStore     = (*Store)(nil)
	_ NotifierStore   = (*Store)(nil)
	_ ClientStore     = (*Store)(nil)
)

// CatalogItemExists reports whether games/{appId} exists.
func (s *Store) CatalogItemExists(ctx context.Context, appID int64) (bool, error) {
	snap, err := s.docs.Get(ctx, CatalogItemPath(appID))
	if err != nil {
		return false, err
	}
	return snap.Exists, nil
}

// CreateCatalogItem writes a brand new catalog item. It returns
// docstore.ErrAlreadyExists if another writer got there first.
func (s *Store) CreateCatalogItem(ctx context.Context, item model.NewCatalogItem) error {
	return s.docs.Create(ctx, CatalogItemPath(item.AppID), item)
}

// GetCatalogItem returns the parsed catalog item, or nil if it does not exist.
func (s *Store) GetCatalogItem(ctx context.Context, appID int64) (*model.CatalogItem, error) {
	snap, err := s.docs.Get(ctx, CatalogItemPath(appID))
	if err != nil {
		return nil, err
	}
	if !snap.Exists {
		return nil, nil
	}
	item, err := model.ParseCatalogItem(snap.Path, snap.Data)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// ListCatalogAppIDs returns the app ID of every catalog item.
func (s *Store) ListCatalogAppIDs(ctx context.Context) ([]int64, error) {
	snaps, err := s.docs.List(ctx, GamesCollection)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(snaps))
	for _, snap := range snaps {
		id, err := strconv.ParseInt(snap.ID(), 10, 64)
		if err != nil {
			s.logger.Error("catalog item has a non-numeric id", zap.String("path", snap.Path))
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// MergeCatalogPrice merges fresh price fields into an existing catalog item.
// It returns docstore.ErrNotFound if the item has been deleted.
func (s *Store) MergeCatalogPrice(ctx context.Context, appID int64, update model.PriceUpdate) error {
	return s.docs.Update(ctx, CatalogItemPath(appID), update)
}

// StampWatchlistEntry merges server-managed timestamps into a watchlist entry.
func (s *Store) StampWatchlistEntry(ctx context.Context, uid string, appID int64, stamp model.WatchlistStamp) error {
	return s.docs.Update(ctx, WatchlistEntryPath(uid, appID), stamp)
}

// PutWatcher upserts games/{appId}/watchers/{uid}.
func (s *Store) PutWatcher(ctx context.Context, appID int64, watcher model.Watcher) error {
	return s.docs.Set(ctx, WatcherPath(appID, watcher.UID), watcher)
}

// DeleteWatcher removes one watcher. A missing watcher is not an error.
func (s *Store) DeleteWatcher(ctx context.Context, appID int64, uid string) error {
	return s.docs.Delete(ctx, WatcherPath(appID, uid))
}

// DeleteWatchers removes every watcher of an app and returns how many went.
func (s *Store) DeleteWatchers(ctx context.Context, appID int64) (int, error) {
	collection := docstore.Join(CatalogItemPath(appID), WatchersCollection)
	snaps, err := s.docs.List(ctx, collection)
	if err != nil {
		return 0, err
	}
	for i, snap := range snaps {
		if err := s.docs.Delete(ctx, snap.Path); err != nil {
			return i, err
		}
	}
	return len(snaps), nil
}

// ListWatchers returns the valid watchers of an app. Invalid watcher
// documents are logged and skipped.
func (s *Store) ListWatchers(ctx context.Context, appID int64) ([]model.Watcher, error) {
	snaps, err := s.docs.List(ctx, docstore.Join(CatalogItemPath(appID), WatchersCollection))
	if err != nil {
		return nil, err
	}
	watchers := make([]model.Watcher, 0, len(snaps))
	for _, snap := range snaps {
		w, err := model.ParseWatcher(snap.Path, snap.Data)
		if err != nil {
			s.logger.Error("skipping invalid watcher", zap.String("path", snap.Path), zap.Error(err))
			continue
		}
		watchers = append(watchers, w)
	}
	return watchers, nil
}

// ListDevices returns the valid devices registered by a user.
func (s *Store) ListDevices(ctx context.Context, uid string) ([]model.Device, error) {
	snaps, err := s.docs.List(ctx, docstore.Join(UsersCollection, uid, DevicesCollection))
	if err != nil {
		return nil, err
	}
	devices := make([]model.Device, 0, len(snaps))
	for _, snap := range snaps {
		d, err := model.ParseDevice(snap.Path, snap.Data)
		if err != nil {
			s.logger.Error("skipping invalid device", zap.String("path", snap.Path), zap.Error(err))
			continue
		}
		d.ID = snap.ID()
		devices = append(devices, d)
	}
	return devices, nil
}

// PutDevice registers or replaces a push endpoint for a user.
func (s *Store) PutDevice(ctx context.Context, uid string, device model.Device) error {
	if device.ID == "" {
		return fmt.Errorf("device id is required")
	}
	return s.docs.Set(ctx, DevicePath(uid, device.ID), device)
}

// DeleteDevice removes a registered push endpoint.
func (s *Store) DeleteDevice(ctx context.Context, uid, deviceID string) error {
	return s.docs.Delete(ctx, DevicePath(uid, deviceID))
}

// ListWatchlist returns the user's valid watchlist entries.
func (s *Store) ListWatchlist(ctx context.Context, uid string) ([]model.WatchlistEntry, error) {
	snaps, err := s.docs.List(ctx, docstore.Join(UsersCollection, uid, WatchlistCollection))
	if err != nil {
		return nil, err
	}
	entries := make([]model.WatchlistEntry, 0, len(snaps))
	for _, snap := range snaps {
		e, err := model.ParseWatchlistEntry(snap.Path, snap.Data)
		if err != nil {
			s.logger.Error("skipping invalid watchlist entry", zap.String("path", snap.Path), zap.Error(err))
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// GetWatchlistEntry returns one entry, or nil if the user is not watching the app.
func (s *Store) GetWatchlistEntry(ctx context.Context, uid string, appID int64) (*model.WatchlistEntry, error) {
	snap, err := s.docs.Get(ctx, WatchlistEntryPath(uid, appID))
	if err != nil {
		return nil, err
	}
	if !snap.Exists {
		return nil, nil
	}
	e, err := model.ParseWatchlistEntry(snap.Path, snap.Data)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// PutWatchlistEntry merges the client-owned fields into the entry so the
// server-managed timestamps survive.
func (s *Store) PutWatchlistEntry(ctx context.Context, uid string, entry model.WatchlistWrite) error {
	return s.docs.Merge(ctx, WatchlistEntryPath(uid, entry.AppID), entry)
}

// DeleteWatchlistEntry removes the user's entry for an app.
func (s *Store) DeleteWatchlistEntry(ctx context.Context, uid string, appID int64) error {
	return s.docs.Delete(ctx, WatchlistEntryPath(uid, appID))
}
