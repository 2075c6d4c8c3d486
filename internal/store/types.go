package store

import (
	"context"
	"strconv"

	"github.com/thewrongjames/steamwhistle/internal/docstore"
	"github.com/thewrongjames/steamwhistle/internal/model"
)

// Collection names.
const (
	UsersCollection     = "users"
	WatchlistCollection = "watchlist"
	DevicesCollection   = "devices"
	GamesCollection     = "games"
	WatchersCollection  = "watchers"
)

// Trigger path patterns.
const (
	WatchlistEntryPattern = "users/{uid}/watchlist/{appId}"
	CatalogItemPattern    = "games/{appId}"
)

// WatchlistEntryPath is users/{uid}/watchlist/{appId}.
func WatchlistEntryPath(uid string, appID int64) string {
	return docstore.Join(UsersCollection, uid, WatchlistCollection, strconv.FormatInt(appID, 10))
}

// DevicePath is users/{uid}/devices/{deviceID}.
func DevicePath(uid, deviceID string) string {
	return docstore.Join(UsersCollection, uid, DevicesCollection, deviceID)
}

// CatalogItemPath is games/{appId}.
func CatalogItemPath(appID int64) string {
	return docstore.Join(GamesCollection, strconv.FormatInt(appID, 10))
}

// WatcherPath is games/{appId}/watchers/{uid}.
func WatcherPath(appID int64, uid string) string {
	return docstore.Join(CatalogItemPath(appID), WatchersCollection, uid)
}

// The interfaces below are the only way components reach the documents.
// Each one carries exactly the writes its component owns: the catalog's
// price fields belong to the poller, catalog creation and watchers belong to
// the reconciler, and the notifier can write nothing under games/.

// ReconcilerStore is the reconciler's view.
type ReconcilerStore interface {
	CatalogItemExists(ctx context.Context, appID int64) (bool, error)
	CreateCatalogItem(ctx context.Context, item model.NewCatalogItem) error
	StampWatchlistEntry(ctx context.Context, uid string, appID int64, stamp model.WatchlistStamp) error
	PutWatcher(ctx context.Context, appID int64, watcher model.Watcher) error
	DeleteWatcher(ctx context.Context, appID int64, uid string) error
	DeleteWatchers(ctx context.Context, appID int64) (int, error)
}

// PollerStore is the poller's view.
type PollerStore interface {
	ListCatalogAppIDs(ctx context.Context) ([]int64, error)
	MergeCatalogPrice(ctx context.Context, appID int64, update model.PriceUpdate) error
}

// NotifierStore is the notifier's view.
type NotifierStore interface {
	ListWatchers(ctx context.Context, appID int64) ([]model.Watcher, error)
	ListDevices(ctx context.Context, uid string) ([]model.Device, error)
	DeleteDevice(ctx context.Context, uid, deviceID string) error
}

// ClientStore is what the HTTP API may do on behalf of a user.
type ClientStore interface {
	GetCatalogItem(ctx context.Context, appID int64) (*model.CatalogItem, error)
	ListWatchlist(ctx context.Context, uid string) ([]model.WatchlistEntry, error)
	GetWatchlistEntry(ctx context.Context, uid string, appID int64) (*model.WatchlistEntry, error)
	PutWatchlistEntry(ctx context.Context, uid string, entry model.WatchlistWrite) error
	DeleteWatchlistEntry(ctx context.Context, uid string, appID int64) error
	PutDevice(ctx context.Context, uid string, device model.Device) error
	DeleteDevice(ctx context.Context, uid, deviceID string) error
}
