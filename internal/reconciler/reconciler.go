package reconciler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/thewrongjames/steamwhistle/internal/docstore"
	"github.com/thewrongjames/steamwhistle/internal/model"
	"github.com/thewrongjames/steamwhistle/internal/store"
	"github.com/thewrongjames/steamwhistle/internal/trigger"
)

// AppSource looks up a single app for catalog creation. A nil app with a nil
// error means the source has no usable data for it.
type AppSource interface {
	AppDetails(ctx context.Context, appID int64) (*model.App, error)
}

// Reconciler keeps each catalog item's watchers in lockstep with the users'
// watchlists and creates catalog items the first time an app is watched.
type Reconciler struct {
	store  store.ReconcilerStore
	source AppSource
	logger *zap.Logger
	now    func() time.Time
}

// New creates a Reconciler. A nil now uses time.Now.
func New(s store.ReconcilerStore, source AppSource, logger *zap.Logger, now func() time.Time) *Reconciler {
	if now == nil {
		now = time.Now
	}
	return &Reconciler{store: s, source: source, logger: logger, now: now}
}

// Register wires the reconciler's triggers into d.
func (r *Reconciler) Register(d *trigger.Dispatcher) {
	d.OnWrite("watchlist-reconciler", trigger.MustParsePattern(store.WatchlistEntryPattern), r.HandleWatchlistWrite)
	d.OnWrite("catalog-cascade", trigger.MustParsePattern(store.CatalogItemPattern), r.HandleCatalogItemDelete)
}

// HandleWatchlistWrite reacts to a create, update or delete of
// users/{uid}/watchlist/{appId}.
func (r *Reconciler) HandleWatchlistWrite(ctx context.Context, ev trigger.Event) error {
	uid := ev.Params["uid"]
	appID, err := strconv.ParseInt(ev.Params["appId"], 10, 64)
	if uid == "" || err != nil || appID <= 0 {
		return fmt.Errorf("invalid trigger params uid=%q appId=%q", ev.Params["uid"], ev.Params["appId"])
	}
	log := r.logger.With(zap.String("uid", uid), zap.Int64("app_id", appID))

	if !ev.After.Exists {
		log.Debug("watchlist entry deleted, removing watcher")
		return r.store.DeleteWatcher(ctx, appID, uid)
	}

	entry, err := model.ParseWatchlistEntry(ev.After.Path, ev.After.Data)
	if err != nil {
		return fmt.Errorf("received invalid watchlist entry, write validation should have prevented this: %w", err)
	}
	if entry.AppID != appID {
		return &model.ValidationError{
			Kind:   "watchlist entry",
			Path:   ev.After.Path,
			Reason: fmt.Errorf("appId %d does not match its path", entry.AppID),
		}
	}

	stamp, err := r.stampFor(ev, entry)
	if err != nil {
		return err
	}
	if stamp != nil {
		err := r.store.StampWatchlistEntry(ctx, uid, appID, *stamp)
		if errors.Is(err, docstore.ErrNotFound) {
			// Deleted since this write; its own delete event removes the watcher.
			log.Debug("watchlist entry removed before stamping")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to stamp watchlist entry: %w", err)
		}
	}

	// The catalog lookup must not hold up the watcher. Its error, if any, is
	// reported once the watcher is in place.
	catalogErr := r.ensureCatalogItem(ctx, log, appID)

	if entry.IsActive {
		err = r.store.PutWatcher(ctx, appID, model.Watcher{UID: uid, Threshold: entry.Threshold})
	} else {
		err = r.store.DeleteWatcher(ctx, appID, uid)
	}
	if err != nil {
		return errors.Join(fmt.Errorf("failed to reconcile watcher: %w", err), catalogErr)
	}
	return catalogErr
}

// stampFor decides which server-managed timestamps to write. Only creation
// and changes to the subscription itself are stamped, so the write caused by
// stamping comes back here as a no-op.
func (r *Reconciler) stampFor(ev trigger.Event, entry model.WatchlistEntry) (*model.WatchlistStamp, error) {
	now := r.now().UTC()
	if !ev.Before.Exists {
		stamp := &model.WatchlistStamp{Updated: now}
		if entry.Created == nil {
			stamp.Created = &now
		}
		return stamp, nil
	}

	before, err := model.ParseWatchlistEntry(ev.Before.Path, ev.Before.Data)
	if err != nil {
		return nil, fmt.Errorf("received invalid previous watchlist entry: %w", err)
	}
	if before.SameSubscription(entry) {
		return nil, nil
	}
	return &model.WatchlistStamp{Updated: now}, nil
}

func (r *Reconciler) ensureCatalogItem(ctx context.Context, log *zap.Logger, appID int64) error {
	exists, err := r.store.CatalogItemExists(ctx, appID)
	if err != nil {
		return fmt.Errorf("failed to check catalog item: %w", err)
	}
	if exists {
		return nil
	}

	log.Info("attempting to add catalog item")
	app, err := r.source.AppDetails(ctx, appID)
	if err != nil {
		return fmt.Errorf("failed to look up app %d: %w", appID, err)
	}
	if app == nil {
		log.Error("unable to get app data from the price source, watcher stays dormant")
		return nil
	}

	now := r.now().UTC()
	err = r.store.CreateCatalogItem(ctx, model.NewCatalogItem{
		AppID:     appID,
		Name:      app.Name,
		IsFree:    app.IsFree,
		PriceData: app.PriceData,
		Created:   now,
		Updated:   now,
	})
	if errors.Is(err, docstore.ErrAlreadyExists) {
		log.Debug("catalog item was created concurrently")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create catalog item: %w", err)
	}
	log.Info("catalog item created", zap.String("name", app.Name))
	return nil
}

// HandleCatalogItemDelete removes every watcher of a deleted catalog item.
// Other writes to games/{appId} are ignored.
func (r *Reconciler) HandleCatalogItemDelete(ctx context.Context, ev trigger.Event) error {
	if ev.After.Exists {
		return nil
	}
	appID, err := strconv.ParseInt(ev.Params["appId"], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid trigger param appId=%q", ev.Params["appId"])
	}
	n, err := r.store.DeleteWatchers(ctx, appID)
	if err != nil {
		return fmt.Errorf("failed to delete watchers of app %d: %w", appID, err)
	}
	r.logger.Info("catalog item deleted, watchers removed", zap.Int64("app_id", appID), zap.Int("watchers", n))
	return nil
}
