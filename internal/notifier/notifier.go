package notifier

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"go.uber.org/zap"

	"github.com/thewrongjames/steamwhistle/internal/model"
	"github.com/thewrongjames/steamwhistle/internal/parse"
	"github.com/thewrongjames/steamwhistle/internal/push"
	"github.com/thewrongjames/steamwhistle/internal/store"
	"github.com/thewrongjames/steamwhistle/internal/trigger"
)

// ClickAction tells the client which screen to open from the notification.
const ClickAction = "OPEN_WATCHLIST"

// Multicaster sends one message to many devices and reports per-device results.
type Multicaster interface {
	SendMulticast(ctx context.Context, msg push.Message) *push.BatchResponse
}

// Notifier alerts watchers when a catalog item's price falls below their
// threshold. It never writes to the catalog.
type Notifier struct {
	store          store.NotifierStore
	push           Multicaster
	currencySymbol string
	logger         *zap.Logger
}

// New creates a Notifier.
func New(s store.NotifierStore, m Multicaster, currencySymbol string, logger *zap.Logger) *Notifier {
	return &Notifier{store: s, push: m, currencySymbol: currencySymbol, logger: logger}
}

// Register wires the notifier's trigger into d.
func (n *Notifier) Register(d *trigger.Dispatcher) {
	d.OnWrite("price-drop-notifier", trigger.MustParsePattern(store.CatalogItemPattern), n.HandleCatalogItemWrite)
}

// owner identifies the device document a token was read from.
type owner struct {
	uid      string
	deviceID string
}

// HandleCatalogItemWrite reacts to a write of games/{appId}. An event sends
// one multicast per distinct threshold among the satisfied watchers, so each
// message carries its recipients' exact threshold.
func (n *Notifier) HandleCatalogItemWrite(ctx context.Context, ev trigger.Event) error {
	if !ev.After.Exists {
		return nil
	}
	appID, err := strconv.ParseInt(ev.Params["appId"], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid trigger param appId=%q", ev.Params["appId"])
	}

	after, err := model.ParseCatalogItem(ev.After.Path, ev.After.Data)
	if err != nil {
		return fmt.Errorf("received invalid catalog item: %w", err)
	}
	var before *model.CatalogItem
	if ev.Before.Exists {
		item, err := model.ParseCatalogItem(ev.Before.Path, ev.Before.Data)
		if err != nil {
			return fmt.Errorf("received invalid previous catalog item: %w", err)
		}
		before = &item
	}

	if after.IsFree || (before != nil && before.IsFree) {
		return nil
	}
	if before != nil && before.PriceData.Final == after.PriceData.Final {
		return nil
	}

	log := n.logger.With(zap.Int64("app_id", appID), zap.String("event_id", ev.EventID))
	price := after.PriceData.Final

	watchers, err := n.store.ListWatchers(ctx, appID)
	if err != nil {
		return fmt.Errorf("failed to list watchers: %w", err)
	}

	// Group satisfied watchers by threshold so that every message carries
	// the exact threshold of each recipient.
	byThreshold := make(map[int64][]string)
	for _, w := range watchers {
		if w.Satisfied(price) {
			byThreshold[w.Threshold] = append(byThreshold[w.Threshold], w.UID)
		}
	}
	if len(byThreshold) == 0 {
		log.Debug("price changed but no watcher is satisfied", zap.Int64("price", price))
		return nil
	}

	thresholds := make([]int64, 0, len(byThreshold))
	for t := range byThreshold {
		thresholds = append(thresholds, t)
	}
	slices.Sort(thresholds)

	var errs []error
	owners := make(map[string][]owner)
	for _, threshold := range thresholds {
		var recipients []push.Recipient
		for _, uid := range byThreshold[threshold] {
			devices, err := n.store.ListDevices(ctx, uid)
			if err != nil {
				log.Error("failed to list devices", zap.String("uid", uid), zap.Error(err))
				errs = append(errs, err)
				continue
			}
			for _, d := range devices {
				_, seen := owners[d.DeviceToken]
				owners[d.DeviceToken] = append(owners[d.DeviceToken], owner{uid: uid, deviceID: d.ID})
				if seen {
					continue
				}
				recipients = append(recipients, push.Recipient{Token: d.DeviceToken, P256DH: d.P256DH, Auth: d.Auth})
			}
		}
		if len(recipients) == 0 {
			continue
		}

		resp := n.push.SendMulticast(ctx, n.message(after, threshold, ev.EventID, recipients))
		log.Info("price drop notification sent",
			zap.Int64("price", price),
			zap.Int64("threshold", threshold),
			zap.Int("success", resp.SuccessCount),
			zap.Int("failure", resp.FailureCount))

		for _, result := range resp.Results {
			if result.Expired() {
				n.pruneDevice(ctx, log, owners[result.Token])
			}
		}
	}
	return errors.Join(errs...)
}

func (n *Notifier) message(item model.CatalogItem, threshold int64, eventID string, recipients []push.Recipient) push.Message {
	price := item.PriceData.Final
	body := fmt.Sprintf("You wanted %s for less than %s and it's now %s!",
		item.Name,
		parse.FormatCents(threshold, n.currencySymbol),
		parse.FormatCents(price, n.currencySymbol))

	return push.Message{
		Recipients: recipients,
		Notification: push.Notification{
			Title:       "Price Drop Alert for " + item.Name,
			Body:        body,
			ClickAction: ClickAction,
		},
		Data: map[string]string{
			"appName":      item.Name,
			"appId":        strconv.FormatInt(item.AppID, 10),
			"currentPrice": strconv.FormatInt(price, 10),
			"threshold":    strconv.FormatInt(threshold, 10),
			"eventId":      eventID,
		},
	}
}

// pruneDevice deletes devices whose push endpoint no longer exists. Failures
// are logged only; the next expired send will try again.
func (n *Notifier) pruneDevice(ctx context.Context, log *zap.Logger, owners []owner) {
	for _, o := range owners {
		if err := n.store.DeleteDevice(ctx, o.uid, o.deviceID); err != nil {
			log.Warn("failed to delete expired device", zap.String("uid", o.uid), zap.String("device_id", o.deviceID), zap.Error(err))
			continue
		}
		log.Info("deleted expired device", zap.String("uid", o.uid), zap.String("device_id", o.deviceID))
	}
}
