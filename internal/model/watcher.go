package model

// Watcher is the per-app projection of a watchlist entry, stored at
// games/{appId}/watchers/{uid}.
type Watcher struct {
	UID       string `json:"uid"`
	Threshold int64  `json:"threshold"`
}

type watcherDoc struct {
	UID       *string `json:"uid" validate:"required,min=1"`
	Threshold *int64  `json:"threshold" validate:"required,gt=0"`
}

// ParseWatcher validates a raw watcher document.
func ParseWatcher(path string, raw []byte) (Watcher, error) {
	var doc watcherDoc
	if err := decodeStrict("watcher", path, raw, &doc); err != nil {
		return Watcher{}, err
	}
	return Watcher{UID: *doc.UID, Threshold: *doc.Threshold}, nil
}

// Satisfied reports whether price is strictly below the watcher's threshold.
func (w Watcher) Satisfied(price int64) bool {
	return w.Threshold > price
}

// Device is one push endpoint registered by a user, stored at
// users/{uid}/devices/{deviceId}.
type Device struct {
	ID          string `json:"-"`
	DeviceToken string `json:"deviceToken"`
	P256DH      string `json:"p256dh"`
	Auth        string `json:"auth"`
}

type deviceDoc struct {
	DeviceToken *string `json:"deviceToken" validate:"required,min=1"`
	P256DH      string  `json:"p256dh"`
	Auth        string  `json:"auth"`
}

// ParseDevice validates a raw device document.
func ParseDevice(path string, raw []byte) (Device, error) {
	var doc deviceDoc
	if err := decodeStrict("device", path, raw, &doc); err != nil {
		return Device{}, err
	}
	return Device{DeviceToken: *doc.DeviceToken, P256DH: doc.P256DH, Auth: doc.Auth}, nil
}
