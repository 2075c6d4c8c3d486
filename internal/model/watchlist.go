package model

import "time"

// WatchlistEntry is a user's request to hear about price drops on one app.
// Its identity is (owner uid, AppID) and it lives at users/{uid}/watchlist/{appId}.
type WatchlistEntry struct {
	AppID     int64
	Threshold int64
	IsActive  bool
	Created   *time.Time
	Updated   *time.Time
}

type watchlistEntryDoc struct {
	AppID     *int64     `json:"appId" validate:"required,gt=0"`
	Threshold *int64     `json:"threshold" validate:"required,gt=0"`
	IsActive  *bool      `json:"isActive" validate:"required"`
	Created   *time.Time `json:"created"`
	Updated   *time.Time `json:"updated"`
}

// ParseWatchlistEntry validates a raw watchlist document.
func ParseWatchlistEntry(path string, raw []byte) (WatchlistEntry, error) {
	var doc watchlistEntryDoc
	if err := decodeStrict("watchlist entry", path, raw, &doc); err != nil {
		return WatchlistEntry{}, err
	}
	return WatchlistEntry{
		AppID:     *doc.AppID,
		Threshold: *doc.Threshold,
		IsActive:  *doc.IsActive,
		Created:   doc.Created,
		Updated:   doc.Updated,
	}, nil
}

// SameSubscription reports whether two entries agree on the fields that make
// a change meaningful. Only such changes advance the updated timestamp.
func (e WatchlistEntry) SameSubscription(other WatchlistEntry) bool {
	return e.AppID == other.AppID && e.Threshold == other.Threshold
}

// WatchlistWrite is what a client may write to its own watchlist entry.
type WatchlistWrite struct {
	AppID     int64 `json:"appId"`
	Threshold int64 `json:"threshold"`
	IsActive  bool  `json:"isActive"`
}

// WatchlistStamp holds the server-managed timestamps of a watchlist entry.
type WatchlistStamp struct {
	Created *time.Time `json:"created,omitempty"`
	Updated time.Time  `json:"updated"`
}
