package model

import "time"

// PriceData is a price snapshot in minor currency units.
type PriceData struct {
	Final              int64 `json:"final"`
	Initial            int64 `json:"initial"`
	DiscountPercentage int64 `json:"discountPercentage"`
}

// PriceInfo is the normalized price of one app from the price source.
type PriceInfo struct {
	IsFree    bool      `json:"isFree"`
	PriceData PriceData `json:"priceData"`
}

// FreePrice is the normalized price of an app with no price overview.
func FreePrice() PriceInfo {
	return PriceInfo{IsFree: true}
}

// App is a single-app lookup result: price plus display name.
type App struct {
	AppID int64
	Name  string
	PriceInfo
}

// CatalogItem is the global record of a tracked app, stored at games/{appId}.
type CatalogItem struct {
	AppID     int64
	Name      string
	IsFree    bool
	PriceData PriceData
	Created   *time.Time
	Updated   *time.Time
}

type priceDataDoc struct {
	Final              *int64 `json:"final" validate:"required,gte=0"`
	Initial            *int64 `json:"initial" validate:"required,gte=0"`
	DiscountPercentage *int64 `json:"discountPercentage" validate:"required,gte=0"`
}

type catalogItemDoc struct {
	AppID     *int64        `json:"appId" validate:"required,gt=0"`
	Name      *string       `json:"name" validate:"required"`
	IsFree    *bool         `json:"isFree" validate:"required"`
	PriceData *priceDataDoc `json:"priceData" validate:"required"`
	Created   *time.Time    `json:"created"`
	Updated   *time.Time    `json:"updated"`
}

// ParseCatalogItem validates a raw catalog document.
func ParseCatalogItem(path string, raw []byte) (CatalogItem, error) {
	var doc catalogItemDoc
	if err := decodeStrict("catalog item", path, raw, &doc); err != nil {
		return CatalogItem{}, err
	}
	return CatalogItem{
		AppID:  *doc.AppID,
		Name:   *doc.Name,
		IsFree: *doc.IsFree,
		PriceData: PriceData{
			Final:              *doc.PriceData.Final,
			Initial:            *doc.PriceData.Initial,
			DiscountPercentage: *doc.PriceData.DiscountPercentage,
		},
		Created: doc.Created,
		Updated: doc.Updated,
	}, nil
}

// NewCatalogItem is the full record written once, when an app is first watched.
type NewCatalogItem struct {
	AppID     int64     `json:"appId"`
	Name      string    `json:"name"`
	IsFree    bool      `json:"isFree"`
	PriceData PriceData `json:"priceData"`
	Created   time.Time `json:"created"`
	Updated   time.Time `json:"updated"`
}

// PriceUpdate is the partial record the poller merges into a catalog item.
// It has no way to express the name or creation time.
type PriceUpdate struct {
	IsFree    bool      `json:"isFree"`
	PriceData PriceData `json:"priceData"`
	Updated   time.Time `json:"updated"`
}
