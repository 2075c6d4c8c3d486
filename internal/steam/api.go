package steam

import (
	"bytes"
	"encoding/json"
	"math"
)

// appDetailsResponse models one value of the appdetails response object,
// which is keyed by app ID string.
type appDetailsResponse struct {
	Success *bool           `json:"success" validate:"required"`
	Data    json.RawMessage `json:"data"`
}

// appData is the "data" member. Steam encodes an empty object as [] when the
// requested filters have nothing to report, which happens for free apps.
type appData struct {
	Name          *string        `json:"name"`
	PriceOverview *priceOverview `json:"price_overview"`
}

type priceOverview struct {
	Currency        *string  `json:"currency" validate:"required"`
	Initial         *int64   `json:"initial" validate:"required,gte=0"`
	Final           *int64   `json:"final" validate:"required,gte=0"`
	DiscountPercent *float64 `json:"discount_percent" validate:"required,gte=0"`
}

func (p *priceOverview) discount() int64 {
	return int64(math.Round(*p.DiscountPercent))
}

func emptyData(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("[]"))
}
