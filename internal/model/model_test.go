package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWatchlistEntry(t *testing.T) {
	testCases := []struct {
		name      string
		raw       string
		expected  WatchlistEntry
		expectErr bool
	}{
		{
			name:     "Valid entry without timestamps",
			raw:      `{"appId":42,"threshold":4000,"isActive":true}`,
			expected: WatchlistEntry{AppID: 42, Threshold: 4000, IsActive: true},
		},
		{
			name:     "Inactive entry",
			raw:      `{"appId":42,"threshold":1,"isActive":false}`,
			expected: WatchlistEntry{AppID: 42, Threshold: 1, IsActive: false},
		},
		{name: "Zero threshold", raw: `{"appId":42,"threshold":0,"isActive":true}`, expectErr: true},
		{name: "Negative threshold", raw: `{"appId":42,"threshold":-5,"isActive":true}`, expectErr: true},
		{name: "Fractional threshold", raw: `{"appId":42,"threshold":40.5,"isActive":true}`, expectErr: true},
		{name: "Missing appId", raw: `{"threshold":4000,"isActive":true}`, expectErr: true},
		{name: "Missing isActive", raw: `{"appId":42,"threshold":4000}`, expectErr: true},
		{name: "String appId", raw: `{"appId":"42","threshold":4000,"isActive":true}`, expectErr: true},
		{name: "Not an object", raw: `[1,2,3]`, expectErr: true},
		{name: "Empty", raw: ``, expectErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			entry, err := ParseWatchlistEntry("users/u1/watchlist/42", []byte(tc.raw))
			if tc.expectErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrValidation))
				var verr *ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, "users/u1/watchlist/42", verr.Path)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, entry)
		})
	}
}

func TestParseWatchlistEntry_Timestamps(t *testing.T) {
	entry, err := ParseWatchlistEntry("", []byte(`{"appId":42,"threshold":4000,"isActive":true,"created":"2024-01-02T03:04:05Z","updated":"2024-01-03T03:04:05Z"}`))
	require.NoError(t, err)
	require.NotNil(t, entry.Created)
	require.NotNil(t, entry.Updated)
	assert.Equal(t, 2, entry.Created.Day())
	assert.Equal(t, 3, entry.Updated.Day())
}

func TestWatchlistEntry_SameSubscription(t *testing.T) {
	base := WatchlistEntry{AppID: 42, Threshold: 4000, IsActive: true}

	assert.True(t, base.SameSubscription(WatchlistEntry{AppID: 42, Threshold: 4000, IsActive: false}))
	assert.False(t, base.SameSubscription(WatchlistEntry{AppID: 42, Threshold: 3999, IsActive: true}))
	assert.False(t, base.SameSubscription(WatchlistEntry{AppID: 43, Threshold: 4000, IsActive: true}))
}

func TestParseCatalogItem(t *testing.T) {
	item, err := ParseCatalogItem("games/42", []byte(`{
		"appId": 42, "name": "Portal", "isFree": false,
		"priceData": {"final": 3500, "initial": 5000, "discountPercentage": 30},
		"created": "2024-01-02T03:04:05Z"
	}`))
	require.NoError(t, err)
	assert.Equal(t, int64(42), item.AppID)
	assert.Equal(t, "Portal", item.Name)
	assert.Equal(t, PriceData{Final: 3500, Initial: 5000, DiscountPercentage: 30}, item.PriceData)
	assert.NotNil(t, item.Created)
	assert.Nil(t, item.Updated)

	for name, raw := range map[string]string{
		"negative price":    `{"appId":42,"name":"P","isFree":false,"priceData":{"final":-1,"initial":0,"discountPercentage":0}}`,
		"missing priceData": `{"appId":42,"name":"P","isFree":false}`,
		"partial priceData": `{"appId":42,"name":"P","isFree":false,"priceData":{"final":1}}`,
		"missing name":      `{"appId":42,"isFree":false,"priceData":{"final":1,"initial":1,"discountPercentage":0}}`,
	} {
		_, err := ParseCatalogItem("games/42", []byte(raw))
		assert.ErrorIs(t, err, ErrValidation, name)
	}
}

func TestParseWatcher(t *testing.T) {
	w, err := ParseWatcher("games/42/watchers/u1", []byte(`{"uid":"u1","threshold":4000}`))
	require.NoError(t, err)
	assert.Equal(t, Watcher{UID: "u1", Threshold: 4000}, w)

	_, err = ParseWatcher("games/42/watchers/u1", []byte(`{"uid":"","threshold":4000}`))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestWatcher_Satisfied(t *testing.T) {
	w := Watcher{UID: "u1", Threshold: 4000}
	assert.False(t, w.Satisfied(4000), "equal price does not satisfy")
	assert.True(t, w.Satisfied(3999))
	assert.False(t, w.Satisfied(5000))
}

func TestParseDevice(t *testing.T) {
	d, err := ParseDevice("users/u1/devices/d1", []byte(`{"deviceToken":"https://push.example/abc","p256dh":"k","auth":"a"}`))
	require.NoError(t, err)
	assert.Equal(t, "https://push.example/abc", d.DeviceToken)

	_, err = ParseDevice("users/u1/devices/d1", []byte(`{"p256dh":"k"}`))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestFreePrice(t *testing.T) {
	assert.Equal(t, PriceInfo{IsFree: true, PriceData: PriceData{Final: 0, Initial: 0, DiscountPercentage: 0}}, FreePrice())
}
