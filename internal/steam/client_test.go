package steam

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/thewrongjames/steamwhistle/config"
	"github.com/thewrongjames/steamwhistle/internal/model"
)

// A helper function to point a client at a fake storefront.
func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *observer.ObservedLogs) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	core, logs := observer.New(zapcore.InfoLevel)
	client := NewClient(&config.SteamConfig{
		BaseURL:     server.URL,
		CountryCode: "au",
		Currency:    "AUD",
	}, zap.New(core))
	return client, logs
}

func respondWith(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}
}

func TestPriceData_MixedResponse(t *testing.T) {
	var gotQuery map[string]string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{
			"appids":  r.URL.Query().Get("appids"),
			"filters": r.URL.Query().Get("filters"),
			"cc":      r.URL.Query().Get("cc"),
		}
		assert.Equal(t, "/appdetails", r.URL.Path)
		respondWith(`{
			"1": {"success": true, "data": {"price_overview": {"currency": "AUD", "initial": 5000, "final": 3500, "discount_percent": 30}}},
			"2": {"success": true, "data": []},
			"3": {"success": false}
		}`)(w, r)
	})

	prices, err := client.PriceData(context.Background(), []int64{1, 2, 3})
	require.NoError(t, err)

	assert.Equal(t, map[int64]model.PriceInfo{
		1: {IsFree: false, PriceData: model.PriceData{Final: 3500, Initial: 5000, DiscountPercentage: 30}},
		2: model.FreePrice(),
		3: model.FreePrice(),
	}, prices)
	assert.Equal(t, map[string]string{"appids": "1,2,3", "filters": "price_overview", "cc": "au"}, gotQuery)
}

func TestPriceData_SkipsMalformedEntries(t *testing.T) {
	client, logs := newTestClient(t, respondWith(`{
		"1": {"success": true, "data": {"price_overview": {"currency": "AUD", "initial": 5000, "final": 3500, "discount_percent": 30}}},
		"2": {"success": true, "data": {"price_overview": {"currency": "AUD", "final": "cheap"}}},
		"3": {"data": {}},
		"abc": {"success": true}
	}`))

	prices, err := client.PriceData(context.Background(), []int64{1, 2, 3})
	require.NoError(t, err)

	assert.Len(t, prices, 1)
	assert.Contains(t, prices, int64(1))
	assert.Equal(t, 3, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
}

func TestPriceData_MissingAppIsAbsent(t *testing.T) {
	client, _ := newTestClient(t, respondWith(`{"1": {"success": true, "data": []}}`))

	prices, err := client.PriceData(context.Background(), []int64{1, 2})
	require.NoError(t, err)
	assert.Contains(t, prices, int64(1))
	assert.NotContains(t, prices, int64(2))
}

func TestPriceData_RoundsDiscount(t *testing.T) {
	client, _ := newTestClient(t, respondWith(`{
		"1": {"success": true, "data": {"price_overview": {"currency": "AUD", "initial": 3000, "final": 1999, "discount_percent": 33.4}}}
	}`))

	prices, err := client.PriceData(context.Background(), []int64{1})
	require.NoError(t, err)
	assert.Equal(t, int64(33), prices[1].PriceData.DiscountPercentage)
}

func TestPriceData_WarnsOnUnexpectedCurrency(t *testing.T) {
	client, logs := newTestClient(t, respondWith(`{
		"1": {"success": true, "data": {"price_overview": {"currency": "USD", "initial": 1000, "final": 1000, "discount_percent": 0}}}
	}`))

	prices, err := client.PriceData(context.Background(), []int64{1})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), prices[1].PriceData.Final, "the price is still used")

	warnings := logs.FilterLevelExact(zapcore.WarnLevel).All()
	require.Len(t, warnings, 1)
	assert.Equal(t, "USD", warnings[0].ContextMap()["currency"])
}

func TestPriceData_UpstreamError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	prices, err := client.PriceData(context.Background(), []int64{1})
	assert.ErrorIs(t, err, ErrUpstream)
	assert.Nil(t, prices)
}

func TestPriceData_NotAnObject(t *testing.T) {
	client, _ := newTestClient(t, respondWith(`[1, 2, 3]`))

	_, err := client.PriceData(context.Background(), []int64{1})
	assert.Error(t, err)
}

func TestPriceData_EmptyInputMakesNoRequest(t *testing.T) {
	called := false
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	prices, err := client.PriceData(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, prices)
	assert.False(t, called)
}

func TestAppDetails(t *testing.T) {
	t.Run("paid app", func(t *testing.T) {
		var filters string
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			filters = r.URL.Query().Get("filters")
			respondWith(`{"42": {"success": true, "data": {"name": "Portal", "price_overview": {"currency": "AUD", "initial": 5000, "final": 5000, "discount_percent": 0}}}}`)(w, r)
		})

		app, err := client.AppDetails(context.Background(), 42)
		require.NoError(t, err)
		require.NotNil(t, app)
		assert.Equal(t, "basic,price_overview", filters)
		assert.Equal(t, int64(42), app.AppID)
		assert.Equal(t, "Portal", app.Name)
		assert.False(t, app.IsFree)
		assert.Equal(t, int64(5000), app.PriceData.Final)
	})

	t.Run("free app", func(t *testing.T) {
		client, _ := newTestClient(t, respondWith(`{"7": {"success": true, "data": {"name": "Free Thing"}}}`))

		app, err := client.AppDetails(context.Background(), 7)
		require.NoError(t, err)
		require.NotNil(t, app)
		assert.True(t, app.IsFree)
		assert.Equal(t, model.PriceData{}, app.PriceData)
	})

	t.Run("unsuccessful lookup has no usable data", func(t *testing.T) {
		client, _ := newTestClient(t, respondWith(`{"9": {"success": false}}`))

		app, err := client.AppDetails(context.Background(), 9)
		require.NoError(t, err)
		assert.Nil(t, app)
	})

	t.Run("upstream failure", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		})

		app, err := client.AppDetails(context.Background(), 9)
		assert.ErrorIs(t, err, ErrUpstream)
		assert.Nil(t, app)
	})
}
