package steam

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/thewrongjames/steamwhistle/config"
	"github.com/thewrongjames/steamwhistle/internal/model"
)

// ErrUpstream is returned when the storefront answers with a non-2xx status.
// It means the whole lookup failed, not one app.
var ErrUpstream = errors.New("steam storefront request failed")

const (
	priceFilters   = "price_overview"
	detailsFilters = "basic,price_overview"
)

// Client looks up prices on the Steam storefront appdetails endpoint and
// normalizes them into model types.
type Client struct {
	baseURL     string
	countryCode string
	currency    string
	client      *http.Client
	limiter     *rate.Limiter
	logger      *zap.Logger
}

// NewClient creates a storefront client from configuration.
func NewClient(cfg *config.SteamConfig, logger *zap.Logger) *Client {
	var transport http.RoundTripper = &http.Transport{}
	if cfg.HTTPProxy != "" {
		proxyURL, err := url.Parse(cfg.HTTPProxy)
		if err != nil {
			logger.Warn("invalid steam proxy URL, not using a proxy", zap.String("proxy", cfg.HTTPProxy), zap.Error(err))
		} else {
			transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		countryCode: cfg.CountryCode,
		currency:    cfg.Currency,
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
}

// PriceData fetches prices for every app in one request. The result holds
// only the apps whose entries validated; apps Steam did not mention are
// simply absent.
func (c *Client) PriceData(ctx context.Context, appIDs []int64) (map[int64]model.PriceInfo, error) {
	results := make(map[int64]model.PriceInfo, len(appIDs))
	if len(appIDs) == 0 {
		return results, nil
	}

	entries, err := c.fetch(ctx, appIDs, priceFilters)
	if err != nil {
		return nil, err
	}

	for key, raw := range entries {
		appID, data, ok := c.decodeEntry(key, raw)
		if !ok {
			continue
		}
		info, ok := c.normalizePrice(appID, data)
		if !ok {
			continue
		}
		results[appID] = info
	}
	return results, nil
}

// AppDetails fetches the name and price of a single app. It returns nil
// without an error when Steam has no usable data for the app.
func (c *Client) AppDetails(ctx context.Context, appID int64) (*model.App, error) {
	entries, err := c.fetch(ctx, []int64{appID}, detailsFilters)
	if err != nil {
		return nil, err
	}

	raw, ok := entries[strconv.FormatInt(appID, 10)]
	if !ok {
		c.logger.Error("steam response did not include the requested app", zap.Int64("app_id", appID))
		return nil, nil
	}

	_, data, ok := c.decodeEntry(strconv.FormatInt(appID, 10), raw)
	if !ok {
		return nil, nil
	}
	if data == nil || data.Name == nil || *data.Name == "" {
		c.logger.Error("steam returned no name for app", zap.Int64("app_id", appID))
		return nil, nil
	}
	info, ok := c.normalizePrice(appID, data)
	if !ok {
		return nil, nil
	}
	return &model.App{AppID: appID, Name: *data.Name, PriceInfo: info}, nil
}

// decodeEntry validates one value of the response object. A nil data with ok
// set means the entry is well formed but carries no data (unsuccessful or
// empty).
func (c *Client) decodeEntry(key string, raw json.RawMessage) (int64, *appData, bool) {
	appID, err := strconv.ParseInt(key, 10, 64)
	if err != nil || appID <= 0 {
		c.logger.Error("steam response has a non-numeric app id", zap.String("key", key))
		return 0, nil, false
	}

	var resp appDetailsResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		c.logger.Error("unexpected steam response for app", zap.Int64("app_id", appID), zap.Error(err))
		return 0, nil, false
	}
	if err := model.Validate(&resp); err != nil {
		c.logger.Error("unexpected steam response for app", zap.Int64("app_id", appID), zap.Error(err))
		return 0, nil, false
	}
	if !*resp.Success {
		c.logger.Error("steam reported failure for app", zap.Int64("app_id", appID))
		return appID, nil, true
	}
	if emptyData(resp.Data) {
		return appID, nil, true
	}

	var data appData
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		c.logger.Error("unexpected steam data for app", zap.Int64("app_id", appID), zap.Error(err))
		return 0, nil, false
	}
	if data.PriceOverview != nil {
		if err := model.Validate(data.PriceOverview); err != nil {
			c.logger.Error("unexpected steam price overview for app", zap.Int64("app_id", appID), zap.Error(err))
			return 0, nil, false
		}
	}
	return appID, &data, true
}

// normalizePrice maps validated data onto PriceInfo. A failed lookup or a
// missing price overview both mean the app is treated as free.
func (c *Client) normalizePrice(appID int64, data *appData) (model.PriceInfo, bool) {
	if data == nil || data.PriceOverview == nil {
		return model.FreePrice(), true
	}
	po := data.PriceOverview
	if c.currency != "" && *po.Currency != c.currency {
		c.logger.Warn("steam returned an unexpected currency",
			zap.Int64("app_id", appID),
			zap.String("currency", *po.Currency),
			zap.String("expected", c.currency))
	}
	return model.PriceInfo{
		IsFree: false,
		PriceData: model.PriceData{
			Final:              *po.Final,
			Initial:            *po.Initial,
			DiscountPercentage: po.discount(),
		},
	}, true
}

// fetch issues one appdetails request and returns the raw per-app entries.
func (c *Client) fetch(ctx context.Context, appIDs []int64, filters string) (map[string]json.RawMessage, error) {
	ids := make([]string, len(appIDs))
	for i, id := range appIDs {
		ids[i] = strconv.FormatInt(id, 10)
	}
	query := url.Values{}
	query.Set("appids", strings.Join(ids, ","))
	query.Set("filters", filters)
	if c.countryCode != "" {
		query.Set("cc", c.countryCode)
	}
	endpoint := c.baseURL + "/appdetails?" + query.Encode()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("steam rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	start := time.Now()
	c.logger.Info("steam request start", zap.Int("apps", len(appIDs)), zap.String("filters", filters))
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Info("steam request complete",
		zap.Int("apps", len(appIDs)),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var entries map[string]json.RawMessage
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("steam response is not a JSON object: %w", err)
	}
	if entries == nil {
		return nil, errors.New("steam response is not a JSON object: null")
	}
	return entries, nil
}
