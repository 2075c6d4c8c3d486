package push

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/thewrongjames/steamwhistle/config"
)

// Sender defines the interface for sending a single web push notification.
type Sender interface {
	Send(ctx context.Context, payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is the real Sender, backed by the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library. The request is
// abandoned when ctx ends.
func (s *WebPushSender) Send(ctx context.Context, payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotificationWithContext(ctx, payload, sub, options)
}

// Recipient is one device endpoint.
type Recipient struct {
	Token  string
	P256DH string
	Auth   string
}

// Notification is the user-visible part of a message.
type Notification struct {
	Title       string `json:"title"`
	Body        string `json:"body"`
	ClickAction string `json:"click_action,omitempty"`
}

// Message is one notification addressed to many devices.
type Message struct {
	Recipients   []Recipient
	Notification Notification
	Data         map[string]string
}

type payload struct {
	Notification Notification      `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
}

// Result is the outcome of sending to one recipient.
type Result struct {
	Token      string
	StatusCode int
	Err        error
}

// Success reports whether the push service accepted the message.
func (r Result) Success() bool {
	return r.Err == nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Expired reports whether the push service says the endpoint is gone for good.
func (r Result) Expired() bool {
	return r.StatusCode == http.StatusNotFound || r.StatusCode == http.StatusGone
}

// BatchResponse collects per-recipient results in recipient order.
type BatchResponse struct {
	Results      []Result
	SuccessCount int
	FailureCount int
}

// Client fans a message out to many devices.
type Client struct {
	options     *webpush.Options
	sender      Sender
	concurrency int
	logger      *zap.Logger
}

// NewClient creates a push client from configuration using the real sender.
func NewClient(cfg *config.PushConfig, logger *zap.Logger) *Client {
	return NewClientWithSender(cfg, &WebPushSender{}, logger)
}

// NewClientWithSender creates a push client with a custom Sender.
func NewClientWithSender(cfg *config.PushConfig, sender Sender, logger *zap.Logger) *Client {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Client{
		options: &webpush.Options{
			Subscriber:      cfg.Subject,
			VAPIDPublicKey:  cfg.PublicKey,
			VAPIDPrivateKey: cfg.PrivateKey,
			TTL:             cfg.TTL,
			Urgency:         webpush.UrgencyHigh,
		},
		sender:      sender,
		concurrency: concurrency,
		logger:      logger,
	}
}

// SendMulticast delivers msg to every recipient. A failure for one recipient
// never stops the others; the outcome of each is in the response.
func (c *Client) SendMulticast(ctx context.Context, msg Message) *BatchResponse {
	resp := &BatchResponse{Results: make([]Result, len(msg.Recipients))}
	if len(msg.Recipients) == 0 {
		return resp
	}

	body, err := json.Marshal(payload{Notification: msg.Notification, Data: msg.Data})
	if err != nil {
		// Unreachable for string maps, but keep every result accounted for.
		for i, r := range msg.Recipients {
			resp.Results[i] = Result{Token: r.Token, Err: fmt.Errorf("failed to encode payload: %w", err)}
		}
		resp.FailureCount = len(msg.Recipients)
		return resp
	}

	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, r := range msg.Recipients {
		i, r := i, r
		g.Go(func() error {
			resp.Results[i] = c.send(ctx, r, body)
			return nil
		})
	}
	g.Wait()

	for _, r := range resp.Results {
		if r.Success() {
			resp.SuccessCount++
		} else {
			resp.FailureCount++
		}
	}
	return resp
}

func (c *Client) send(ctx context.Context, r Recipient, body []byte) Result {
	if err := ctx.Err(); err != nil {
		return Result{Token: r.Token, Err: err}
	}

	sub := &webpush.Subscription{
		Endpoint: r.Token,
		Keys: webpush.Keys{
			P256dh: r.P256DH,
			Auth:   r.Auth,
		},
	}

	httpResp, err := c.sender.Send(ctx, body, sub, c.options)
	if err != nil {
		c.logger.Warn("push send failed", zap.String("endpoint", r.Token), zap.Error(err))
		return Result{Token: r.Token, Err: err}
	}
	defer httpResp.Body.Close()
	io.Copy(io.Discard, httpResp.Body)

	result := Result{Token: r.Token, StatusCode: httpResp.StatusCode}
	if !result.Success() {
		result.Err = fmt.Errorf("push service returned status %d", httpResp.StatusCode)
		c.logger.Warn("push rejected", zap.String("endpoint", r.Token), zap.Int("status", httpResp.StatusCode))
	}
	return result
}
