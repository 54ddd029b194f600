package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	alarms "greenhouse-cloud/internal/alarms/domain"
)

// Notifier delivers a raised alarm to an external channel.
type Notifier interface {
	Notify(ctx context.Context, alarm alarms.Alarm) error
}

// WebhookNotifier POSTs alarms as JSON to a configured URL. Deliveries are
// retried with exponential backoff and guarded by a circuit breaker so a dead
// endpoint cannot stall ingest consumers.
type WebhookNotifier struct {
	url     string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewWebhookNotifier constructs a notifier for the given URL.
func NewWebhookNotifier(url string) (*WebhookNotifier, error) {
	if url == "" {
		return nil, errors.New("webhook notifier: empty url")
	}
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:     "alarm-webhook",
			Interval: 60 * time.Second,
			Timeout:  30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 3
			},
		}),
	}, nil
}

type webhookPayload struct {
	DeviceID   string    `json:"device_id"`
	SensorType string    `json:"sensor_type"`
	Value      float64   `json:"value"`
	Threshold  float64   `json:"threshold"`
	Direction  string    `json:"direction"`
	RaisedAt   time.Time `json:"raised_at"`
}

// Notify delivers one alarm.
func (n *WebhookNotifier) Notify(ctx context.Context, alarm alarms.Alarm) error {
	body, err := json.Marshal(webhookPayload{
		DeviceID:   alarm.DeviceID,
		SensorType: alarm.SensorType,
		Value:      alarm.Value,
		Threshold:  alarm.Threshold,
		Direction:  alarm.Direction,
		RaisedAt:   alarm.RaisedAt,
	})
	if err != nil {
		return err
	}

	_, err = n.breaker.Execute(func() (any, error) {
		bo := backoff.NewExponentialBackOff()
		bo.MaxElapsedTime = 10 * time.Second
		return nil, backoff.Retry(func() error {
			return n.post(ctx, body)
		}, backoff.WithContext(bo, ctx))
	})
	return err
}

func (n *WebhookNotifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook notifier: status %d", resp.StatusCode)
	}
	return nil
}
