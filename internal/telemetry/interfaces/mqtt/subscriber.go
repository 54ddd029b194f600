package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"

	"greenhouse-cloud/internal/config"
	"greenhouse-cloud/internal/observability/metrics"
	telemetryapp "greenhouse-cloud/internal/telemetry/application"
)

const connectRetries = 5

// Subscriber bridges an MQTT telemetry topic into the ingest service. It is
// an optional transport; devices on constrained links publish instead of
// calling the HTTP ingest endpoint.
type Subscriber struct {
	client  mqtt.Client
	service *telemetryapp.Service
	topic   string
	logger  *log.Logger
}

// Connect dials the broker with exponential backoff and returns a subscriber.
func Connect(ctx context.Context, cfg config.MQTT, service *telemetryapp.Service, logger *log.Logger) (*Subscriber, error) {
	if cfg.BrokerURL == "" {
		return nil, errors.New("mqtt subscriber: empty broker url")
	}
	if service == nil {
		return nil, errors.New("mqtt subscriber: nil service")
	}
	if logger == nil {
		logger = log.Default()
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 10 * time.Second

	var client mqtt.Client
	err := backoff.Retry(func() error {
		client = mqtt.NewClient(opts)
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			logger.Printf("mqtt: connect %s: %v", cfg.BrokerURL, token.Error())
			return token.Error()
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, connectRetries-1), ctx))
	if err != nil {
		return nil, fmt.Errorf("mqtt subscriber: connect after retries: %w", err)
	}
	logger.Printf("mqtt: connected to %s", cfg.BrokerURL)

	return &Subscriber{
		client:  client,
		service: service,
		topic:   cfg.Topic,
		logger:  logger,
	}, nil
}

// Run subscribes to the telemetry topic and blocks until ctx is cancelled.
func (s *Subscriber) Run(ctx context.Context) error {
	token := s.client.Subscribe(s.topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		s.handle(ctx, msg)
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt subscriber: subscribe %s: %w", s.topic, token.Error())
	}
	s.logger.Printf("mqtt: subscribed to %s", s.topic)

	<-ctx.Done()

	s.client.Unsubscribe(s.topic).Wait()
	s.client.Disconnect(250)
	return nil
}

func (s *Subscriber) handle(ctx context.Context, msg mqtt.Message) {
	var req telemetryapp.IngestRequest
	if err := json.Unmarshal(msg.Payload(), &req); err != nil {
		s.logger.Printf("mqtt: invalid payload on %s: %v", msg.Topic(), err)
		metrics.IncMQTTMessage(false)
		return
	}
	if req.DeviceID == "" {
		req.DeviceID = deviceIDFromTopic(msg.Topic())
	}

	if err := s.service.Ingest(ctx, req); err != nil {
		s.logger.Printf("mqtt: ingest device=%s: %v", req.DeviceID, err)
		metrics.IncMQTTMessage(false)
		return
	}
	metrics.IncMQTTMessage(true)
}

// deviceIDFromTopic extracts the device segment from topics shaped like
// greenhouse/<device_id>/telemetry.
func deviceIDFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}
