package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"valve-gateway/internal/config"
	gwerrors "valve-gateway/internal/errors"
	"valve-gateway/internal/homeassistant"
	"valve-gateway/internal/hub"
	"valve-gateway/internal/logger"
	"valve-gateway/internal/metrics"
)

const publishTimeout = 5 * time.Second

// Publisher mirrors hub events to an MQTT broker and carries gateway status and diagnostics.
// The broker is optional: while disconnected, events are skipped.
type Publisher struct {
	client     paho.Client
	settings   config.MQTTSettings
	topics     Topics
	topicCtx   *TopicContext
	status     *StatusTopic
	diagnostic *DiagnosticTopic
	metrics    metrics.MetricsCollector

	mu        sync.RWMutex
	connected bool
}

// NewPublisher creates a publisher with a last will of offline on the status topic
func NewPublisher(settings config.MQTTSettings, m metrics.MetricsCollector) *Publisher {
	p := newPublisher(settings, m)

	opts := paho.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", settings.Broker, settings.Port))
	opts.SetClientID(settings.ClientID)
	opts.SetUsername(settings.Username)
	opts.SetPassword(settings.Password)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(settings.KeepAlive)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetWill(p.topics.Status, StatusOffline, 0, true)

	// Callback for connection
	opts.SetOnConnectHandler(func(client paho.Client) {
		p.setConnected(true)
		logger.LogInfo("✅ MQTT publisher connected to %s:%d", settings.Broker, settings.Port)

		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := p.status.PublishOnline(ctx, client); err != nil {
			logger.LogWarn("Could not publish online status: %v", err)
		}
		if err := p.PublishDiscovery(ctx); err != nil {
			logger.LogError("⚠️ Error publishing discovery configs: %v", err)
		}
	})

	// Callback for disconnection
	opts.SetConnectionLostHandler(func(client paho.Client, err error) {
		p.setConnected(false)
		logger.LogError("MQTT publisher disconnected: %v", err)
	})

	p.client = paho.NewClient(opts)
	return p
}

func newPublisher(settings config.MQTTSettings, m metrics.MetricsCollector) *Publisher {
	if m == nil {
		m = metrics.NewNullMetrics()
	}
	topics := NewTopics(settings.TopicPrefix)
	return &Publisher{
		settings:   settings,
		topics:     topics,
		topicCtx:   NewTopicContext(topics),
		status:     NewStatusTopic(topics.Status),
		diagnostic: NewDiagnosticTopic(topics.Diagnostic),
		metrics:    m,
	}
}

// Connect connects to the broker with infinite retry until ctx is done
func (p *Publisher) Connect(ctx context.Context) error {
	retryDelay := p.settings.RetryDelay
	if retryDelay == 0 {
		retryDelay = 5 * time.Second
	}

	for attempt := 1; ; attempt++ {
		logger.LogInfo("🔄 Connecting to MQTT broker (attempt %d)...", attempt)

		token := p.client.Connect()
		if token.Wait() && token.Error() == nil {
			p.setConnected(true)
			logger.LogInfo("✅ MQTT broker connected after %d attempt(s)", attempt)
			return nil
		}

		err := gwerrors.NewMQTTError("connect", token.Error(), p.settings.Broker)
		logger.LogWarn("%v, retrying in %.0f seconds", err, retryDelay.Seconds())

		select {
		case <-ctx.Done():
			return fmt.Errorf("mqtt connection cancelled: %w", ctx.Err())
		case <-time.After(retryDelay):
		}
	}
}

// Disconnect publishes offline and closes the connection
func (p *Publisher) Disconnect() {
	if p.IsConnected() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := p.status.PublishOffline(ctx, p.client); err != nil {
			logger.LogDebug("Could not publish offline status: %v", err)
		}
		cancel()
	}

	p.setConnected(false)
	if p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}

// IsConnected reports whether the broker connection is up
func (p *Publisher) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected && p.client.IsConnected()
}

// PublishEvent mirrors a hub event to its topic
func (p *Publisher) PublishEvent(ctx context.Context, ev hub.Event) error {
	handler := p.topicCtx.GetHandler(ev.Type)
	if handler == nil {
		logger.LogTrace("No MQTT topic for %s events", ev.Type)
		return nil
	}
	if !p.IsConnected() {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := handler.PublishState(ctx, p.client, ev.Data); err != nil {
		p.metrics.IncMQTTErrors()
		return gwerrors.NewMQTTError("publish", err, p.settings.Broker).WithTopic(handler.GetTopic())
	}
	p.metrics.IncMQTTPublishes()
	return nil
}

// PublishStatus publishes the retained online/offline status
func (p *Publisher) PublishStatus(ctx context.Context, online bool) error {
	if !p.IsConnected() {
		return nil
	}
	if err := p.status.PublishState(ctx, p.client, online); err != nil {
		p.metrics.IncMQTTErrors()
		return gwerrors.NewMQTTError("publish_status", err, p.settings.Broker).WithTopic(p.status.GetTopic())
	}
	return nil
}

// PublishDiagnostic publishes a diagnostic code and message
func (p *Publisher) PublishDiagnostic(ctx context.Context, code int, message string) error {
	if !p.IsConnected() {
		return fmt.Errorf("mqtt not connected")
	}
	if err := p.diagnostic.PublishDiagnostic(ctx, p.client, code, message); err != nil {
		p.metrics.IncMQTTErrors()
		return err
	}
	return nil
}

// PublishDiscovery publishes the retained Home Assistant discovery configs.
// Brokers drop retained messages on restart, so this runs on every connect.
func (p *Publisher) PublishDiscovery(ctx context.Context) error {
	if p.settings.DiscoveryPrefix == "" {
		return nil
	}
	msgs, err := homeassistant.Messages(homeassistant.Settings{
		DiscoveryPrefix: p.settings.DiscoveryPrefix,
		DeviceID:        p.settings.DeviceID,
		DeviceName:      p.settings.DeviceName,
		TelemetryTopic:  p.topics.Telemetry,
		StatusTopic:     p.topics.Status,
		DiagnosticTopic: p.topics.Diagnostic,
	})
	if err != nil {
		return err
	}

	logger.LogDebug("📡 Publishing %d discovery configs under %s", len(msgs), p.settings.DiscoveryPrefix)
	for _, m := range msgs {
		if err := publish(ctx, p.client, m.Topic, true, m.Payload); err != nil {
			p.metrics.IncMQTTErrors()
			return gwerrors.NewMQTTError("publish_discovery", err, p.settings.Broker).WithTopic(m.Topic)
		}
	}
	return nil
}

// Topics returns the topic set in use
func (p *Publisher) Topics() Topics {
	return p.topics
}

func (p *Publisher) setConnected(connected bool) {
	p.mu.Lock()
	p.connected = connected
	p.mu.Unlock()
}

var _ gwerrors.DiagnosticPublisher = (*Publisher)(nil)
