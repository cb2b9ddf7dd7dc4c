package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"sentinel-brain/internal/config"
	"sentinel-brain/internal/metrics"
	"sentinel-brain/internal/modules/advice/types"
)

// handlerTimeout bounds one reading end to end: decision, log write and
// notification.
const handlerTimeout = 90 * time.Second

// maxInFlight caps readings handled concurrently. Readings arriving while
// every slot is busy are dropped.
const maxInFlight = 8

// ReadingHandler processes one validated sensor reading.
type ReadingHandler func(ctx context.Context, reading types.SensorReading) error

type Subscriber struct {
	client    mqtt.Client
	cfg       config.Config
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool
	handler   ReadingHandler

	// slots bounds in-flight handlers; inflight tracks them for Disconnect.
	slots    chan struct{}
	inflight sync.WaitGroup

	// ctx is cancelled by Disconnect so in-flight handlers stop waiting on
	// the backend.
	ctx      context.Context
	cancel   context.CancelFunc
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewSubscriber(cfg config.Config, logger *slog.Logger) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Subscriber{
		cfg:    cfg,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		stopCh: make(chan struct{}),
		slots:  make(chan struct{}, maxInFlight),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTTBroker, cfg.MQTTPort))
	opts.SetClientID(cfg.MQTTClientID)
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	// Subscribing from the connect handler restores the subscription after
	// every automatic reconnect of a clean session.
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		s.setConnected(true)
		logger.Info("mqtt connected", "broker", cfg.MQTTBroker, "port", cfg.MQTTPort)
		if err := s.subscribe(c); err != nil {
			logger.Error("mqtt subscribe failed", "topic", cfg.MQTTTopic, "error", err)
		}
	})

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.setConnected(false)
		logger.Warn("mqtt connection lost", "error", err)
	})

	s.client = mqtt.NewClient(opts)
	return s
}

// SetReadingHandler must be called before Connect.
func (s *Subscriber) SetReadingHandler(handler ReadingHandler) {
	s.handler = handler
}

// Connect establishes the broker connection. The topic subscription is made
// by the connect handler.
func (s *Subscriber) Connect(ctx context.Context) error {
	select {
	case <-s.stopCh:
		return fmt.Errorf("subscriber stopped")
	default:
	}

	if s.IsConnected() {
		return nil
	}

	token := s.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			s.client.Disconnect(0)
			return ctx.Err()
		case <-s.stopCh:
			s.client.Disconnect(0)
			return fmt.Errorf("subscriber stopped")
		default:
		}
	}
}

func (s *Subscriber) subscribe(c mqtt.Client) error {
	topic := s.cfg.MQTTTopic
	qos := byte(1)

	token := c.Subscribe(topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		s.handleMessage(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe timeout for topic %s", topic)
	}
	if token.Error() != nil {
		return fmt.Errorf("subscribe to %s: %w", topic, token.Error())
	}

	s.logger.Info("subscribed to mqtt topic", "topic", topic, "qos", qos)
	return nil
}

func (s *Subscriber) handleMessage(topic string, payload []byte) {
	s.logger.Debug("received mqtt message", "topic", topic, "size", len(payload))

	var reading types.SensorReading
	if err := json.Unmarshal(payload, &reading); err != nil {
		metrics.IncReading("invalid")
		s.logger.Warn("failed to parse sensor reading",
			"topic", topic,
			"error", err,
			"payload", string(payload),
		)
		return
	}
	if reading.SensorID == "" {
		reading.SensorID = sensorIDFromTopic(topic)
	}

	if err := reading.Validate(); err != nil {
		metrics.IncReading("invalid")
		s.logger.Warn("invalid sensor reading",
			"topic", topic,
			"sensor_id", reading.SensorID,
			"error", err,
		)
		return
	}

	if s.handler == nil {
		metrics.IncReading("dropped")
		return
	}

	// paho delivers messages in order on one goroutine and stops reading
	// the connection (PINGRESP included) until the callback returns, so the
	// handler runs off that goroutine.
	select {
	case s.slots <- struct{}{}:
	default:
		metrics.IncReading("dropped")
		s.logger.Warn("reading dropped, handlers busy",
			"topic", topic,
			"sensor_id", reading.SensorID,
			"in_flight", maxInFlight,
		)
		return
	}

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer func() { <-s.slots }()
		s.process(topic, reading)
	}()
}

func (s *Subscriber) process(topic string, reading types.SensorReading) {
	ctx, cancel := context.WithTimeout(s.ctx, handlerTimeout)
	defer cancel()

	if err := s.handler(ctx, reading); err != nil {
		metrics.IncReading("failed")
		s.logger.Error("reading handler failed",
			"topic", topic,
			"sensor_id", reading.SensorID,
			"error", err,
		)
		return
	}
	metrics.IncReading("processed")
	s.logger.Debug("processed sensor reading", "sensor_id", reading.SensorID)
}

// sensorIDFromTopic takes the segment between the first and last level of
// topics shaped like sentinel/<sensor_id>/telemetry.
func sensorIDFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 {
		return ""
	}
	return strings.Join(parts[1:len(parts)-1], "/")
}

func (s *Subscriber) IsConnected() bool {
	s.mu.RLock()
	connected := s.connected
	s.mu.RUnlock()
	return connected && s.client.IsConnected()
}

// Disconnect stops the subscriber and closes the MQTT connection. Safe to
// call more than once.
func (s *Subscriber) Disconnect() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.cancel()
	})

	if s.client != nil && s.IsConnected() {
		token := s.client.Unsubscribe(s.cfg.MQTTTopic)
		token.WaitTimeout(2 * time.Second)
	}

	if s.client != nil {
		s.client.Disconnect(250)
	}

	s.setConnected(false)
	s.inflight.Wait()
	s.logger.Info("mqtt subscriber disconnected")
}

func (s *Subscriber) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}
