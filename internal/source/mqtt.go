// Package source adapts broker-published telemetry to the guard's
// collaborator interfaces. Producers publish one JSON document per reading:
// position fixes on the fix topic, 3-axis accelerometer samples on the
// accel topic, and optionally raw NMEA sentences on the nmea topic.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"location-spoof-guard/internal/telemetry"
)

// Options configure the MQTT telemetry source.
type Options struct {
	BrokerURL      string
	ClientID       string
	FixTopic       string
	AccelTopic     string
	NMEATopic      string // empty disables the NMEA feed
	ConnectTimeout time.Duration
}

// MQTTSource implements guard.PositionSource and guard.AccelerometerSource
// over a paho MQTT client. Permission maps to broker connectivity: a
// deployment that must not monitor simply withholds the broker.
type MQTTSource struct {
	opts   Options
	client mqtt.Client
	logger zerolog.Logger

	mu       sync.Mutex
	lastFix  *telemetry.Fix
	assembly nmeaAssembly
}

// New constructs a disconnected MQTTSource.
func New(opts Options, logger zerolog.Logger) *MQTTSource {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	return &MQTTSource{
		opts:   opts,
		logger: logger.With().Str("component", "mqtt_source").Logger(),
	}
}

// RequestPermission connects to the broker. A refused or timed-out
// connection reads as denied rather than as an error so the guard treats
// it as a declined start.
func (s *MQTTSource) RequestPermission(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil && s.client.IsConnected() {
		return true, nil
	}

	clientOpts := mqtt.NewClientOptions().
		AddBroker(s.opts.BrokerURL).
		SetClientID(s.opts.ClientID).
		SetConnectTimeout(s.opts.ConnectTimeout).
		SetAutoReconnect(true)

	client := mqtt.NewClient(clientOpts)
	token := client.Connect()
	if !token.WaitTimeout(s.opts.ConnectTimeout) {
		s.logger.Warn().Str("broker", s.opts.BrokerURL).Msg("broker connect timed out")
		return false, nil
	}
	if err := token.Error(); err != nil {
		s.logger.Warn().Err(err).Str("broker", s.opts.BrokerURL).Msg("broker connect refused")
		return false, nil
	}

	s.client = client
	s.logger.Info().Str("broker", s.opts.BrokerURL).Msg("connected to telemetry broker")
	return true, nil
}

// SubscribeFixes delivers every published fix to the handler, in arrival
// order. When an NMEA topic is configured its assembled fixes feed the same
// handler. The returned function unsubscribes.
func (s *MQTTSource) SubscribeFixes(ctx context.Context, handler func(telemetry.Fix)) (func(), error) {
	client, err := s.connected()
	if err != nil {
		return nil, err
	}

	deliver := func(fix telemetry.Fix) {
		s.mu.Lock()
		f := fix
		s.lastFix = &f
		s.mu.Unlock()
		handler(fix)
	}

	token := client.Subscribe(s.opts.FixTopic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var fix telemetry.Fix
		if err := json.Unmarshal(msg.Payload(), &fix); err != nil {
			s.logger.Warn().Err(err).Str("topic", msg.Topic()).Msg("fix unmarshal failed")
			return
		}
		if fix.Time.IsZero() {
			fix.Time = time.Now().UTC()
		}
		deliver(fix)
	})
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", s.opts.FixTopic, err)
	}

	topics := []string{s.opts.FixTopic}
	if s.opts.NMEATopic != "" {
		nmeaToken := client.Subscribe(s.opts.NMEATopic, 0, func(_ mqtt.Client, msg mqtt.Message) {
			fix, ok := s.ingestSentence(string(msg.Payload()))
			if ok {
				deliver(fix)
			}
		})
		nmeaToken.Wait()
		if err := nmeaToken.Error(); err != nil {
			client.Unsubscribe(s.opts.FixTopic)
			return nil, fmt.Errorf("subscribe %s: %w", s.opts.NMEATopic, err)
		}
		topics = append(topics, s.opts.NMEATopic)
	}

	s.logger.Info().Strs("topics", topics).Msg("subscribed to fix stream")
	return func() {
		tok := client.Unsubscribe(topics...)
		tok.Wait()
	}, nil
}

// SubscribeSamples delivers every accelerometer sample to the handler.
func (s *MQTTSource) SubscribeSamples(ctx context.Context, handler func(telemetry.AccelSample)) (func(), error) {
	client, err := s.connected()
	if err != nil {
		return nil, err
	}

	token := client.Subscribe(s.opts.AccelTopic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var sample telemetry.AccelSample
		if err := json.Unmarshal(msg.Payload(), &sample); err != nil {
			s.logger.Warn().Err(err).Str("topic", msg.Topic()).Msg("accel unmarshal failed")
			return
		}
		handler(sample)
	})
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", s.opts.AccelTopic, err)
	}

	return func() {
		tok := client.Unsubscribe(s.opts.AccelTopic)
		tok.Wait()
	}, nil
}

// LastKnown returns the most recent fix seen on any feed, without issuing
// a new positioning request.
func (s *MQTTSource) LastKnown(ctx context.Context) (telemetry.Fix, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastFix == nil {
		return telemetry.Fix{}, false, nil
	}
	return *s.lastFix, true, nil
}

// Close disconnects from the broker.
func (s *MQTTSource) Close() {
	s.mu.Lock()
	client := s.client
	s.client = nil
	s.mu.Unlock()
	if client != nil && client.IsConnected() {
		client.Disconnect(250)
	}
}

func (s *MQTTSource) connected() (mqtt.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil || !s.client.IsConnected() {
		return nil, fmt.Errorf("source: not connected to broker")
	}
	return s.client, nil
}

func (s *MQTTSource) ingestSentence(raw string) (telemetry.Fix, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fix, ok, err := s.assembly.Ingest(raw)
	if err != nil {
		s.logger.Debug().Err(err).Msg("nmea sentence dropped")
		return telemetry.Fix{}, false
	}
	return fix, ok
}
