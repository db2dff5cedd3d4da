// Package telemetry publishes vote lifecycle events to an MQTT broker.
// Optional: the bot runs fine with telemetry disabled, and a broker outage
// never touches vote state.
package telemetry

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/bsubei/rconbot/internal/config"
	"github.com/bsubei/rconbot/internal/events"
	"github.com/bsubei/rconbot/internal/util"
)

// MQTTHandler manages the MQTT connection and forwards bus events.
type MQTTHandler struct {
	cfg      *config.Config
	bus      *events.Bus
	client   mqtt.Client
	topic    string
	metadata map[string]interface{}
}

// NewMQTTHandler creates a telemetry handler from the config.
func NewMQTTHandler(cfg *config.Config, bus *events.Bus) (*MQTTHandler, error) {
	tcfg := cfg.Telemetry
	if !tcfg.Enabled {
		return nil, fmt.Errorf("telemetry is disabled")
	}

	sysInfo := util.GetSystemInfo()
	h := &MQTTHandler{
		cfg:   cfg,
		bus:   bus,
		topic: tcfg.Topic,
		metadata: map[string]interface{}{
			"hostname": sysInfo.Hostname,
			"platform": sysInfo.OS,
			"server":   fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		},
	}

	scheme := "tcp"
	if tcfg.UseTLS {
		scheme = "ssl"
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, tcfg.BrokerURL, tcfg.Port))

	if tcfg.ClientID != "" {
		opts.SetClientID(tcfg.ClientID)
	} else {
		opts.SetClientID(fmt.Sprintf("rconbot-%s", sysInfo.Hostname))
	}

	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetKeepAlive(60 * time.Second)

	if tcfg.UseTLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Info().Msg("MQTT connected")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost")
	})

	h.client = mqtt.NewClient(opts)
	return h, nil
}

// Start connects to the broker and subscribes to vote events, blocking
// until the context is cancelled.
func (h *MQTTHandler) Start(ctx context.Context) error {
	log.Info().
		Str("broker", h.cfg.Telemetry.BrokerURL).
		Int("port", h.cfg.Telemetry.Port).
		Str("topic", h.topic).
		Msg("connecting to MQTT broker")

	token := h.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT connect failed: %w", token.Error())
	}

	for _, eventType := range []events.EventType{
		events.EventConnected,
		events.EventDisconnected,
		events.EventVoteStarted,
		events.EventVoteResolved,
		events.EventVoteFailed,
		events.EventQuorumProgress,
		events.EventMapSet,
	} {
		eventType := eventType
		h.bus.Subscribe(eventType, "mqtt."+string(eventType), func(_ context.Context, event events.Event) error {
			h.publish(event)
			return nil
		})
	}

	<-ctx.Done()

	h.publish(events.Event{Type: events.EventShutdown, Source: "telemetry"})
	h.client.Disconnect(5000)
	log.Info().Msg("MQTT disconnected")
	return nil
}

// publish sends one event as JSON with host metadata merged in.
func (h *MQTTHandler) publish(event events.Event) {
	if !h.client.IsConnected() {
		return
	}

	msg := make(map[string]interface{}, len(h.metadata)+3)
	for k, v := range h.metadata {
		msg[k] = v
	}
	msg["event"] = string(event.Type)
	msg["payload"] = event.Payload
	msg["timestamp"] = time.Now().UTC().Format(time.RFC3339)

	data, err := json.Marshal(msg)
	if err != nil {
		log.Warn().Err(err).Msg("failed to marshal MQTT message")
		return
	}

	token := h.client.Publish(h.topic, 1, false, data)
	go func() {
		token.Wait()
		if token.Error() != nil {
			log.Warn().Err(token.Error()).Str("topic", h.topic).Msg("MQTT publish failed")
		}
	}()
}
