package executor

import (
	"encoding/json"
	"fmt"
	"log"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/wtthornton/HomeIQ-sub015/e2e/internal/scenario"
)

// MQTTPlayer publishes scenario steps to the broker: training
// triggers, prediction requests, pattern batches and feedback events.
type MQTTPlayer struct {
	client mqtt.Client
	logger *log.Logger
}

// NewMQTTPlayer connects a publisher to the broker
func NewMQTTPlayer(broker string, logger *log.Logger) (*MQTTPlayer, error) {
	if logger == nil {
		logger = log.Default()
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID("synergy-e2e-player")
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	token.Wait()
	if token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	logger.Printf("Connected to MQTT broker at %s", broker)

	return &MQTTPlayer{
		client: client,
		logger: logger,
	}, nil
}

// PublishStep publishes one scenario step as JSON.
func (p *MQTTPlayer) PublishStep(step scenario.Step) error {
	payloadBytes, err := json.Marshal(step.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal step payload: %w", err)
	}

	return p.Publish(step.Topic, 1, false, payloadBytes)
}

// Publish sends a raw payload. QoS 1 ensures delivery for control
// messages the scenario depends on.
func (p *MQTTPlayer) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := p.client.Publish(topic, qos, retained, payload)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, token.Error())
	}

	p.logger.Printf("Published to %s: %s", topic, string(payload))

	return nil
}

// Close disconnects from the MQTT broker
func (p *MQTTPlayer) Close() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
		p.logger.Printf("Disconnected from MQTT broker")
	}
}
