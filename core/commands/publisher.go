package commands

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"predictive-node/core/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// TierPublisher pushes tier commands down to devices over MQTT. Each
// device listens on its own retained topic so it picks up the latest
// verdict even after a reconnect.
type TierPublisher struct {
	client mqtt.Client
}

// NewTierPublisher connects to the MQTT broker.
func NewTierPublisher(brokerURL, clientID, username, password string) (*TierPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL)
	opts.SetClientID(clientID)
	opts.SetUsername(username)
	opts.SetPassword(password)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("TierPublisher: connection lost: %v", err)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to MQTT broker: %w", token.Error())
	}

	log.Printf("TierPublisher: connected to broker %s", brokerURL)
	return &TierPublisher{client: client}, nil
}

// PublishTier tells the device which tier should run its next inference.
func (p *TierPublisher) PublishTier(key models.DeviceKey, verdict models.Tier) error {
	topic := fmt.Sprintf("devices/%s/%s/tier", key.GatewayName, key.SensorName)
	payload, err := json.Marshal(map[string]interface{}{
		"tier":      int(verdict),
		"tier_name": verdict.String(),
	})
	if err != nil {
		return err
	}

	token := p.client.Publish(topic, 1, true, payload)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("publish tier command to %s: %w", topic, token.Error())
	}
	return nil
}

// Close disconnects from the broker.
func (p *TierPublisher) Close() {
	p.client.Disconnect(250)
}
