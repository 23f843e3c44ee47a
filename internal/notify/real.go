package notify

import (
	"errors"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

var errTimeout = errors.New("timeout")

// RealPublisher publishes to an MQTT broker.
type RealPublisher struct {
	client paho.Client
	prefix string
}

// NewRealPublisher connects to broker and returns a publisher that writes
// under prefix.
func NewRealPublisher(broker, clientID, prefix string) (*RealPublisher, error) {
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connect to broker: %w", errTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return &RealPublisher{client: client, prefix: prefix}, nil
}

// Publish sends the event with QoS 1 so dispatch sees every transition.
func (p *RealPublisher) Publish(event Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	token := p.client.Publish(Topic(p.prefix, event.Type), 1, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s: %w", event.Type, errTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

// IsConnected reports whether the client currently holds a connection.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000)
	return nil
}
