// Package broker adapts the MQTT transport used to ingest alarm events and
// publish test-result confirmations and soundpost status relays.
package broker

import (
	"fmt"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/snarg/alarm-player/internal/metrics"
)

// MessageHandler is invoked for every message received on a subscribed
// topic. It must not block; long-running work belongs downstream.
type MessageHandler func(topic string, payload []byte)

type Client struct {
	conn      mqtt.Client
	topics    []string
	connected atomic.Bool
	log       zerolog.Logger
	handler   MessageHandler
}

type Options struct {
	Broker       string
	Port         int
	ClientID     string
	Username     string
	Password     string
	KeepAlive    int
	CleanSession bool
	Topics       []string
	Log          zerolog.Logger
}

func Connect(opts Options) (*Client, error) {
	c := &Client{
		topics: opts.Topics,
		log:    opts.Log,
	}

	brokerURL := fmt.Sprintf("tcp://%s:%d", opts.Broker, opts.Port)
	clientOpts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(opts.ClientID).
		SetCleanSession(opts.CleanSession).
		SetKeepAlive(time.Duration(opts.KeepAlive) * time.Second).
		SetAutoReconnect(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOrderMatters(false).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost).
		SetDefaultPublishHandler(c.onMessage)

	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		clientOpts.SetPassword(opts.Password)
	}

	c.conn = mqtt.NewClient(clientOpts)
	token := c.conn.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, err
	}

	return c, nil
}

// SetMessageHandler installs the handler invoked for every received message.
// Must be called before Connect's onConnect subscribe fires in practice, so
// callers set it immediately after Connect returns and before any traffic
// is expected; messages arriving before it is set are logged and dropped.
func (c *Client) SetMessageHandler(h MessageHandler) {
	c.handler = h
}

func (c *Client) onConnect(client mqtt.Client) {
	c.connected.Store(true)
	c.log.Info().Strs("topics", c.topics).Msg("mqtt connected, subscribing")

	filters := make(map[string]byte, len(c.topics))
	for _, t := range c.topics {
		filters[t] = 1
	}
	token := client.SubscribeMultiple(filters, nil)
	token.Wait()
	if err := token.Error(); err != nil {
		c.log.Error().Err(err).Msg("mqtt subscribe failed")
	}
}

func (c *Client) onConnectionLost(_ mqtt.Client, err error) {
	c.connected.Store(false)
	metrics.BrokerReconnectsTotal.Inc()
	c.log.Warn().Err(err).Msg("mqtt connection lost, will auto-reconnect")
}

func (c *Client) onMessage(_ mqtt.Client, msg mqtt.Message) {
	if c.handler != nil {
		c.handler(msg.Topic(), msg.Payload())
		return
	}
	c.log.Debug().
		Str("topic", msg.Topic()).
		Int("payload_size", len(msg.Payload())).
		Msg("mqtt message received, no handler installed")
}

// Publish sends payload on topic at QoS 1 and waits for the broker to ack.
func (c *Client) Publish(topic string, payload []byte) error {
	token := c.conn.Publish(topic, 1, false, payload)
	token.Wait()
	return token.Error()
}

func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

func (c *Client) Close() {
	c.log.Info().Msg("disconnecting mqtt client")
	c.conn.Disconnect(1000)
}
