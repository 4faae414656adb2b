package broker

import (
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/Taufiq-1904/WeighBridge-IoT/config"
)

// pahoClient adapts the eclipse paho client to the Client interface.
// Auto-reconnect is disabled: the Link owns the reconnect loop so its state
// transitions stay observable.
type pahoClient struct {
	c mqtt.Client
}

func newPahoClient(cfg config.MQTTConfig, onMessage func(topic string, payload []byte), onLost func(error)) Client {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(false).
		SetConnectTimeout(10 * time.Second).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			onLost(err)
		}).
		SetDefaultPublishHandler(func(_ mqtt.Client, m mqtt.Message) {
			onMessage(m.Topic(), m.Payload())
		})
	return &pahoClient{c: mqtt.NewClient(opts)}
}

func (p *pahoClient) Connect() error {
	t := p.c.Connect()
	t.Wait()
	return t.Error()
}

func (p *pahoClient) Subscribe(topic string, qos byte) error {
	// nil handler routes messages through the default publish handler.
	t := p.c.Subscribe(topic, qos, nil)
	t.Wait()
	return t.Error()
}

func (p *pahoClient) Publish(topic string, qos byte, payload []byte, ackWait time.Duration) error {
	t := p.c.Publish(topic, qos, false, payload)
	if ackWait <= 0 {
		return nil
	}
	if !t.WaitTimeout(ackWait) {
		return ErrAckTimeout
	}
	return t.Error()
}

func (p *pahoClient) Disconnect(quiesceMs uint) {
	p.c.Disconnect(quiesceMs)
}
