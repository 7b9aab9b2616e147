package audio

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"tajong-backend/config"
)

// publisher is the part of mqtt.Client the player needs.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Command is the JSON message sent to a remote speaker.
type Command struct {
	Action string    `json:"action"`
	File   string    `json:"file,omitempty"`
	Volume float64   `json:"volume"`
	SentAt time.Time `json:"sent_at"`
}

// MQTTPlayer forwards play and stop commands to a networked PA speaker.
type MQTTPlayer struct {
	client  publisher
	topic   string
	qos     byte
	timeout time.Duration
	log     *zap.Logger
}

// DialMQTT connects to the configured broker.
func DialMQTT(cfg config.MQTTConfig, log *zap.Logger) (*MQTTPlayer, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(cfg.Timeout)
	opts.OnConnect = func(mqtt.Client) {
		log.Info("connected to MQTT broker", zap.String("broker", cfg.BrokerURL))
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn("MQTT connection lost", zap.Error(err))
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return NewMQTTPlayer(client, cfg.Topic, cfg.QoS, cfg.Timeout, log), nil
}

func NewMQTTPlayer(client publisher, topic string, qos byte, timeout time.Duration, log *zap.Logger) *MQTTPlayer {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &MQTTPlayer{client: client, topic: topic, qos: qos, timeout: timeout, log: log}
}

func (p *MQTTPlayer) Play(file string, volume float64) error {
	return p.send(Command{Action: "play", File: file, Volume: ClampVolume(volume), SentAt: time.Now()})
}

func (p *MQTTPlayer) Stop() error {
	return p.send(Command{Action: "stop", SentAt: time.Now()})
}

// Close disconnects from the broker.
func (p *MQTTPlayer) Close() {
	p.client.Disconnect(250)
}

func (p *MQTTPlayer) send(cmd Command) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	token := p.client.Publish(p.topic, p.qos, false, payload)
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("timed out publishing %s to %s", cmd.Action, p.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish %s to %s: %w", cmd.Action, p.topic, err)
	}
	p.log.Debug("speaker command sent", zap.String("action", cmd.Action), zap.String("file", cmd.File))
	return nil
}
