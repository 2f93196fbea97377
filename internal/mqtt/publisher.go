package mqtt

import (
	"encoding/json"
	"fmt"
	"log"
	"path/filepath"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Announcement describes one applied wallpaper change.
type Announcement struct {
	Phase     string    `json:"phase"`
	Instance  string    `json:"instance"`
	File      string    `json:"file"`
	AppliedAt time.Time `json:"applied_at"`
}

type Publisher struct {
	client      mqtt.Client
	topicPrefix string
	enabled     bool
}

type PublisherConfig struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	Enabled     bool
}

func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	if !cfg.Enabled {
		return &Publisher{enabled: false}, nil
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetConnectionLostHandler(func(c mqtt.Client, err error) {
			log.Printf("MQTT connection lost: %v", err)
		}).
		SetOnConnectHandler(func(c mqtt.Client) {
			log.Println("MQTT connected")
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return &Publisher{
		client:      client,
		topicPrefix: cfg.TopicPrefix,
		enabled:     true,
	}, nil
}

// Announce publishes the applied wallpaper as individual retained topics plus
// a JSON status payload.
func (p *Publisher) Announce(a Announcement) error {
	if !p.enabled {
		return nil
	}

	topics := map[string]string{
		"phase":    a.Phase,
		"instance": a.Instance,
		"file":     filepath.Base(a.File),
	}

	for name, value := range topics {
		topic := fmt.Sprintf("%s/wallpaper/%s", p.topicPrefix, name)
		token := p.client.Publish(topic, 0, true, value)
		token.Wait()
		if token.Error() != nil {
			log.Printf("Failed to publish to %s: %v", topic, token.Error())
		}
	}

	statusJSON, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal announcement: %w", err)
	}

	statusTopic := fmt.Sprintf("%s/wallpaper/status", p.topicPrefix)
	token := p.client.Publish(statusTopic, 0, true, statusJSON)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("failed to publish status: %w", token.Error())
	}

	return nil
}

func (p *Publisher) IsConnected() bool {
	if !p.enabled {
		return false
	}
	return p.client.IsConnected()
}

func (p *Publisher) Close() {
	if p.enabled && p.client != nil {
		p.client.Disconnect(1000)
	}
}
