package app

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

// publishFunc sends one payload. Handlers take it instead of a client so
// they can run without a broker.
type publishFunc func(topic string, retained bool, payload []byte) error

func connectMQTT(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, token.Error())
	}
	log.Infof("%s: connected to MQTT broker at %s", clientID, broker)
	return client, nil
}

func clientPublisher(client mqtt.Client) publishFunc {
	return func(topic string, retained bool, payload []byte) error {
		token := client.Publish(topic, 1, retained, payload)
		token.Wait()
		return token.Error()
	}
}

func publishJSON(publish publishFunc, topic string, retained bool, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("json marshal (%s): %w", topic, err)
	}
	if err := publish(topic, retained, payload); err != nil {
		return fmt.Errorf("mqtt publish (%s): %w", topic, err)
	}
	return nil
}

func subscribe(client mqtt.Client, topic string, handler func(payload []byte)) error {
	token := client.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Payload())
	})
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("mqtt subscribe %s: %w", topic, token.Error())
	}
	log.Infof("subscribed to MQTT topic %s", topic)
	return nil
}

func deviceTopic(base, deviceID string) string {
	if deviceID == "" {
		return base
	}
	return base + "/" + deviceID
}
