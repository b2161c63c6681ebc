package control

import (
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const tokenTimeout = 2 * time.Second

var ErrTimeout = errors.New("mqtt timeout")

// broker is the part of an MQTT client the control loop needs.
type broker interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Subscribe(topic string, qos byte, handle func(payload []byte)) error
}

type pahoBroker struct {
	client mqtt.Client
}

func wait(t mqtt.Token, what string) error {
	if !t.WaitTimeout(tokenTimeout) {
		return fmt.Errorf("%s: %w", what, ErrTimeout)
	}
	if err := t.Error(); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}

func (b pahoBroker) Publish(topic string, qos byte, retained bool, payload []byte) error {
	return wait(b.client.Publish(topic, qos, retained, payload), "publish "+topic)
}

func (b pahoBroker) Subscribe(topic string, qos byte, handle func(payload []byte)) error {
	return wait(b.client.Subscribe(topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		handle(msg.Payload())
	}), "subscribe "+topic)
}
