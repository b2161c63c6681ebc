package transport

import (
	"bytes"
	"fmt"
	"strings"
)

// DefaultTopic is the prefix the sender publishes frames under.
const DefaultTopic = "/frames"

// Envelope is one received message split into its fixed-length topic and the
// opaque image payload that follows it.
type Envelope struct {
	Topic   []byte
	Payload []byte
}

// Join builds a message body: topic bytes immediately followed by the payload,
// no length delimiter.
func Join(topic, payload []byte) []byte {
	body := make([]byte, 0, len(topic)+len(payload))
	body = append(body, topic...)
	return append(body, payload...)
}

// Split cuts body after topicLen bytes. The payload aliases body.
func Split(body []byte, topicLen int) (Envelope, error) {
	if topicLen < 0 || len(body) < topicLen {
		return Envelope{}, fmt.Errorf("split %d bytes: %w", len(body), ErrShortMessage)
	}

	return Envelope{
		Topic:   body[:topicLen],
		Payload: body[topicLen:],
	}, nil
}

// Matches reports whether the envelope topic equals topic.
func (e Envelope) Matches(topic []byte) bool {
	return bytes.Equal(e.Topic, topic)
}

// KafkaTopic maps a frame prefix onto a Kafka topic name: "/frames" → "frames",
// "/a/b" → "a.b".
func KafkaTopic(prefix []byte) string {
	name := strings.Trim(string(prefix), "/")
	return strings.ReplaceAll(name, "/", ".")
}
