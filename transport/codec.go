package transport

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"github.com/hupe1980/vizier/core"
)

const (
	requestTopic        = "vizier.requests"
	responseTopicPrefix = "vizier.responses."

	metadataSession = "session"
	metadataKind    = "kind"
)

func responseTopic(kind core.ChannelKind) string {
	return responseTopicPrefix + string(kind)
}

func encode(session core.SessionID, v any) (*message.Message, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	msg := message.NewMessage(uuid.NewString(), payload)
	msg.Metadata.Set(metadataSession, session.String())
	msg.Metadata.Set(metadataKind, string(session.ChannelKind()))
	return msg, nil
}

// decode keeps numbers in free-form fields such as Request.Metadata as
// json.Number so integers survive the trip without float rounding.
func decode[T any](msg *message.Message) (T, error) {
	var v T

	dec := json.NewDecoder(bytes.NewReader(msg.Payload))
	dec.UseNumber()

	if err := dec.Decode(&v); err != nil {
		return v, fmt.Errorf("decode message %s: %w", msg.UUID, err)
	}
	return v, nil
}
