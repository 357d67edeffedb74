package protocol

import "encoding/json"

// Message is the envelope exchanged between the codec and everything
// above it: the reliability manager, the connection handler, and the
// business dispatch table.
type Message struct {
	Head Head
	Body json.RawMessage // UTF-8 JSON text; empty for acks
}

// NewDataMessage builds an outbound data frame. Sequence is left at 0;
// the reliability manager assigns the real value on Send.
func NewDataMessage(server uint16, body json.RawMessage) *Message {
	return &Message{
		Head: Head{
			Version: CurrentVersion,
			Server:  server,
			Type:    TypeData,
		},
		Body: body,
	}
}

// NewAck builds an ack frame for the given sequence. Acks carry no body.
func NewAck(sequence uint32) *Message {
	return &Message{
		Head: Head{
			Version:  CurrentVersion,
			Type:     TypeAck,
			Sequence: sequence,
		},
	}
}
