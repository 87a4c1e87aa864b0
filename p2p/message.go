// message.go - Wire envelope for controller/prover messages.

package p2p

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Message types carried on the proof channel.
const (
	TypeGenerateProof = "GENERATE_PROOF"
	TypeProofResponse = "PROOF_RESPONSE"
	TypeProofError    = "PROOF_ERROR"
)

// Message is the envelope for everything sent over a Link.
// RequestID correlates a response with the request that caused it.
type Message struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	SenderID  string          `json:"senderId,omitempty"`
}

// NewMessage marshals payload into an envelope.
func NewMessage(msgType, requestID, senderID string, payload interface{}) (Message, error) {
	msg := Message{Type: msgType, RequestID: requestID, SenderID: senderID}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Message{}, fmt.Errorf("failed to marshal %s payload: %w", msgType, err)
		}
		msg.Payload = raw
	}
	return msg, nil
}

// Decode unmarshals the payload into v. Numbers decode as json.Number so large
// field elements and amounts keep their exact value.
func (m Message) Decode(v interface{}) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%s message has no payload", m.Type)
	}
	dec := json.NewDecoder(bytes.NewReader(m.Payload))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("failed to unmarshal %s payload: %w", m.Type, err)
	}
	return nil
}
