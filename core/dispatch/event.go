package dispatch

import (
	"encoding/json"
	"fmt"
)

// Payload is the decoded button payload attached to a message. VK
// delivers it as a JSON string inside the message object; a missing or
// malformed payload decodes to the zero value.
type Payload struct {
	Button   string `json:"button"`
	CoursePK int64  `json:"course_pk"`
}

// Message is the dispatcher's view of one message_new event.
type Message struct {
	UserID  int64
	PeerID  int64
	Text    string
	Payload Payload
}

type rawMessage struct {
	Message struct {
		FromID  int64  `json:"from_id"`
		PeerID  int64  `json:"peer_id"`
		Text    string `json:"text"`
		Payload string `json:"payload"`
	} `json:"message"`
}

// DecodeMessage extracts the message from a message_new object. A
// payload that is not valid JSON is dropped rather than failing the
// whole event: users can type anything, buttons cannot.
func DecodeMessage(object json.RawMessage) (Message, error) {
	var raw rawMessage
	if err := json.Unmarshal(object, &raw); err != nil {
		return Message{}, fmt.Errorf("decode message_new object: %w", err)
	}
	if raw.Message.FromID == 0 {
		return Message{}, fmt.Errorf("message_new without from_id")
	}

	msg := Message{
		UserID: raw.Message.FromID,
		PeerID: raw.Message.PeerID,
		Text:   raw.Message.Text,
	}
	if raw.Message.Payload != "" {
		var payload Payload
		if err := json.Unmarshal([]byte(raw.Message.Payload), &payload); err == nil {
			msg.Payload = payload
		}
	}
	return msg, nil
}
