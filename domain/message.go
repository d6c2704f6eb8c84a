package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type MessageKind string

const (
	KindChat   MessageKind = "chat"
	KindJoined MessageKind = "joined"
	KindLeft   MessageKind = "left"
)

// Message is the immutable unit handed to the broadcaster.
// It only lives for the duration of one fan-out.
type Message struct {
	ID      uuid.UUID
	Kind    MessageKind
	Sender  Username
	Payload string
	At      time.Time
}

func NewChatMessage(sender Username, payload string, at time.Time) Message {
	return Message{ID: uuid.New(), Kind: KindChat, Sender: sender, Payload: payload, At: at}
}

func NewJoinedMessage(sender Username, at time.Time) Message {
	return Message{ID: uuid.New(), Kind: KindJoined, Sender: sender, At: at}
}

func NewLeftMessage(sender Username, at time.Time) Message {
	return Message{ID: uuid.New(), Kind: KindLeft, Sender: sender, At: at}
}

// Render returns the text a receiver sees, without the frame delimiter.
func (m Message) Render() string {
	switch m.Kind {
	case KindJoined:
		return fmt.Sprintf("%s has joined the chat", m.Sender)
	case KindLeft:
		return fmt.Sprintf("%s has left the chat", m.Sender)
	default:
		return fmt.Sprintf("%s: %s", m.Sender, m.Payload)
	}
}

// Frame is the wire representation of the message.
func (m Message) Frame() []byte {
	return []byte(m.Render() + "\n")
}

// FanoutReport summarizes one broadcast.
type FanoutReport struct {
	Delivered int
	Failed    []string
}
