package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeUserMessage      MessageType = "user_message"
	TypeAssistantMessage MessageType = "assistant_message"
	TypeMemoryEvent      MessageType = "memory_event"
	TypeErrorEvent       MessageType = "error_event"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// UserMessage is the only client-to-server payload: one chat turn.
type UserMessage struct {
	Type    MessageType `json:"type"`
	Content string      `json:"content"`
	TSMs    int64       `json:"ts_ms,omitempty"`
}

type AssistantMessage struct {
	Type      MessageType `json:"type"`
	MessageID string      `json:"message_id"`
	Content   string      `json:"content"`
	Model     string      `json:"model,omitempty"`
	TSMs      int64       `json:"ts_ms"`
}

// MemoryEvent tells the client a fact was remembered during the turn.
type MemoryEvent struct {
	Type       MessageType `json:"type"`
	MemoryID   string      `json:"memory_id"`
	Key        string      `json:"key"`
	Value      string      `json:"value"`
	MemoryType string      `json:"memory_type"`
	Created    bool        `json:"created"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	Code      string      `json:"code"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeUserMessage:
		var msg UserMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if strings.TrimSpace(msg.Content) == "" {
			return nil, errors.New("invalid user_message")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
