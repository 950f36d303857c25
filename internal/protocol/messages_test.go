package protocol

import (
	"errors"
	"testing"
)

func TestParseClientMessageUserMessage(t *testing.T) {
	raw := []byte(`{"type":"user_message","content":"hello meggy","ts_ms":123}`)
	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}

	user, ok := msg.(UserMessage)
	if !ok {
		t.Fatalf("message type = %T, want UserMessage", msg)
	}
	if user.Content != "hello meggy" {
		t.Fatalf("Content = %q, want %q", user.Content, "hello meggy")
	}
	if user.TSMs != 123 {
		t.Fatalf("TSMs = %d, want %d", user.TSMs, 123)
	}
}

func TestParseClientMessageRejectsUnknownType(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"wat"}`))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
}

func TestParseClientMessageRejectsServerTypes(t *testing.T) {
	for _, raw := range []string{
		`{"type":"assistant_message","content":"hi"}`,
		`{"type":"memory_event","key":"k"}`,
		`{"type":"error_event","code":"c"}`,
	} {
		if _, err := ParseClientMessage([]byte(raw)); !errors.Is(err, ErrUnsupportedType) {
			t.Fatalf("ParseClientMessage(%s) error = %v, want ErrUnsupportedType", raw, err)
		}
	}
}

func TestParseClientMessageRejectsEmptyContent(t *testing.T) {
	for _, raw := range []string{
		`{"type":"user_message"}`,
		`{"type":"user_message","content":"   "}`,
	} {
		if _, err := ParseClientMessage([]byte(raw)); err == nil {
			t.Fatalf("ParseClientMessage(%s) expected validation error", raw)
		}
	}
}

func TestParseClientMessageRejectsMalformedJSON(t *testing.T) {
	if _, err := ParseClientMessage([]byte(`{"type":`)); err == nil {
		t.Fatalf("expected envelope error")
	}
}
