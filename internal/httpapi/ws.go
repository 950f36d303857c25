package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/meggy-ai/meggy/internal/auth"
	"github.com/meggy-ai/meggy/internal/protocol"
)

// handleChatWS runs one chat connection: a reader loop feeding turns into
// the chat service and a single writer goroutine draining the outbound
// queue, so websocket writes never interleave.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if s.metrics != nil {
		s.metrics.ActiveWSChats.Inc()
		defer s.metrics.ActiveWSChats.Dec()
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	inbound := make(chan protocol.UserMessage, 16)
	outbound := make(chan any, 64)
	runDone := make(chan struct{})

	go func() {
		defer close(runDone)
		s.runChatTurns(ctx, userID, inbound, outbound)
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-outbound:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(msg); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			errEvent := protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				Code:      "invalid_client_message",
				Retryable: false,
				Detail:    err.Error(),
			}
			select {
			case outbound <- errEvent:
			default:
				// Drop rather than block the read loop when the outbound
				// queue is saturated.
			}
			continue
		}

		msg := parsed.(protocol.UserMessage)
		select {
		case <-ctx.Done():
			break readLoop
		case inbound <- msg:
		}
	}

	cancel()
	close(inbound)
	<-runDone
	<-writerDone
}

// runChatTurns processes inbound turns sequentially; a conversation is a
// single timeline, so there is nothing to gain from running them in parallel.
func (s *Server) runChatTurns(ctx context.Context, userID string, inbound <-chan protocol.UserMessage, outbound chan<- any) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-inbound:
			if !ok {
				return
			}
			exchange, err := s.chats.Send(ctx, userID, msg.Content)
			if err != nil {
				s.logger.Error("ws chat turn failed", "user_id", userID, "error", err)
				send(ctx, outbound, protocol.ErrorEvent{
					Type:      protocol.TypeErrorEvent,
					Code:      "turn_failed",
					Retryable: true,
					Detail:    "could not process message",
				})
				continue
			}
			for _, ex := range exchange.Extractions {
				send(ctx, outbound, protocol.MemoryEvent{
					Type:       protocol.TypeMemoryEvent,
					MemoryID:   ex.Memory.ID,
					Key:        ex.Memory.Key,
					Value:      ex.Memory.Value,
					MemoryType: string(ex.Memory.Type),
					Created:    ex.Created,
				})
			}
			send(ctx, outbound, protocol.AssistantMessage{
				Type:      protocol.TypeAssistantMessage,
				MessageID: exchange.AssistantMessage.ID,
				Content:   exchange.AssistantMessage.Content,
				Model:     exchange.AssistantMessage.Model,
				TSMs:      exchange.AssistantMessage.CreatedAt.UnixMilli(),
			})
		}
	}
}

func send(ctx context.Context, outbound chan<- any, msg any) {
	select {
	case <-ctx.Done():
	case outbound <- msg:
	}
}
