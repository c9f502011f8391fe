package feynman

import (
	"time"

	"github.com/google/uuid"

	"github.com/oduggan21/feynmanV2/pkg/protocol"
)

// transcript reassembles streamed agent responses into the chat message
// sequence. It is purely additive: once a response is closed the message is
// immutable. The caller provides synchronization and must feed events in
// arrival order.
type transcript struct {
	sessionID uuid.UUID
	messages  []protocol.Message
	streaming bool
}

func (t *transcript) reset() {
	t.sessionID = uuid.Nil
	t.messages = nil
	t.streaming = false
}

func (t *transcript) setHistory(sessionID uuid.UUID, history []protocol.Message) {
	t.sessionID = sessionID
	t.messages = append([]protocol.Message(nil), history...)
	t.streaming = false
}

func (t *transcript) appendUser(text string) {
	t.messages = append(t.messages, protocol.Message{
		SessionID: t.sessionID,
		Role:      protocol.RoleUser,
		Content:   text,
		CreatedAt: time.Now().UTC(),
	})
}

// responseStart opens a new empty ai message at the end of the sequence.
func (t *transcript) responseStart() {
	t.messages = append(t.messages, protocol.Message{
		SessionID: t.sessionID,
		Role:      protocol.RoleAI,
		CreatedAt: time.Now().UTC(),
	})
	t.streaming = true
}

// responseChunk appends to the last message only while a response is open
// and the last message is an ai message, so a malformed sequence can never
// corrupt a user message or a closed response.
func (t *transcript) responseChunk(chunk string) {
	if !t.streaming || len(t.messages) == 0 {
		return
	}
	last := &t.messages[len(t.messages)-1]
	if last.Role != protocol.RoleAI {
		return
	}
	last.Content += chunk
}

func (t *transcript) responseEnd() {
	t.streaming = false
}

func (t *transcript) snapshot() []protocol.Message {
	return append([]protocol.Message(nil), t.messages...)
}
