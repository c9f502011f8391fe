package feynman

import (
	"sync"

	"github.com/oduggan21/feynmanV2/pkg/protocol"
)

// EventKind names one subscribable event stream.
type EventKind string

const (
	// Connection lifecycle.
	EventOpened         EventKind = "opened"
	EventClosed         EventKind = "closed"
	EventTransportError EventKind = "transport_error"
	EventDiagnostic     EventKind = "diagnostic"

	// Decoded inbound protocol events, in arrival order.
	EventServerMessage EventKind = "server_message"

	// Controller state notifications for the UI layer.
	EventMessagesChanged   EventKind = "messages_changed"
	EventAgentStateChanged EventKind = "agent_state_changed"
	EventActivityChanged   EventKind = "activity_changed"
	EventTranscriptChanged EventKind = "transcript_changed"
	EventNotice            EventKind = "notice"
)

// Event is one published occurrence. Handlers receive the concrete variant.
type Event interface {
	Kind() EventKind
}

// OpenedEvent fires once the duplex channel reaches the open state.
type OpenedEvent struct{}

func (OpenedEvent) Kind() EventKind { return EventOpened }

// ClosedEvent fires exactly once per connection when the channel closes.
type ClosedEvent struct {
	Code   int
	Reason string
}

func (ClosedEvent) Kind() EventKind { return EventClosed }

// TransportErrorEvent reports a terminal transport failure. It is always
// followed by a ClosedEvent.
type TransportErrorEvent struct {
	Err error
}

func (TransportErrorEvent) Kind() EventKind { return EventTransportError }

// DiagnosticEvent reports a local, non-fatal condition such as a send dropped
// while the channel was not open.
type DiagnosticEvent struct {
	Message string
}

func (DiagnosticEvent) Kind() EventKind { return EventDiagnostic }

// ServerMessageEvent wraps one decoded inbound protocol event.
type ServerMessageEvent struct {
	Event protocol.ServerEvent
}

func (ServerMessageEvent) Kind() EventKind { return EventServerMessage }

// MessagesChangedEvent carries a snapshot of the chat message sequence.
type MessagesChangedEvent struct {
	Messages []protocol.Message
}

func (MessagesChangedEvent) Kind() EventKind { return EventMessagesChanged }

// AgentStateChangedEvent carries the replacement agent state snapshot.
type AgentStateChangedEvent struct {
	State *protocol.AgentState
}

func (AgentStateChangedEvent) Kind() EventKind { return EventAgentStateChanged }

// ActivityChangedEvent reports a new agent activity state.
type ActivityChangedEvent struct {
	Activity Activity
}

func (ActivityChangedEvent) Kind() EventKind { return EventActivityChanged }

// TranscriptChangedEvent reports the live speech transcript.
type TranscriptChangedEvent struct {
	Text    string
	IsFinal bool
}

func (TranscriptChangedEvent) Kind() EventKind { return EventTranscriptChanged }

// NoticeEvent surfaces a backend-reported application error. The session
// remains connected.
type NoticeEvent struct {
	Message string
}

func (NoticeEvent) Kind() EventKind { return EventNotice }

// Subscription identifies one registered handler for removal.
type Subscription struct {
	kind EventKind
	id   uint64
}

type handlerEntry struct {
	id uint64
	fn func(Event)
}

// emitter is an ordered publish/subscribe registry. Handlers for a kind run
// synchronously in registration order, which preserves inbound event order
// for consumers that depend on it.
type emitter struct {
	mu       sync.Mutex
	nextID   uint64
	handlers map[EventKind][]handlerEntry
}

func newEmitter() *emitter {
	return &emitter{handlers: make(map[EventKind][]handlerEntry)}
}

func (e *emitter) subscribe(kind EventKind, fn func(Event)) Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	e.handlers[kind] = append(e.handlers[kind], handlerEntry{id: e.nextID, fn: fn})
	return Subscription{kind: kind, id: e.nextID}
}

func (e *emitter) unsubscribe(sub Subscription) {
	e.mu.Lock()
	defer e.mu.Unlock()
	entries := e.handlers[sub.kind]
	for i, entry := range entries {
		if entry.id == sub.id {
			e.handlers[sub.kind] = append(entries[:i:i], entries[i+1:]...)
			return
		}
	}
}

func (e *emitter) emit(event Event) {
	e.mu.Lock()
	entries := append([]handlerEntry(nil), e.handlers[event.Kind()]...)
	e.mu.Unlock()
	for _, entry := range entries {
		entry.fn(event)
	}
}
