// Package protocol defines the wire protocol spoken over the session
// websocket: tagged JSON envelopes in both directions, plus raw binary PCM16
// microphone frames from client to server.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle status of a tutoring session.
type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionEnded  SessionStatus = "ended"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser Role = "user"
	RoleAI   Role = "ai"
)

// Session is a tutoring session owned by the backend. The client only caches
// the identifier for the duration of a connection.
type Session struct {
	ID        uuid.UUID     `json:"id"`
	UserID    string        `json:"user_id"`
	Topic     string        `json:"topic"`
	Status    SessionStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Message is one chat message in conversational order. A message still being
// streamed has a zero ID until the backend persists it.
type Message struct {
	ID        int64     `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// SubTopic tracks coverage of one curriculum item across the three criteria.
type SubTopic struct {
	Name          string `json:"name"`
	HasDefinition bool   `json:"has_definition"`
	HasMechanism  bool   `json:"has_mechanism"`
	HasExample    bool   `json:"has_example"`
}

// IsComplete reports whether every criterion has been covered.
func (s SubTopic) IsComplete() bool {
	return s.HasDefinition && s.HasMechanism && s.HasExample
}

// AgentState is the backend's snapshot of learning progress. The client never
// mutates it locally; each state_update replaces the mirror wholesale.
type AgentState struct {
	MainTopic           string              `json:"main_topic"`
	CoveredSubtopics    map[string]SubTopic `json:"covered_subtopics"`
	IncompleteSubtopics map[string]SubTopic `json:"incomplete_subtopics"`
}

// Clone returns a deep copy so callers can hand out read-only snapshots.
func (s AgentState) Clone() AgentState {
	out := AgentState{
		MainTopic:           s.MainTopic,
		CoveredSubtopics:    make(map[string]SubTopic, len(s.CoveredSubtopics)),
		IncompleteSubtopics: make(map[string]SubTopic, len(s.IncompleteSubtopics)),
	}
	for name, sub := range s.CoveredSubtopics {
		out.CoveredSubtopics[name] = sub
	}
	for name, sub := range s.IncompleteSubtopics {
		out.IncompleteSubtopics[name] = sub
	}
	return out
}

// Outbound envelope type tags.
const (
	TypeInit            = "init"
	TypeUserMessage     = "user_message"
	TypeSetVoiceEnabled = "set_voice_enabled"
)

// ClientInit initializes or resumes a session. It must be the first envelope
// sent on a fresh connection.
type ClientInit struct {
	Type      string     `json:"type"`
	Topic     string     `json:"topic"`
	SessionID *uuid.UUID `json:"session_id,omitempty"`
}

// NewClientInit builds an init envelope. sessionID is nil for a new session.
func NewClientInit(topic string, sessionID *uuid.UUID) ClientInit {
	return ClientInit{Type: TypeInit, Topic: topic, SessionID: sessionID}
}

// ClientUserMessage carries a typed user message to the agent.
type ClientUserMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func NewClientUserMessage(text string) ClientUserMessage {
	return ClientUserMessage{Type: TypeUserMessage, Text: text}
}

// ClientSetVoiceEnabled toggles whether the backend forwards transcription
// and synthesized speech for this session.
type ClientSetVoiceEnabled struct {
	Type    string `json:"type"`
	Enabled bool   `json:"enabled"`
}

func NewClientSetVoiceEnabled(enabled bool) ClientSetVoiceEnabled {
	return ClientSetVoiceEnabled{Type: TypeSetVoiceEnabled, Enabled: enabled}
}

// ServerEvent is one decoded inbound envelope. Decode returns exactly one
// variant of this closed set per inbound text frame.
type ServerEvent interface {
	serverEventType() string
}

// InitializedEvent confirms session initialization and carries the initial
// state mirror.
type InitializedEvent struct {
	SessionID  uuid.UUID  `json:"session_id"`
	AgentState AgentState `json:"agent_state"`
	History    []Message  `json:"history"`
}

func (InitializedEvent) serverEventType() string { return "initialized" }

// ResponseStartEvent signals the beginning of a streamed agent response.
type ResponseStartEvent struct{}

func (ResponseStartEvent) serverEventType() string { return "response_start" }

// ResponseChunkEvent carries one fragment of a streamed agent response.
type ResponseChunkEvent struct {
	Chunk string `json:"chunk"`
}

func (ResponseChunkEvent) serverEventType() string { return "response_chunk" }

// ResponseEndEvent closes the streamed agent response.
type ResponseEndEvent struct{}

func (ResponseEndEvent) serverEventType() string { return "response_end" }

// StateUpdateEvent pushes a complete replacement agent state.
type StateUpdateEvent struct {
	State AgentState `json:"state"`
}

func (StateUpdateEvent) serverEventType() string { return "state_update" }

// ServerErrorEvent reports a backend application error. The session stays
// connected.
type ServerErrorEvent struct {
	Message string `json:"message"`
}

func (ServerErrorEvent) serverEventType() string { return "error" }

// TranscriptionUpdateEvent is a speech-to-text update for the user's voice.
type TranscriptionUpdateEvent struct {
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
}

func (TranscriptionUpdateEvent) serverEventType() string { return "transcription_update" }

// AudioChunkEvent carries base64-encoded PCM16 agent speech.
type AudioChunkEvent struct {
	Data string `json:"data"`
}

func (AudioChunkEvent) serverEventType() string { return "audio_chunk" }

// SpeakingStartEvent signals the agent started speaking.
type SpeakingStartEvent struct{}

func (SpeakingStartEvent) serverEventType() string { return "ai_speaking_start" }

// SpeakingEndEvent signals the agent finished speaking.
type SpeakingEndEvent struct{}

func (SpeakingEndEvent) serverEventType() string { return "ai_speaking_end" }

// Decode parses one inbound text frame into its event variant. Unknown or
// malformed payloads return an error; the caller drops them with a diagnostic
// so partially-typed data never reaches the rest of the system.
func Decode(data []byte) (ServerEvent, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, fmt.Errorf("envelope missing type")
	}

	switch typ {
	case "initialized":
		var ev InitializedEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode initialized: %w", err)
		}
		return ev, nil
	case "response_start":
		return ResponseStartEvent{}, nil
	case "response_chunk":
		var ev ResponseChunkEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode response_chunk: %w", err)
		}
		return ev, nil
	case "response_end":
		return ResponseEndEvent{}, nil
	case "state_update":
		var ev StateUpdateEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode state_update: %w", err)
		}
		return ev, nil
	case "error":
		var ev ServerErrorEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode error: %w", err)
		}
		return ev, nil
	case "transcription_update":
		var ev TranscriptionUpdateEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode transcription_update: %w", err)
		}
		return ev, nil
	case "audio_chunk":
		var ev AudioChunkEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode audio_chunk: %w", err)
		}
		return ev, nil
	case "ai_speaking_start":
		return SpeakingStartEvent{}, nil
	case "ai_speaking_end":
		return SpeakingEndEvent{}, nil
	default:
		return nil, fmt.Errorf("unrecognized envelope type %q", typ)
	}
}
