package protocol

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
)

func TestDecode_Initialized(t *testing.T) {
	data := []byte(`{
		"type": "initialized",
		"session_id": "6ba7b810-9dad-11d1-80b4-00c04fd430c8",
		"agent_state": {
			"main_topic": "Photosynthesis",
			"incomplete_subtopics": {
				"Light Reaction": {"name": "Light Reaction", "has_definition": false, "has_mechanism": false, "has_example": false}
			},
			"covered_subtopics": {}
		},
		"history": []
	}`)

	event, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	init, ok := event.(InitializedEvent)
	if !ok {
		t.Fatalf("Decode() = %T, want InitializedEvent", event)
	}
	if init.SessionID != uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8") {
		t.Fatalf("session id = %s", init.SessionID)
	}
	if init.AgentState.MainTopic != "Photosynthesis" {
		t.Fatalf("main topic = %q", init.AgentState.MainTopic)
	}
	sub, ok := init.AgentState.IncompleteSubtopics["Light Reaction"]
	if !ok {
		t.Fatalf("missing Light Reaction subtopic: %#v", init.AgentState.IncompleteSubtopics)
	}
	if sub.HasDefinition || sub.HasMechanism || sub.HasExample {
		t.Fatalf("subtopic should start uncovered: %#v", sub)
	}
	if len(init.History) != 0 {
		t.Fatalf("history len = %d, want 0", len(init.History))
	}
}

func TestDecode_StreamingEvents(t *testing.T) {
	tests := []struct {
		name string
		data string
		want ServerEvent
	}{
		{"response_start", `{"type":"response_start"}`, ResponseStartEvent{}},
		{"response_chunk", `{"type":"response_chunk","chunk":"Tell me"}`, ResponseChunkEvent{Chunk: "Tell me"}},
		{"response_end", `{"type":"response_end"}`, ResponseEndEvent{}},
		{"error", `{"type":"error","message":"boom"}`, ServerErrorEvent{Message: "boom"}},
		{"transcription_update", `{"type":"transcription_update","text":"hello","is_final":true}`, TranscriptionUpdateEvent{Text: "hello", IsFinal: true}},
		{"audio_chunk", `{"type":"audio_chunk","data":"AAA="}`, AudioChunkEvent{Data: "AAA="}},
		{"ai_speaking_start", `{"type":"ai_speaking_start"}`, SpeakingStartEvent{}},
		{"ai_speaking_end", `{"type":"ai_speaking_end"}`, SpeakingEndEvent{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.data))
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("Decode() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestDecode_StateUpdateReplacesWholesale(t *testing.T) {
	data := []byte(`{
		"type": "state_update",
		"state": {
			"main_topic": "Photosynthesis",
			"incomplete_subtopics": {
				"Light Reaction": {"name": "Light Reaction", "has_definition": true, "has_mechanism": false, "has_example": false}
			},
			"covered_subtopics": {}
		}
	}`)

	event, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	update, ok := event.(StateUpdateEvent)
	if !ok {
		t.Fatalf("Decode() = %T, want StateUpdateEvent", event)
	}
	if !update.State.IncompleteSubtopics["Light Reaction"].HasDefinition {
		t.Fatalf("has_definition not decoded: %#v", update.State)
	}
}

func TestDecode_RejectsMalformedAndUnknown(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"invalid json", `{"type":`},
		{"missing type", `{"chunk":"x"}`},
		{"empty type", `{"type":"  "}`},
		{"unknown type", `{"type":"totally_new"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode([]byte(tt.data)); err == nil {
				t.Fatalf("Decode(%s) succeeded, want error", tt.data)
			}
		})
	}
}

func TestClientEnvelopes_WireShape(t *testing.T) {
	sessionID := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

	tests := []struct {
		name string
		msg  any
		want map[string]any
	}{
		{
			"init new session",
			NewClientInit("Photosynthesis", nil),
			map[string]any{"type": "init", "topic": "Photosynthesis"},
		},
		{
			"init resume",
			NewClientInit("Photosynthesis", &sessionID),
			map[string]any{"type": "init", "topic": "Photosynthesis", "session_id": sessionID.String()},
		},
		{
			"user_message",
			NewClientUserMessage("chlorophyll absorbs light"),
			map[string]any{"type": "user_message", "text": "chlorophyll absorbs light"},
		},
		{
			"set_voice_enabled",
			NewClientSetVoiceEnabled(true),
			map[string]any{"type": "set_voice_enabled", "enabled": true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.msg)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			var got map[string]any
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("field count = %d, want %d (%s)", len(got), len(tt.want), data)
			}
			for key, want := range tt.want {
				if got[key] != want {
					t.Fatalf("field %q = %#v, want %#v", key, got[key], want)
				}
			}
		})
	}
}

func TestSubTopicIsComplete(t *testing.T) {
	sub := SubTopic{Name: "Light Reaction"}
	if sub.IsComplete() {
		t.Fatal("empty subtopic reported complete")
	}
	sub.HasDefinition = true
	sub.HasMechanism = true
	if sub.IsComplete() {
		t.Fatal("two of three criteria reported complete")
	}
	sub.HasExample = true
	if !sub.IsComplete() {
		t.Fatal("all criteria covered but not complete")
	}
}
