package feynman

import "github.com/oduggan21/feynmanV2/pkg/protocol"

// Activity is the agent's current activity as seen by the UI. Exactly one
// state holds at any instant.
type Activity string

const (
	ActivityListening Activity = "listening"
	ActivityThinking  Activity = "thinking"
	ActivitySpeaking  Activity = "speaking"
)

// activityMachine derives the activity state from protocol events. It is
// flat and event-driven: the latest event always wins, with no queued or
// pending transitions.
type activityMachine struct {
	current Activity
}

func newActivityMachine() activityMachine {
	return activityMachine{current: ActivityListening}
}

// userSent records that the user sent a message; the agent is now thinking.
func (m *activityMachine) userSent() (Activity, bool) {
	return m.set(ActivityThinking)
}

// apply derives the transition for one inbound event. Events that carry no
// activity signal leave the state untouched.
func (m *activityMachine) apply(event protocol.ServerEvent) (Activity, bool) {
	switch event.(type) {
	case protocol.ResponseStartEvent, protocol.SpeakingStartEvent:
		return m.set(ActivitySpeaking)
	case protocol.ResponseEndEvent, protocol.SpeakingEndEvent:
		return m.set(ActivityListening)
	case protocol.ServerErrorEvent:
		// Recovery, not failure propagation.
		return m.set(ActivityListening)
	default:
		return m.current, false
	}
}

func (m *activityMachine) set(next Activity) (Activity, bool) {
	if m.current == next {
		return m.current, false
	}
	m.current = next
	return next, true
}
