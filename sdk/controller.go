// Package feynman is the client-side session streaming engine for the
// Feynman tutoring backend. The Controller owns one duplex channel at a
// time, multiplexes outbound microphone audio and user text against inbound
// streamed text/audio/state events, reassembles fragmented agent responses,
// tracks agent activity, and schedules gapless speech playback.
package feynman

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/oduggan21/feynmanV2/pkg/audio"
	"github.com/oduggan21/feynmanV2/pkg/protocol"
)

// ErrNotConnected is returned by operations that require an open channel.
var ErrNotConnected = errors.New("feynman: session is not connected")

// Config configures a session controller.
type Config struct {
	// WebSocketURL is the duplex channel endpoint, e.g. ws://host/ws.
	WebSocketURL string

	// DeviceSampleRateHz overrides the microphone device rate. Frames are
	// resampled to the wire rate when it differs.
	DeviceSampleRateHz int

	// Playback overrides the default speaker-backed scheduler.
	Playback *audio.Scheduler

	Logger *slog.Logger
}

// Controller composes the connection, capture pipeline, playback scheduler,
// response reassembler, and activity state machine into one per-session
// object. It assumes exactly one active session at a time; each component it
// owns has no other writer.
type Controller struct {
	cfg      Config
	logger   *slog.Logger
	events   *emitter
	capture  *audio.Capture
	playback *audio.Scheduler

	mu             sync.Mutex
	conn           *Conn
	connecting     bool
	sessionID      uuid.UUID
	agentState     *protocol.AgentState
	trans          transcript
	liveTranscript string
	activity       activityMachine
	voiceEnabled   bool
}

// NewController creates a disconnected controller. No device or network
// resource is touched until Connect, StartRecording, or the first inbound
// audio chunk.
func NewController(cfg Config) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		cfg:      cfg,
		logger:   logger,
		events:   newEmitter(),
		activity: newActivityMachine(),
	}
	c.capture = audio.NewCapture(audio.CaptureConfig{
		DeviceSampleRateHz: cfg.DeviceSampleRateHz,
		Logger:             logger,
	}, c.sendAudioFrame)
	if cfg.Playback != nil {
		c.playback = cfg.Playback
	} else {
		c.playback = audio.NewScheduler(audio.SchedulerConfig{Logger: logger})
	}
	return c
}

// Subscribe registers a handler for one event kind; handlers run in
// registration order.
func (c *Controller) Subscribe(kind EventKind, fn func(Event)) Subscription {
	return c.events.subscribe(kind, fn)
}

// Unsubscribe removes a previously registered handler.
func (c *Controller) Unsubscribe(sub Subscription) {
	c.events.unsubscribe(sub)
}

// Connect opens a fresh duplex channel and sends the init envelope for the
// given topic. resumeID resumes an existing session; server-side history is
// the source of truth, so resuming is safe to repeat. Calling Connect while
// a channel is already opening or open is a no-op.
func (c *Controller) Connect(ctx context.Context, topic string, resumeID *uuid.UUID) error {
	c.mu.Lock()
	if c.connecting || (c.conn != nil && c.conn.IsOpen()) {
		c.mu.Unlock()
		return nil
	}
	c.connecting = true
	conn := NewConn(c.logger)
	c.conn = conn
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.connecting = false
		c.mu.Unlock()
	}()

	conn.Subscribe(EventServerMessage, c.onConnEvent)
	conn.Subscribe(EventClosed, c.onConnEvent)
	conn.Subscribe(EventOpened, c.events.emit)
	conn.Subscribe(EventTransportError, c.events.emit)
	conn.Subscribe(EventDiagnostic, c.events.emit)

	if err := conn.Connect(ctx, c.cfg.WebSocketURL, protocol.NewClientInit(topic, resumeID)); err != nil {
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		return err
	}
	return nil
}

// Disconnect is the single teardown path: it stops any active recording,
// closes the connection, then stops playback, so no component outlives the
// session it serves.
func (c *Controller) Disconnect() {
	c.capture.Stop()

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}

	c.playback.Stop()
	c.clearMirror()
}

// SendUserMessage sends a typed user message. It is rejected locally when
// not connected; nothing touches the network in that case.
func (c *Controller) SendUserMessage(text string) error {
	c.mu.Lock()
	conn := c.conn
	if conn == nil || !conn.IsOpen() {
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.trans.appendUser(text)
	messages := c.trans.snapshot()
	act, changed := c.activity.userSent()
	c.mu.Unlock()

	conn.Send(protocol.NewClientUserMessage(text))
	c.events.emit(MessagesChangedEvent{Messages: messages})
	if changed {
		c.events.emit(ActivityChangedEvent{Activity: act})
	}
	return nil
}

// StartRecording begins microphone capture. Device errors are reported to
// the caller and leave the pipeline idle; the user may retry.
func (c *Controller) StartRecording() error {
	return c.capture.Start()
}

// StopRecording tears down the microphone stream. No-op when idle.
func (c *Controller) StopRecording() {
	c.capture.Stop()
}

// SetVoiceEnabled sends the voice toggle intent so the backend can gate
// whether it forwards transcription and synthesized speech.
func (c *Controller) SetVoiceEnabled(enabled bool) {
	c.mu.Lock()
	c.voiceEnabled = enabled
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		conn.Send(protocol.NewClientSetVoiceEnabled(enabled))
	}
}

// Connected reports whether the duplex channel is open.
func (c *Controller) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && c.conn.IsOpen()
}

// SessionID returns the backend session identifier, or uuid.Nil before
// initialization.
func (c *Controller) SessionID() uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// AgentState returns a copy of the latest agent state snapshot, or nil.
func (c *Controller) AgentState() *protocol.AgentState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.agentState == nil {
		return nil
	}
	state := c.agentState.Clone()
	return &state
}

// Messages returns a copy of the chat message sequence.
func (c *Controller) Messages() []protocol.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.trans.snapshot()
}

// Transcript returns the live (non-final) speech transcript.
func (c *Controller) Transcript() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.liveTranscript
}

// Activity returns the current agent activity state.
func (c *Controller) Activity() Activity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activity.current
}

// VoiceEnabled reports the last voice toggle sent.
func (c *Controller) VoiceEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.voiceEnabled
}

// Recording reports whether microphone capture is active.
func (c *Controller) Recording() bool {
	return c.capture.Recording()
}

// sendAudioFrame forwards one capture frame to the connection. The open
// check happens at delivery time; frames racing a disconnect are dropped by
// the connection's own guard.
func (c *Controller) sendAudioFrame(frame []byte) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		conn.SendAudioFrame(frame)
	}
}

func (c *Controller) onConnEvent(event Event) {
	switch e := event.(type) {
	case ServerMessageEvent:
		c.handleServerEvent(e.Event)
	case ClosedEvent:
		// A dead channel must not leave the mic hot or the speaker held.
		c.capture.Stop()
		c.playback.Stop()
		c.clearMirror()
		c.events.emit(e)
	}
}

// clearMirror discards the local session mirror; a later Connect starts a
// fresh one.
func (c *Controller) clearMirror() {
	c.mu.Lock()
	c.sessionID = uuid.Nil
	c.agentState = nil
	c.trans.reset()
	c.liveTranscript = ""
	c.activity = newActivityMachine()
	c.mu.Unlock()
}

// handleServerEvent runs on the connection's read goroutine, so events are
// applied strictly in arrival order. The raw event is re-published after the
// mirror update so subscribers observe state and stream consistently.
func (c *Controller) handleServerEvent(event protocol.ServerEvent) {
	defer c.events.emit(ServerMessageEvent{Event: event})

	switch e := event.(type) {
	case protocol.InitializedEvent:
		c.mu.Lock()
		c.sessionID = e.SessionID
		state := e.AgentState.Clone()
		c.agentState = &state
		c.trans.setHistory(e.SessionID, e.History)
		messages := c.trans.snapshot()
		c.mu.Unlock()
		c.events.emit(AgentStateChangedEvent{State: &state})
		c.events.emit(MessagesChangedEvent{Messages: messages})

	case protocol.ResponseStartEvent:
		c.mu.Lock()
		c.trans.responseStart()
		messages := c.trans.snapshot()
		c.mu.Unlock()
		c.events.emit(MessagesChangedEvent{Messages: messages})
		c.applyActivity(event)

	case protocol.ResponseChunkEvent:
		c.mu.Lock()
		c.trans.responseChunk(e.Chunk)
		messages := c.trans.snapshot()
		c.mu.Unlock()
		c.events.emit(MessagesChangedEvent{Messages: messages})

	case protocol.ResponseEndEvent:
		c.mu.Lock()
		c.trans.responseEnd()
		c.mu.Unlock()
		c.applyActivity(event)

	case protocol.StateUpdateEvent:
		// Replace wholesale; coverage is never merged with prior local state.
		c.mu.Lock()
		state := e.State.Clone()
		c.agentState = &state
		c.mu.Unlock()
		c.events.emit(AgentStateChangedEvent{State: &state})

	case protocol.ServerErrorEvent:
		c.events.emit(NoticeEvent{Message: e.Message})
		c.applyActivity(event)

	case protocol.TranscriptionUpdateEvent:
		c.mu.Lock()
		if e.IsFinal {
			// The backend commits the final text to history itself.
			c.liveTranscript = ""
		} else {
			c.liveTranscript = e.Text
		}
		c.mu.Unlock()
		c.events.emit(TranscriptChangedEvent{Text: e.Text, IsFinal: e.IsFinal})

	case protocol.AudioChunkEvent:
		if err := c.playback.Enqueue(e.Data); err != nil {
			c.logger.Warn("dropping undecodable audio chunk", "err", err)
		}

	case protocol.SpeakingStartEvent, protocol.SpeakingEndEvent:
		c.applyActivity(event)
	}
}

func (c *Controller) applyActivity(event protocol.ServerEvent) {
	c.mu.Lock()
	act, changed := c.activity.apply(event)
	c.mu.Unlock()
	if changed {
		c.events.emit(ActivityChangedEvent{Activity: act})
	}
}
