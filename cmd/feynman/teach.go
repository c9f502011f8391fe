package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/oduggan21/feynmanV2/internal/config"
	"github.com/oduggan21/feynmanV2/pkg/api"
	"github.com/oduggan21/feynmanV2/pkg/protocol"
	feynman "github.com/oduggan21/feynmanV2/sdk"
)

func newTeachCmd(logger *slog.Logger) *cobra.Command {
	var (
		topic    string
		resume   string
		voice    bool
		endAfter bool
	)

	cmd := &cobra.Command{
		Use:   "teach",
		Short: "Start or resume a live tutoring session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return runTeach(cmd.Context(), cfg, logger, topic, resume, voice, endAfter)
		},
	}
	cmd.Flags().StringVar(&topic, "topic", "", "topic to teach (required for a new session)")
	cmd.Flags().StringVar(&resume, "resume", "", "session id to resume")
	cmd.Flags().BoolVar(&voice, "voice", false, "start with the microphone live")
	cmd.Flags().BoolVar(&endAfter, "end-on-quit", false, "mark the session ended when quitting")
	return cmd
}

func runTeach(ctx context.Context, cfg *config.Config, logger *slog.Logger, topic, resume string, voice, endAfter bool) error {
	client := api.NewClient(cfg.APIURL, cfg.UserID)

	var resumeID *uuid.UUID
	switch {
	case resume != "":
		id, err := uuid.Parse(resume)
		if err != nil {
			return fmt.Errorf("invalid session id %q: %w", resume, err)
		}
		session, err := client.GetSession(ctx, id)
		if err != nil {
			return err
		}
		if session.Status != protocol.SessionActive {
			return fmt.Errorf("session %s is %s", id, session.Status)
		}
		topic = session.Topic
		resumeID = &id
		fmt.Printf("Resuming session %s (%s)\n", id, topic)
	case topic != "":
		session, err := client.CreateSession(ctx, topic)
		if err != nil {
			return err
		}
		resumeID = &session.ID
		fmt.Printf("Created session %s (%s)\n", session.ID, topic)
	default:
		return fmt.Errorf("either --topic or --resume is required")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		cancel()
	}()

	ctrl := feynman.NewController(feynman.Config{
		WebSocketURL:       cfg.WSURL,
		DeviceSampleRateHz: cfg.MicSampleRateHz,
		Logger:             logger,
	})
	defer ctrl.Disconnect()

	renderEvents(ctrl)

	if err := ctrl.Connect(ctx, topic, resumeID); err != nil {
		return err
	}

	if voice {
		ctrl.SetVoiceEnabled(true)
		if err := ctrl.StartRecording(); err != nil {
			fmt.Printf("[mic unavailable: %v]\n", err)
		}
	}

	fmt.Println("Explain the topic in your own words. Commands: /voice on|off, /state, /end, /quit")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if !strings.HasPrefix(input, "/") {
			if err := ctrl.SendUserMessage(input); err != nil {
				fmt.Printf("[not sent: %v]\n", err)
			}
			continue
		}

		switch {
		case input == "/quit" || input == "/q":
			if endAfter {
				endSession(ctx, client, ctrl)
			}
			return nil
		case input == "/end":
			if endSession(ctx, client, ctrl) {
				return nil
			}
		case input == "/state":
			printState(ctrl.AgentState())
		case input == "/voice on":
			ctrl.SetVoiceEnabled(true)
			if err := ctrl.StartRecording(); err != nil {
				fmt.Printf("[mic unavailable: %v]\n", err)
			}
		case input == "/voice off":
			ctrl.StopRecording()
			ctrl.SetVoiceEnabled(false)
		default:
			fmt.Println("Commands: /voice on|off, /state, /end, /quit")
		}
	}
	return scanner.Err()
}

// endSession marks the live session ended over REST. It reports whether the
// session was ended; before the initialized event there is no session id to
// patch, so nothing is sent.
func endSession(ctx context.Context, client *api.Client, ctrl *feynman.Controller) bool {
	id := ctrl.SessionID()
	if id == uuid.Nil {
		fmt.Println("[no session to end]")
		return false
	}
	if err := client.EndSession(ctx, id); err != nil {
		fmt.Printf("[end session: %v]\n", err)
		return false
	}
	fmt.Println("Session ended.")
	return true
}

// renderEvents wires the streamed session to the terminal. Chunks print
// inline as they arrive so the response reads as live typing.
func renderEvents(ctrl *feynman.Controller) {
	ctrl.Subscribe(feynman.EventServerMessage, func(e feynman.Event) {
		switch ev := e.(feynman.ServerMessageEvent).Event.(type) {
		case protocol.ResponseStartEvent:
			fmt.Print("\nAI: ")
		case protocol.ResponseChunkEvent:
			fmt.Print(ev.Chunk)
		case protocol.ResponseEndEvent:
			fmt.Println()
		case protocol.TranscriptionUpdateEvent:
			if ev.IsFinal {
				fmt.Printf("You (voice): %s\n", ev.Text)
			}
		}
	})
	ctrl.Subscribe(feynman.EventNotice, func(e feynman.Event) {
		fmt.Printf("\n[backend error] %s\n", e.(feynman.NoticeEvent).Message)
	})
	ctrl.Subscribe(feynman.EventTransportError, func(e feynman.Event) {
		fmt.Printf("\n[connection error] %v\n", e.(feynman.TransportErrorEvent).Err)
	})
	ctrl.Subscribe(feynman.EventClosed, func(e feynman.Event) {
		closed := e.(feynman.ClosedEvent)
		fmt.Printf("\n[disconnected] code=%d %s\n", closed.Code, closed.Reason)
	})
}

func printState(state *protocol.AgentState) {
	if state == nil {
		fmt.Println("No progress yet.")
		return
	}
	fmt.Printf("Topic: %s\n", state.MainTopic)
	fmt.Printf("Covered (%d):\n", len(state.CoveredSubtopics))
	for _, name := range sortedKeys(state.CoveredSubtopics) {
		fmt.Printf("  - %s\n", name)
	}
	fmt.Printf("Remaining (%d):\n", len(state.IncompleteSubtopics))
	for _, name := range sortedKeys(state.IncompleteSubtopics) {
		sub := state.IncompleteSubtopics[name]
		fmt.Printf("  - %s (definition=%v mechanism=%v example=%v)\n",
			name, sub.HasDefinition, sub.HasMechanism, sub.HasExample)
	}
}

func sortedKeys(m map[string]protocol.SubTopic) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
