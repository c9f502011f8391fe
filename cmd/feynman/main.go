// Command feynman is a terminal client for live tutoring sessions: it
// creates or resumes a session over the REST API, opens the duplex channel,
// streams microphone audio up and agent speech down, and renders streamed
// responses as they arrive.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(),
	}))
	slog.SetDefault(logger)

	if err := newRootCmd(logger).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func logLevel() slog.Level {
	if os.Getenv("FEYNMAN_DEBUG") != "" {
		return slog.LevelDebug
	}
	return slog.LevelWarn
}

func newRootCmd(logger *slog.Logger) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "feynman",
		Short:         "Learn by teaching: explain a topic to an AI student",
		Long:          "feynman connects to the tutoring backend for live sessions where you explain a topic out loud (or by typing) and the AI student asks questions until every subtopic is covered.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newTeachCmd(logger),
		newSessionsCmd(),
	)
	return rootCmd
}
