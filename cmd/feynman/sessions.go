package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/oduggan21/feynmanV2/internal/config"
	"github.com/oduggan21/feynmanV2/pkg/api"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and manage tutoring sessions",
	}
	cmd.AddCommand(newSessionsShowCmd(), newSessionsEndCmd())
	return cmd
}

func newSessionsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show a session's topic and status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid session id %q: %w", args[0], err)
			}
			session, err := api.NewClient(cfg.APIURL, cfg.UserID).GetSession(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Printf("Session:  %s\n", session.ID)
			fmt.Printf("Topic:    %s\n", session.Topic)
			fmt.Printf("Status:   %s\n", session.Status)
			fmt.Printf("Created:  %s\n", session.CreatedAt.Format("2006-01-02 15:04:05"))
			fmt.Printf("Updated:  %s\n", session.UpdatedAt.Format("2006-01-02 15:04:05"))
			return nil
		},
	}
}

func newSessionsEndCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "end <session-id>",
		Short: "Mark a session as ended",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid session id %q: %w", args[0], err)
			}
			if err := api.NewClient(cfg.APIURL, cfg.UserID).EndSession(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Printf("Session %s ended.\n", id)
			return nil
		},
	}
}
