package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"parley/internal/config"
	"parley/internal/message"
	"parley/internal/store"
)

var errNoSessionDB = errors.New("the session store is disabled (--session-db is empty)")

func newSessionsCmd(opts *config.Options) *cobra.Command {
	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect stored conversations",
	}

	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the most recent sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := openStore(cmd, *opts)
			if err != nil {
				return err
			}
			defer st.Close()

			sessions, err := st.ListSessions(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No sessions yet.")
				return nil
			}

			t := table.New().
				Border(lipgloss.NormalBorder()).
				Headers("id", "started", "task", "model")
			for _, s := range sessions {
				t.Row(s.ID, s.StartTime.Local().Format(time.DateTime), s.Task, s.Model)
			}
			fmt.Fprintln(cmd.OutOrStdout(), t.String())
			return nil
		},
	}
	listCmd.Flags().IntVar(&limit, "limit", 20, "number of sessions to show")

	showCmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Print the transcript of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd, *opts)
			if err != nil {
				return err
			}
			defer st.Close()

			records, err := st.Messages(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			msgs := make([]message.Message, 0, len(records))
			for _, r := range records {
				msgs = append(msgs, message.Message{ID: r.Speaker, Text: r.Content, EpisodeDone: r.EpisodeDone})
			}
			fmt.Fprintln(cmd.OutOrStdout(), message.Display(msgs, message.DisplayOptions{}))
			return nil
		},
	}

	sessionsCmd.AddCommand(listCmd, showCmd)
	return sessionsCmd
}

func openStore(cmd *cobra.Command, opts config.Options) (*store.Store, error) {
	path := opts.SessionDB
	if !cmd.Flags().Changed("session-db") {
		path = filepath.Join(opts.Datapath, "parley.db")
	}
	if path == "" {
		return nil, errNoSessionDB
	}
	return store.Open(path)
}
