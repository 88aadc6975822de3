package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/minutes/internal/blob"
	"github.com/zulandar/minutes/internal/intake"
	"github.com/zulandar/minutes/internal/meeting"
	"golang.org/x/term"
)

func newMeetingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "meeting",
		Short: "Inspect and delete meetings",
	}

	cmd.AddCommand(newMeetingListCmd())
	cmd.AddCommand(newMeetingShowCmd())
	cmd.AddCommand(newMeetingDeleteCmd())
	return cmd
}

func newMeetingListCmd() *cobra.Command {
	var (
		configPath string
		owner      string
		status     string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List an owner's meetings",
		Long:  "Lists meetings newest first. Output is formatted as a table.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMeetingList(cmd, configPath, owner, meeting.ListFilters{Status: status, Limit: limit})
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&owner, "owner", "", "owner id (required)")
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of meetings")
	cmd.MarkFlagRequired("owner")
	return cmd
}

func runMeetingList(cmd *cobra.Command, configPath, owner string, filters meeting.ListFilters) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	ms, err := meeting.List(gormDB, owner, filters)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(ms) == 0 {
		fmt.Fprintln(out, "No meetings found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tCREATED")
	for _, m := range ms {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.ID, truncate(m.Title, 40), m.Status, m.CreatedAt.Format("2006-01-02 15:04"))
	}
	w.Flush()
	return nil
}

func newMeetingShowCmd() *cobra.Command {
	var (
		configPath string
		owner      string
	)

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a meeting's transcript, summary and action items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMeetingShow(cmd, configPath, owner, args[0])
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&owner, "owner", "", "owner id (required)")
	cmd.MarkFlagRequired("owner")
	return cmd
}

func runMeetingShow(cmd *cobra.Command, configPath, owner, id string) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	m, err := meeting.Get(gormDB, owner, id)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ID:          %s\n", m.ID)
	fmt.Fprintf(out, "Title:       %s\n", m.Title)
	fmt.Fprintf(out, "Status:      %s\n", m.Status)
	fmt.Fprintf(out, "Audio:       %s\n", m.AudioPath)
	fmt.Fprintf(out, "Created:     %s\n", m.CreatedAt.Format("2006-01-02 15:04:05"))
	if m.CompletedAt != nil {
		fmt.Fprintf(out, "Completed:   %s\n", m.CompletedAt.Format("2006-01-02 15:04:05"))
	}
	if m.Summary != nil {
		fmt.Fprintf(out, "\nSummary:\n  %s\n", *m.Summary)
	}
	if len(m.ActionItems) > 0 {
		fmt.Fprintln(out, "\nAction items:")
		for _, it := range m.ActionItems {
			fmt.Fprintf(out, "  %d. %s\n", it.Position+1, it.Content)
		}
	}
	if m.Transcription != "" {
		fmt.Fprintf(out, "\nTranscript:\n%s\n", m.Transcription)
	}
	return nil
}

func newMeetingDeleteCmd() *cobra.Command {
	var (
		configPath string
		owner      string
		yes        bool
	)

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a meeting and its audio",
		Long:  "Removes the meeting record, its action items and the uploaded audio. Prompts for confirmation on a terminal unless --yes is given.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMeetingDelete(cmd, configPath, owner, args[0], yes)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&owner, "owner", "", "owner id (required)")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation prompt")
	cmd.MarkFlagRequired("owner")
	return cmd
}

func runMeetingDelete(cmd *cobra.Command, configPath, owner, id string, skipConfirm bool) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	m, err := meeting.Get(gormDB, owner, id)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !skipConfirm {
		ok, err := confirmDelete(cmd, m.ID, m.Title)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	blobs, err := blob.Open(cmd.Context(), cfg.Blob)
	if err != nil {
		return err
	}
	svc := intake.New(intake.Options{DB: gormDB, Blobs: blobs, Prefix: cfg.Blob.Prefix, Log: newLogger(cmd, cfg)})
	if err := svc.Delete(cmd.Context(), owner, id); err != nil {
		return err
	}
	fmt.Fprintf(out, "Deleted meeting %s\n", id)
	return nil
}

// confirmDelete asks for confirmation. Input that is a file but not a
// terminal (a pipe or redirect) is refused so scripts must pass --yes.
func confirmDelete(cmd *cobra.Command, id, title string) (bool, error) {
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && !term.IsTerminal(int(f.Fd())) {
		return false, fmt.Errorf("refusing to delete %s without --yes on non-interactive input", id)
	}
	return prompt(cmd.OutOrStdout(), in, fmt.Sprintf("Delete meeting %s (%q) and its audio? [y/N]: ", id, title)), nil
}

func prompt(out io.Writer, in io.Reader, question string) bool {
	fmt.Fprint(out, question)
	scanner := bufio.NewScanner(in)
	if scanner.Scan() {
		switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
		case "y", "yes":
			return true
		}
	}
	return false
}

// truncate shortens s to at most n runes, appending "..." when it cuts.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
