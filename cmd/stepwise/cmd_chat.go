package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/stepwise/internal/agents"
	"github.com/user/stepwise/internal/protocol"
	"github.com/user/stepwise/internal/session"
	"github.com/user/stepwise/internal/stream"
)

var chatFiles []string

func init() {
	chatCmd.Flags().StringArrayVar(&chatFiles, "file", nil, "tabular attachment as filename=url (repeatable)")
	rootCmd.AddCommand(chatCmd)
}

var chatCmd = &cobra.Command{
	Use:   "chat <prompt>",
	Short: "Run one conversational turn and print the streamed response",
	Args:  cobra.ExactArgs(1),
	RunE:  runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	files, err := parseFileRefs(chatFiles)
	if err != nil {
		return err
	}

	orch, err := buildOrchestrator(cfg)
	if err != nil {
		return err
	}
	sess := session.New(orch, turnTimeout(cfg))
	defer sess.Close()

	// Print conversational text and artifact content as they stream;
	// lifecycle events render as progress markers.
	printer := stream.WriterFunc(func(ev protocol.Event) error {
		switch e := ev.(type) {
		case protocol.TextDelta:
			fmt.Print(e.Delta)
		case protocol.ArtifactDelta:
			fmt.Print(e.Delta)
		case protocol.RunStart:
			fmt.Fprintf(os.Stderr, "\n[%s started]\n", e.Kind)
		case protocol.RunEnd:
			fmt.Fprintf(os.Stderr, "[run %s]\n", e.Status)
		}
		return nil
	})

	if _, err := sess.Turn(cmd.Context(), printer, args[0], files); err != nil {
		return err
	}
	fmt.Println()

	printRunSummary(sess)
	return nil
}

func parseFileRefs(flags []string) ([]agents.FileRef, error) {
	refs := make([]agents.FileRef, 0, len(flags))
	for _, f := range flags {
		name, url, ok := strings.Cut(f, "=")
		if !ok || name == "" || url == "" {
			return nil, fmt.Errorf("invalid --file %q, expected filename=url", f)
		}
		refs = append(refs, agents.FileRef{Filename: name, URL: url})
	}
	return refs, nil
}

func printRunSummary(sess *session.Session) {
	runs := sess.Store().Runs()
	if len(runs) == 0 {
		return
	}

	ids := make([]string, 0, len(runs))
	for id := range runs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	fmt.Fprintln(os.Stderr, "\nRuns:")
	for _, id := range ids {
		run := runs[id]
		fmt.Fprintf(os.Stderr, "  %s  %s  %s  (%d steps)\n", run.ID, run.Kind, run.Status, len(run.Steps))
	}
}
