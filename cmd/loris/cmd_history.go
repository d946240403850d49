package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/zboralski/loris/internal/history"
	"github.com/zboralski/loris/internal/ui/colorize"
	"github.com/zboralski/loris/internal/ui/tracetui"
)

var historyTUI bool

// historyCmd lists recorded sessions.
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded sessions",
	Args:  cobra.NoArgs,
	RunE:  runHistoryList,
}

// historyShowCmd replays one session's trace.
var historyShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Print one session's trace",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

// historyRmCmd deletes a session.
var historyRmCmd = &cobra.Command{
	Use:   "rm <session-id>",
	Short: "Delete a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryRm,
}

func init() {
	historyCmd.Flags().BoolVar(&historyTUI, "tui", false, "browse sessions interactively")
	historyCmd.AddCommand(historyShowCmd, historyRmCmd)
}

func openHistory() (*history.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	key, err := cfg.HistoryKey()
	if err != nil {
		return nil, err
	}
	return history.Open(cfg.HistoryPath(), key)
}

// findSession resolves a full or prefix session id.
func findSession(store *history.Store, id string) (*history.Session, error) {
	sess, err := store.Get(id)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, history.ErrNotFound) {
		return nil, err
	}
	sessions, err := store.List()
	if err != nil {
		return nil, err
	}
	var match *history.Session
	for _, s := range sessions {
		if strings.HasPrefix(s.ID, id) {
			if match != nil {
				return nil, fmt.Errorf("session id %q is ambiguous", id)
			}
			match = s
		}
	}
	if match == nil {
		return nil, fmt.Errorf("session %q: %w", id, history.ErrNotFound)
	}
	return match, nil
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	sessions, err := store.List()
	if err != nil {
		return err
	}

	if historyTUI {
		return tracetui.Run(sessions)
	}

	if len(sessions) == 0 {
		fmt.Println("no recorded sessions")
		return nil
	}
	for _, sess := range sessions {
		id := sess.ID
		if len(id) > 8 {
			id = id[:8]
		}
		status := colorize.Detail(sess.Outcome)
		if sess.Outcome != "ok" {
			status = colorize.Error(fmt.Sprintf("%s(%d)", sess.Outcome, sess.ExitCode))
		}
		fmt.Printf("%s  %-16s %-32s %s  %s calls\n",
			colorize.FuncName(id),
			humanize.Time(sess.Started),
			sess.Module,
			status,
			colorize.Detail(fmt.Sprintf("%d", sess.Calls)))
	}
	return nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	sess, err := findSession(store, args[0])
	if err != nil {
		return err
	}

	fmt.Printf("%s %s\n", colorize.Detail("Session:"), sess.ID)
	fmt.Printf("%s %s  %s %s  %s %s\n",
		colorize.Detail("Module:"), sess.Module,
		colorize.Detail("Entry:"), colorize.FuncName(sess.Entry),
		colorize.Detail("Started:"), humanize.Time(sess.Started))
	fmt.Printf("%s %d stubs, %d calls, %s in %s\n",
		colorize.Detail("Result:"), sess.Stubs, sess.Calls, sess.Outcome, sess.Duration)
	fmt.Println()
	for _, ev := range sess.Events {
		fmt.Println(formatLine(ev))
	}
	if len(sess.Events) == 0 {
		fmt.Println(colorize.Detail("trace not recorded for this session"))
	}
	return nil
}

func runHistoryRm(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	sess, err := findSession(store, args[0])
	if err != nil {
		return err
	}
	if err := store.Delete(sess.ID); err != nil {
		return err
	}
	fmt.Printf("deleted %s\n", sess.ID)
	return nil
}
