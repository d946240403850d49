package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zboralski/loris/internal/script"
	"github.com/zboralski/loris/internal/ui/colorize"
)

// scriptCmd groups hook script tools.
var scriptCmd = &cobra.Command{
	Use:   "script",
	Short: "Hook script tools",
}

var scriptCheckCmd = &cobra.Command{
	Use:   "check <hook.js>",
	Short: "Compile a hook script without running it",
	Args:  cobra.ExactArgs(1),
	RunE:  runScriptCheck,
}

var scriptShowCmd = &cobra.Command{
	Use:   "show <hook.js>",
	Short: "Print a hook script with syntax highlighting",
	Args:  cobra.ExactArgs(1),
	RunE:  runScriptShow,
}

func init() {
	scriptCmd.AddCommand(scriptCheckCmd, scriptShowCmd)
}

func runScriptCheck(cmd *cobra.Command, args []string) error {
	if err := script.Check(args[0]); err != nil {
		return err
	}
	fmt.Printf("%s compiles\n", args[0])
	return nil
}

func runScriptShow(cmd *cobra.Command, args []string) error {
	src, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	fmt.Println(colorize.Script(string(src)))
	return nil
}
