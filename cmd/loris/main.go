package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"

	"github.com/zboralski/loris/internal/config"
	"github.com/zboralski/loris/internal/history"
	glog "github.com/zboralski/loris/internal/log"
	"github.com/zboralski/loris/internal/script"
	"github.com/zboralski/loris/internal/stubs"
	_ "github.com/zboralski/loris/internal/stubs/all"
	"github.com/zboralski/loris/internal/trace"
	"github.com/zboralski/loris/internal/ui/colorize"
	"github.com/zboralski/loris/internal/wasm"
)

var (
	verbose    bool
	quiet      bool
	maxCalls   int
	entryName  string
	scriptPath string
	configPath string
	record     bool
	watch      bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "loris [module.wasm]",
		Short: "Run wasm modules that import threads they will never get",
		Long: `Loris runs single-threaded Emscripten builds under wazero and satisfies
the threading imports their libraries still carry.

GLib and friends import mutexes, condition variables, thread-local
storage, and thread creation even when built without pthread support.
Loris supplies those symbols as host stubs: locks always succeed,
waits return immediately, and thread creation reports failure the way
the single-threaded C shims do. Every stub call is traced.

Examples:
  loris app.wasm                  # Run with colorized stub trace
  loris app.wasm -q               # Quiet mode - stats only
  loris app.wasm -v               # Verbose debug output
  loris app.wasm --script hook.js # Watch and override stubs from JavaScript
  loris app.wasm --record         # Save the trace to the session db
  loris info app.wasm             # Show module info`,
		Args:                  cobra.MaximumNArgs(1),
		DisableFlagsInUseLine: true,
		RunE:                  runTrace,
	}

	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "verbose debug output")
	rootCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "quiet mode (stats only)")
	rootCmd.Flags().IntVarP(&maxCalls, "num", "n", 500, "max stub calls to show")
	rootCmd.Flags().StringVar(&entryName, "entry", "", "entry export to invoke")
	rootCmd.Flags().StringVar(&scriptPath, "script", "", "JavaScript hook file")
	rootCmd.Flags().BoolVar(&record, "record", false, "record the session to the history db")
	rootCmd.Flags().BoolVar(&watch, "watch", false, "rerun when the module file changes")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")

	rootCmd.AddCommand(infoCmd, serveCmd, historyCmd, scriptCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	return config.Load(path)
}

type outputWriter struct {
	ch     chan string
	done   chan struct{}
	writer *bufio.Writer
}

func newOutputWriter() *outputWriter {
	w := &outputWriter{
		ch:     make(chan string, 2048),
		done:   make(chan struct{}),
		writer: bufio.NewWriterSize(os.Stdout, 64*1024),
	}
	go w.run()
	return w
}

func (w *outputWriter) run() {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case line, ok := <-w.ch:
			if !ok {
				w.writer.Flush()
				close(w.done)
				return
			}
			w.writer.WriteString(line)
			w.writer.WriteByte('\n')
		case <-ticker.C:
			w.writer.Flush()
		}
	}
}

func (w *outputWriter) Write(line string) {
	select {
	case w.ch <- line:
	default:
	}
}

func (w *outputWriter) Close() {
	close(w.ch)
	<-w.done
}

func formatLine(ev *trace.Event) string {
	var b strings.Builder
	b.Grow(192)

	b.WriteString(colorize.Seq(ev.Seq))
	b.WriteString("  ")
	visibleLen := 6 + 2

	b.WriteString(colorize.FuncName(ev.Name))
	visibleLen += len(ev.Name)

	const commentCol = 40
	for visibleLen < commentCol {
		b.WriteByte(' ')
		visibleLen++
	}

	var parts []string
	if tags := ev.Tags.Strings(); len(tags) > 0 {
		parts = append(parts, colorize.Tag(strings.Join(tags, " ")))
	}
	if ev.Detail != "" {
		parts = append(parts, colorize.Comment(ev.Detail))
	}
	for k, v := range ev.Annotations {
		parts = append(parts, colorize.Comment(k+"="+v))
	}
	if len(parts) > 0 {
		b.WriteString(colorize.Border("; "))
		b.WriteString(strings.Join(parts, "  "))
	}

	return b.String()
}

func printHeader(w *outputWriter, info *wasm.Info, installed int, entry string) {
	path := info.Path
	if cwd, err := os.Getwd(); err == nil {
		if rel, err := filepath.Rel(cwd, path); err == nil && !strings.HasPrefix(rel, "..") {
			path = rel
		}
	}

	w.Write("")
	w.Write(fmt.Sprintf("%s loris ─ wasm threading stub tracer", colorize.Header("▶")))
	w.Write(fmt.Sprintf("  %s %s (%s)", colorize.Detail("Loading:"), path, humanize.Bytes(uint64(info.Size))))
	w.Write(fmt.Sprintf("  %s %s  %s %s  %s %s",
		colorize.Detail("Imports:"), colorize.FuncName(fmt.Sprintf("%d", len(info.Imports))),
		colorize.Detail("Env:"), colorize.FuncName(fmt.Sprintf("%d", len(info.EnvImports()))),
		colorize.Detail("Stubs:"), colorize.FuncName(fmt.Sprintf("%d", installed))))
	w.Write(fmt.Sprintf("  %s %s", colorize.Detail("Entry point:"), colorize.FuncName(entry)))
	if line := producerLine(info); line != "" {
		w.Write(fmt.Sprintf("  %s %s", colorize.Detail("Toolchain:"), line))
	}
	w.Write("")
}

func producerLine(info *wasm.Info) string {
	var parts []string
	for _, p := range info.Producers {
		if p.Version != "" {
			parts = append(parts, p.Name+" "+p.Version)
		} else {
			parts = append(parts, p.Name)
		}
	}
	return strings.Join(parts, ", ")
}

func printStats(sess *history.Session, tlsSlots int, err error) {
	fmt.Println()
	fmt.Print(colorize.Border("───────────────────────────────────────── "))
	fmt.Printf("%s calls  %s stubs",
		colorize.FuncName(fmt.Sprintf("%d", sess.Calls)),
		colorize.FuncName(fmt.Sprintf("%d", sess.Stubs)))
	if tlsSlots > 0 {
		fmt.Printf("  %s tls slots", colorize.FuncName(fmt.Sprintf("%d", tlsSlots)))
	}
	if sess.Outcome == "exit" {
		fmt.Printf("  %s", colorize.Detail(fmt.Sprintf("exit status %d", sess.ExitCode)))
	} else if err != nil {
		fmt.Printf("  %s", colorize.Error(err.Error()))
	}
	fmt.Println()
}

func printQuietSummary(modulePath string, sess *history.Session) {
	fmt.Printf("%s\n", colorize.FuncName(filepath.Base(modulePath)))

	counts := make(map[trace.Tag]int)
	for _, ev := range sess.Events {
		for _, tag := range ev.Tags {
			counts[tag]++
		}
	}
	fmt.Printf("%d %s", sess.Calls, colorize.Detail("calls"))
	fmt.Printf("  %d %s", sess.Stubs, colorize.Detail("stubs"))
	for _, tag := range []trace.Tag{trace.Lock, trace.Wait, trace.TLS, trace.Spawn, trace.CxxAbi, trace.Dynload, trace.Fallback} {
		if n := counts[tag]; n > 0 {
			fmt.Printf("  %d %s", n, colorize.Detail(string(tag)))
		}
	}
	if sess.Outcome != "ok" {
		fmt.Printf("  %s", colorize.Error(fmt.Sprintf("%s(%d)", sess.Outcome, sess.ExitCode)))
	}
	fmt.Println()
	fmt.Println()
}

func runTrace(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return cmd.Help()
	}
	modulePath := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if !flags.Changed("verbose") {
		verbose = cfg.Verbose
	}
	if !flags.Changed("quiet") {
		quiet = cfg.Quiet
	}
	if !flags.Changed("num") && cfg.MaxCalls > 0 {
		maxCalls = cfg.MaxCalls
	}
	if entryName == "" {
		entryName = cfg.Entry
	}
	if scriptPath == "" {
		scriptPath = cfg.Script
	}
	// A configured history path means the user wants sessions kept.
	record = record || cfg.History.Path != ""
	if verbose && quiet {
		return fmt.Errorf("verbose and quiet are mutually exclusive")
	}

	glog.Init(verbose)
	stubs.Debug = verbose
	stubs.InstallFallbacks = cfg.Fallbacks
	for _, category := range cfg.Disabled {
		stubs.Disabled[category] = true
	}

	var engine *script.Engine
	if scriptPath != "" {
		if engine, err = script.Load(scriptPath); err != nil {
			return err
		}
		engine.Bind(stubs.DefaultRegistry)
	}

	if !watch {
		return runOnce(modulePath, cfg, engine)
	}
	return watchAndRun(modulePath, cfg, engine)
}

func runOnce(modulePath string, cfg *config.Config, engine *script.Engine) error {
	data, err := wasm.Load(modulePath)
	if err != nil {
		return err
	}

	ctx := context.Background()
	rt := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().WithCustomSections(true))
	defer rt.Close(ctx)
	wasi_snapshot_preview1.MustInstantiate(ctx, rt)

	compiled, err := rt.CompileModule(ctx, data)
	if err != nil {
		return fmt.Errorf("compile module: %w", err)
	}
	info := wasm.Inspect(compiled, modulePath, int64(len(data)))

	entry := info.FindEntryPoint(entryName)
	if entry == "" {
		return fmt.Errorf("no entry export in %s; tried _start, main", modulePath)
	}

	env := stubs.NewEnv()
	installed, err := stubs.Install(ctx, rt, env, info)
	if err != nil {
		return fmt.Errorf("install stubs: %w", err)
	}

	var out *outputWriter
	if !quiet {
		out = newOutputWriter()
	}
	if engine != nil {
		engine.Print = func(line string) {
			if out != nil {
				out.Write(line)
			} else {
				fmt.Println(line)
			}
		}
	}

	collector := trace.NewCollector()
	var calls uint64
	stubs.DefaultRegistry.OnCall = func(category, name, detail string) {
		calls++
		ev := trace.NewEvent(calls, category, name, detail)
		trace.DefaultEnricher(ev)
		collector.Add(ev)
		if out == nil {
			return
		}
		if maxCalls > 0 && calls > uint64(maxCalls) {
			return
		}
		out.Write(formatLine(ev))
	}
	defer func() { stubs.DefaultRegistry.OnCall = nil }()

	if verbose {
		fmt.Printf("Loaded: %s (%s)\n", info.Path, humanize.Bytes(uint64(info.Size)))
		fmt.Printf("Imports: %d (%d env), Exports: %d\n", len(info.Imports), len(info.EnvImports()), len(info.Exports))
		fmt.Printf("Stubs installed: %d\n", installed)
		fmt.Printf("Entry: %s\n", entry)
		fmt.Println("\nStarting guest...")
	} else if !quiet {
		printHeader(out, info, installed, entry)
	}

	sess := history.NewSession(modulePath, entry)
	sess.Stubs = installed

	modConfig := wazero.NewModuleConfig().
		WithName(filepath.Base(modulePath)).
		WithStartFunctions().
		WithStdout(os.Stdout).
		WithStderr(os.Stderr).
		WithArgs(filepath.Base(modulePath))

	var runErr error
	mod, err := rt.InstantiateModule(ctx, compiled, modConfig)
	if err != nil {
		runErr = err
	} else {
		runErr = wasm.NewMachine(mod).CallEntry(ctx, entry)
	}

	if out != nil {
		out.Close()
	}

	outcome, exitCode := "ok", uint32(0)
	var exitErr *sys.ExitError
	if errors.As(runErr, &exitErr) {
		exitCode = exitErr.ExitCode()
		if exitCode == 0 {
			runErr = nil
		} else {
			outcome = "exit"
		}
	} else if runErr != nil {
		outcome = "error"
	}

	sess.Calls = calls
	sess.Events = collector.Snapshot()
	sess.Finish(outcome, exitCode)

	if engine != nil {
		engine.Finish(calls, installed, outcome, exitCode)
	}

	if record {
		if err := saveSession(cfg, sess); err != nil {
			return err
		}
	}

	if verbose {
		fmt.Printf("\nGuest finished: %v\n", runErr)
		fmt.Printf("Calls: %d, Events: %d\n", calls, len(sess.Events))
	} else if quiet {
		printQuietSummary(modulePath, sess)
	} else {
		printStats(sess, env.Private.Len(), runErr)
	}

	return nil
}

func saveSession(cfg *config.Config, sess *history.Session) error {
	key, err := cfg.HistoryKey()
	if err != nil {
		return err
	}
	store, err := history.Open(cfg.HistoryPath(), key)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Put(sess); err != nil {
		return err
	}
	if !quiet {
		fmt.Printf("%s %s\n", colorize.Detail("Recorded:"), sess.ID)
	}
	return nil
}

// watchAndRun reruns the module every time it is rewritten. Toolchains
// replace the output file rather than write in place, so create
// events count as changes too.
func watchAndRun(modulePath string, cfg *config.Config, engine *script.Engine) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	abs, err := filepath.Abs(modulePath)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return err
	}

	for {
		if err := runOnce(modulePath, cfg, engine); err != nil {
			fmt.Println(colorize.Error(err.Error()))
		}
		fmt.Println(colorize.Detail("watching for changes, ctrl-c to stop"))

		if err := waitForChange(watcher, abs); err != nil {
			return err
		}
	}
}

func waitForChange(watcher *fsnotify.Watcher, abs string) error {
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return errors.New("watcher closed")
			}
			if event.Name != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			// Give the toolchain a moment to finish writing.
			time.Sleep(100 * time.Millisecond)
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return errors.New("watcher closed")
			}
			return err
		}
	}
}
