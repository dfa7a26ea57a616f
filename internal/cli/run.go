// Package cli implements fold's command dispatch: a single long-running
// binary with subcommands `ingest`, `run`, `inspect`, and `config init`,
// shaped exactly like the teacher's cli.Run / Command / IO trio.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/foldsearch/fold/internal/config"
	"github.com/foldsearch/fold/internal/memconfig"
)

// Run is fold's entry point. It returns the process exit code: 0 on clean
// completion, 2 on insufficient memory (spec.md §7.3), 1 on any other
// error, 130 whenever a signal ends the run (whether the graceful shutdown
// finished, timed out, or was interrupted), matching the teacher's own
// signal-handling shape in cli.Run.
func Run(_ io.Reader, out io.Writer, errOut io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	globalFlags := flag.NewFlagSet("fold", flag.ContinueOnError)
	globalFlags.SetInterspersed(false)
	globalFlags.Usage = func() {}
	globalFlags.SetOutput(&strings.Builder{})

	flagHelp := globalFlags.BoolP("help", "h", false, "Show help")
	flagCwd := globalFlags.StringP("cwd", "C", "", "Run as if started in `dir`")
	flagConfig := globalFlags.StringP("config", "c", "", "Use specified config `file`")
	flagStateDir := globalFlags.String("state-dir", "", "Override state `directory`")

	if err := globalFlags.Parse(args[1:]); err != nil {
		fprintln(errOut, "error:", err)
		printGlobalOptions(errOut)

		return 1
	}

	cfg, err := config.Load(config.LoadInput{
		WorkDirOverride:  *flagCwd,
		ConfigPath:       *flagConfig,
		StateDirOverride: *flagStateDir,
		Env:              env,
	})
	if err != nil {
		fprintln(errOut, "error:", err)
		printGlobalOptions(errOut)

		return 1
	}

	commands := allCommands(cfg, env)

	commandMap := make(map[string]*Command, len(commands))
	for _, cmd := range commands {
		commandMap[cmd.Name()] = cmd
	}

	commandAndArgs := globalFlags.Args()

	if *flagHelp || (len(commandAndArgs) == 0 && globalFlags.NFlag() == 0) {
		printUsage(out, commands)

		return 0
	}

	if len(commandAndArgs) == 0 {
		fprintln(errOut, "error: no command provided")
		printUsage(errOut, commands)

		return 1
	}

	cmdName := commandAndArgs[0]

	cmd, ok := commandMap[cmdName]
	if !ok {
		fprintln(errOut, "error: unknown command:", cmdName)
		printUsage(errOut, commands)

		return 1
	}

	cmdIO := NewIO(out, errOut)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan int, 1)

	go func() {
		done <- cmd.Run(ctx, cmdIO, commandAndArgs[1:])
	}()

	select {
	case exitCode := <-done:
		return exitCode
	case <-sigCh:
		fprintln(errOut, "shutting down, checkpointing before exit (5s timeout)...")
		cancel()
	}

	select {
	case <-done:
		fprintln(errOut, "graceful shutdown ok (130)")

		return 130
	case <-time.After(5 * time.Second):
		fprintln(errOut, "graceful shutdown timed out, forced exit (130)")

		return 130
	case <-sigCh:
		fprintln(errOut, "graceful shutdown interrupted, forced exit (130)")

		return 130
	}
}

// allCommands returns every fold subcommand in display order.
func allCommands(cfg config.Config, env map[string]string) []*Command {
	return []*Command{
		IngestCmd(cfg),
		RunCmd(cfg),
		InspectCmd(cfg),
		ConfigInitCmd(cfg, env),
	}
}

// exitCodeFor maps a command error to a process exit code: insufficient
// memory gets fold's dedicated code 2 per spec.md §7.3, everything else
// gets the generic 1.
func exitCodeFor(err error) int {
	if errors.Is(err, memconfig.ErrInsufficientMemory) {
		return 2
	}

	return 1
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}

const globalOptionsHelp = `  -h, --help               Show help
  -C, --cwd <dir>          Run as if started in <dir>
  -c, --config <file>      Use specified config file
  --state-dir <directory>  Override state directory`

func printGlobalOptions(w io.Writer) {
	fprintln(w, "Usage: fold [flags] <command> [args]")
	fprintln(w)
	fprintln(w, "Global flags:")
	fprintln(w, globalOptionsHelp)
	fprintln(w)
	fprintln(w, "Run 'fold --help' for a list of commands.")
}

func printUsage(w io.Writer, commands []*Command) {
	fprintln(w, "fold - a corpus ortho search engine")
	fprintln(w)
	fprintln(w, "Usage: fold [flags] <command> [args]")
	fprintln(w)
	fprintln(w, "Flags:")
	fprintln(w, globalOptionsHelp)
	fprintln(w)
	fprintln(w, "Commands:")

	for _, cmd := range commands {
		fprintln(w, "  "+cmd.HelpLine())
	}
}
