package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/peterh/liner"

	"github.com/foldsearch/fold/internal/checkpoint"
	"github.com/foldsearch/fold/internal/config"
	"github.com/foldsearch/fold/internal/driver"
	"github.com/foldsearch/fold/internal/interner"
	"github.com/foldsearch/fold/internal/memconfig"
	"github.com/foldsearch/fold/internal/ortho"
	"github.com/foldsearch/fold/pkg/diskqueue"
	"github.com/foldsearch/fold/pkg/fs"
)

// InspectCmd opens a read-only REPL over the last checkpoint: vocabulary
// lookups in both directions, the count of orthos on record, and the
// optimal ortho, without re-running the driver. It offers no intersect
// probes and no tracker membership checks. A supplemental debugging aid
// (SPEC_FULL.md §5), not part of the distilled CLI surface.
func InspectCmd(cfg config.Config) *Command {
	flags := flag.NewFlagSet("inspect", flag.ContinueOnError)

	return &Command{
		Flags: flags,
		Usage: "inspect",
		Short: "Open a read-only REPL over the last checkpoint",
		Long:  "Query a loaded checkpoint interactively: vocabulary lookups, the number of orthos on record, and the optimal ortho.",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			return execInspect(o, cfg)
		},
	}
}

type inspectState struct {
	in            *interner.Interner
	results       *diskqueue.Queue[*ortho.Ortho]
	frontierCount int
	optimal       *ortho.Ortho
}

func execInspect(o *IO, cfg config.Config) error {
	ckp := checkpoint.NewManager(fs.NewReal(), cfg.StateDir)

	memCfg, err := memconfig.Calculate(cfg.MemoryTargetFraction, 0, 0)
	if err != nil {
		return fmt.Errorf("inspect: %w", err)
	}

	in, results, _, err := ckp.Load(memCfg)
	if err != nil {
		return fmt.Errorf("inspect: loading checkpoint: %w", err)
	}

	if in == nil {
		return errors.New("inspect: no checkpoint found at " + cfg.StateDir)
	}

	st := &inspectState{in: in, results: results}

	for {
		item, ok, err := results.Pop()
		if err != nil {
			return fmt.Errorf("inspect: scanning results queue: %w", err)
		}

		if !ok {
			break
		}

		st.frontierCount++

		if st.optimal == nil || candidateIsBetter(item, st.optimal) {
			st.optimal = item
		}
	}

	return runInspectREPL(o, st)
}

func candidateIsBetter(candidate, current *ortho.Ortho) bool {
	cv, ov := candidate.Volume(), current.Volume()

	return cv > ov || (cv == ov && candidate.FilledCount() > current.FilledCount())
}

func runInspectREPL(o *IO, st *inspectState) error {
	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)

	o.Printf("fold inspect — interner version %d, vocabulary size %d, %d orthos on record\n",
		st.in.Version(), st.in.VocabularySize(), st.frontierCount)
	o.Println("type 'help' for commands, 'exit' to quit")

	for {
		input, err := line.Prompt("fold> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				o.Println()

				return nil
			}

			return fmt.Errorf("inspect: reading input: %w", err)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		line.AppendHistory(input)

		fields := strings.Fields(input)
		cmd, args := fields[0], fields[1:]

		switch cmd {
		case "exit", "quit":
			return nil
		case "help":
			printInspectHelp(o)
		case "token":
			execInspectToken(o, st, args)
		case "word":
			execInspectWord(o, st, args)
		case "optimal":
			execInspectOptimal(o, st)
		case "count":
			o.Printf("%d orthos on record\n", st.frontierCount)
		default:
			o.Printf("unknown command: %s (try 'help')\n", cmd)
		}
	}
}

func printInspectHelp(o *IO) {
	o.Println("commands:")
	o.Println("  word <token-index>   print the vocabulary word for a token index")
	o.Println("  token <word>         print the token index for a vocabulary word")
	o.Println("  optimal              print the best ortho by (volume, fullness)")
	o.Println("  count                print the number of orthos on record")
	o.Println("  exit                 leave the REPL")
}

func execInspectToken(o *IO, st *inspectState, args []string) {
	if len(args) != 1 {
		o.Println("usage: token <word>")

		return
	}

	t, ok := st.in.TokenForString(args[0])
	if !ok {
		o.Printf("no such word: %s\n", args[0])

		return
	}

	o.Printf("%d\n", t)
}

func execInspectWord(o *IO, st *inspectState, args []string) {
	if len(args) != 1 {
		o.Println("usage: word <token-index>")

		return
	}

	idx, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		o.Printf("not a token index: %s\n", args[0])

		return
	}

	if int(idx) >= st.in.VocabularySize() {
		o.Printf("token %d is out of range (vocabulary size %d)\n", idx, st.in.VocabularySize())

		return
	}

	o.Println(st.in.StringForToken(interner.Token(idx)))
}

func execInspectOptimal(o *IO, st *inspectState) {
	if st.optimal == nil {
		o.Println("no optimal ortho recorded")

		return
	}

	words := driver.DescribeOptimal(st.in, st.optimal)
	o.Printf("id=%d version=%d dims=%v volume=%d payload=%v\n",
		st.optimal.ID(), st.optimal.Version(), st.optimal.Dims(), st.optimal.Volume(), words)
}
