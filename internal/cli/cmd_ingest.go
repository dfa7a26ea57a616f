package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	flag "github.com/spf13/pflag"

	"github.com/foldsearch/fold/internal/checkpoint"
	"github.com/foldsearch/fold/internal/config"
	"github.com/foldsearch/fold/internal/interner"
	"github.com/foldsearch/fold/internal/memconfig"
	"github.com/foldsearch/fold/pkg/diskqueue"
	"github.com/foldsearch/fold/pkg/fs"
)

// IngestCmd extends the interner from a text file and checkpoints it, per
// spec.md §6's "ingest <path>" CLI surface.
func IngestCmd(cfg config.Config) *Command {
	flags := flag.NewFlagSet("ingest", flag.ContinueOnError)

	return &Command{
		Flags: flags,
		Usage: "ingest <path>",
		Short: "Extend the interner from a text file and checkpoint",
		Long:  "Read a text file, fold it into the interner's vocabulary and phrase index, and checkpoint the result.",
		Exec: func(_ context.Context, o *IO, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("ingest: expected exactly one path argument, got %d", len(args))
			}

			return execIngest(o, cfg, args[0])
		},
	}
}

func execIngest(o *IO, cfg config.Config, path string) error {
	fsys := fs.NewReal()
	ckp := checkpoint.NewManager(fsys, cfg.StateDir)

	memCfg, err := memconfig.Calculate(cfg.MemoryTargetFraction, 0, 0)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}

	in, results, _, err := ckp.Load(memCfg)
	if err != nil {
		return fmt.Errorf("ingest: loading checkpoint: %w", err)
	}

	if in == nil {
		in = interner.New()
		results, err = diskqueue.Open(fsys, ckp.ResultsPath(), memCfg.QueueBufferSize, checkpoint.OrthoCodec{})
		if err != nil {
			return fmt.Errorf("ingest: opening results queue: %w", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("ingest: reading %s: %w", path, err)
	}

	var next *interner.Interner
	if in.VocabularySize() == 0 {
		next = interner.FromText(string(data))
	} else {
		next = in.AddText(string(data))
	}

	if err := ckp.Save(next, results); err != nil {
		return fmt.Errorf("ingest: checkpointing: %w", err)
	}

	o.Printf("ingested %s\n", filepath.Clean(path))
	o.Printf("interner version: %d\n", next.Version())
	o.Printf("vocabulary size: %d\n", next.VocabularySize())

	return nil
}
