package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/natefinch/atomic"

	"github.com/foldsearch/fold/internal/config"
)

const defaultConfigTemplate = `{
  // fold runtime configuration. See spec.md §5-§6 for what each field
  // controls; all fields are optional and fall back to built-in defaults.

  "state_dir": "./fold_state",

  // Fraction of total system RAM memconfig targets for queue buffers,
  // tracker bloom capacity, and tracker level residency.
  "memory_target_fraction": 0.75,

  // Processed-ortho count between checkpoint saves.
  "checkpoint_every": 1000,

  // Seconds a lease may go unrefreshed before another worker reclaims it.
  "lease_grace_seconds": 300
}
`

// ConfigInitCmd writes a default fold.jsonc to the working directory,
// bypassing the fs.FS abstraction entirely: per SPEC_FULL.md §2, this is
// the one write path that runs before any FS value exists, so it goes
// straight through github.com/natefinch/atomic rather than
// pkg/fs.AtomicWriter.
func ConfigInitCmd(cfg config.Config, _ map[string]string) *Command {
	flags := flag.NewFlagSet("config", flag.ContinueOnError)
	force := flags.Bool("force", false, "Overwrite an existing fold.jsonc")

	return &Command{
		Flags: flags,
		Usage: "config init [flags]",
		Short: "Write a default fold.jsonc to the current directory",
		Long:  "Bootstrap a commented fold.jsonc with every tunable set to its default, for the user to edit in place.",
		Exec: func(_ context.Context, o *IO, args []string) error {
			if len(args) == 0 || args[0] != "init" {
				return fmt.Errorf("config: unknown subcommand %v (expected \"init\")", args)
			}

			return execConfigInit(o, cfg.EffectiveCwd, *force)
		},
	}
}

func execConfigInit(o *IO, workDir string, force bool) error {
	path := config.ConfigFileName
	if workDir != "" {
		path = filepath.Join(workDir, config.ConfigFileName)
	}

	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config init: %s already exists (use --force to overwrite)", path)
		}
	}

	if err := atomic.WriteFile(path, strings.NewReader(defaultConfigTemplate)); err != nil {
		return fmt.Errorf("config init: writing %s: %w", path, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	o.Printf("wrote %s\n", abs)

	return nil
}
