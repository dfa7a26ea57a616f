package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/foldsearch/fold/internal/checkpoint"
	"github.com/foldsearch/fold/internal/config"
	"github.com/foldsearch/fold/internal/driver"
	"github.com/foldsearch/fold/internal/interner"
	"github.com/foldsearch/fold/internal/lease"
	"github.com/foldsearch/fold/internal/memconfig"
	"github.com/foldsearch/fold/internal/ortho"
	"github.com/foldsearch/fold/pkg/diskqueue"
	"github.com/foldsearch/fold/pkg/fs"
	"github.com/foldsearch/fold/pkg/tracker"
)

// RunCmd drives the BFS loop to completion (or until cancelled), per
// spec.md §6's "run" CLI surface and §4.6's driver loop.
func RunCmd(cfg config.Config) *Command {
	flags := flag.NewFlagSet("run", flag.ContinueOnError)
	leaseKey := flags.String("lease-key", "", "Claim this key via the lease protocol before running (optional multi-process fan-out, spec.md §6)")

	return &Command{
		Flags: flags,
		Usage: "run [flags]",
		Short: "Run the breadth-first search to completion",
		Long:  "Load the last checkpoint (or seed fresh), then expand the work queue until it empties or the process is signalled to stop.",
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			return execRun(ctx, o, cfg, *leaseKey)
		},
	}
}

func execRun(ctx context.Context, o *IO, cfg config.Config, leaseKey string) error {
	fsys := fs.NewReal()
	ckp := checkpoint.NewManager(fsys, cfg.StateDir)

	memCfg, err := memconfig.Calculate(cfg.MemoryTargetFraction, 0, 0)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	if leaseKey != "" {
		release, err := claimLease(cfg, leaseKey)
		if err != nil {
			return err
		}

		if release == nil {
			o.Printf("lease %s is held by another worker, nothing to do\n", leaseKey)

			return nil
		}

		defer release()
	}

	in, results, seen, err := ckp.Load(memCfg)
	if err != nil {
		return fmt.Errorf("run: loading checkpoint: %w", err)
	}

	log := slog.Default()
	cfgDriver := driver.Config{CheckpointEvery: cfg.CheckpointEvery, Memory: memCfg}

	fresh := in == nil

	if fresh {
		in = interner.New()
		results, err = diskqueue.Open(fsys, ckp.ResultsPath(), memCfg.QueueBufferSize, checkpoint.OrthoCodec{})
		if err != nil {
			return fmt.Errorf("run: opening results queue: %w", err)
		}

		seen = tracker.New(memCfg.TrackerBaseCapacity, memCfg.BloomBits)
	}

	d := driver.New(log, ckp, cfgDriver, results, seen)

	if fresh {
		o.Println("no checkpoint found, seeding fresh run")
		d.Seed(in.Version())
	} else {
		o.Println("resuming from checkpoint")

		frontier, err := drainForResume(results)
		if err != nil {
			return fmt.Errorf("run: rebuilding frontier: %w", err)
		}

		if len(frontier) == 0 {
			o.Println("checkpoint holds no orthos yet, seeding")
			d.Seed(in.Version())
		} else {
			d.ResumeFrontier(frontier)
		}
	}

	start := time.Now()

	stats, err := d.Run(ctx, in)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	o.Printf("processed %d orthos, generated %d children, elapsed %s\n", stats.Processed, stats.Generated, time.Since(start).Round(time.Millisecond))

	printOptimal(o, in, stats.Optimal)

	return nil
}

// drainForResume reads every item currently in results and pushes it
// straight back, giving the caller the full item list without losing it
// from the queue — used once, immediately after [checkpoint.Manager.Load]
// and before any new work is pushed, to rebuild the in-memory work queue
// per spec.md §5's "partial work between checkpoints is discarded on
// restart and rebuilt from the results queue."
func drainForResume(results *diskqueue.Queue[*ortho.Ortho]) ([]*ortho.Ortho, error) {
	var items []*ortho.Ortho

	for {
		item, ok, err := results.Pop()
		if err != nil {
			return nil, err
		}

		if !ok {
			break
		}

		items = append(items, item)

		if err := results.Push(item); err != nil {
			return nil, err
		}
	}

	return items, nil
}

func claimLease(cfg config.Config, key string) (release func(), err error) {
	mgr, err := lease.NewManager(fs.NewReal(), leaseDir(cfg), time.Duration(cfg.LeaseGraceSeconds)*time.Second)
	if err != nil {
		return nil, fmt.Errorf("run: constructing lease manager: %w", err)
	}

	now := time.Now()

	if _, err := mgr.SweepStale(now); err != nil {
		return nil, fmt.Errorf("run: sweeping stale leases: %w", err)
	}

	ok, err := mgr.Claim(key, now)
	if err != nil {
		return nil, fmt.Errorf("run: claiming lease %s: %w", key, err)
	}

	if !ok {
		return nil, nil
	}

	return func() { _ = mgr.Release(key) }, nil
}

func leaseDir(cfg config.Config) string {
	return cfg.StateDir + "/leases"
}

func printOptimal(o *IO, in *interner.Interner, optimal *ortho.Ortho) {
	if optimal == nil {
		o.Println("no optimal ortho recorded")

		return
	}

	words := driver.DescribeOptimal(in, optimal)

	o.Printf("optimal: id=%d version=%d dims=%v volume=%d payload=%v\n",
		optimal.ID(), optimal.Version(), optimal.Dims(), optimal.Volume(), words)
}
