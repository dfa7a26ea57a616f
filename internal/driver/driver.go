// Package driver implements the single-worker breadth-first search loop
// described in spec.md §4.6: pop an ortho, ask it for its completion
// constraints, ask the interner for legal completions, expand, dedupe
// against the tracker, and enqueue novel children — checkpointing
// periodically so the run can resume after a restart.
package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/foldsearch/fold/internal/checkpoint"
	"github.com/foldsearch/fold/internal/interner"
	"github.com/foldsearch/fold/internal/memconfig"
	"github.com/foldsearch/fold/internal/ortho"
	"github.com/foldsearch/fold/pkg/diskqueue"
	"github.com/foldsearch/fold/pkg/tracker"
)

// Logger is the narrow slice of structured logging the driver needs. A
// *slog.Logger satisfies it; tests can supply a recording stub.
type Logger interface {
	Info(msg string, args ...any)
}

// Stats summarizes one Run invocation for the caller to report (the `fold
// run` command's completion summary, per SPEC_FULL.md §5).
type Stats struct {
	Processed int
	Generated int
	Optimal   *ortho.Ortho
}

// Config controls checkpoint cadence and memory sizing. CheckpointEvery
// is a processed-ortho count, not a duration: spec.md §4.6 permits either
// wall-clock or processed-count triggers, and a count is deterministic
// under tests.
type Config struct {
	CheckpointEvery int
	Memory          memconfig.Config
}

// Driver owns the live work queue, results queue, tracker, and shell
// cache for one run. It holds no reference to the checkpoint manager's
// temp/backup directories directly — those are Manager's concern.
type Driver struct {
	log Logger
	ckp *checkpoint.Manager
	cfg Config

	cache   *ortho.ShellCache
	work    []*ortho.Ortho
	results *diskqueue.Queue[*ortho.Ortho]
	seen    *tracker.Tracker

	optimal *ortho.Ortho
}

// New constructs a Driver. results and seen are the live state for this
// run: either freshly allocated by the caller (no checkpoint found) or
// restored via [checkpoint.Manager.Load].
func New(log Logger, ckp *checkpoint.Manager, cfg Config, results *diskqueue.Queue[*ortho.Ortho], seen *tracker.Tracker) *Driver {
	return &Driver{
		log:     log,
		ckp:     ckp,
		cfg:     cfg,
		cache:   ortho.NewShellCache(),
		results: results,
		seen:    seen,
	}
}

// Seed pushes the empty seed ortho for version into both the work queue
// and the results queue, per spec.md §4.6 step 3. Call once for a run
// whose results queue holds no orthos yet (a fresh run, or a checkpoint
// written by ingest alone); a run resumed from a non-empty results queue
// instead repopulates the work queue via [Driver.ResumeFrontier].
func (d *Driver) Seed(version uint64) {
	seed := ortho.New(d.cache, version)

	d.seen.Insert(seed.ID())
	d.work = append(d.work, seed)

	if err := d.results.Push(seed); err != nil {
		d.log.Info("driver: seeding results queue failed", "err", err)
	}

	d.updateOptimal(seed)
}

// ResumeFrontier rebuilds the work queue after a checkpoint restore: every
// ortho already in the results queue is a node that was fully explored or
// still pending exploration. Since the results queue doesn't distinguish
// the two, every restored ortho is re-pushed to the work queue; re-visiting
// an already-fully-explored ortho is idempotent because every one of its
// children was already inserted into the tracker before the checkpoint
// that recorded it, so Run's dedupe check against seen simply produces no
// new children for it.
func (d *Driver) ResumeFrontier(items []*ortho.Ortho) {
	for _, item := range items {
		d.work = append(d.work, item)
		d.updateOptimal(item)
	}
}

// Run drains the work queue, expanding each popped ortho against current,
// until empty or ctx is cancelled, per spec.md §4.6 step 4. It checkpoints
// before returning either way, matching step 5 and the graceful-shutdown
// contract (SIGTERM must not lose work already inserted into the tracker).
func (d *Driver) Run(ctx context.Context, current *interner.Interner) (Stats, error) {
	var stats Stats

	for len(d.work) > 0 {
		if err := ctx.Err(); err != nil {
			break
		}

		p := d.work[0]
		d.work = d.work[1:]

		stats.Processed++

		forbidden, required := p.GetRequirements(d.cache)
		completions := current.Intersect(required, forbidden)

		for _, c := range completions {
			children := p.Add(d.cache, c, current.Version())

			for _, child := range children {
				if d.seen.Contains(child.ID()) {
					continue
				}

				d.seen.Insert(child.ID())

				if err := d.results.Push(child); err != nil {
					return stats, fmt.Errorf("driver: appending to results queue: %w", err)
				}

				d.work = append(d.work, child)
				stats.Generated++

				d.updateOptimal(child)
			}
		}

		if d.cfg.CheckpointEvery > 0 && stats.Processed%d.cfg.CheckpointEvery == 0 {
			if err := d.checkpoint(current); err != nil {
				return stats, err
			}
		}
	}

	if err := d.checkpoint(current); err != nil {
		return stats, err
	}

	stats.Optimal = d.optimal

	return stats, nil
}

// updateOptimal replaces the recorded best ortho when candidate strictly
// improves on the lexicographic (volume, fullness) ordering of spec.md
// §4.6. Fullness is this spec's addition as a tie-break beyond the
// original's volume-only comparison.
func (d *Driver) updateOptimal(candidate *ortho.Ortho) {
	if d.optimal == nil {
		d.optimal = candidate
		return
	}

	cv, ov := candidate.Volume(), d.optimal.Volume()
	if cv > ov || (cv == ov && candidate.FilledCount() > d.optimal.FilledCount()) {
		d.optimal = candidate
	}
}

// Optimal returns the best ortho observed so far, or nil if none has been
// recorded yet.
func (d *Driver) Optimal() *ortho.Ortho { return d.optimal }

func (d *Driver) checkpoint(current *interner.Interner) error {
	start := time.Now()

	if err := d.ckp.Save(current, d.results); err != nil {
		return fmt.Errorf("driver: checkpointing: %w", err)
	}

	d.log.Info("driver: checkpoint saved",
		"elapsed", time.Since(start),
		"optimal_id", optimalID(d.optimal),
		"optimal_volume", optimalVolume(d.optimal))

	return nil
}

func optimalID(o *ortho.Ortho) uint64 {
	if o == nil {
		return 0
	}

	return o.ID()
}

func optimalVolume(o *ortho.Ortho) uint64 {
	if o == nil {
		return 0
	}

	return o.Volume()
}

// DescribeOptimal renders an ortho's payload as vocabulary strings against
// in, for the `fold run` completion summary and `fold inspect`'s optimal
// query, per SPEC_FULL.md §5's "print_optimal, adapted to structured log
// lines" supplement.
func DescribeOptimal(in *interner.Interner, o *ortho.Ortho) []string {
	if o == nil {
		return nil
	}

	payload := o.Payload()
	words := make([]string, len(payload))

	for i, v := range payload {
		if v < 0 {
			words[i] = ""
			continue
		}

		words[i] = in.StringForToken(interner.Token(v))
	}

	return words
}
