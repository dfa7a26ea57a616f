// Package checkpoint implements atomic snapshot/restore of (Interner,
// results queue), per spec.md §4.5. The tracker is never serialized: it is
// rebuilt on load by replaying every item in the restored results queue.
package checkpoint

import (
	"bytes"
	"fmt"
	"path/filepath"

	"github.com/foldsearch/fold/internal/interner"
	"github.com/foldsearch/fold/internal/memconfig"
	"github.com/foldsearch/fold/internal/ortho"
	"github.com/foldsearch/fold/pkg/diskqueue"
	"github.com/foldsearch/fold/pkg/fs"
	"github.com/foldsearch/fold/pkg/tracker"
)

const internerFileName = "interner.bin"

// OrthoCodec adapts [ortho.Ortho] to [diskqueue.Codec] for the results
// queue's spill records: version, then dims and payload, in that order,
// each sequence length-prefixed. The id is never stored — [ortho.FromParts] recomputes
// it on decode, so a corrupted id field can never be trusted from disk.
type OrthoCodec struct{}

func (OrthoCodec) Encode(o *ortho.Ortho) ([]byte, error) {
	dims := o.Dims()
	payload := o.Payload()

	buf := make([]byte, 0, 8+4*len(dims)+4+8*len(payload))
	buf = appendUint64(buf, o.Version())
	buf = appendUint32(buf, uint32(len(dims)))

	for _, d := range dims {
		buf = appendUint32(buf, d)
	}

	buf = appendUint32(buf, uint32(len(payload)))
	for _, v := range payload {
		buf = appendUint64(buf, uint64(v))
	}

	return buf, nil
}

func (OrthoCodec) Decode(data []byte) (*ortho.Ortho, error) {
	if len(data) < 12 {
		return nil, fmt.Errorf("checkpoint: ortho record too short: %d bytes", len(data))
	}

	version, rest := readUint64(data)

	dimCount, rest := readUint32(rest)
	dims := make([]uint32, dimCount)

	for i := range dims {
		dims[i], rest = readUint32(rest)
	}

	payloadCount, rest := readUint32(rest)
	payload := make([]int64, payloadCount)

	for i := range payload {
		var v uint64

		v, rest = readUint64(rest)
		payload[i] = int64(v)
	}

	return ortho.FromParts(dims, payload, version), nil
}

func appendUint32(b []byte, v uint32) []byte {
	return append(b, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func appendUint64(b []byte, v uint64) []byte {
	return append(b,
		byte(v>>56), byte(v>>48), byte(v>>40), byte(v>>32),
		byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func readUint32(b []byte) (uint32, []byte) {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), b[4:]
}

func readUint64(b []byte) (uint64, []byte) {
	v := uint64(b[0])<<56 | uint64(b[1])<<48 | uint64(b[2])<<40 | uint64(b[3])<<32 |
		uint64(b[4])<<24 | uint64(b[5])<<16 | uint64(b[6])<<8 | uint64(b[7])

	return v, b[8:]
}

// Manager owns the four well-known directories under a base state
// directory: the durable checkpoint, its in-progress temp build, the
// scratch area used while reconstructing the tracker on load, and the
// active results queue.
type Manager struct {
	fsys fs.FS
	w    *fs.AtomicWriter

	checkpointDir     string
	tempCheckpointDir string
	resultsTemp       string
	resultsPath       string
}

// NewManager returns a Manager rooted at baseDir (e.g. STATE_DIR).
func NewManager(fsys fs.FS, baseDir string) *Manager {
	return &Manager{
		fsys:              fsys,
		w:                 fs.NewAtomicWriter(fsys),
		checkpointDir:     filepath.Join(baseDir, "checkpoint"),
		tempCheckpointDir: filepath.Join(baseDir, "checkpoint_temp"),
		resultsTemp:       filepath.Join(baseDir, "results_temp"),
		resultsPath:       filepath.Join(baseDir, "results"),
	}
}

// ResultsPath returns the active results queue directory, for constructing
// the live [diskqueue.Queue] at startup.
func (m *Manager) ResultsPath() string { return m.resultsPath }

// Save atomically snapshots in and the flushed contents of results: build
// a full temp directory, then swap it in with a single rename, per
// spec.md §4.5 and §8 invariant 9 (no partial checkpoint is ever visible
// at the canonical path).
func (m *Manager) Save(in *interner.Interner, results *diskqueue.Queue[*ortho.Ortho]) error {
	if exists, err := m.fsys.Exists(m.tempCheckpointDir); err != nil {
		return fmt.Errorf("checkpoint: checking temp dir: %w", err)
	} else if exists {
		if err := m.fsys.RemoveAll(m.tempCheckpointDir); err != nil {
			return fmt.Errorf("checkpoint: clearing stale temp dir: %w", err)
		}
	}

	if err := m.fsys.MkdirAll(m.tempCheckpointDir, 0o755); err != nil {
		return fmt.Errorf("checkpoint: creating temp dir: %w", err)
	}

	if err := results.Flush(); err != nil {
		return fmt.Errorf("checkpoint: flushing results queue: %w", err)
	}

	data, err := in.MarshalBinary()
	if err != nil {
		return fmt.Errorf("checkpoint: marshaling interner: %w", err)
	}

	internerPath := filepath.Join(m.tempCheckpointDir, internerFileName)
	if err := m.w.WriteWithDefaults(internerPath, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("checkpoint: writing interner snapshot: %w", err)
	}

	backupPath := filepath.Join(m.tempCheckpointDir, "results_backup")
	if err := copyDir(m.fsys, results.BasePath(), backupPath); err != nil {
		return fmt.Errorf("checkpoint: backing up results queue: %w", err)
	}

	if exists, err := m.fsys.Exists(m.checkpointDir); err != nil {
		return fmt.Errorf("checkpoint: checking checkpoint dir: %w", err)
	} else if exists {
		if err := m.fsys.RemoveAll(m.checkpointDir); err != nil {
			return fmt.Errorf("checkpoint: removing previous checkpoint: %w", err)
		}
	}

	if err := m.fsys.Rename(m.tempCheckpointDir, m.checkpointDir); err != nil {
		return fmt.Errorf("checkpoint: swapping in new checkpoint: %w", err)
	}

	return nil
}

// Load restores (interner, results queue) from the last checkpoint and
// rebuilds the tracker by replaying every item in the restored results
// queue — the sole mechanism for reconstructing tracker state, per
// spec.md §4.5. Returns (nil, nil, nil, nil) if no checkpoint exists.
func (m *Manager) Load(cfg memconfig.Config) (*interner.Interner, *diskqueue.Queue[*ortho.Ortho], *tracker.Tracker, error) {
	internerPath := filepath.Join(m.checkpointDir, internerFileName)

	exists, err := m.fsys.Exists(internerPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("checkpoint: checking for existing checkpoint: %w", err)
	}

	if !exists {
		return nil, nil, nil, nil
	}

	data, err := m.fsys.ReadFile(internerPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("checkpoint: reading interner snapshot: %w", err)
	}

	in := interner.New()
	if err := in.UnmarshalBinary(data); err != nil {
		return nil, nil, nil, fmt.Errorf("checkpoint: decoding interner snapshot: %w", err)
	}

	if exists, err := m.fsys.Exists(m.resultsTemp); err != nil {
		return nil, nil, nil, fmt.Errorf("checkpoint: checking results temp dir: %w", err)
	} else if exists {
		if err := m.fsys.RemoveAll(m.resultsTemp); err != nil {
			return nil, nil, nil, fmt.Errorf("checkpoint: clearing stale results temp dir: %w", err)
		}
	}

	backupPath := filepath.Join(m.checkpointDir, "results_backup")

	if exists, err := m.fsys.Exists(backupPath); err != nil {
		return nil, nil, nil, fmt.Errorf("checkpoint: checking results backup: %w", err)
	} else if exists {
		if err := copyDir(m.fsys, backupPath, m.resultsTemp); err != nil {
			return nil, nil, nil, fmt.Errorf("checkpoint: restoring results backup: %w", err)
		}
	} else if err := m.fsys.MkdirAll(m.resultsTemp, 0o755); err != nil {
		return nil, nil, nil, fmt.Errorf("checkpoint: creating results temp dir: %w", err)
	}

	tempQueue, err := diskqueue.Open(m.fsys, m.resultsTemp, cfg.QueueBufferSize, OrthoCodec{})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("checkpoint: opening results temp queue: %w", err)
	}

	tr := tracker.New(cfg.TrackerBaseCapacity, cfg.BloomBits)

	if exists, err := m.fsys.Exists(m.resultsPath); err != nil {
		return nil, nil, nil, fmt.Errorf("checkpoint: checking active results dir: %w", err)
	} else if exists {
		if err := m.fsys.RemoveAll(m.resultsPath); err != nil {
			return nil, nil, nil, fmt.Errorf("checkpoint: removing stale active results dir: %w", err)
		}
	}

	newResults, err := diskqueue.Open(m.fsys, m.resultsPath, cfg.QueueBufferSize, OrthoCodec{})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("checkpoint: opening active results queue: %w", err)
	}

	for {
		item, ok, err := tempQueue.Pop()
		if err != nil {
			return nil, nil, nil, fmt.Errorf("checkpoint: replaying results: %w", err)
		}

		if !ok {
			break
		}

		tr.Insert(item.ID())

		if err := newResults.Push(item); err != nil {
			return nil, nil, nil, fmt.Errorf("checkpoint: rebuilding active results queue: %w", err)
		}
	}

	if err := m.fsys.RemoveAll(m.resultsTemp); err != nil {
		return nil, nil, nil, fmt.Errorf("checkpoint: cleaning up results temp dir: %w", err)
	}

	return in, newResults, tr, nil
}

func copyDir(fsys fs.FS, src, dst string) error {
	if err := fsys.MkdirAll(dst, 0o755); err != nil {
		return fmt.Errorf("copying directory: creating %s: %w", dst, err)
	}

	entries, err := fsys.ReadDir(src)
	if err != nil {
		return fmt.Errorf("copying directory: reading %s: %w", src, err)
	}

	for _, e := range entries {
		srcPath := filepath.Join(src, e.Name())
		dstPath := filepath.Join(dst, e.Name())

		if e.IsDir() {
			if err := copyDir(fsys, srcPath, dstPath); err != nil {
				return err
			}

			continue
		}

		data, err := fsys.ReadFile(srcPath)
		if err != nil {
			return fmt.Errorf("copying directory: reading %s: %w", srcPath, err)
		}

		if err := fsys.WriteFile(dstPath, data, 0o644); err != nil {
			return fmt.Errorf("copying directory: writing %s: %w", dstPath, err)
		}
	}

	return nil
}
