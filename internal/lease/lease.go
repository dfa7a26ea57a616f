// Package lease implements the optional multi-process fan-out protocol
// described in spec.md §6: workers in a shared input directory claim files
// by writing a lease record, refresh it periodically, and release it when
// done. It is cooperative, not consensus-safe — occasional double
// processing of a job is an accepted tradeoff.
package lease

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/foldsearch/fold/pkg/fs"
)

// Record is the on-disk content of a lease file.
type Record struct {
	WorkerID        string `json:"worker_id"`
	LastHeartbeatAt int64  `json:"last_heartbeat_unix_seconds"`
}

// Manager claims, refreshes, releases, and sweeps leases under one
// directory. Its fsys must support [fs.TryLocker] since claiming must not
// block on a lease another worker currently holds.
type Manager struct {
	fsys     fs.TryLocker
	w        *fs.AtomicWriter
	dir      string
	workerID string
	grace    time.Duration
}

// NewManager returns a Manager with a freshly generated worker identity.
// dir is created on first use by the underlying writes, not here.
func NewManager(fsys fs.TryLocker, dir string, grace time.Duration) (*Manager, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("lease: generating worker id: %w", err)
	}

	return &Manager{
		fsys:     fsys,
		w:        fs.NewAtomicWriter(fsys),
		dir:      dir,
		workerID: id.String(),
		grace:    grace,
	}, nil
}

// WorkerID returns this manager's identity, as written into every Record
// it creates.
func (m *Manager) WorkerID() string { return m.workerID }

func (m *Manager) recordPath(key string) string { return filepath.Join(m.dir, key) }
func (m *Manager) lockPath(key string) string   { return filepath.Join(m.dir, key+".lock") }

// Claim attempts to take the lease for key at time now. It returns false,
// nil (not an error) whenever the lease is unavailable: held by another
// worker's fresh heartbeat, or concurrently being claimed by one.
func (m *Manager) Claim(key string, now time.Time) (bool, error) {
	locker, err := m.fsys.TryLock(m.lockPath(key))
	if err != nil {
		if errors.Is(err, fs.ErrWouldBlock) {
			return false, nil
		}

		return false, fmt.Errorf("lease: locking %s: %w", key, err)
	}
	defer locker.Close()

	path := m.recordPath(key)

	existing, found, err := m.readRecord(path)
	if err != nil {
		return false, err
	}

	if found && existing.WorkerID != m.workerID && !m.isStale(existing, now) {
		return false, nil
	}

	if err := m.writeRecord(path, now); err != nil {
		return false, err
	}

	return true, nil
}

// Refresh updates this worker's heartbeat on a lease it already holds.
func (m *Manager) Refresh(key string, now time.Time) error {
	locker, err := m.fsys.TryLock(m.lockPath(key))
	if err != nil {
		return fmt.Errorf("lease: locking %s for refresh: %w", key, err)
	}
	defer locker.Close()

	return m.writeRecord(m.recordPath(key), now)
}

// Release deletes a lease this worker holds. Releasing a lease that does
// not exist, or is held by a different worker, is a no-op.
func (m *Manager) Release(key string) error {
	locker, err := m.fsys.TryLock(m.lockPath(key))
	if err != nil {
		return fmt.Errorf("lease: locking %s for release: %w", key, err)
	}
	defer locker.Close()

	path := m.recordPath(key)

	existing, found, err := m.readRecord(path)
	if err != nil {
		return err
	}

	if !found || existing.WorkerID != m.workerID {
		return nil
	}

	if err := m.fsys.Remove(path); err != nil {
		return fmt.Errorf("lease: removing %s: %w", key, err)
	}

	return nil
}

// SweepStale removes every lease record whose heartbeat is older than the
// grace period, regardless of owner, and returns the keys it swept. Run on
// startup to recover from workers that died mid-work.
func (m *Manager) SweepStale(now time.Time) ([]string, error) {
	entries, err := m.fsys.ReadDir(m.dir)
	if err != nil {
		if exists, existsErr := m.fsys.Exists(m.dir); existsErr == nil && !exists {
			return nil, nil
		}

		return nil, fmt.Errorf("lease: reading lease dir: %w", err)
	}

	var swept []string

	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), ".lock") {
			continue
		}

		key := e.Name()
		path := m.recordPath(key)

		rec, found, err := m.readRecord(path)
		if err != nil {
			return swept, err
		}

		if !found || !m.isStale(rec, now) {
			continue
		}

		if err := m.fsys.Remove(path); err != nil {
			return swept, fmt.Errorf("lease: sweeping %s: %w", key, err)
		}

		swept = append(swept, key)
	}

	return swept, nil
}

func (m *Manager) isStale(rec Record, now time.Time) bool {
	age := now.Sub(time.Unix(rec.LastHeartbeatAt, 0))

	return age > m.grace
}

func (m *Manager) readRecord(path string) (Record, bool, error) {
	exists, err := m.fsys.Exists(path)
	if err != nil {
		return Record{}, false, fmt.Errorf("lease: checking %s: %w", path, err)
	}

	if !exists {
		return Record{}, false, nil
	}

	data, err := m.fsys.ReadFile(path)
	if err != nil {
		return Record{}, false, fmt.Errorf("lease: reading %s: %w", path, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, false, fmt.Errorf("lease: decoding %s: %w", path, err)
	}

	return rec, true, nil
}

func (m *Manager) writeRecord(path string, now time.Time) error {
	rec := Record{WorkerID: m.workerID, LastHeartbeatAt: now.Unix()}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("lease: encoding record: %w", err)
	}

	if err := m.w.WriteWithDefaults(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("lease: writing %s: %w", path, err)
	}

	return nil
}
