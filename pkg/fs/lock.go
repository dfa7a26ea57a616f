package fs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

var (
	// ErrWouldBlock is returned by TryLock/TryRLock when the lock is held by
	// another process, or by a *WithTimeout variant when the acquisition
	// deadline expires.
	ErrWouldBlock = errors.New("lock would block")

	// ErrInvalidTimeout is returned when a timeout is <= 0.
	ErrInvalidTimeout = errors.New("invalid lock timeout")

	// errInodeMismatch is an internal sentinel indicating the lock file was
	// replaced between open and flock. Callers should retry.
	errInodeMismatch = errors.New("inode mismatch")
)

// lockEngine provides flock(2)-based locking. flock locks an inode, not a
// pathname, so every acquisition is followed by a check that the path still
// names the inode that was locked.
//
// lockEngine has no mutable state beyond its dependencies and is safe for
// concurrent use as long as the underlying FS is.
type lockEngine struct {
	fs    FS
	flock func(fd int, how int) error
}

func newLockEngine(fsys FS) *lockEngine {
	return &lockEngine{fs: fsys, flock: unix.Flock}
}

// Lock represents a held flock(2)-based lock. Call Close to release it.
type Lock struct {
	mu    sync.Mutex
	file  File
	flock func(fd int, how int) error
}

// Close releases the lock and closes the underlying file descriptor.
// Close is idempotent.
func (lk *Lock) Close() error {
	lk.mu.Lock()
	defer lk.mu.Unlock()

	if lk.file == nil {
		return nil
	}

	fd := int(lk.file.Fd())

	unlockErr := flockRetryEINTR(lk.flock, fd, unix.LOCK_UN)
	closeErr := lk.file.Close()
	lk.file = nil

	if unlockErr != nil {
		return fmt.Errorf("unlocking lock: %w", unlockErr)
	}

	if closeErr != nil {
		return fmt.Errorf("closing lock fd: %w", closeErr)
	}

	return nil
}

type lockType int

const (
	sharedLock    lockType = unix.LOCK_SH
	exclusiveLock lockType = unix.LOCK_EX
)

// lock acquires an exclusive lock on path, blocking until available. If the
// file or its parent directories do not exist, they are created.
func (e *lockEngine) lock(path string) (*Lock, error) {
	return e.lockBlocking(path, exclusiveLock)
}

// rlock acquires a shared lock on path, blocking until available.
func (e *lockEngine) rlock(path string) (*Lock, error) {
	return e.lockBlocking(path, sharedLock)
}

// lockWithTimeout retries with exponential backoff until timeout expires,
// returning ErrWouldBlock on expiry.
func (e *lockEngine) lockWithTimeout(path string, timeout time.Duration) (*Lock, error) {
	if timeout <= 0 {
		return nil, fmt.Errorf("%w: timeout must be > 0", ErrInvalidTimeout)
	}

	return e.lockPolling(path, exclusiveLock, timeout)
}

// tryLock attempts to acquire an exclusive lock without blocking.
func (e *lockEngine) tryLock(path string) (*Lock, error) {
	return e.lockPolling(path, exclusiveLock, 0)
}

// tryRLock attempts to acquire a shared lock without blocking.
func (e *lockEngine) tryRLock(path string) (*Lock, error) {
	return e.lockPolling(path, sharedLock, 0)
}

func (e *lockEngine) lockBlocking(path string, lt lockType) (*Lock, error) {
	openFlag := openFlagForLockType(lt)

	for {
		file, err := e.openLockFile(path, openFlag)
		if err != nil {
			return nil, fmt.Errorf("opening lockfile: %w", err)
		}

		err = e.acquire(file, path, lt, false)
		if err == nil {
			return &Lock{file: file, flock: e.flock}, nil
		}

		_ = file.Close()

		if errors.Is(err, errInodeMismatch) {
			continue
		}

		return nil, err
	}
}

func (e *lockEngine) lockPolling(path string, lt lockType, timeout time.Duration) (*Lock, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	backoff := time.Millisecond
	openFlag := openFlagForLockType(lt)

	for {
		file, err := e.openLockFile(path, openFlag)
		if err != nil {
			return nil, fmt.Errorf("opening lockfile: %w", err)
		}

		err = e.acquire(file, path, lt, true)
		if err == nil {
			return &Lock{file: file, flock: e.flock}, nil
		}

		_ = file.Close()

		retryable := errors.Is(err, ErrWouldBlock) || errors.Is(err, errInodeMismatch)
		if !retryable {
			return nil, err
		}

		if timeout == 0 {
			if errors.Is(err, errInodeMismatch) {
				return nil, fmt.Errorf("%w: lock file was replaced while acquiring lock", ErrWouldBlock)
			}

			return nil, ErrWouldBlock
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			if errors.Is(err, errInodeMismatch) {
				return nil, fmt.Errorf("%w: timed out after %s (lock file was replaced while acquiring lock)", ErrWouldBlock, timeout)
			}

			return nil, fmt.Errorf("%w: timed out after %s", ErrWouldBlock, timeout)
		}

		sleep := backoff
		if sleep > remaining {
			sleep = remaining
		}

		time.Sleep(sleep)

		if backoff < 25*time.Millisecond {
			backoff *= 2
			if backoff > 25*time.Millisecond {
				backoff = 25 * time.Millisecond
			}
		}
	}
}

func (e *lockEngine) acquire(file File, path string, lt lockType, nonBlocking bool) error {
	fd := int(file.Fd())

	flags := int(lt)
	if nonBlocking {
		flags |= unix.LOCK_NB
	}

	if err := flockRetryEINTR(e.flock, fd, flags); err != nil {
		if isWouldBlock(err) {
			return ErrWouldBlock
		}

		return err
	}

	match, err := e.inodeMatchesPath(path, file)
	if err != nil {
		_ = flockRetryEINTR(e.flock, fd, unix.LOCK_UN)

		if errors.Is(err, os.ErrNotExist) {
			return errInodeMismatch
		}

		return fmt.Errorf("verifying inode match: %w", err)
	}

	if !match {
		_ = flockRetryEINTR(e.flock, fd, unix.LOCK_UN)

		return errInodeMismatch
	}

	return nil
}

const (
	lockFilePerm = 0o600
	lockDirPerm  = 0o755
)

func (e *lockEngine) openLockFile(path string, flag int) (File, error) {
	f, err := e.fs.OpenFile(path, flag|os.O_CREATE, lockFilePerm)
	if err == nil || !errors.Is(err, os.ErrNotExist) {
		return f, err
	}

	if err := e.fs.MkdirAll(filepath.Dir(path), lockDirPerm); err != nil {
		return nil, err
	}

	return e.fs.OpenFile(path, flag|os.O_CREATE, lockFilePerm)
}

// inodeMatchesPath guards against flock's inode (not pathname) semantics: if
// path was replaced between open and flock, the fd we locked may no longer
// be "the file at path". Compares (dev, ino) of the open fd against a fresh
// stat of path, both taken directly via unix.Fstat/unix.Stat rather than
// through os.FileInfo.Sys() (whose concrete type is *syscall.Stat_t, not
// *unix.Stat_t, and so cannot be type-asserted against the latter).
func (e *lockEngine) inodeMatchesPath(path string, f File) (bool, error) {
	var openStat unix.Stat_t
	if err := unix.Fstat(int(f.Fd()), &openStat); err != nil {
		return false, err
	}

	var pathStat unix.Stat_t
	if err := unix.Stat(path, &pathStat); err != nil {
		return false, err
	}

	return openStat.Dev == pathStat.Dev && openStat.Ino == pathStat.Ino, nil
}

func isWouldBlock(err error) bool {
	return errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EAGAIN)
}

func openFlagForLockType(lt lockType) int {
	if lt == sharedLock {
		return os.O_RDONLY
	}

	return os.O_RDWR
}

// flockRetryEINTR wraps flock, retrying on EINTR up to a generous cap. A
// signal arriving mid-syscall doesn't mean the syscall failed, only that it
// needs to be reissued.
func flockRetryEINTR(flock func(fd int, how int) error, fd int, how int) error {
	const maxEINTRRetries = 10000

	var err error
	for range maxEINTRRetries {
		err = flock(fd, how)
		if err == nil || !errors.Is(err, unix.EINTR) {
			return err
		}
	}

	return err
}
