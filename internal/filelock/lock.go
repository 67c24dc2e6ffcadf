package filelock

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Iron-Ham/conductor/internal/errors"
	"github.com/Iron-Ham/conductor/internal/logging"
)

// Lock is an acquired PID lock.
type Lock struct {
	Name       string    `json:"name"`
	Owner      string    `json:"owner"`
	PID        int       `json:"pid"`
	Hostname   string    `json:"hostname"`
	AcquiredAt time.Time `json:"acquired_at"`

	// Internal fields (not serialized)
	path   string
	logger *logging.Logger
}

// Path returns the lock file path for name inside dir.
func Path(dir, name string) string {
	return filepath.Join(dir, name+".lock")
}

// Acquire takes the lock name in dir for owner. It fails with
// errors.ErrLocked while a live process holds it; a lock left by a dead
// process is removed first. The logger may be nil.
func Acquire(dir, name, owner string, logger *logging.Logger) (*Lock, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	path := Path(dir, name)

	if existing, err := Read(path); err == nil {
		if IsProcessAlive(existing.PID) {
			return nil, heldBy(existing)
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("remove stale lock: %w", err)
		}
		logger.Warn("stale lock cleaned", "lock", name, "old_pid", existing.PID, "old_owner", existing.Owner)
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	lock := &Lock{
		Name:       name,
		Owner:      owner,
		PID:        os.Getpid(),
		Hostname:   hostname,
		AcquiredAt: time.Now(),
		path:       path,
		logger:     logger,
	}
	data, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal lock: %w", err)
	}

	// O_EXCL loses the race cleanly when another process created the file
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			if existing, rerr := Read(path); rerr == nil {
				return nil, heldBy(existing)
			}
			return nil, errors.ErrLocked
		}
		return nil, fmt.Errorf("create lock file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("write lock file: %w", err)
	}

	logger.Debug("lock acquired", "lock", name, "owner", owner, "pid", lock.PID)
	return lock, nil
}

// AcquireWait retries Acquire every poll until it succeeds, timeout
// elapses or ctx is done. A zero timeout waits for ctx alone.
func AcquireWait(ctx context.Context, dir, name, owner string, poll, timeout time.Duration, logger *logging.Logger) (*Lock, error) {
	if poll <= 0 {
		poll = 250 * time.Millisecond
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		lock, err := Acquire(dir, name, owner, logger)
		if err == nil {
			return lock, nil
		}
		if !errors.Is(err, errors.ErrLocked) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("waited %s: %w", timeout, err)
			}
			return nil, errors.Join(errors.ErrCanceled, err)
		case <-ticker.C:
		}
	}
}

// Release removes the lock file if this process still owns it. It is safe
// to call more than once.
func (l *Lock) Release() error {
	if l == nil || l.path == "" {
		return nil
	}
	existing, err := Read(l.path)
	if err != nil {
		return nil
	}
	if existing.PID != l.PID || existing.AcquiredAt.UnixNano() != l.AcquiredAt.UnixNano() {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	if l.logger != nil {
		l.logger.Debug("lock released", "lock", l.Name, "owner", l.Owner)
	}
	return nil
}

// Read reads a lock file.
func Read(path string) (*Lock, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var lock Lock
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, fmt.Errorf("failed to parse lock file: %w", err)
	}
	lock.path = path
	return &lock, nil
}

// IsProcessAlive reports whether a process with the given PID is running.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	// On Unix, sending signal 0 checks if process exists without affecting it
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

func heldBy(l *Lock) error {
	return fmt.Errorf("%w: %s held by %s (PID %d on %s)", errors.ErrLocked, l.Name, l.Owner, l.PID, l.Hostname)
}
