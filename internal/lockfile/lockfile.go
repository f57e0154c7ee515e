// Package lockfile keeps a single sweeper per host. The lock holds
// "pid|addr"; a lock whose process is gone or is not daylitd is stale.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mitchellh/go-ps"

	"github.com/julianstephens/daylitd/internal/constants"
)

var (
	findProcessFunc = ps.FindProcess
	getpidFunc      = os.Getpid

	// ErrMalformed is returned when a lockfile cannot be parsed.
	ErrMalformed = errors.New("lockfile is malformed")
)

// Holder describes the process named in a lockfile.
type Holder struct {
	PID  int
	Addr string
}

// HeldError reports a live holder.
type HeldError struct {
	Holder Holder
	Path   string
}

func (e *HeldError) Error() string {
	return fmt.Sprintf("another daylitd sweeper (pid %d, %s) holds %s", e.Holder.PID, e.Holder.Addr, e.Path)
}

// Lock is an acquired lockfile.
type Lock struct {
	path string
	pid  int
}

// Acquire takes the lock at path, replacing a stale one.
func Acquire(path, addr string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	holder, err := Read(path)
	switch {
	case err == nil:
		if Alive(holder) {
			return nil, &HeldError{Holder: holder, Path: path}
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to remove stale lock: %w", err)
		}
	case errors.Is(err, ErrMalformed):
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to remove malformed lock: %w", err)
		}
	case !os.IsNotExist(err):
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if os.IsExist(err) {
			if h, readErr := Read(path); readErr == nil {
				return nil, &HeldError{Holder: h, Path: path}
			}
		}
		return nil, fmt.Errorf("failed to create lock: %w", err)
	}
	defer f.Close()

	pid := getpidFunc()
	if _, err := fmt.Fprintf(f, "%d|%s\n", pid, addr); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("failed to write lock: %w", err)
	}
	return &Lock{path: path, pid: pid}, nil
}

// Release removes the lock if this process still owns it.
func (l *Lock) Release() error {
	holder, err := Read(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if holder.PID != l.pid {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Read parses the lockfile at path.
func Read(path string) (Holder, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Holder{}, err
	}

	parts := strings.Split(strings.TrimSpace(string(content)), "|")
	if len(parts) != 2 {
		return Holder{}, ErrMalformed
	}
	pid, err := strconv.Atoi(parts[0])
	if err != nil || pid <= 0 {
		return Holder{}, fmt.Errorf("%w: invalid process ID", ErrMalformed)
	}
	return Holder{PID: pid, Addr: parts[1]}, nil
}

// Alive reports whether the holder's process exists and is a daylitd.
func Alive(h Holder) bool {
	process, err := findProcessFunc(h.PID)
	if err != nil || process == nil {
		return false
	}
	return strings.HasPrefix(process.Executable(), constants.AppName)
}
