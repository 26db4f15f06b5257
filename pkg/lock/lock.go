// Package lock implements an advisory lock file shared by every process
// that installs into the same packages root.
package lock

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
)

// FileName is the lock file created inside the packages root.
const FileName = "install.lock"

const (
	DefaultWait  = 120 * time.Second
	DefaultStale = 180 * time.Second

	initialPoll = 25 * time.Millisecond
	maxPoll     = time.Second
)

// ErrTimeout matches every TimeoutError.
var ErrTimeout = errors.New("timed out acquiring install lock")

// TimeoutError is returned when the lock stayed held for the whole wait.
type TimeoutError struct {
	Path string
	Wait time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("failed to acquire lock %s within %s", e.Path, e.Wait)
}

func (e *TimeoutError) Unwrap() error { return ErrTimeout }

var errHeld = errors.New("lock held")

type Options struct {
	// Wait bounds how long Acquire polls. Zero means a single attempt.
	Wait time.Duration
	// Stale is the age after which an existing lock file is considered
	// abandoned and reclaimed. Zero disables reclamation.
	Stale  time.Duration
	Logger *log.Logger
}

// Lock is a held lock file. Release it exactly once; extra calls are no-ops.
type Lock struct {
	path     string
	token    string
	logger   *log.Logger
	released bool
}

// Acquire creates path exclusively, polling until opts.Wait elapses. A lock
// file older than opts.Stale is removed and taken over.
func Acquire(ctx context.Context, path string, opts Options) (*Lock, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}

	token := newToken()
	attempt := func() error {
		err := create(path, token)
		if err == nil {
			return nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return backoff.Permanent(fmt.Errorf("creating lock file: %w", err))
		}
		if opts.Stale > 0 && reclaim(path, opts.Stale, logger) {
			if err := create(path, token); err == nil {
				return nil
			}
		}
		return errHeld
	}

	logger.Debug("acquiring install lock", "path", path)
	if err := wait(ctx, attempt, opts.Wait); err != nil {
		if errors.Is(err, errHeld) {
			return nil, &TimeoutError{Path: path, Wait: opts.Wait}
		}
		return nil, err
	}
	logger.Debug("install lock acquired", "path", path)
	return &Lock{path: path, token: token, logger: logger}, nil
}

// wait retries attempt until it succeeds or d elapses. The deadline is
// always followed by one last attempt, so a lock freed at the very end of
// the wait is still taken. Cancellation of ctx is returned as is.
func wait(ctx context.Context, attempt func() error, d time.Duration) error {
	err := unwrapPermanent(attempt())
	if !errors.Is(err, errHeld) || d <= 0 {
		return err
	}

	waitCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = initialPoll
	eb.MaxInterval = maxPoll
	eb.MaxElapsedTime = 0

	err = backoff.Retry(attempt, backoff.WithContext(eb, waitCtx))
	if err == nil {
		return nil
	}
	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, errHeld) {
		return unwrapPermanent(attempt())
	}
	return err
}

func unwrapPermanent(err error) error {
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}

func newToken() string {
	return fmt.Sprintf("%d:%d:%d", os.Getpid(), time.Now().UnixNano(), rand.Uint64())
}

func create(path, token string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	_, werr := f.WriteString(token)
	cerr := f.Close()
	if werr != nil || cerr != nil {
		_ = os.Remove(path)
		return errors.Join(werr, cerr)
	}
	return nil
}

// reclaim removes a stale lock file and reports whether it did. Reclaimers
// serialize on a guard file and recheck staleness while holding it, so a
// lock that a competing waiter just recreated is never removed.
func reclaim(path string, stale time.Duration, logger *log.Logger) bool {
	if !isStale(path, stale) {
		return false
	}

	guard := path + ".reclaim"
	if err := create(guard, newToken()); err != nil {
		// a reclaimer that died mid-way leaves its guard behind
		if isStale(guard, stale) {
			_ = os.Remove(guard)
		}
		return false
	}
	defer func() { _ = os.Remove(guard) }()

	if !isStale(path, stale) {
		return false
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("removing stale install lock", "path", path, "err", err)
		return false
	}
	logger.Warn("reclaiming stale install lock", "path", path, "stale", stale)
	return true
}

func isStale(path string, stale time.Duration) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return time.Since(info.ModTime()) > stale
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Release removes the lock file if it is still the one Acquire created. A
// lock reclaimed by another process after going stale is left alone.
func (l *Lock) Release() error {
	if l == nil || l.released {
		return nil
	}
	l.released = true

	data, err := os.ReadFile(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("releasing lock %s: %w", l.path, err)
	}
	if string(data) != l.token {
		l.logger.Warn("install lock was taken over, leaving it in place", "path", l.path)
		return nil
	}

	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("releasing lock %s: %w", l.path, err)
	}
	l.logger.Debug("install lock released", "path", l.path)
	return nil
}
