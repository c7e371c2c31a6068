package store

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/catalogsnap/catalogsnap/pkg/defaults"
	cserrors "github.com/catalogsnap/catalogsnap/pkg/errors"
)

const (
	lockRetry = defaults.LockPollInterval

	// A lock not refreshed for this long belongs to a run that died.
	lockStaleAfter = defaults.LockStaleAfter
)

// lockFile is a lock file as observed at one moment.
type lockFile struct {
	owner []byte
	info  os.FileInfo
}

func readLock(path string) (*lockFile, error) {
	// #nosec G304 -- path is derived from the store root and a validated host.
	owner, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	return &lockFile{owner: owner, info: info}, nil
}

// same reports whether other is the very lock l observed, untouched since.
func (l *lockFile) same(other *lockFile) bool {
	return os.SameFile(l.info, other.info) &&
		l.info.ModTime().Equal(other.info.ModTime()) &&
		bytes.Equal(l.owner, other.owner)
}

// Lock takes the advisory lock for host. Runs that capture the same host
// serialize on it; the lock is held from capture until promotion.
// It waits until the lock is free, ctx is done, or the store's lock timeout
// elapses. The returned function releases the lock.
//
// While held, the lock's modification time is refreshed periodically, so a
// lock only goes stale when its holder is gone, however long the compile runs.
func (s *Store) Lock(ctx context.Context, host string) (func() error, error) {
	if err := s.Init(); err != nil {
		return nil, err
	}

	lockPath := s.lockPath(host)
	deadline := time.Now().Add(s.lockTimeout)
	owner := []byte(fmt.Sprintf("pid=%d token=%s\n", os.Getpid(), uuid.NewString()))

	for {
		err := writeFileExclusive(lockPath, owner, 0o600)
		if err == nil {
			slog.Debug("acquired host lock", slog.String("host", host), slog.String("path", lockPath))
			return s.holdLock(host, lockPath, owner), nil
		}
		if !os.IsExist(err) {
			return nil, cserrors.WrapWithContext(cserrors.ErrCodeStore, "failed to acquire host lock", err,
				map[string]any{"host": host, "path": lockPath})
		}

		if seen, err := readLock(lockPath); err == nil && s.now().Sub(seen.info.ModTime()) > lockStaleAfter {
			if removeStaleLock(lockPath, seen) {
				slog.Warn("removed stale host lock", slog.String("host", host), slog.String("path", lockPath))
			}
			continue
		}

		if time.Now().After(deadline) {
			return nil, cserrors.WrapWithContext(cserrors.ErrCodeStore,
				fmt.Sprintf("host %s is locked by another capture", host), nil,
				map[string]any{"host": host, "path": lockPath})
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for host lock: %w", ctx.Err())
		case <-time.After(lockRetry):
		}
	}
}

// holdLock refreshes the acquired lock until the returned release function
// is called. Release removes the lock only if it still carries owner.
func (s *Store) holdLock(host, lockPath string, owner []byte) func() error {
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(s.lockRefresh)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if !ownsLock(lockPath, owner) {
					slog.Warn("host lock was taken over", slog.String("host", host), slog.String("path", lockPath))
					return
				}
				now := s.now()
				if err := os.Chtimes(lockPath, now, now); err != nil {
					slog.Warn("failed to refresh host lock", slog.String("host", host), slog.String("error", err.Error()))
				}
			}
		}
	}()

	var once sync.Once
	return func() error {
		var err error
		once.Do(func() {
			close(stop)
			wg.Wait()
			if !ownsLock(lockPath, owner) {
				slog.Warn("host lock no longer ours, leaving it", slog.String("host", host), slog.String("path", lockPath))
				return
			}
			if rmErr := os.Remove(lockPath); rmErr != nil && !os.IsNotExist(rmErr) {
				err = cserrors.Wrap(cserrors.ErrCodeStore, "failed to release host lock", rmErr)
			}
		})
		return err
	}
}

func ownsLock(lockPath string, owner []byte) bool {
	// #nosec G304 -- path is derived from the store root and a validated host.
	current, err := os.ReadFile(lockPath)
	return err == nil && bytes.Equal(current, owner)
}

// removeStaleLock removes the lock at lockPath if it is still the one seen.
// The lock is first renamed aside, which only one waiter can do; if what was
// renamed turns out to be a newer lock, it is put back.
func removeStaleLock(lockPath string, seen *lockFile) bool {
	aside := fmt.Sprintf("%s.stale.%s", lockPath, uuid.NewString())
	if err := os.Rename(lockPath, aside); err != nil {
		return false
	}
	defer func() {
		_ = os.Remove(aside)
	}()

	moved, err := readLock(aside)
	if err == nil && seen.same(moved) {
		return true
	}

	// a fresh lock was moved; restore it unless yet another run took its place
	if err := os.Link(aside, lockPath); err != nil {
		slog.Warn("failed to restore host lock", slog.String("path", lockPath), slog.String("error", err.Error()))
	}
	return false
}
