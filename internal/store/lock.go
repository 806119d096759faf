package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	DefaultLockTimeout    = 30 * time.Second
	DefaultLockStaleAfter = 10 * time.Minute
	lockRetry             = 25 * time.Millisecond
)

type LockOptions struct {
	Timeout    time.Duration
	StaleAfter time.Duration
}

func (o LockOptions) withDefaults() LockOptions {
	if o.Timeout <= 0 {
		o.Timeout = DefaultLockTimeout
	}
	if o.StaleAfter <= 0 {
		o.StaleAfter = DefaultLockStaleAfter
	}
	return o
}

type lockMetadata struct {
	PID       int       `json:"pid"`
	Slot      string    `json:"slot"`
	CreatedAt time.Time `json:"created_at"`
}

// SlotLock serializes install decisions for one (name, version).
type SlotLock struct {
	path string
}

func (l *SlotLock) Path() string {
	return l.path
}

// Release removes the lock file. Releasing twice is a no-op.
func (l *SlotLock) Release() error {
	if l == nil || l.path == "" {
		return nil
	}
	err := os.Remove(l.path)
	l.path = ""
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("STO_LOCK_RELEASE: %w", err)
	}
	return nil
}

// AcquireSlotLock creates store/<name>/<version>.lock exclusively, waiting for
// a competing importer up to opts.Timeout. A lock older than opts.StaleAfter is
// assumed abandoned by a crashed process and is broken.
func AcquireSlotLock(ctx context.Context, root, name, version string, opts LockOptions) (*SlotLock, error) {
	opts = opts.withDefaults()
	lockPath := LockPath(root, name, version)
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("STO_LOCK_DIR: %w", err)
	}
	deadline := time.Now().Add(opts.Timeout)
	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			writeErr := writeLockMetadata(f, name+"@"+version)
			closeErr := f.Close()
			if writeErr == nil {
				writeErr = closeErr
			}
			if writeErr != nil {
				_ = os.Remove(lockPath)
				return nil, fmt.Errorf("STO_LOCK_WRITE: %w", writeErr)
			}
			return &SlotLock{path: lockPath}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("STO_LOCK_ACQUIRE: %w", err)
		}
		if stale, _ := IsLockStale(lockPath, time.Now(), opts.StaleAfter); stale {
			breakStaleLock(lockPath, opts.StaleAfter)
			continue
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("STO_LOCK_TIMEOUT: %s@%s is being installed by another process", name, version)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetry):
		}
	}
}

// breakStaleLock moves the lock aside before deleting it. Another waiter may
// have broken the same stale lock and taken a fresh one in between; in that
// case the moved file is fresh and is linked back, which fails rather than
// overwrites if yet another lock took its place.
func breakStaleLock(lockPath string, staleAfter time.Duration) {
	aside := fmt.Sprintf("%s.stale-%d-%d", lockPath, os.Getpid(), time.Now().UnixNano())
	if err := os.Rename(lockPath, aside); err != nil {
		return
	}
	defer os.Remove(aside)
	if stale, err := IsLockStale(aside, time.Now(), staleAfter); err == nil && !stale {
		_ = os.Link(aside, lockPath)
	}
}

func writeLockMetadata(f *os.File, slot string) error {
	blob, err := json.Marshal(lockMetadata{PID: os.Getpid(), Slot: slot, CreatedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	if _, err := f.Write(append(blob, '\n')); err != nil {
		return err
	}
	return f.Sync()
}

// IsLockStale reports whether the lock at path was created more than staleAfter before now.
func IsLockStale(path string, now time.Time, staleAfter time.Duration) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if now.Sub(info.ModTime()) > staleAfter {
		return true, nil
	}
	blob, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	var meta lockMetadata
	if err := json.Unmarshal(blob, &meta); err != nil {
		// partially written by a process that died between create and write
		return now.Sub(info.ModTime()) > lockRetry*40, nil
	}
	return now.Sub(meta.CreatedAt) > staleAfter, nil
}
