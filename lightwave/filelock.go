package lightwave

import (
	"context"
	"fmt"
	"os"
	"time"
)

const (
	lockRetries    = 50
	lockRetryDelay = 100 * time.Millisecond
	lockStaleAfter = 30 * time.Second
)

// snapshotLock is an exclusive lock on a snapshot file, held through a sibling
// ".lock" file so that several processes sharing one snapshot do not interleave writes.
type snapshotLock struct {
	lockFile *os.File
	lockPath string
}

// acquireSnapshotLock creates path+".lock" exclusively, waiting for a holder to
// release it and removing locks older than lockStaleAfter.
func acquireSnapshotLock(ctx context.Context, path string) (*snapshotLock, error) {
	lockPath := path + ".lock"

	for i := 0; i < lockRetries; i++ {
		lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			// PID helps when debugging a stuck lock
			fmt.Fprintf(lockFile, "%d", os.Getpid())
			return &snapshotLock{
				lockFile: lockFile,
				lockPath: lockPath,
			}, nil
		}

		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to acquire snapshot lock: %w", err)
		}

		if info, statErr := os.Stat(lockPath); statErr == nil &&
			time.Since(info.ModTime()) > lockStaleAfter {
			if remErr := os.Remove(lockPath); remErr != nil && !os.IsNotExist(remErr) {
				return nil, fmt.Errorf(
					"failed to remove stale lock file %s: %w",
					lockPath,
					remErr,
				)
			}
			continue
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryDelay):
		}
	}

	return nil, fmt.Errorf(
		"timeout waiting for snapshot lock after %v",
		time.Duration(lockRetries)*lockRetryDelay,
	)
}

func (l *snapshotLock) release() error {
	if l.lockFile != nil {
		l.lockFile.Close()
		l.lockFile = nil
	}
	return os.Remove(l.lockPath)
}
