// Package filelock provides the cross-process locks conductor uses for
// state shared between processes.
//
// # PID Locks
//
// [Acquire] creates a lock file with O_EXCL that records the owning PID and
// host. A lock whose process has died is stale and is removed by the next
// acquirer. [AcquireWait] polls until the lock is free, which is how merges
// into the main line are serialized across concurrently running agents:
//
//	lock, err := filelock.AcquireWait(ctx, stateDir, "mainline", owner, poll, timeout, logger)
//	if err != nil { ... }
//	defer lock.Release()
//
// # State File Locks
//
// [With] holds an flock(2) on a directory while a state file in it is read
// or rewritten, and [WriteFileAtomic] replaces a file through a temporary
// file and rename so readers never observe a partial write.
package filelock
