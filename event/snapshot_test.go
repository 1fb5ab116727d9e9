package event

import (
	"fmt"
	"testing"
	"time"
)

func TestSnapshotStoreDropsLocksWithExpiredKeys(t *testing.T) {
	s := newSnapshotStore(20 * time.Millisecond)
	for i := 0; i < 8; i++ {
		key := fmt.Sprintf("com.google.Chrome\x00tab %d", i)
		l := s.keyLock(key)
		l.Lock()
		s.put(key, snapshot{frameID: fmt.Sprintf("f%d", i), taken: time.Now()})
		l.Unlock()
	}
	if s.lockCount() != 8 {
		t.Fatalf("expected 8 key locks, got %d", s.lockCount())
	}

	// The janitor sweeps at ttl/2; lock entries must go with the
	// snapshots instead of accumulating one mutex per window title.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.lockCount() == 0 && s.len() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("locks not evicted: %d locks, %d snapshots remain", s.lockCount(), s.len())
}

func TestSnapshotStoreHeldLockSurvivesEviction(t *testing.T) {
	s := newSnapshotStore(20 * time.Millisecond)
	key := "com.apple.mail\x00Inbox"
	l := s.keyLock(key)
	l.Lock()
	s.put(key, snapshot{frameID: "f1", taken: time.Now()})

	time.Sleep(80 * time.Millisecond)
	// A holder mid-delta keeps its mutex even after the snapshot expired.
	if got := s.keyLock(key); got != l {
		t.Fatalf("held lock was replaced during eviction")
	}
	l.Unlock()
}
