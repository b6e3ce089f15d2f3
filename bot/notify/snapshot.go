package notify

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"sync"
)

// Snapshot is the rendered schedule kept between watcher passes. When a
// user taps the "view changes" button the handler replays these pages
// instead of refetching, so the user sees exactly what changed.
type Snapshot struct {
	Query string
	Mode  string
	Date  string
	Pages []string
}

func (s Snapshot) hash() string {
	sum := md5.Sum([]byte(strings.Join(s.Pages, "\x00")))
	return hex.EncodeToString(sum[:])
}

type snapshotEntry struct {
	snap Snapshot
	hash string
}

// SnapshotStore keeps the latest schedule snapshot per user and date.
// Safe for concurrent use.
type SnapshotStore struct {
	mu sync.Mutex
	m  map[int64]map[string]snapshotEntry
}

func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{m: make(map[int64]map[string]snapshotEntry)}
}

// Update stores snap and reports whether it differs from the previous
// snapshot for the same user and date. The first snapshot ever seen is
// a baseline, not a change.
func (st *SnapshotStore) Update(userID int64, snap Snapshot) bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	byDate := st.m[userID]
	if byDate == nil {
		byDate = make(map[string]snapshotEntry)
		st.m[userID] = byDate
	}

	h := snap.hash()
	prev, seen := byDate[snap.Date]
	byDate[snap.Date] = snapshotEntry{snap: snap, hash: h}
	return seen && prev.hash != h
}

// Get returns the stored snapshot for the user and date, if any.
func (st *SnapshotStore) Get(userID int64, date string) (Snapshot, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	e, ok := st.m[userID][date]
	return e.snap, ok
}

// PruneBefore drops snapshots for dates before the given ISO date.
func (st *SnapshotStore) PruneBefore(date string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	for userID, byDate := range st.m {
		for d := range byDate {
			if d < date {
				delete(byDate, d)
			}
		}
		if len(byDate) == 0 {
			delete(st.m, userID)
		}
	}
}
