package collection

import "sync"

// snapshotSlot holds the single pre-mutation backup of the item list.
// Exactly one snapshot is live per in-flight settlement; once consumed by
// rollback or cleared by a successful settlement it is gone.
//
// Submit serializes settlements, so under correct usage the slot is never
// contended. The mutex keeps teardown safe regardless.
type snapshotSlot[T any] struct {
	mu    sync.Mutex
	items []T
	valid bool
}

// capture stores a copy of items, replacing any previous snapshot.
func (s *snapshotSlot[T]) capture(items []T) {
	cp := make([]T, len(items))
	copy(cp, items)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = cp
	s.valid = true
}

// take consumes the snapshot. The second return is false when no snapshot
// was captured, which rollback treats as a protocol violation.
func (s *snapshotSlot[T]) take() ([]T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.valid {
		return nil, false
	}
	items := s.items
	s.items = nil
	s.valid = false
	return items, true
}

// clear discards any live snapshot without consuming it.
func (s *snapshotSlot[T]) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
	s.valid = false
}
