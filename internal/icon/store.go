package icon

import "sync"

// Store caches PNG bytes per process id
type Store struct {
	mu    sync.RWMutex
	icons map[int][]byte
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{icons: make(map[int][]byte)}
}

// Put stores the icon for pid
func (s *Store) Put(pid int, png []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.icons[pid] = png
}

// Get returns the icon for pid
func (s *Store) Get(pid int) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	png, ok := s.icons[pid]
	return png, ok
}

// Delete forgets pid
func (s *Store) Delete(pid int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.icons, pid)
}

// Len returns the number of cached icons
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.icons)
}
