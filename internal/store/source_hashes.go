// Package store holds what the work-item store backends share.
package store

import "sync"

// SourceHashes remembers, for one session, the content hash of every source
// handed out by a list call. An update then records the hash of the content the
// derived value was actually computed from, even if the source changed in the
// meantime, so the next cycle sees the item as stale again.
type SourceHashes struct {
	mu     sync.Mutex
	hashes map[string]string
}

func NewSourceHashes() *SourceHashes {
	return &SourceHashes{hashes: make(map[string]string)}
}

func (s *SourceHashes) Remember(id, hash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hashes[id] = hash
}

// Lookup returns the remembered hash for id, if any.
func (s *SourceHashes) Lookup(id string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hashes[id]
	return h, ok
}
