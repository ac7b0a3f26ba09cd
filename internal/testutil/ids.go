package testutil

import (
	"fmt"
	"sync"
)

// SequenceIDs generates zero-padded ids such as "doc-0000000001" that sort
// lexically in generation order.
//
// Safe for concurrent use.
type SequenceIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceIDs creates a generator. An empty prefix uses "id".
func NewSequenceIDs(prefix string) *SequenceIDs {
	if prefix == "" {
		prefix = "id"
	}
	return &SequenceIDs{prefix: prefix}
}

// Next returns the next id.
func (s *SequenceIDs) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("%s-%010d", s.prefix, s.n)
}

// Reset restarts the sequence.
func (s *SequenceIDs) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n = 0
}
