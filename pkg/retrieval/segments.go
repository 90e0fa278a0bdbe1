package retrieval

import (
	"context"
	"fmt"
	"sync"

	"github.com/athapong/surgical-qa/pkg/graph"
)

// MemorySegmentStore keeps segments in a map. It is the store backing the
// in-process deployment; a remote corpus would implement SegmentStore over
// its own storage.
type MemorySegmentStore struct {
	segments map[string]*graph.TextSegment
	mutex    sync.RWMutex
}

func NewMemorySegmentStore() *MemorySegmentStore {
	return &MemorySegmentStore{
		segments: make(map[string]*graph.TextSegment),
	}
}

func (s *MemorySegmentStore) GetSegment(ctx context.Context, id string) (*graph.TextSegment, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	segment, ok := s.segments[id]
	if !ok {
		return nil, fmt.Errorf("segment not found: %s", id)
	}
	copied := *segment
	return &copied, nil
}

func (s *MemorySegmentStore) PutSegment(ctx context.Context, segment *graph.TextSegment) error {
	if segment.ID == "" {
		return fmt.Errorf("segment ID must not be empty")
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	copied := *segment
	s.segments[segment.ID] = &copied
	return nil
}

// Len reports the number of stored segments.
func (s *MemorySegmentStore) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.segments)
}
