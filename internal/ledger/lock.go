package ledger

import (
	"hash/fnv"
	"sync"
)

const lockStripes = 64

// stripedLock serializes work per payment id without one mutex per id.
type stripedLock struct {
	stripes [lockStripes]sync.Mutex
}

func (s *stripedLock) lock(id string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	m := &s.stripes[h.Sum32()%lockStripes]
	m.Lock()
	return m.Unlock
}
