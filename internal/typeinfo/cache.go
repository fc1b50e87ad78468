package typeinfo

import (
	"sync"
	"sync/atomic"
)

// cache is a write-through, monotonic OID→Type map (§3 invariant: "an OID
// observed with kind K is never re-resolved to a different K"). Reads are
// lock-free via atomic.Value; writers clone the current snapshot, add the
// new entry, and swap — the same read/clone-mutate-swap discipline the
// teacher's internal/router package uses for its lock-free tenant table,
// applied here to a per-connection type cache instead of a routing table.
type cache struct {
	snap atomic.Value // map[uint32]*Type
	wmu  sync.Mutex
}

func newCache() *cache {
	c := &cache{}
	c.snap.Store(make(map[uint32]*Type))
	return c
}

func (c *cache) get(oid uint32) (*Type, bool) {
	m := c.snap.Load().(map[uint32]*Type)
	t, ok := m[oid]
	return t, ok
}

// put inserts oid→t if not already present. A second put for the same OID
// is a no-op — inserts are idempotent, consistent with the §5 "writes are
// idempotent" rule and the monotonicity invariant in §3.
func (c *cache) put(oid uint32, t *Type) {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	cur := c.snap.Load().(map[uint32]*Type)
	if _, exists := cur[oid]; exists {
		return
	}
	next := make(map[uint32]*Type, len(cur)+1)
	for k, v := range cur {
		next[k] = v
	}
	next[oid] = t
	c.snap.Store(next)
}

func (c *cache) size() int {
	return len(c.snap.Load().(map[uint32]*Type))
}
