package cache

import (
	"sync"
	"time"

	list "github.com/bahlo/generic-list-go"
)

// Node represents one cache entry. Only Hash and Path may be read without
// holding the owning index's lock; everything else is accessed through
// Index methods.
type Node struct {
	hash Hash
	path string

	key        string
	exists     bool
	updating   bool
	validated  bool
	fsSize     int64 // allocation blocks
	validUntil time.Time

	// gen advances whenever the node is marked absent or leaves the
	// index. Readers record it before opening the backing file.
	gen uint64
}

// Hash returns the node's key hash.
func (n *Node) Hash() Hash { return n.hash }

// Path returns the backing file path. It never changes.
func (n *Node) Path() string { return n.path }

// NodeState is a point-in-time copy of a node's bookkeeping fields.
type NodeState struct {
	Key        string
	Exists     bool
	Updating   bool
	Validated  bool
	Blocks     int64
	ValidUntil time.Time
	Gen        uint64
}

type quota struct{ cur, max int64 }

func (q quota) Satisfied() bool {
	return q.max <= 0 || q.cur <= q.max
}

// Index tracks known cache entries, their sizes and LRU order. All
// bookkeeping fields are mutated under a single mutex.
//
// Nodes are never freed while they might be referenced: purging a node
// only marks it absent. Nodes leave the index through LRU eviction, when
// the entry or size quota is exceeded.
type Index struct {
	items *list.List[*Node]
	nodes map[Hash]*list.Element[*Node]
	mu    *sync.Mutex

	entries quota
	blocks  quota
}

// NewIndex creates an empty index. A maxEntries or maxBlocks value <= 0
// disables the respective quota.
func NewIndex(maxEntries int, maxBlocks int64) *Index {
	return &Index{
		items:   list.New[*Node](),
		nodes:   make(map[Hash]*list.Element[*Node]),
		mu:      &sync.Mutex{},
		entries: quota{0, int64(maxEntries)},
		blocks:  quota{0, maxBlocks},
	}
}

// Lookup returns the node for h and marks it recently used. It returns
// nil for unknown hashes.
func (ix *Index) Lookup(h Hash) *Node {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if e := ix.nodes[h]; e != nil {
		ix.items.MoveToFront(e)
		return e.Value
	}
	return nil
}

// Insert returns the node for h, creating an absent and unvalidated one
// if none exists yet.
func (ix *Index) Insert(h Hash, path string) (n *Node, created bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if e := ix.nodes[h]; e != nil {
		ix.items.MoveToFront(e)
		return e.Value, false
	}
	n = &Node{hash: h, path: path}
	ix.nodes[h] = ix.items.PushFront(n)
	ix.entries.cur++
	return n, true
}

// Prime adds nodes discovered on disk, without knowing their keys yet.
// Nodes are expected in ascending access order (oldest first). Already
// known hashes are skipped.
func (ix *Index) Prime(nodes []*Node) (evicted []*Node) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	for _, n := range nodes {
		if ix.nodes[n.hash] != nil {
			continue
		}
		n.exists = true
		ix.nodes[n.hash] = ix.items.PushFront(n)
		ix.entries.cur++
		ix.blocks.cur += n.fsSize
		evicted = append(evicted, ix.enforce()...)
	}
	return evicted
}

// Validate records a successful write of n's backing file: the node is
// marked existing and validated, its size is replaced and the updating
// flag is cleared. Quotas are enforced afterwards. This is the only way
// to bring back a purged node.
func (ix *Index) Validate(n *Node, key string, blocks int64, validUntil time.Time) (evicted []*Node) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.validate(n, key, blocks, validUntil)
	return ix.enforce()
}

// ValidateRead records a successful read of n's backing file, which was
// opened while n was at generation gen. It refuses (ok is false) when
// the generation changed in between or n is known to be absent, since
// the file that was read is gone or about to be.
func (ix *Index) ValidateRead(n *Node, gen uint64, key string, blocks int64, validUntil time.Time) (evicted []*Node, ok bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if n.gen != gen || (n.validated && !n.exists) {
		return nil, false
	}
	if n.validated {
		// validated by a concurrent read or write
		if e := ix.nodes[n.hash]; e != nil && e.Value == n {
			ix.items.MoveToFront(e)
		}
		return nil, true
	}
	ix.validate(n, key, blocks, validUntil)
	return ix.enforce(), true
}

// validate implements Validate. The caller must hold the lock.
func (ix *Index) validate(n *Node, key string, blocks int64, validUntil time.Time) {
	switch e := ix.nodes[n.hash]; {
	case e == nil:
		// evicted in the meantime
		ix.nodes[n.hash] = ix.items.PushFront(n)
		ix.entries.cur++
	case e.Value != n:
		// evicted and replaced in the meantime
		ix.drop(e)
		ix.nodes[n.hash] = ix.items.PushFront(n)
		ix.entries.cur++
	default:
		ix.items.MoveToFront(e)
	}
	ix.blocks.cur += blocks - n.fsSize

	n.key = key
	n.fsSize = blocks
	n.validUntil = validUntil
	n.exists = true
	n.validated = true
	n.updating = false
}

// Forget removes n from the index if it was never validated and is not
// being populated, e.g. a placeholder for a key without backing file.
// It reports whether n was removed.
func (ix *Index) Forget(n *Node) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if n.validated || n.updating {
		return false
	}
	e := ix.nodes[n.hash]
	if e == nil || e.Value != n {
		return false
	}
	ix.drop(e)
	return true
}

// SetUpdating flags n as being (re)populated. It reports the previous
// flag value.
func (ix *Index) SetUpdating(n *Node, updating bool) (was bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	was, n.updating = n.updating, updating
	return was
}

// TryMarkAbsent is the commit point of a purge. If n still exists, its
// size is released from the aggregate, it is marked absent and not
// updating, and ok is true. Its generation advances, so reads that
// started earlier cannot validate it again. If another caller already
// marked n absent, nothing changes and ok is false.
func (ix *Index) TryMarkAbsent(n *Node) (freed int64, ok bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if !n.exists {
		return 0, false
	}
	freed = n.fsSize
	ix.blocks.cur -= n.fsSize
	n.fsSize = 0
	n.exists = false
	n.updating = false
	n.gen++
	return freed, true
}

// Snapshot copies n's bookkeeping fields.
func (ix *Index) Snapshot(n *Node) NodeState {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	return NodeState{
		Key:        n.key,
		Exists:     n.exists,
		Updating:   n.updating,
		Validated:  n.validated,
		Blocks:     n.fsSize,
		ValidUntil: n.validUntil,
		Gen:        n.gen,
	}
}

// TotalBlocks returns the aggregate size of all existing entries.
func (ix *Index) TotalBlocks() int64 {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.blocks.cur
}

// Len returns the number of nodes, including absent ones.
func (ix *Index) Len() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.items.Len()
}

// enforce evicts nodes from the back until both quotas are satisfied.
// The caller must hold the lock.
func (ix *Index) enforce() (evicted []*Node) {
	for !ix.blocks.Satisfied() || !ix.entries.Satisfied() {
		ev := ix.truncateItem()
		if ev == nil {
			break
		}
		evicted = append(evicted, ev)
	}
	return evicted
}

// truncateItem removes the least recently used node, unless it is the
// only one left. Evicted nodes are marked absent, so concurrent purges
// holding a reference back off.
func (ix *Index) truncateItem() *Node {
	back := ix.items.Back()
	if back == nil || ix.items.Len() == 1 {
		return nil
	}
	return ix.drop(back)
}

// drop removes e from the index and marks its node absent. The caller
// must hold the lock.
func (ix *Index) drop(e *list.Element[*Node]) *Node {
	n := ix.items.Remove(e)
	delete(ix.nodes, n.hash)
	ix.entries.cur--
	ix.blocks.cur -= n.fsSize
	n.fsSize = 0
	n.exists = false
	n.gen++
	return n
}
