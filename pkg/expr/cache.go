package expr

import (
	"container/list"
	"sync"

	exprlang "github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// programCache is a thread-safe LRU cache of compiled expr-lang programs,
// keyed on the rewritten expression text. Grounded on the teacher engine's
// ConditionCache: same container/list-backed LRU shape, generalized from
// boolean-only conditions to any comparison/logical expression the
// evaluator compiles.
type programCache struct {
	capacity int
	mu       sync.RWMutex
	entries  map[string]*list.Element
	order    *list.List
}

type cacheEntry struct {
	key     string
	program *vm.Program
}

func newProgramCache(capacity int) *programCache {
	if capacity <= 0 {
		capacity = 256
	}
	return &programCache{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

func (c *programCache) get(key string) (*vm.Program, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.order.MoveToFront(el)
		return el.Value.(*cacheEntry).program, true
	}
	return nil, false
}

func (c *programCache) put(key string, program *vm.Program) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		el.Value.(*cacheEntry).program = program
		c.order.MoveToFront(el)
		return
	}
	el := c.order.PushFront(&cacheEntry{key: key, program: program})
	c.entries[key] = el
	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*cacheEntry).key)
		}
	}
}

// compile returns a cached program for key or compiles and caches one,
// using env only to describe the variable names/types available.
func (c *programCache) compile(key string, env map[string]interface{}) (*vm.Program, error) {
	if p, ok := c.get(key); ok {
		return p, nil
	}
	program, err := exprlang.Compile(key, exprlang.Env(env))
	if err != nil {
		return nil, err
	}
	c.put(key, program)
	return program, nil
}
