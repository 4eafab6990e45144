package graph

import (
	"container/list"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// conditionCache is a thread-safe LRU cache for compiled expr programs,
// keyed by expression source. EdgeEvaluator uses it for the comparison
// operators that are cheaper to express than to hand-roll (numeric and
// time-window comparisons).
type conditionCache struct {
	capacity int
	cache    map[string]*list.Element
	lruList  *list.List
	mu       sync.RWMutex
}

type cacheEntry struct {
	key     string
	program *vm.Program
}

func newConditionCache(capacity int) *conditionCache {
	if capacity <= 0 {
		capacity = 100
	}
	return &conditionCache{
		capacity: capacity,
		cache:    make(map[string]*list.Element),
		lruList:  list.New(),
	}
}

func (cc *conditionCache) get(expression string) (*vm.Program, bool) {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	if element, found := cc.cache[expression]; found {
		cc.lruList.MoveToFront(element)
		entry := element.Value.(*cacheEntry)
		return entry.program, true
	}
	return nil, false
}

func (cc *conditionCache) put(expression string, program *vm.Program) {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	if element, found := cc.cache[expression]; found {
		cc.lruList.MoveToFront(element)
		element.Value.(*cacheEntry).program = program
		return
	}

	entry := &cacheEntry{key: expression, program: program}
	element := cc.lruList.PushFront(entry)
	cc.cache[expression] = element

	if cc.lruList.Len() > cc.capacity {
		cc.evictOldest()
	}
}

func (cc *conditionCache) evictOldest() {
	oldest := cc.lruList.Back()
	if oldest != nil {
		cc.lruList.Remove(oldest)
		entry := oldest.Value.(*cacheEntry)
		delete(cc.cache, entry.key)
	}
}

func (cc *conditionCache) len() int {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return cc.lruList.Len()
}

// compileAndCache compiles expression against env's shape and caches the
// result, returning a prior compile if the expression was already seen.
func (cc *conditionCache) compileAndCache(expression string, env interface{}) (*vm.Program, error) {
	if program, found := cc.get(expression); found {
		return program, nil
	}

	program, err := expr.Compile(expression, expr.Env(env), expr.AsBool())
	if err != nil {
		return nil, err
	}

	cc.put(expression, program)
	return program, nil
}
