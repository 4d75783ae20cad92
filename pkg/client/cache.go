package client

import (
	"container/list"

	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/errors"
	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/types"
)

// DefaultCacheCapacity bounds the decision cache when no capacity is given
const DefaultCacheCapacity = 10000

// cacheEntry pairs a stored result with its position in the usage list
type cacheEntry struct {
	result  types.PolicyResult
	session string
	elem    *list.Element
}

// CapacityCache is an LRU cache of raw policy results keyed by policy key.
// The usage list front holds the most recently used key; the map stores the
// list element so hits reorder in O(1). The whole cache belongs to one
// session: supplying a different session flushes it.
type CapacityCache struct {
	capacity int
	session  string
	usage    *list.List
	entries  map[string]*cacheEntry
	plugins  map[types.PolicyType]Plugin
}

// NewCapacityCache creates a cache holding at most capacity decisions. A
// non-positive capacity disables storage entirely. The naive interpreter for
// the predefined types is pre-registered.
func NewCapacityCache(capacity int) *CapacityCache {
	c := &CapacityCache{
		capacity: capacity,
		usage:    list.New(),
		entries:  make(map[string]*cacheEntry),
		plugins:  make(map[types.PolicyType]Plugin),
	}
	c.RegisterPlugin(NaiveInterpreter{})
	return c
}

// RegisterPlugin binds a plugin to every policy type it supports. A later
// registration for the same type wins.
func (c *CapacityCache) RegisterPlugin(p Plugin) {
	for _, t := range p.SupportedTypes() {
		c.plugins[t] = p
	}
}

// Get looks up the decision for key. The second return value is false on a
// cache miss. A stored entry the plugin no longer accepts is dropped.
func (c *CapacityCache) Get(session string, key types.PolicyKey) (errors.ReturnCode, bool) {
	if session != c.session {
		c.Clear()
		c.session = session
		return 0, false
	}

	ck := key.String()
	entry, ok := c.entries[ck]
	if !ok {
		return 0, false
	}

	plugin, ok := c.plugins[entry.result.Type]
	if !ok {
		c.remove(ck, entry)
		return 0, false
	}

	usable, updateSession := plugin.IsUsable(session, entry.session, entry.result)
	if !usable {
		c.remove(ck, entry)
		return 0, false
	}
	if updateSession {
		entry.session = session
	}

	c.usage.MoveToFront(entry.elem)
	return plugin.ToResult(session, entry.result), true
}

// Update stores a fresh result and returns the decision it maps to. Results
// the plugin declares non-cacheable are interpreted but not stored; results
// with no registered plugin are treated as denied and not stored.
func (c *CapacityCache) Update(session string, key types.PolicyKey, result types.PolicyResult) errors.ReturnCode {
	if session != c.session {
		c.Clear()
		c.session = session
	}

	plugin, ok := c.plugins[result.Type]
	if !ok {
		return errors.CodeAccessDenied
	}

	if c.capacity > 0 && plugin.IsCacheable(session, result) {
		ck := key.String()
		if entry, exists := c.entries[ck]; exists {
			entry.result = result
			entry.session = session
			c.usage.MoveToFront(entry.elem)
		} else {
			if len(c.entries) >= c.capacity {
				c.evict()
			}
			elem := c.usage.PushFront(ck)
			c.entries[ck] = &cacheEntry{result: result, session: session, elem: elem}
		}
	}

	return plugin.ToResult(session, result)
}

// Clear drops every cached decision and notifies the plugins
func (c *CapacityCache) Clear() {
	c.usage.Init()
	c.entries = make(map[string]*cacheEntry)
	for _, p := range c.plugins {
		p.Invalidate()
	}
}

// Len returns the number of cached decisions
func (c *CapacityCache) Len() int {
	return len(c.entries)
}

// evict removes the least recently used entry
func (c *CapacityCache) evict() {
	back := c.usage.Back()
	if back == nil {
		return
	}
	ck := back.Value.(string)
	c.usage.Remove(back)
	delete(c.entries, ck)
}

func (c *CapacityCache) remove(ck string, entry *cacheEntry) {
	c.usage.Remove(entry.elem)
	delete(c.entries, ck)
}
