package client

import (
	"fmt"
	"testing"

	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/errors"
	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/types"
)

func ckey(n int) types.PolicyKey {
	return types.NewPolicyKey(fmt.Sprintf("app-%d", n), "user", "privilege")
}

func TestCacheHitAndMiss(t *testing.T) {
	c := NewCapacityCache(10)

	if _, hit := c.Get("s1", ckey(1)); hit {
		t.Fatal("Expected miss on empty cache")
	}

	code := c.Update("s1", ckey(1), types.AllowResult())
	if code != errors.CodeSuccess {
		t.Fatalf("Expected success decision, got %d", code)
	}

	code, hit := c.Get("s1", ckey(1))
	if !hit {
		t.Fatal("Expected hit after update")
	}
	if code != errors.CodeSuccess {
		t.Errorf("Expected success decision, got %d", code)
	}

	code = c.Update("s1", ckey(2), types.DenyResult())
	if code != errors.CodeAccessDenied {
		t.Errorf("Expected denied decision, got %d", code)
	}
}

func TestCacheLRUEviction(t *testing.T) {
	c := NewCapacityCache(2)

	c.Update("s", ckey(1), types.AllowResult())
	c.Update("s", ckey(2), types.AllowResult())
	c.Update("s", ckey(3), types.AllowResult())

	// K1 is the least recently used and must be gone
	if _, hit := c.Get("s", ckey(1)); hit {
		t.Error("Expected K1 evicted")
	}
	if _, hit := c.Get("s", ckey(2)); !hit {
		t.Error("Expected K2 present")
	}
	if _, hit := c.Get("s", ckey(3)); !hit {
		t.Error("Expected K3 present")
	}
}

func TestCacheLRUOrderMatchesReferenceModel(t *testing.T) {
	const capacity = 4
	c := NewCapacityCache(capacity)

	// Reference model: slice ordered most recent first
	var ref []string
	touch := func(k string) {
		for i, v := range ref {
			if v == k {
				ref = append(ref[:i], ref[i+1:]...)
				break
			}
		}
		ref = append([]string{k}, ref...)
		if len(ref) > capacity {
			ref = ref[:capacity]
		}
	}

	ops := []int{1, 2, 3, 4, 1, 5, 2, 6, 3, 1}
	for _, n := range ops {
		key := ckey(n)
		if _, hit := c.Get("s", key); !hit {
			c.Update("s", key, types.AllowResult())
		}
		touch(key.String())
	}

	if c.Len() != len(ref) {
		t.Fatalf("Cache holds %d entries, reference %d", c.Len(), len(ref))
	}
	for _, k := range ref {
		found := false
		for ck := range c.entries {
			if ck == k {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Reference key %q missing from cache", k)
		}
	}
}

func TestCacheClear(t *testing.T) {
	c := NewCapacityCache(10)
	for i := 0; i < 5; i++ {
		c.Update("s", ckey(i), types.AllowResult())
	}

	c.Clear()

	if c.Len() != 0 {
		t.Fatalf("Expected empty cache, got %d entries", c.Len())
	}
	for i := 0; i < 5; i++ {
		if _, hit := c.Get("s", ckey(i)); hit {
			t.Errorf("Expected miss for key %d after clear", i)
		}
	}
}

func TestCacheSessionChangeFlushes(t *testing.T) {
	c := NewCapacityCache(10)
	c.Update("session-1", ckey(1), types.AllowResult())

	if _, hit := c.Get("session-2", ckey(1)); hit {
		t.Error("Expected miss after session change")
	}
	if c.Len() != 0 {
		t.Errorf("Expected flush on session change, got %d entries", c.Len())
	}
}

// rejectingPlugin refuses caching and reuse for one plugin type
type rejectingPlugin struct {
	pluginType types.PolicyType
	cacheable  bool
	usable     bool
}

func (p rejectingPlugin) SupportedTypes() []types.PolicyType {
	return []types.PolicyType{p.pluginType}
}
func (p rejectingPlugin) IsCacheable(string, types.PolicyResult) bool { return p.cacheable }
func (p rejectingPlugin) IsUsable(string, string, types.PolicyResult) (bool, bool) {
	return p.usable, false
}
func (p rejectingPlugin) ToResult(string, types.PolicyResult) errors.ReturnCode {
	return errors.CodeSuccess
}
func (p rejectingPlugin) Invalidate() {}

func TestCacheNonCacheableResult(t *testing.T) {
	c := NewCapacityCache(10)
	ask := types.PolicyType(0x10)
	c.RegisterPlugin(rejectingPlugin{pluginType: ask, cacheable: false, usable: true})

	code := c.Update("s", ckey(1), types.PolicyResult{Type: ask})
	if code != errors.CodeSuccess {
		t.Fatalf("Expected plugin decision, got %d", code)
	}
	if c.Len() != 0 {
		t.Error("Expected non-cacheable result not to be stored")
	}
}

func TestCacheUnusableEntryRemoved(t *testing.T) {
	c := NewCapacityCache(10)
	ask := types.PolicyType(0x10)
	c.RegisterPlugin(rejectingPlugin{pluginType: ask, cacheable: true, usable: false})

	c.Update("s", ckey(1), types.PolicyResult{Type: ask})
	if c.Len() != 1 {
		t.Fatal("Expected entry to be stored")
	}

	if _, hit := c.Get("s", ckey(1)); hit {
		t.Error("Expected unusable entry to miss")
	}
	if c.Len() != 0 {
		t.Error("Expected unusable entry to be removed")
	}
}

func TestCacheUnknownPluginType(t *testing.T) {
	c := NewCapacityCache(10)

	code := c.Update("s", ckey(1), types.PolicyResult{Type: types.PolicyType(0x33)})
	if code != errors.CodeAccessDenied {
		t.Errorf("Expected denied for unknown plugin type, got %d", code)
	}
	if c.Len() != 0 {
		t.Error("Expected unknown-type result not to be stored")
	}
}

func TestCacheZeroCapacityStoresNothing(t *testing.T) {
	c := NewCapacityCache(0)

	code := c.Update("s", ckey(1), types.AllowResult())
	if code != errors.CodeSuccess {
		t.Fatalf("Expected decision despite no storage, got %d", code)
	}
	if _, hit := c.Get("s", ckey(1)); hit {
		t.Error("Expected miss with zero capacity")
	}
}
