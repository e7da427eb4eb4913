package remotebuild

import (
	"testing"

	"github.com/0o001/visa-finalizer/internal/config"
)

func TestResultCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewResultCache(2)

	k1 := NewCacheKey([]byte("a"), config.DefaultBuildOptions())
	k2 := NewCacheKey([]byte("b"), config.DefaultBuildOptions())
	k3 := NewCacheKey([]byte("c"), config.DefaultBuildOptions())

	c.Put(k1, &CompileResponse{Binary: []byte("1")})
	c.Put(k2, &CompileResponse{Binary: []byte("2")})

	if _, ok := c.Get(k1); !ok {
		t.Fatal("k1 should still be cached")
	}

	c.Put(k3, &CompileResponse{Binary: []byte("3")})

	if _, ok := c.Get(k2); ok {
		t.Fatal("k2 should have been evicted as the least-recently-used entry")
	}

	if _, ok := c.Get(k1); !ok {
		t.Fatal("k1 was touched more recently and should survive eviction")
	}

	if _, ok := c.Get(k3); !ok {
		t.Fatal("k3 should be cached")
	}
}

func TestNewCacheKeyDependsOnOptions(t *testing.T) {
	bc := []byte("same bytecode")

	o1 := config.DefaultBuildOptions()
	o2 := config.DefaultBuildOptions()
	o2.GRFNumToUse = 64

	if NewCacheKey(bc, o1) == NewCacheKey(bc, o2) {
		t.Fatal("different build options should produce different cache keys")
	}
}
