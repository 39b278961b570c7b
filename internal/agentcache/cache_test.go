package agentcache

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/haasonsaas/overseer/internal/backend"
)

func TestCacheMemoizesByRole(t *testing.T) {
	var builds atomic.Int32
	cache, err := New(func(role string) (backend.Agent, error) {
		builds.Add(1)
		return backend.Agent{Role: role, Model: "test-model"}, nil
	}, 8)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for i := 0; i < 3; i++ {
		agent, err := cache.Get("developer")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if agent.Role != "developer" {
			t.Errorf("role = %q", agent.Role)
		}
	}
	if _, err := cache.Get("sre"); err != nil {
		t.Fatalf("Get sre: %v", err)
	}

	if got := builds.Load(); got != 2 {
		t.Errorf("builder called %d times, want 2", got)
	}
	if cache.Len() != 2 {
		t.Errorf("cache len = %d, want 2", cache.Len())
	}
}

func TestCacheBuilderErrorNotCached(t *testing.T) {
	var builds atomic.Int32
	cache, err := New(func(role string) (backend.Agent, error) {
		if builds.Add(1) == 1 {
			return backend.Agent{}, errors.New("catalog unavailable")
		}
		return backend.Agent{Role: role}, nil
	}, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := cache.Get("developer"); err == nil {
		t.Fatal("expected first build to fail")
	}
	if _, err := cache.Get("developer"); err != nil {
		t.Fatalf("second build: %v", err)
	}
	if got := builds.Load(); got != 2 {
		t.Errorf("builder called %d times, want 2", got)
	}
}

func TestCacheInvalidate(t *testing.T) {
	var builds atomic.Int32
	cache, _ := New(func(role string) (backend.Agent, error) {
		builds.Add(1)
		return backend.Agent{Role: role}, nil
	}, 8)

	cache.Get("developer")
	cache.Invalidate("developer")
	cache.Get("developer")

	if got := builds.Load(); got != 2 {
		t.Errorf("builder called %d times after invalidate, want 2", got)
	}
}
