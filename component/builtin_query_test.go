package component

import (
	"context"
	"testing"
	"time"

	"github.com/directord/directord/cache"
)

func TestQueryServerBindsKey(t *testing.T) {
	b := queryBuiltin()
	def, err := b.Server([]string{"disk_free"}, nil)
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	if def["query"] != "disk_free" {
		t.Fatalf("expected query=disk_free, got %#v", def)
	}
}

func TestQueryClientReturnsStdoutFromArgsCache(t *testing.T) {
	rt := newTestRuntime()
	if err := rt.Cache.Set(context.Background(), cache.TagArgs, "args", map[string]any{"disk_free": "42G"}, 0); err != nil {
		t.Fatalf("seed: %v", err)
	}
	b := queryBuiltin()
	def, _ := b.Server([]string{"disk_free"}, nil)
	res, err := b.Client(context.Background(), rt, def)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	if !res.Success || string(res.Stdout) != `"42G"` {
		t.Fatalf("expected stdout to carry the JSON-encoded value, got %+v", res)
	}
}

func TestQueryClientSucceedsSilentlyWhenKeyAbsent(t *testing.T) {
	rt := newTestRuntime()
	b := queryBuiltin()
	def, _ := b.Server([]string{"missing"}, nil)
	res, err := b.Client(context.Background(), rt, def)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	if !res.Success || len(res.Stdout) != 0 {
		t.Fatalf("expected a quiet success with no stdout, got %+v", res)
	}
}

func TestQueryWaitServerDefaultsTimeout(t *testing.T) {
	b := queryWaitBuiltin()
	def, err := b.Server([]string{"item"}, nil)
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	if def["query_timeout"] != 600 {
		t.Fatalf("expected default timeout of 600, got %#v", def["query_timeout"])
	}
}

func TestQueryWaitClientReturnsSuccessOnceAnyIdentitySatisfiesItem(t *testing.T) {
	rt := newTestRuntime()
	if err := rt.Cache.Set(context.Background(), cache.TagQuery, "disk_free", map[string]map[string]any{
		"nodeA": {"disk_free": "42G"},
	}, 0); err != nil {
		t.Fatalf("seed: %v", err)
	}

	b := queryWaitBuiltin()
	def, err := b.Server([]string{"--query-timeout", "1", "disk_free"}, nil)
	if err != nil {
		t.Fatalf("server: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := b.Client(ctx, rt, def)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success once the query cache is populated, got %+v", res)
	}
}

func TestQueryWaitClientRequiresAllNamedIdentities(t *testing.T) {
	rt := newTestRuntime()
	if err := rt.Cache.Set(context.Background(), cache.TagQuery, "disk_free", map[string]map[string]any{
		"nodeA": {"disk_free": "42G"},
	}, 0); err != nil {
		t.Fatalf("seed: %v", err)
	}

	b := queryWaitBuiltin()
	def, err := b.Server([]string{"--query-timeout", "1", "--identity", "nodeA", "--identity", "nodeB", "disk_free"}, nil)
	if err != nil {
		t.Fatalf("server: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := b.Client(ctx, rt, def)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	if res.Success {
		t.Fatalf("expected a timeout since nodeB never reports the item")
	}
}

func TestQueryItemSatisfiedAnyIdentity(t *testing.T) {
	query := map[string]map[string]any{"nodeA": {"k": "v"}}
	if !queryItemSatisfied(query, "k", nil) {
		t.Fatalf("expected satisfied when any identity carries the item and none are named")
	}
	if queryItemSatisfied(query, "missing", nil) {
		t.Fatalf("expected not satisfied for an absent item")
	}
}
