package component

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/directord/directord/cache"
)

func TestCacheFileServerInlineFormBindsPath(t *testing.T) {
	b := cacheFileBuiltin()
	def, err := b.Server([]string{"/tmp/vars.yaml"}, nil)
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	if def["cachefile"] != "/tmp/vars.yaml" {
		t.Fatalf("expected cachefile to be bound, got %#v", def)
	}
}

func TestCacheFileServerRejectsNoArgs(t *testing.T) {
	b := cacheFileBuiltin()
	if _, err := b.Server(nil, nil); err == nil {
		t.Fatalf("expected an error when no path is given")
	}
}

func TestCacheFileClientMergesYAMLIntoArgsCache(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vars.yaml")
	if err := os.WriteFile(path, []byte("color: blue\ncount: 3\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	b := cacheFileBuiltin()
	def, err := b.Server([]string{path}, nil)
	if err != nil {
		t.Fatalf("server: %v", err)
	}

	rt := newTestRuntime()
	res, err := b.Client(context.Background(), rt, def)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, stderr=%s", res.Stderr)
	}

	stored := map[string]any{}
	ok, err := rt.Cache.Get(context.Background(), cache.TagArgs, "args", &stored)
	if err != nil || !ok {
		t.Fatalf("expected args cache entry, ok=%v err=%v", ok, err)
	}
	if stored["color"] != "blue" {
		t.Fatalf("expected color=blue, got %#v", stored)
	}
}

func TestCacheFileClientReportsMissingFile(t *testing.T) {
	b := cacheFileBuiltin()
	def, _ := b.Server([]string{"/does/not/exist.yaml"}, nil)
	rt := newTestRuntime()
	res, err := b.Client(context.Background(), rt, def)
	if err != nil {
		t.Fatalf("client should not error, got %v", err)
	}
	if res.Success {
		t.Fatalf("expected failure for a missing cache file")
	}
}
