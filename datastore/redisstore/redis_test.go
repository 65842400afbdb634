package redisstore

import "testing"

func TestOpenRejectsMalformedURL(t *testing.T) {
	if _, err := Open("not a url"); err == nil {
		t.Fatalf("expected an error for a malformed redis URL")
	}
}

func TestOpenAcceptsWellFormedURLWithoutDialing(t *testing.T) {
	// redis.ParseURL only validates shape; go-redis dials lazily on first
	// command, so this does not require a live server.
	s, err := Open("redis://127.0.0.1:6379/0")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if s.client == nil {
		t.Fatalf("expected a configured client")
	}
}

func TestRedisKeyNamespacesByTable(t *testing.T) {
	if got := redisKey("jobs", "job-1"); got != "jobs:job-1" {
		t.Fatalf("expected 'jobs:job-1', got %q", got)
	}
}
