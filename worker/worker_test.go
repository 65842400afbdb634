package worker

import (
	"testing"
	"time"
)

func TestUpsertThenAlive(t *testing.T) {
	tbl := NewTable(50*time.Millisecond, 3)
	tbl.Upsert("nodeA", "1.0", time.Minute, time.Second, []string{"RUN"})

	if got := tbl.Alive(); len(got) != 1 || got[0] != "nodeA" {
		t.Fatalf("expected nodeA alive, got %v", got)
	}
	r := tbl.Get("nodeA")
	if r == nil || r.Version != "1.0" {
		t.Fatalf("expected a record for nodeA with version 1.0, got %+v", r)
	}
}

func TestSweepEvictsExpiredRecords(t *testing.T) {
	tbl := NewTable(10*time.Millisecond, 1)
	tbl.Upsert("nodeA", "1.0", 0, 0, nil)

	time.Sleep(30 * time.Millisecond)
	evicted := tbl.Sweep()
	if len(evicted) != 1 || evicted[0] != "nodeA" {
		t.Fatalf("expected nodeA to be swept, got %v", evicted)
	}
	if tbl.Get("nodeA").Alive(time.Now()) {
		t.Fatalf("expected nodeA to report not alive after sweep")
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	tbl := NewTable(10*time.Millisecond, 1)
	tbl.Upsert("nodeA", "1.0", 0, 0, nil)
	time.Sleep(30 * time.Millisecond)

	first := tbl.Sweep()
	second := tbl.Sweep()
	if len(first) != 1 {
		t.Fatalf("expected first sweep to evict nodeA, got %v", first)
	}
	if len(second) != 0 {
		t.Fatalf("expected second sweep to find nothing new, got %v", second)
	}
}

func TestUpsertRevivesEvictedRecord(t *testing.T) {
	tbl := NewTable(10*time.Millisecond, 1)
	tbl.Upsert("nodeA", "1.0", 0, 0, nil)
	time.Sleep(30 * time.Millisecond)
	tbl.Sweep()

	tbl.Upsert("nodeA", "1.1", 0, 0, nil)
	if !tbl.Get("nodeA").Alive(time.Now()) {
		t.Fatalf("expected a fresh heartbeat to revive the record")
	}
}

func TestAllIncludesEvictedRecords(t *testing.T) {
	tbl := NewTable(10*time.Millisecond, 1)
	tbl.Upsert("nodeA", "1.0", 0, 0, nil)
	time.Sleep(30 * time.Millisecond)
	tbl.Sweep()

	all := tbl.All()
	if len(all) != 1 || all[0].Identity != "nodeA" {
		t.Fatalf("expected evicted records to still show up in All(), got %v", all)
	}
}

func TestPurgeRemovesEverything(t *testing.T) {
	tbl := NewTable(time.Minute, 3)
	tbl.Upsert("nodeA", "1.0", 0, 0, nil)
	tbl.Upsert("nodeB", "1.0", 0, 0, nil)

	tbl.Purge()
	if len(tbl.All()) != 0 {
		t.Fatalf("expected no records after purge")
	}
}

func TestNewTableAppliesDefaults(t *testing.T) {
	tbl := NewTable(0, 0)
	if tbl.interval != DefaultHeartbeatInterval || tbl.liveness != DefaultHeartbeatLiveness {
		t.Fatalf("expected defaults to be applied, got interval=%v liveness=%d", tbl.interval, tbl.liveness)
	}
}
