package outcome

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	contractx "github.com/haasonsaas/adept/agent/contract"
)

func newQuiet() *Monitor {
	return New(WithLogger(zerolog.Nop()))
}

func TestRecordOutcomeAggregates(t *testing.T) {
	t.Parallel()

	m := newQuiet()
	m.RecordOutcome("tracker.get_issue", "tracker", true, 100*time.Millisecond, nil)
	m.RecordOutcome("tracker.get_issue", "tracker", true, 50*time.Millisecond, nil)
	m.RecordOutcome("tracker.get_issue", "tracker", false, 10*time.Millisecond, errors.New("boom"))

	stats, ok := m.ToolSnapshot("tracker.get_issue")
	if !ok {
		t.Fatal("missing snapshot")
	}
	if stats.Successes != 2 || stats.Failures != 1 {
		t.Fatalf("counts = %d/%d", stats.Successes, stats.Failures)
	}
	if stats.TotalDuration != 160*time.Millisecond {
		t.Fatalf("duration = %v", stats.TotalDuration)
	}
	if stats.LastError != "boom" {
		t.Fatalf("last error = %q", stats.LastError)
	}
	if stats.ErrorKinds["error"] != 1 {
		t.Fatalf("error kinds = %v", stats.ErrorKinds)
	}
}

func TestRecordHandoffCounters(t *testing.T) {
	t.Parallel()

	m := newQuiet()
	m.RecordHandoff(contractx.HandoffReport{Parsed: true, Status: contractx.StatusDone})
	m.RecordHandoff(contractx.HandoffReport{Parsed: true, Repaired: true, Status: contractx.StatusBlocked})
	m.RecordHandoff(contractx.HandoffReport{Fallback: true, Status: contractx.StatusBlocked})

	snap := m.HandoffSnapshot()
	if snap.Parsed != 2 || snap.Repaired != 1 || snap.Fallback != 1 {
		t.Fatalf("counters = %+v", snap)
	}
	if snap.ByStatus[contractx.StatusBlocked] != 2 {
		t.Fatalf("blocked count = %d", snap.ByStatus[contractx.StatusBlocked])
	}
}

func TestMonitorConcurrentRecords(t *testing.T) {
	t.Parallel()

	m := newQuiet()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RecordOutcome("kb.search", "kb", true, time.Millisecond, nil)
		}()
	}
	wg.Wait()

	stats, _ := m.ToolSnapshot("kb.search")
	if stats.Successes != 20 {
		t.Fatalf("successes = %d", stats.Successes)
	}
}
