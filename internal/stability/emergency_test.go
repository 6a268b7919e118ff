package stability

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/agentwarden-ecology/orchestrator/internal/domain"
)

func TestEmergencyStop_GlobalTrigger(t *testing.T) {
	e := NewEmergencyStop("", nil)

	halted, _ := e.IsHalted("segment_a")
	if halted {
		t.Fatal("expected not halted initially")
	}

	e.TriggerGlobal("runaway demand spike", "operator")

	halted, msg := e.IsHalted("segment_a")
	if !halted {
		t.Fatal("expected halted after global trigger")
	}
	if msg != "fabric-wide emergency stop active" {
		t.Errorf("message = %q", msg)
	}

	halted, _ = e.IsHalted("segment_b")
	if !halted {
		t.Fatal("expected every segment halted after global trigger")
	}
}

func TestEmergencyStop_GlobalReset(t *testing.T) {
	e := NewEmergencyStop("", nil)
	e.TriggerGlobal("test", "cli")

	if halted, _ := e.IsHalted("segment_a"); !halted {
		t.Fatal("expected halted")
	}

	e.ResetGlobal()

	if halted, _ := e.IsHalted("segment_a"); halted {
		t.Fatal("expected not halted after reset")
	}
}

func TestEmergencyStop_SegmentTrigger(t *testing.T) {
	e := NewEmergencyStop("", nil)

	e.TriggerSegment("segment_a", "cooling failure", "operator")

	halted, msg := e.IsHalted("segment_a")
	if !halted {
		t.Fatal("expected segment_a halted")
	}
	if msg == "" {
		t.Fatal("expected non-empty message")
	}

	if halted, _ := e.IsHalted("segment_b"); halted {
		t.Fatal("expected segment_b not halted")
	}
}

func TestEmergencyStop_SegmentReset(t *testing.T) {
	e := NewEmergencyStop("", nil)
	e.TriggerSegment("segment_a", "test", "cli")

	e.ResetSegment("segment_a")

	if halted, _ := e.IsHalted("segment_a"); halted {
		t.Fatal("expected not halted after segment reset")
	}
}

func TestEmergencyStop_PriorityOrder(t *testing.T) {
	e := NewEmergencyStop("", nil)

	e.TriggerSegment("segment_a", "segment reason", "cli")

	halted, msg := e.IsHalted("segment_a")
	if !halted {
		t.Fatal("expected halted")
	}
	if msg != "segment emergency stop active: segment reason" {
		t.Errorf("expected segment-level message, got %q", msg)
	}

	e.TriggerGlobal("global reason", "operator")

	halted, msg = e.IsHalted("segment_a")
	if !halted {
		t.Fatal("expected halted")
	}
	if msg != "fabric-wide emergency stop active" {
		t.Errorf("expected global message, got %q", msg)
	}
}

func TestEmergencyStop_History(t *testing.T) {
	e := NewEmergencyStop("", nil)

	e.TriggerSegment("segment_a", "reason1", "cli")
	e.TriggerGlobal("reason2", "operator")

	history := e.History()
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if history[0].Scope != HaltSegment {
		t.Errorf("history[0].Scope = %q, want %q", history[0].Scope, HaltSegment)
	}
	if history[1].Scope != HaltGlobal {
		t.Errorf("history[1].Scope = %q, want %q", history[1].Scope, HaltGlobal)
	}
}

func TestEmergencyStop_Status(t *testing.T) {
	e := NewEmergencyStop("", nil)

	status := e.Status()
	if status["global_halted"].(bool) {
		t.Error("expected global_halted=false")
	}
	if status["history_count"].(int) != 0 {
		t.Error("expected history_count=0")
	}

	e.TriggerGlobal("test", "operator")
	e.TriggerSegment("segment_a", "test", "cli")

	status = e.Status()
	if !status["global_halted"].(bool) {
		t.Error("expected global_halted=true")
	}
	if status["history_count"].(int) != 2 {
		t.Errorf("history_count = %v, want 2", status["history_count"])
	}
	segments := status["segment_halts"].(map[domain.SegmentID]HaltRecord)
	if _, ok := segments["segment_a"]; !ok {
		t.Error("expected segment_a in segment_halts")
	}
}

func TestEmergencyStop_FileHalt(t *testing.T) {
	tmpDir := t.TempDir()
	haltFile := filepath.Join(tmpDir, "HALT")

	e := NewEmergencyStop(haltFile, nil)

	e.CheckFileHalt()
	if halted, _ := e.IsHalted("segment_a"); halted {
		t.Fatal("expected not halted without HALT file")
	}

	if err := os.WriteFile(haltFile, []byte("STOP"), 0644); err != nil {
		t.Fatal(err)
	}

	e.CheckFileHalt()
	if halted, _ := e.IsHalted("segment_a"); !halted {
		t.Fatal("expected halted after HALT file created")
	}

	historyBefore := len(e.History())
	e.CheckFileHalt()
	if historyAfter := len(e.History()); historyAfter != historyBefore {
		t.Errorf("duplicate history entry created: before=%d, after=%d", historyBefore, historyAfter)
	}
}
