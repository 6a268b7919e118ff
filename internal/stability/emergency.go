package stability

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/agentwarden-ecology/orchestrator/internal/domain"
)

// HaltScope determines what an emergency stop affects.
type HaltScope string

const (
	HaltGlobal  HaltScope = "global"  // every segment, fabric-wide
	HaltSegment HaltScope = "segment" // one segment only
)

// HaltRecord logs who/what triggered a halt and when.
type HaltRecord struct {
	Scope     HaltScope        `json:"scope"`
	SegmentID domain.SegmentID `json:"segment_id,omitempty"`
	Reason    string           `json:"reason"`
	Source    string           `json:"source"` // operator, cli, file
	Timestamp time.Time        `json:"timestamp"`
}

// EmergencyStop is a fabric-wide or per-segment admission halt that
// bypasses policy evaluation entirely. It is checked before any policy
// rule runs, so a halt can never be worked around by a misconfigured or
// stale rule set.
type EmergencyStop struct {
	mu sync.RWMutex

	globalHalted bool
	segmentHalts map[domain.SegmentID]HaltRecord
	history      []HaltRecord

	fileWatchPath string

	logger *slog.Logger
}

// NewEmergencyStop creates an EmergencyStop. fileWatchPath, if set, is
// checked by CheckFileHalt for a HALT sentinel file.
func NewEmergencyStop(fileWatchPath string, logger *slog.Logger) *EmergencyStop {
	if logger == nil {
		logger = slog.Default()
	}
	return &EmergencyStop{
		segmentHalts:  make(map[domain.SegmentID]HaltRecord),
		fileWatchPath: fileWatchPath,
		logger:        logger.With("component", "stability.EmergencyStop"),
	}
}

// NewDefaultEmergencyStop creates an EmergencyStop that watches the
// default sentinel path under the user's home directory.
func NewDefaultEmergencyStop(logger *slog.Logger) *EmergencyStop {
	homeDir, _ := os.UserHomeDir()
	return NewEmergencyStop(filepath.Join(homeDir, ".orchestrator", "HALT"), logger)
}

// IsHalted checks whether admission for segment should be blocked. This
// runs on the hot path, ahead of policy evaluation.
func (e *EmergencyStop) IsHalted(segment domain.SegmentID) (bool, string) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.globalHalted {
		return true, "fabric-wide emergency stop active"
	}
	if record, ok := e.segmentHalts[segment]; ok {
		return true, fmt.Sprintf("segment emergency stop active: %s", record.Reason)
	}
	return false, ""
}

// TriggerGlobal halts admission across every segment.
func (e *EmergencyStop) TriggerGlobal(reason, source string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.globalHalted = true
	record := HaltRecord{Scope: HaltGlobal, Reason: reason, Source: source, Timestamp: time.Now()}
	e.history = append(e.history, record)

	e.logger.Error("fabric-wide emergency stop triggered", "reason", reason, "source", source)
}

// TriggerSegment halts admission for a single segment.
func (e *EmergencyStop) TriggerSegment(segment domain.SegmentID, reason, source string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	record := HaltRecord{Scope: HaltSegment, SegmentID: segment, Reason: reason, Source: source, Timestamp: time.Now()}
	e.segmentHalts[segment] = record
	e.history = append(e.history, record)

	e.logger.Error("segment emergency stop triggered", "segment_id", segment, "reason", reason, "source", source)
}

// ResetGlobal lifts the fabric-wide halt.
func (e *EmergencyStop) ResetGlobal() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.globalHalted = false
	e.logger.Info("fabric-wide emergency stop lifted")
}

// ResetSegment lifts the halt on a single segment.
func (e *EmergencyStop) ResetSegment(segment domain.SegmentID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.segmentHalts, segment)
	e.logger.Info("segment emergency stop lifted", "segment_id", segment)
}

// Status returns a snapshot of the current halt state.
func (e *EmergencyStop) Status() map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()

	segmentHalts := make(map[domain.SegmentID]HaltRecord, len(e.segmentHalts))
	for k, v := range e.segmentHalts {
		segmentHalts[k] = v
	}

	return map[string]any{
		"global_halted": e.globalHalted,
		"segment_halts": segmentHalts,
		"history_count": len(e.history),
	}
}

// History returns every halt triggered so far, in trigger order, for
// audit purposes. Resets are not recorded.
func (e *EmergencyStop) History() []HaltRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]HaltRecord, len(e.history))
	copy(out, e.history)
	return out
}

// CheckFileHalt checks for a sentinel HALT file and triggers the
// fabric-wide stop if found. Call periodically from a background loop.
func (e *EmergencyStop) CheckFileHalt() {
	if e.fileWatchPath == "" {
		return
	}
	if _, err := os.Stat(e.fileWatchPath); err == nil {
		e.mu.RLock()
		already := e.globalHalted
		e.mu.RUnlock()

		if !already {
			e.TriggerGlobal("HALT sentinel file detected", "file")
		}
	}
}
