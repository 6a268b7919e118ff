package stability

import (
	"context"
	"testing"

	"github.com/agentwarden-ecology/orchestrator/internal/domain"
)

func TestGuard_ThermalThrottleTakesPriority(t *testing.T) {
	telemetry := NewStaticTelemetry()
	telemetry.SetLoad("segment-1", domain.SegmentLoad{
		ThermalMarginPct:  5,
		RenewableSharePct: 2, // also below floor, but thermal wins
	})
	guard := NewGuard(telemetry, 10, 50)

	d, err := guard.Check(context.Background(), "segment-1", 100, 10, domain.Tier2)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if d.Verdict != domain.StabilityThrottle {
		t.Errorf("verdict = %v, want %v", d.Verdict, domain.StabilityThrottle)
	}
}

func TestGuard_ThermalMarginEqualToFloorIsNotThrottled(t *testing.T) {
	telemetry := NewStaticTelemetry()
	telemetry.SetLoad("segment-1", domain.SegmentLoad{ThermalMarginPct: 10, RenewableSharePct: 80})
	guard := NewGuard(telemetry, 10, 50)

	d, err := guard.Check(context.Background(), "segment-1", 100, 10, domain.Tier2)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if d.Verdict != domain.StabilityOk {
		t.Errorf("verdict = %v, want %v (thermal margin equal to the floor must not throttle)", d.Verdict, domain.StabilityOk)
	}
}

func TestGuard_RenewableDowngrade(t *testing.T) {
	telemetry := NewStaticTelemetry()
	telemetry.SetLoad("segment-1", domain.SegmentLoad{ThermalMarginPct: 50, RenewableSharePct: 5})
	guard := NewGuard(telemetry, 10, 50)

	d, err := guard.Check(context.Background(), "segment-1", 100, 10, domain.Tier3)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if d.Verdict != domain.StabilityDowngrade || d.DowngradedTier != domain.Tier2 {
		t.Errorf("decision = %+v, want downgrade to Tier2", d)
	}
}

func TestGuard_RenewableDenyAtLowestTier(t *testing.T) {
	telemetry := NewStaticTelemetry()
	telemetry.SetLoad("segment-1", domain.SegmentLoad{ThermalMarginPct: 50, RenewableSharePct: 5})
	guard := NewGuard(telemetry, 10, 50)

	d, err := guard.Check(context.Background(), "segment-1", 100, 10, domain.Tier1)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if d.Verdict != domain.StabilityDeny {
		t.Errorf("verdict = %v, want %v", d.Verdict, domain.StabilityDeny)
	}
}

func TestGuard_Ok(t *testing.T) {
	telemetry := NewStaticTelemetry()
	telemetry.SetLoad("segment-1", domain.SegmentLoad{ThermalMarginPct: 50, RenewableSharePct: 80})
	guard := NewGuard(telemetry, 10, 50)

	d, err := guard.Check(context.Background(), "segment-1", 100, 10, domain.Tier2)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if d.Verdict != domain.StabilityOk {
		t.Errorf("verdict = %v, want %v", d.Verdict, domain.StabilityOk)
	}
}
