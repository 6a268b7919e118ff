package policy

import (
	"context"
	"testing"
	"time"

	"github.com/agentwarden-ecology/orchestrator/internal/domain"
)

func mustNewCELEvaluator(t *testing.T) *CELEvaluator {
	t.Helper()
	eval, err := NewCELEvaluator(nil)
	if err != nil {
		t.Fatalf("NewCELEvaluator: %v", err)
	}
	return eval
}

func baseJob() domain.EcologicalJobSpec {
	return domain.EcologicalJobSpec{
		ActorID:       "actor-1",
		RequestedTier: domain.Tier2,
		ExpectedFlops: 100,
		MaxDuration:   time.Hour,
		Purpose:       "benchmark",
	}
}

func TestRuleEngine_DefaultDecision(t *testing.T) {
	eng := NewRuleEngine(mustNewCELEvaluator(t), nil, nil)

	d, err := eng.Evaluate(context.Background(), baseJob(), domain.ActorProfile{ActorID: "actor-1"})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d.RiskScore != defaultRiskScore {
		t.Errorf("risk score = %v, want %v", d.RiskScore, defaultRiskScore)
	}
	if d.RequiresHumanApproval {
		t.Error("requires_human_approval should be false for a plain job")
	}
	if len(d.AllowedTiers) != 3 {
		t.Errorf("allowed_tiers = %v, want all 3 tiers", d.AllowedTiers)
	}
}

func TestRuleEngine_GeoengineeringFloor(t *testing.T) {
	eng := NewRuleEngine(mustNewCELEvaluator(t), nil, nil)

	job := baseJob()
	job.DomainTags = []string{"geoengineering"}

	d, err := eng.Evaluate(context.Background(), job, domain.ActorProfile{})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d.RiskScore < geoengineeringFloor {
		t.Errorf("risk score = %v, want >= %v", d.RiskScore, geoengineeringFloor)
	}
	if !d.RequiresHumanApproval {
		t.Error("geoengineering job must require human approval")
	}
}

func TestRuleEngine_CriticalInfrastructureFloorIsMaxed(t *testing.T) {
	eng := NewRuleEngine(mustNewCELEvaluator(t), nil, nil)

	job := baseJob()
	job.DomainTags = []string{"geoengineering", "critical_infrastructure"}

	d, err := eng.Evaluate(context.Background(), job, domain.ActorProfile{})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	// critical_infrastructure's 0.8 floor must not lower the
	// already-higher geoengineering floor of 0.9.
	if d.RiskScore < geoengineeringFloor {
		t.Errorf("risk score = %v, want >= %v (geoengineering floor preserved)", d.RiskScore, geoengineeringFloor)
	}
}

func TestRuleEngine_ConfigurableRuleNarrowsTiers(t *testing.T) {
	evaluator := mustNewCELEvaluator(t)
	loader := NewLoader(evaluator, nil)

	rules, err := loader.LoadFromConfig([]RuleDefinition{
		{
			Name:          "low-clearance-tier-cap",
			Condition:     `actor.clearance_level < 5`,
			NarrowToTiers: []string{"Tier1"},
			Note:          "low clearance actors are capped to Tier1",
		},
	})
	if err != nil {
		t.Fatalf("LoadFromConfig: %v", err)
	}

	eng := NewRuleEngine(evaluator, rules, nil)

	job := baseJob()
	d, err := eng.Evaluate(context.Background(), job, domain.ActorProfile{ClearanceLevel: 1})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(d.AllowedTiers) != 1 || d.AllowedTiers[0] != domain.Tier1 {
		t.Errorf("allowed_tiers = %v, want [Tier1]", d.AllowedTiers)
	}
}

func TestRuleEngine_ConfigurableRuleCannotLowerMandatoryFloor(t *testing.T) {
	evaluator := mustNewCELEvaluator(t)
	loader := NewLoader(evaluator, nil)

	// A rule that matches this job (purpose "benchmark") with a risk
	// floor of 0.2 fires, but the mandatory geoengineering floor must
	// still win.
	rules, err := loader.LoadFromConfig([]RuleDefinition{
		{Name: "noop", Condition: `job.purpose == "benchmark"`, RiskFloor: 0.2},
	})
	if err != nil {
		t.Fatalf("LoadFromConfig: %v", err)
	}

	eng := NewRuleEngine(evaluator, rules, nil)

	job := baseJob()
	job.DomainTags = []string{"geoengineering"}

	d, err := eng.Evaluate(context.Background(), job, domain.ActorProfile{})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d.RiskScore < geoengineeringFloor {
		t.Errorf("risk score = %v, want >= %v", d.RiskScore, geoengineeringFloor)
	}
}

func TestRuleEngine_ReloadRules(t *testing.T) {
	evaluator := mustNewCELEvaluator(t)
	eng := NewRuleEngine(evaluator, nil, nil)

	loader := NewLoader(evaluator, nil)
	rules, err := loader.LoadFromConfig([]RuleDefinition{
		{Name: "deny-all-tiers-above-1", Condition: `true`, NarrowToTiers: []string{"Tier1"}},
	})
	if err != nil {
		t.Fatalf("LoadFromConfig: %v", err)
	}
	eng.ReloadRules(rules)

	d, err := eng.Evaluate(context.Background(), baseJob(), domain.ActorProfile{})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(d.AllowedTiers) != 1 {
		t.Errorf("allowed_tiers = %v, want reloaded rule to narrow to 1 tier", d.AllowedTiers)
	}
}
