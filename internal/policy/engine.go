// Package policy evaluates an EcologicalJobSpec into a PolicyDecision:
// a risk score, the subset of tiers the job may run at, and whether the
// job should be flagged for human review. Evaluation is a pure function
// of its inputs — no I/O, no mutation of the job spec.
package policy

import (
	"context"
	"log/slog"
	"sync"

	"github.com/agentwarden-ecology/orchestrator/internal/domain"
)

// Engine evaluates jobs against a fixed set of mandatory rules followed
// by an ordered list of configurable CEL rules.
type Engine interface {
	Evaluate(ctx context.Context, job domain.EcologicalJobSpec, actor domain.ActorProfile) (domain.PolicyDecision, error)
}

const (
	geoengineeringTag      = "geoengineering"
	criticalInfrastructure = "critical_infrastructure"
	geoengineeringFloor    = 0.9
	criticalInfraFloor     = 0.8
	defaultRiskScore       = 0.1
)

// JobFacts is the flattened view of a job and its actor that
// configurable CEL rules evaluate against. Facts are recomputed fresh
// for every Evaluate call.
type JobFacts struct {
	RequestedTier           domain.CapabilityTier
	ExpectedFlops           float64
	MaxDurationSeconds      float64
	Purpose                 string
	DomainTags              []string
	ActorRoles              []string
	ActorClearanceLevel     uint8
	ActorEcologicalPriority float64
}

func factsFromJob(job domain.EcologicalJobSpec, actor domain.ActorProfile) JobFacts {
	return JobFacts{
		RequestedTier:           job.RequestedTier,
		ExpectedFlops:           job.ExpectedFlops,
		MaxDurationSeconds:      job.MaxDuration.Seconds(),
		Purpose:                 job.Purpose,
		DomainTags:              job.DomainTags,
		ActorRoles:              actor.Roles,
		ActorClearanceLevel:     actor.ClearanceLevel,
		ActorEcologicalPriority: actor.EcologicalPriorityScore,
	}
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

func intersectTiers(allowed []domain.CapabilityTier, keep map[domain.CapabilityTier]bool) []domain.CapabilityTier {
	out := make([]domain.CapabilityTier, 0, len(allowed))
	for _, t := range allowed {
		if keep[t] {
			out = append(out, t)
		}
	}
	return out
}

// RuleEngine is the bundled Engine: it applies the mandatory
// geoengineering/critical-infrastructure floors first, then narrows the
// result through any configured CEL rules. Safe for concurrent use;
// ReloadRules swaps the CEL rule set atomically.
type RuleEngine struct {
	evaluator *CELEvaluator

	mu    sync.RWMutex
	rules []CompiledRule

	logger *slog.Logger
}

// NewRuleEngine creates a RuleEngine with the given compiled CEL rules.
func NewRuleEngine(evaluator *CELEvaluator, rules []CompiledRule, logger *slog.Logger) *RuleEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &RuleEngine{
		evaluator: evaluator,
		rules:     rules,
		logger:    logger.With("component", "policy.RuleEngine"),
	}
}

// ReloadRules atomically swaps the configurable CEL rule set.
func (e *RuleEngine) ReloadRules(rules []CompiledRule) {
	e.mu.Lock()
	e.rules = rules
	e.mu.Unlock()
	e.logger.Info("policy rules reloaded", "count", len(rules))
}

// Evaluate implements Engine.
func (e *RuleEngine) Evaluate(ctx context.Context, job domain.EcologicalJobSpec, actor domain.ActorProfile) (domain.PolicyDecision, error) {
	decision := domain.PolicyDecision{
		RiskScore:    defaultRiskScore,
		AllowedTiers: domain.AllTiers(),
	}

	if hasTag(job.DomainTags, geoengineeringTag) {
		decision.RiskScore = geoengineeringFloor
		decision.RequiresHumanApproval = true
		decision.Notes = append(decision.Notes, "geoengineering scenario: enforce HITL & multi-party approval")
	}

	if hasTag(job.DomainTags, criticalInfrastructure) {
		if decision.RiskScore < criticalInfraFloor {
			decision.RiskScore = criticalInfraFloor
		}
		decision.RequiresHumanApproval = true
		decision.Notes = append(decision.Notes, "critical infrastructure modeling: enforce HITL")
	}

	mandatoryFloor := decision.RiskScore

	facts := factsFromJob(job, actor)

	e.mu.RLock()
	rules := e.rules
	e.mu.RUnlock()

	for _, rule := range rules {
		matched, err := e.evaluator.Evaluate(rule, facts)
		if err != nil {
			e.logger.Warn("CEL rule evaluation failed, skipping", "rule", rule.Expression, "error", err)
			continue
		}
		if !matched {
			continue
		}
		if rule.RiskFloor > decision.RiskScore {
			decision.RiskScore = rule.RiskFloor
		}
		if rule.RequireApproval {
			decision.RequiresHumanApproval = true
		}
		if len(rule.NarrowToTiers) > 0 {
			keep := make(map[domain.CapabilityTier]bool, len(rule.NarrowToTiers))
			for _, t := range rule.NarrowToTiers {
				keep[t] = true
			}
			decision.AllowedTiers = intersectTiers(decision.AllowedTiers, keep)
		}
		if rule.Note != "" {
			decision.Notes = append(decision.Notes, rule.Note)
		}
	}

	// Configurable rules may only raise risk, never lower it below the
	// mandatory floor set above.
	if decision.RiskScore < mandatoryFloor {
		decision.RiskScore = mandatoryFloor
	}
	if len(decision.AllowedTiers) == 0 {
		e.logger.Warn("configurable rules narrowed allowed_tiers to empty set, reverting to full tier set")
		decision.AllowedTiers = domain.AllTiers()
	}

	return decision, nil
}
