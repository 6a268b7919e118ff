package policy

import (
	"fmt"
	"log/slog"

	"github.com/google/cel-go/cel"

	"github.com/agentwarden-ecology/orchestrator/internal/domain"
)

// CompiledRule wraps a pre-compiled CEL AST plus the reaction a match
// triggers. RiskFloor, RequireApproval, and NarrowToTiers come straight
// from the rule's configuration — the CEL expression only decides
// whether the rule fires.
type CompiledRule struct {
	Expression      string
	RiskFloor       float64
	RequireApproval bool
	NarrowToTiers   []domain.CapabilityTier
	Note            string

	ast     *cel.Ast
	program cel.Program
}

// CELEvaluator compiles and evaluates CEL expressions against JobFacts
// values. Expressions are compiled once at load time; evaluation is
// lock-free and safe for concurrent use.
type CELEvaluator struct {
	env    *cel.Env
	logger *slog.Logger
}

// NewCELEvaluator creates a CELEvaluator with the variable declarations
// available to admission-control policy rules.
func NewCELEvaluator(logger *slog.Logger) (*CELEvaluator, error) {
	if logger == nil {
		logger = slog.Default()
	}

	env, err := cel.NewEnv(
		cel.Variable("job.requested_tier", cel.IntType),
		cel.Variable("job.expected_flops", cel.DoubleType),
		cel.Variable("job.max_duration_seconds", cel.DoubleType),
		cel.Variable("job.purpose", cel.StringType),
		cel.Variable("job.domain_tags", cel.ListType(cel.StringType)),

		cel.Variable("actor.roles", cel.ListType(cel.StringType)),
		cel.Variable("actor.clearance_level", cel.IntType),
		cel.Variable("actor.ecological_priority_score", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &CELEvaluator{
		env:    env,
		logger: logger.With("component", "policy.CELEvaluator"),
	}, nil
}

// CompileExpression parses and type-checks expr, returning a
// CompiledRule whose reaction fields the caller must still populate.
// This should be called at load time, not in the hot path.
func (c *CELEvaluator) CompileExpression(expr string) (CompiledRule, error) {
	ast, issues := c.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return CompiledRule{}, fmt.Errorf("CEL compile error in %q: %w", expr, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return CompiledRule{}, fmt.Errorf("CEL expression %q must evaluate to bool, got %s", expr, ast.OutputType())
	}

	prg, err := c.env.Program(ast)
	if err != nil {
		return CompiledRule{}, fmt.Errorf("CEL program creation failed for %q: %w", expr, err)
	}

	c.logger.Debug("compiled CEL expression", "expression", expr)

	return CompiledRule{
		Expression: expr,
		ast:        ast,
		program:    prg,
	}, nil
}

// Evaluate runs a pre-compiled CEL rule against facts. Returns true if
// the condition matches (i.e. the rule should apply its reaction).
func (c *CELEvaluator) Evaluate(rule CompiledRule, facts JobFacts) (bool, error) {
	tags := facts.DomainTags
	if tags == nil {
		tags = []string{}
	}
	roles := facts.ActorRoles
	if roles == nil {
		roles = []string{}
	}

	vars := map[string]interface{}{
		"job.requested_tier":      int64(facts.RequestedTier),
		"job.expected_flops":      facts.ExpectedFlops,
		"job.max_duration_seconds": facts.MaxDurationSeconds,
		"job.purpose":             facts.Purpose,
		"job.domain_tags":         tags,

		"actor.roles":                     roles,
		"actor.clearance_level":           int64(facts.ActorClearanceLevel),
		"actor.ecological_priority_score": facts.ActorEcologicalPriority,
	}

	out, _, err := rule.program.Eval(vars)
	if err != nil {
		return false, fmt.Errorf("CEL evaluation error for %q: %w", rule.Expression, err)
	}

	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression %q returned non-bool: %T", rule.Expression, out.Value())
	}

	return result, nil
}
