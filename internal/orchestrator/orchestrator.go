// Package orchestrator composes identity resolution, policy
// evaluation, quota reservation, and stability checking into a single
// admission-control pipeline that produces a JobExecutionPlan.
package orchestrator

import (
	"context"
	"log/slog"

	"github.com/agentwarden-ecology/orchestrator/internal/apierr"
	"github.com/agentwarden-ecology/orchestrator/internal/audit"
	"github.com/agentwarden-ecology/orchestrator/internal/domain"
	"github.com/agentwarden-ecology/orchestrator/internal/identity"
	"github.com/agentwarden-ecology/orchestrator/internal/policy"
	"github.com/agentwarden-ecology/orchestrator/internal/quota"
	"github.com/agentwarden-ecology/orchestrator/internal/stability"
	"github.com/agentwarden-ecology/orchestrator/internal/zone"
)

// Orchestrator holds only immutable references to its collaborators
// after construction; it carries no mutable state of its own, so a
// single instance safely serves many concurrent PlanJob calls.
type Orchestrator struct {
	identityResolver identity.Resolver
	zoneResolver     zone.Resolver
	policyEngine     policy.Engine
	quotaService     *quota.Service
	stabilityGuard   *stability.Guard
	emergencyStop    *stability.EmergencyStop
	auditLogger      *audit.Logger
	logger           *slog.Logger
}

// New creates an Orchestrator wired to its collaborators. emergencyStop
// may be nil, in which case no halt is ever in effect.
func New(
	identityResolver identity.Resolver,
	zoneResolver zone.Resolver,
	policyEngine policy.Engine,
	quotaService *quota.Service,
	stabilityGuard *stability.Guard,
	emergencyStop *stability.EmergencyStop,
	auditLogger *audit.Logger,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		identityResolver: identityResolver,
		zoneResolver:     zoneResolver,
		policyEngine:     policyEngine,
		quotaService:     quotaService,
		stabilityGuard:   stabilityGuard,
		emergencyStop:    emergencyStop,
		auditLogger:      auditLogger,
		logger:           logger.With("component", "orchestrator.Orchestrator"),
	}
}

// PlanJob runs the admission pipeline: identify the actor and its
// zone, evaluate policy, reserve quota, and check grid stability. Any
// stage failure aborts the request; no audit event is emitted for a
// reservation that never succeeded. job is never mutated; any tier
// downgrade is applied to a local copy. Whether a failure to record an
// audit event itself aborts the request is governed by the audit
// Logger's fail mode (see audit.Logger).
func (o *Orchestrator) PlanJob(ctx context.Context, sessionToken string, window domain.UsageWindowID, job domain.EcologicalJobSpec, expectedEnergyKWh, expectedCarbonKg float64) (domain.JobExecutionPlan, error) {
	job = job.Clone()

	if err := o.auditLogger.Append(ctx, domain.AuditEvent{
		Type:     domain.EventJobRequested,
		WindowID: window,
		Metadata: map[string]any{
			"purpose":     job.Purpose,
			"domain_tags": job.DomainTags,
		},
	}); err != nil {
		return domain.JobExecutionPlan{}, err
	}

	actor, err := o.identityResolver.Resolve(ctx, sessionToken)
	if err != nil {
		return domain.JobExecutionPlan{}, err
	}

	zoneRes, err := o.zoneResolver.Resolve(ctx, actor)
	if err != nil {
		return domain.JobExecutionPlan{}, err
	}

	if o.emergencyStop != nil {
		if halted, reason := o.emergencyStop.IsHalted(zoneRes.SegmentID); halted {
			return domain.JobExecutionPlan{}, apierr.New(apierr.ZoneUnavailable, reason)
		}
	}

	decision, err := o.policyEngine.Evaluate(ctx, job, actor)
	if err != nil {
		return domain.JobExecutionPlan{}, err
	}

	if err := o.auditLogger.Append(ctx, domain.AuditEvent{
		Type:      domain.EventPolicyEvaluated,
		ActorID:   actor.ActorID,
		SegmentID: zoneRes.SegmentID,
		WindowID:  window,
		Metadata: map[string]any{
			"risk_score":              decision.RiskScore,
			"requires_human_approval": decision.RequiresHumanApproval,
			"notes":                   decision.Notes,
		},
	}); err != nil {
		return domain.JobExecutionPlan{}, err
	}

	if !decision.AllowsTier(job.RequestedTier) {
		return domain.JobExecutionPlan{}, apierr.New(apierr.TierForbidden, "requested tier not in policy's allowed set")
	}

	reservationID, err := o.quotaService.CheckAndReserve(ctx, actor.ActorID, window, job, expectedEnergyKWh, expectedCarbonKg)
	if err != nil {
		return domain.JobExecutionPlan{}, err
	}

	if err := o.auditLogger.Append(ctx, domain.AuditEvent{
		Type:          domain.EventQuotaReserved,
		ReservationID: reservationID,
		ActorID:       actor.ActorID,
		SegmentID:     zoneRes.SegmentID,
		WindowID:      window,
	}); err != nil {
		return domain.JobExecutionPlan{}, err
	}

	stabilityDecision, err := o.stabilityGuard.Check(ctx, zoneRes.SegmentID, job.ExpectedFlops, expectedEnergyKWh, job.RequestedTier)
	if err != nil {
		return domain.JobExecutionPlan{}, err
	}

	finalTier := job.RequestedTier
	if stabilityDecision.Verdict == domain.StabilityDowngrade {
		finalTier = stabilityDecision.DowngradedTier
	}

	if err := o.auditLogger.Append(ctx, domain.AuditEvent{
		Type:          domain.EventStabilityChecked,
		ReservationID: reservationID,
		ActorID:       actor.ActorID,
		SegmentID:     zoneRes.SegmentID,
		WindowID:      window,
		Metadata: map[string]any{
			"verdict": stabilityDecision.Verdict,
			"reason":  stabilityDecision.Reason,
		},
	}); err != nil {
		return domain.JobExecutionPlan{}, err
	}

	return domain.JobExecutionPlan{
		ReservationID:     reservationID,
		ApprovedSegment:   zoneRes.SegmentID,
		ApprovedTier:      finalTier,
		StabilityDecision: stabilityDecision,
	}, nil
}
