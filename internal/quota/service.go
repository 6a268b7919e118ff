package quota

import (
	"context"
	"log/slog"

	"github.com/agentwarden-ecology/orchestrator/internal/apierr"
	"github.com/agentwarden-ecology/orchestrator/internal/domain"
)

// Service checks a job against an actor's allowance and, if it fits,
// reserves the resources against the backing Store.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a Service backed by store.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		logger: logger.With("component", "quota.Service"),
	}
}

// CheckAndReserve verifies the job's requested tier and its FLOPs,
// energy, and carbon cost all fit within the actor's remaining
// allowance for window, in that order, and atomically reserves them if
// so. Each precondition fails with its own apierr.Kind.
func (s *Service) CheckAndReserve(ctx context.Context, actor domain.ActorID, window domain.UsageWindowID, job domain.EcologicalJobSpec, expectedEnergyKWh, expectedCarbonKg float64) (domain.ReservationID, error) {
	allowance, err := s.store.GetAllowance(ctx, actor, window)
	if err != nil {
		return "", apierr.Wrap(apierr.QuotaStoreUnavailable, "failed to load allowance", err)
	}
	usage, err := s.store.GetUsage(ctx, actor, window)
	if err != nil {
		return "", apierr.Wrap(apierr.QuotaStoreUnavailable, "failed to load usage", err)
	}

	if !job.RequestedTier.AtMost(allowance.MaxTier) {
		return "", apierr.New(apierr.TierExceeded, "requested tier exceeds allowance's max tier")
	}

	if usage.FlopsUsed+job.ExpectedFlops > allowance.MaxFlops {
		return "", apierr.New(apierr.FlopsExceeded, "projected FLOPs usage exceeds allowance")
	}
	if usage.EnergyKWhUsed+expectedEnergyKWh > allowance.MaxEnergyKWh {
		return "", apierr.New(apierr.EnergyExceeded, "projected energy usage exceeds allowance")
	}
	if usage.CarbonKgEmitted+expectedCarbonKg > allowance.MaxCarbonKg {
		return "", apierr.New(apierr.CarbonExceeded, "projected carbon usage exceeds allowance")
	}

	rid, err := s.store.ReserveQuota(ctx, actor, window, allowance, job.ExpectedFlops, expectedEnergyKWh, expectedCarbonKg)
	if err != nil {
		return "", apierr.Wrap(apierr.QuotaStoreUnavailable, "reservation failed", err)
	}

	s.logger.Debug("quota reserved",
		"actor_id", actor, "window_id", window, "reservation_id", rid,
		"flops", job.ExpectedFlops, "energy_kwh", expectedEnergyKWh, "carbon_kg", expectedCarbonKg)

	return rid, nil
}
