// Command orchestrator runs the admission-control planning pipeline as
// a local process: serve reads newline-delimited plan requests from
// stdin, plan runs a single one-shot request, and init scaffolds a
// starter config directory.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentwarden-ecology/orchestrator/internal/apierr"
	"github.com/agentwarden-ecology/orchestrator/internal/audit"
	"github.com/agentwarden-ecology/orchestrator/internal/config"
	"github.com/agentwarden-ecology/orchestrator/internal/domain"
	"github.com/agentwarden-ecology/orchestrator/internal/identity"
	"github.com/agentwarden-ecology/orchestrator/internal/orchestrator"
	"github.com/agentwarden-ecology/orchestrator/internal/policy"
	"github.com/agentwarden-ecology/orchestrator/internal/quota"
	"github.com/agentwarden-ecology/orchestrator/internal/stability"
	"github.com/agentwarden-ecology/orchestrator/internal/zone"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	var configFile string

	rootCmd := &cobra.Command{
		Use:   "orchestrator",
		Short: "Admission-control planning service for an ecologically constrained compute fabric",
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to config file (default: orchestrator.yaml)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the planning pipeline, reading newline-delimited plan requests from stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configFile)
		},
	}

	var inputFile string
	planCmd := &cobra.Command{
		Use:   "plan",
		Short: "Run a single admission check against the configured collaborators",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(configFile, inputFile)
		},
	}
	planCmd.Flags().StringVarP(&inputFile, "input", "i", "", "Path to a JSON plan request (default: stdin)")

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Generate a starter config and supporting directory structure",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit()
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("orchestrator %s (%s)\n", version, commit)
		},
	}

	rootCmd.AddCommand(serveCmd, planCmd, initCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// planRequest is the wire shape of one admission request, read as a
// single JSON value (plan) or one per line (serve).
type planRequest struct {
	SessionToken string `json:"session_token"`
	Window       string `json:"window"`
	Job          struct {
		RequestedTier string   `json:"requested_tier"`
		ExpectedFlops float64  `json:"expected_flops"`
		MaxDuration   string   `json:"max_duration"`
		Purpose       string   `json:"purpose"`
		DomainTags    []string `json:"domain_tags"`
		SegmentHint   string   `json:"segment_hint"`
	} `json:"job"`
	ExpectedEnergyKWh float64 `json:"expected_energy_kwh"`
	ExpectedCarbonKg  float64 `json:"expected_carbon_kg"`
}

// planResponse is the wire shape of one admission result.
type planResponse struct {
	ReservationID           string  `json:"reservation_id,omitempty"`
	ApprovedSegment         string  `json:"approved_segment,omitempty"`
	ApprovedTier            string  `json:"approved_tier,omitempty"`
	StabilityVerdict        string  `json:"stability_verdict,omitempty"`
	StabilityReason         string  `json:"stability_reason,omitempty"`
	RecommendedDelaySeconds float64 `json:"recommended_delay_seconds,omitempty"`
	Error                   string  `json:"error,omitempty"`
	ErrorKind               string  `json:"error_kind,omitempty"`
}

func parseTier(s string) (domain.CapabilityTier, error) {
	switch strings.ToLower(s) {
	case "tier1":
		return domain.Tier1, nil
	case "tier2":
		return domain.Tier2, nil
	case "tier3":
		return domain.Tier3, nil
	default:
		return 0, fmt.Errorf("unknown requested_tier %q", s)
	}
}

func (r planRequest) toJob() (domain.EcologicalJobSpec, error) {
	tier, err := parseTier(r.Job.RequestedTier)
	if err != nil {
		return domain.EcologicalJobSpec{}, err
	}
	var maxDuration time.Duration
	if r.Job.MaxDuration != "" {
		maxDuration, err = time.ParseDuration(r.Job.MaxDuration)
		if err != nil {
			return domain.EcologicalJobSpec{}, fmt.Errorf("invalid max_duration %q: %w", r.Job.MaxDuration, err)
		}
	}
	return domain.EcologicalJobSpec{
		SegmentHint:   domain.SegmentID(r.Job.SegmentHint),
		RequestedTier: tier,
		ExpectedFlops: r.Job.ExpectedFlops,
		MaxDuration:   maxDuration,
		Purpose:       r.Job.Purpose,
		DomainTags:    r.Job.DomainTags,
	}, nil
}

func runPlan(configFile, inputFile string) error {
	logger := newLogger(slog.LevelWarn)
	orch, cleanup, err := wireOrchestrator(configFile, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	var reader io.Reader = os.Stdin
	if inputFile != "" {
		f, err := os.Open(inputFile)
		if err != nil {
			return fmt.Errorf("failed to open input file: %w", err)
		}
		defer f.Close()
		reader = f
	}

	var req planRequest
	if err := json.NewDecoder(reader).Decode(&req); err != nil {
		return fmt.Errorf("failed to decode plan request: %w", err)
	}

	resp := evaluateRequest(context.Background(), orch, req)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

func runServe(configFile string) error {
	logger := newLogger(slog.LevelInfo)
	orch, cleanup, err := wireOrchestrator(configFile, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("orchestrator ready, reading plan requests from stdin")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	enc := json.NewEncoder(os.Stdout)
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return nil
		case line, ok := <-lines:
			if !ok {
				logger.Info("stdin closed, shutting down")
				return nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			var req planRequest
			if err := json.Unmarshal([]byte(line), &req); err != nil {
				_ = enc.Encode(planResponse{Error: err.Error(), ErrorKind: string(apierr.Internal)})
				continue
			}
			resp := evaluateRequest(ctx, orch, req)
			_ = enc.Encode(resp)
		}
	}
}

func evaluateRequest(ctx context.Context, orch *orchestrator.Orchestrator, req planRequest) planResponse {
	job, err := req.toJob()
	if err != nil {
		return planResponse{Error: err.Error(), ErrorKind: string(apierr.Internal)}
	}

	plan, err := orch.PlanJob(ctx, req.SessionToken, domain.UsageWindowID(req.Window), job, req.ExpectedEnergyKWh, req.ExpectedCarbonKg)
	if err != nil {
		return planResponse{Error: err.Error(), ErrorKind: string(apierr.KindOf(err))}
	}

	resp := planResponse{
		ReservationID:    string(plan.ReservationID),
		ApprovedSegment:  string(plan.ApprovedSegment),
		ApprovedTier:     plan.ApprovedTier.String(),
		StabilityVerdict: string(plan.StabilityDecision.Verdict),
		StabilityReason:  plan.StabilityDecision.Reason,
	}
	if plan.StabilityDecision.Verdict == domain.StabilityThrottle {
		resp.RecommendedDelaySeconds = plan.StabilityDecision.RecommendedDelay.Seconds()
	}
	return resp
}

// wireOrchestrator loads config and constructs an Orchestrator with
// every collaborator selected by config.Config's driver fields. The
// returned cleanup function closes any store/watcher resources opened
// along the way and must be called exactly once.
func wireOrchestrator(configFile string, logger *slog.Logger) (*orchestrator.Orchestrator, func(), error) {
	cfgLoader := config.NewLoader()
	if configFile == "" {
		configFile = findConfigFile()
	}
	if configFile != "" {
		if err := cfgLoader.Load(configFile); err != nil {
			return nil, nil, fmt.Errorf("failed to load config: %w", err)
		}
	}
	cfg := cfgLoader.Get()

	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	// Identity.
	var entries []identity.Entry
	if cfg.Identity.TokensFile != "" {
		var err error
		entries, err = identity.LoadEntriesFromFile(cfg.Identity.TokensFile)
		if err != nil {
			logger.Warn("no token file loaded, starting with an empty identity table", "error", err)
		}
	}
	identityResolver := identity.NewStaticResolver(entries, logger)

	// Zones.
	bindings := make([]zone.RoleBinding, 0, len(cfg.Zones))
	for _, z := range cfg.Zones {
		bindings = append(bindings, zone.RoleBinding{Role: z.Role, SegmentID: domain.SegmentID(z.SegmentID), TrustLevel: z.TrustLevel})
	}
	zoneResolver := zone.NewStaticResolver(bindings, domain.SegmentID(cfg.Identity.DefaultSegmentID), 0, logger)

	// Policy.
	celEval, err := policy.NewCELEvaluator(logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to create CEL evaluator: %w", err)
	}
	policyLoader := policy.NewLoader(celEval, logger)
	var rules []policy.CompiledRule
	if cfg.Policy.RulesFile != "" {
		rules, err = policyLoader.LoadFromFile(cfg.Policy.RulesFile)
		if err != nil {
			logger.Warn("no policy rules file loaded, running with mandatory rules only", "error", err)
		}
	}
	policyEngine := policy.NewRuleEngine(celEval, rules, logger)
	if cfg.Policy.RulesFile != "" {
		if err := policyLoader.WatchConfig(cfg.Policy.RulesFile, func(path string) {
			reloaded, err := policyLoader.LoadFromFile(path)
			if err != nil {
				logger.Error("policy rule reload failed", "error", err)
				return
			}
			policyEngine.ReloadRules(reloaded)
		}); err != nil {
			logger.Warn("failed to watch policy rules file", "error", err)
		} else {
			cleanups = append(cleanups, policyLoader.StopWatch)
		}
	}

	// Quota.
	var quotaStore quota.Store
	switch cfg.Storage.QuotaDriver {
	case "sqlite":
		store, err := quota.NewSQLiteStore(cfg.Storage.QuotaPath)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to open quota store: %w", err)
		}
		if err := store.Initialize(); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to initialize quota store: %w", err)
		}
		cleanups = append(cleanups, func() { _ = store.Close() })
		quotaStore = store
	default:
		quotaStore = quota.NewMemoryStore()
	}
	quotaService := quota.NewService(quotaStore, logger)

	// Stability.
	var telemetry stability.Telemetry
	switch cfg.Telemetry.Driver {
	case "websocket":
		endpoint := firstEndpoint(cfg.Telemetry.Endpoints)
		client := stability.NewWSTelemetryClient(endpoint, logger)
		if err := client.Start(context.Background()); err != nil {
			logger.Warn("failed to start telemetry client, falling back to static telemetry", "error", err)
			telemetry = stability.NewStaticTelemetry()
		} else {
			cleanups = append(cleanups, func() { _ = client.Close() })
			telemetry = client
		}
	default:
		telemetry = stability.NewStaticTelemetry()
	}
	guard := stability.NewGuard(telemetry, cfg.Stability.MaxThermalPct, cfg.Stability.MinRenewablePct)

	// Audit.
	var auditSink audit.Sink
	switch cfg.Storage.AuditDriver {
	case "sqlite":
		sink, err := audit.NewSQLiteStore(cfg.Storage.AuditPath, "orchestrator")
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to open audit store: %w", err)
		}
		if err := sink.Initialize(); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to initialize audit store: %w", err)
		}
		cleanups = append(cleanups, func() { _ = sink.Close() })
		auditSink = sink
	default:
		auditSink = audit.NewMemorySink()
	}
	auditLogger := audit.NewLogger(auditSink, cfg.Server.FailMode, logger)

	halt := stability.NewDefaultEmergencyStop(logger)
	haltDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				halt.CheckFileHalt()
			case <-haltDone:
				return
			}
		}
	}()
	cleanups = append(cleanups, func() { close(haltDone) })

	orch := orchestrator.New(identityResolver, zoneResolver, policyEngine, quotaService, guard, halt, auditLogger, logger)
	return orch, cleanup, nil
}

func firstEndpoint(endpoints map[string]string) string {
	for _, v := range endpoints {
		return v
	}
	return ""
}

func runInit() error {
	configPath := "orchestrator.yaml"
	if _, err := os.Stat(configPath); err == nil {
		fmt.Printf("  %s already exists (skipping)\n", configPath)
	} else {
		if err := config.GenerateDefault(configPath); err != nil {
			return err
		}
		fmt.Printf("  generated %s\n", configPath)
	}

	dirs := []string{"policies", "identity"}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0755); err != nil {
			return fmt.Errorf("failed to create %s/: %w", d, err)
		}
		fmt.Printf("  created %s/\n", d)
	}

	rulesPath := "policies/rules.yaml"
	if _, err := os.Stat(rulesPath); err != nil {
		if err := os.WriteFile(rulesPath, []byte("[]\n"), 0644); err != nil {
			return err
		}
		fmt.Printf("  created %s\n", rulesPath)
	}

	tokensPath := "identity/tokens.yaml"
	if _, err := os.Stat(tokensPath); err != nil {
		if err := os.WriteFile(tokensPath, []byte("[]\n"), 0644); err != nil {
			return err
		}
		fmt.Printf("  created %s\n", tokensPath)
	}

	fmt.Println()
	fmt.Println("  next steps:")
	fmt.Println("    edit orchestrator.yaml, identity/tokens.yaml, policies/rules.yaml")
	fmt.Println("    orchestrator serve")
	return nil
}

func findConfigFile() string {
	candidates := []string{"orchestrator.yaml", "orchestrator.yml"}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
