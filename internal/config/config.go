package config

import (
	"time"
)

// Config is the top-level orchestrator configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Stability StabilityConfig `yaml:"stability"`
	Storage   StorageConfig   `yaml:"storage"`
	Policy    PolicyConfig    `yaml:"policy"`
	Zones     []ZoneBinding   `yaml:"zones"`
	Identity  IdentityConfig  `yaml:"identity"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type ServerConfig struct {
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"log_level"`
	FailMode string `yaml:"fail_mode"` // "closed" = deny on upstream error, "open" = allow
}

// StabilityConfig carries the fabric's thermal and renewable floors.
// ThrottleDelay is parsed but not passed to stability.Guard, whose
// recommended throttle delay is fixed at 15 minutes.
type StabilityConfig struct {
	MaxThermalPct   float64       `yaml:"max_thermal_pct"`
	MinRenewablePct float64       `yaml:"min_renewable_pct"`
	ThrottleDelay   time.Duration `yaml:"throttle_delay"`
}

// StorageConfig selects and configures the quota and audit backends.
// Quota and audit are configured independently so one can run on
// SQLite while the other stays in memory, e.g. in tests.
type StorageConfig struct {
	QuotaDriver string `yaml:"quota_driver"` // "memory" | "sqlite"
	QuotaPath   string `yaml:"quota_path"`
	AuditDriver string `yaml:"audit_driver"` // "memory" | "sqlite"
	AuditPath   string `yaml:"audit_path"`
}

// PolicyConfig points at the hot-reloaded CEL rule file.
type PolicyConfig struct {
	RulesFile string `yaml:"rules_file"`
}

// ZoneBinding is one row of the role-to-segment table consumed by
// zone.StaticResolver.
type ZoneBinding struct {
	Role       string `yaml:"role"`
	SegmentID  string `yaml:"segment_id"`
	TrustLevel uint8  `yaml:"trust_level"`
}

// IdentityConfig points at the static token table consumed by
// identity.StaticResolver.
type IdentityConfig struct {
	TokensFile       string `yaml:"tokens_file"`
	DefaultSegmentID string `yaml:"default_segment_id"`
}

// TelemetryConfig selects and configures the stability telemetry
// source. The websocket driver dials a single endpoint from Endpoints
// (an arbitrary one when several are set) and reads every segment's
// load from that one feed; the map keys are not used for routing.
type TelemetryConfig struct {
	Driver    string            `yaml:"driver"`    // "static" | "websocket"
	Endpoints map[string]string `yaml:"endpoints"` // segment id -> ws:// URL
}

// DefaultConfig returns a config suitable for zero-config startup: an
// in-memory store, static telemetry, and conservative stability
// floors.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:     8080,
			LogLevel: "info",
			FailMode: "closed",
		},
		Stability: StabilityConfig{
			MaxThermalPct:   20,
			MinRenewablePct: 50,
			ThrottleDelay:   15 * time.Minute,
		},
		Storage: StorageConfig{
			QuotaDriver: "memory",
			AuditDriver: "memory",
			QuotaPath:   "./orchestrator-quota.db",
			AuditPath:   "./orchestrator-audit.db",
		},
		Policy: PolicyConfig{
			RulesFile: "./policies/rules.yaml",
		},
		Identity: IdentityConfig{
			TokensFile:       "./identity/tokens.yaml",
			DefaultSegmentID: "segment_general",
		},
		Telemetry: TelemetryConfig{
			Driver:    "static",
			Endpoints: map[string]string{},
		},
	}
}
