package policy

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/agentwarden-ecology/orchestrator/internal/domain"
)

// RuleDefinition is the on-disk shape of one configurable policy rule:
// a CEL condition plus the reaction to apply when it matches.
type RuleDefinition struct {
	Name            string   `yaml:"name"`
	Condition       string   `yaml:"condition"`
	RiskFloor       float64  `yaml:"risk_floor"`
	RequireApproval bool     `yaml:"require_approval"`
	NarrowToTiers   []string `yaml:"narrow_to_tiers"`
	Note            string   `yaml:"note"`
}

// Loader compiles RuleDefinitions into CompiledRules and optionally
// watches the rules file for hot-reload notifications.
type Loader struct {
	celEval *CELEvaluator
	logger  *slog.Logger

	mu        sync.Mutex
	watcher   *fsnotify.Watcher
	watchDone chan struct{}
}

// NewLoader creates a policy Loader.
func NewLoader(celEval *CELEvaluator, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		celEval: celEval,
		logger:  logger.With("component", "policy.Loader"),
	}
}

func parseTier(s string) (domain.CapabilityTier, error) {
	switch s {
	case "Tier1":
		return domain.Tier1, nil
	case "Tier2":
		return domain.Tier2, nil
	case "Tier3":
		return domain.Tier3, nil
	default:
		return 0, fmt.Errorf("unknown tier %q", s)
	}
}

// LoadFromConfig compiles an ordered slice of RuleDefinition into
// CompiledRule objects. A rule that fails to compile is logged and
// skipped rather than failing the entire load, so one bad rule cannot
// prevent the engine from starting.
func (l *Loader) LoadFromConfig(defs []RuleDefinition) ([]CompiledRule, error) {
	rules := make([]CompiledRule, 0, len(defs))

	for i, def := range defs {
		compiled, err := l.celEval.CompileExpression(def.Condition)
		if err != nil {
			l.logger.Error("skipping rule with invalid CEL expression",
				"rule_name", def.Name, "index", i, "error", err)
			continue
		}

		compiled.RiskFloor = def.RiskFloor
		compiled.RequireApproval = def.RequireApproval
		compiled.Note = def.Note

		if len(def.NarrowToTiers) > 0 {
			tiers := make([]domain.CapabilityTier, 0, len(def.NarrowToTiers))
			for _, ts := range def.NarrowToTiers {
				t, err := parseTier(ts)
				if err != nil {
					l.logger.Error("skipping invalid tier in rule", "rule_name", def.Name, "error", err)
					continue
				}
				tiers = append(tiers, t)
			}
			compiled.NarrowToTiers = tiers
		}

		rules = append(rules, compiled)
		l.logger.Info("loaded policy rule", "name", def.Name)
	}

	l.logger.Info("policy rule loading complete", "total", len(defs), "loaded", len(rules))
	return rules, nil
}

// LoadFromFile reads a YAML rules file at path, parses it into
// RuleDefinitions, and compiles them via LoadFromConfig.
func (l *Loader) LoadFromFile(path string) ([]CompiledRule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("policy: read rules file %s: %w", path, err)
	}

	var defs []RuleDefinition
	if err := yaml.Unmarshal(raw, &defs); err != nil {
		return nil, fmt.Errorf("policy: parse rules file %s: %w", path, err)
	}

	return l.LoadFromConfig(defs)
}

// WatchConfig starts an fsnotify watcher on the given rules file. When
// the file is modified, onReload is invoked with its absolute path.
// Call StopWatch to clean up.
func (l *Loader) WatchConfig(rulesPath string, onReload func(path string)) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.watcher != nil {
		l.stopWatchLocked()
	}

	absPath, err := filepath.Abs(rulesPath)
	if err != nil {
		return fmt.Errorf("failed to resolve rules path: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	// Watch the directory rather than the file to catch editor
	// rename-and-replace patterns (e.g. vim, nano).
	dir := filepath.Dir(absPath)
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}

	l.watcher = w
	l.watchDone = make(chan struct{})

	go l.watchLoop(absPath, onReload)

	l.logger.Info("watching policy rules file for changes", "path", absPath)
	return nil
}

func (l *Loader) watchLoop(targetPath string, onReload func(string)) {
	defer close(l.watchDone)

	for {
		select {
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			absEvent, _ := filepath.Abs(event.Name)
			if absEvent != targetPath {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				l.logger.Info("policy rules file changed, triggering reload", "path", targetPath)
				onReload(targetPath)
			}

		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.logger.Error("fsnotify error", "error", err)
		}
	}
}

// StopWatch stops the rules file watcher, if running.
func (l *Loader) StopWatch() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopWatchLocked()
}

func (l *Loader) stopWatchLocked() {
	if l.watcher != nil {
		_ = l.watcher.Close()
		if l.watchDone != nil {
			<-l.watchDone
		}
		l.watcher = nil
		l.watchDone = nil
	}
}
