package config

import (
	"fmt"
	"os"
	"regexp"
	"sync"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR} and ${VAR:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// Loader owns a Config loaded from a YAML file on disk and supports
// reloading it in place, e.g. on an fsnotify write event.
type Loader struct {
	mu       sync.RWMutex
	cfg      *Config
	filePath string
}

// NewLoader returns a Loader pre-populated with DefaultConfig. Get
// works before any Load call; FilePath stays empty until one succeeds.
func NewLoader() *Loader {
	return &Loader{cfg: DefaultConfig()}
}

// Load reads, env-substitutes, and parses the YAML file at path,
// replacing the loader's current config on success. The loader's
// prior config is left untouched if Load fails.
func (l *Loader) Load(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	substituted := substituteEnvVars(string(raw))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(substituted), cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	l.mu.Lock()
	l.cfg = cfg
	l.filePath = path
	l.mu.Unlock()
	return nil
}

// Reload re-reads the file passed to the last successful Load. It
// errors if no file has ever been loaded.
func (l *Loader) Reload() error {
	l.mu.RLock()
	path := l.filePath
	l.mu.RUnlock()

	if path == "" {
		return fmt.Errorf("config: Reload called before Load")
	}
	return l.Load(path)
}

// Get returns the currently loaded config.
func (l *Loader) Get() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}

// FilePath returns the path passed to the last successful Load, or
// empty if none has succeeded yet.
func (l *Loader) FilePath() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.filePath
}

// substituteEnvVars expands ${VAR} and ${VAR:-default} references.
// An unset VAR with no default expands to the empty string.
func substituteEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		name, def := groups[1], groups[3]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return def
	})
}

// GenerateDefault writes DefaultConfig to path as YAML. It is a
// package-level function, not a Loader method, since generating a
// starter file has nothing to do with any particular loader instance.
func GenerateDefault(path string) error {
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("config: marshal default: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}
