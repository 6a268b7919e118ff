package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/agentwarden-ecology/orchestrator/internal/domain"
)

func TestLoader_LoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")

	content := `
- name: low-clearance-tier1-only
  condition: "actor.clearance_level < 3"
  narrow_to_tiers: ["Tier1"]
  note: "low clearance restricted to tier1"
- name: bad-expression
  condition: "this is not valid cel("
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	celEval := mustNewCELEvaluator(t)
	loader := NewLoader(celEval, nil)

	rules, err := loader.LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("len(rules) = %d, want 1 (the invalid rule must be skipped, not fail the load)", len(rules))
	}
	if len(rules[0].NarrowToTiers) != 1 || rules[0].NarrowToTiers[0] != domain.Tier1 {
		t.Errorf("rules[0].NarrowToTiers = %v, want [Tier1]", rules[0].NarrowToTiers)
	}
}

func TestLoader_LoadFromFile_MissingFile(t *testing.T) {
	celEval := mustNewCELEvaluator(t)
	loader := NewLoader(celEval, nil)
	if _, err := loader.LoadFromFile("/nonexistent/rules.yaml"); err == nil {
		t.Error("expected an error for a missing rules file")
	}
}
