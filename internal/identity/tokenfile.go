package identity

import (
	"fmt"
	"os"
	"time"

	"github.com/agentwarden-ecology/orchestrator/internal/domain"
	"gopkg.in/yaml.v3"
)

// tokenFileRow is the on-disk shape of one token table row.
type tokenFileRow struct {
	Token                   string   `yaml:"token"`
	ActorID                 string   `yaml:"actor_id"`
	Roles                   []string `yaml:"roles"`
	ClearanceLevel          uint8    `yaml:"clearance_level"`
	EcologicalPriorityScore float64  `yaml:"ecological_priority_score"`
	ExpiresAt               string   `yaml:"expires_at,omitempty"` // RFC3339; empty means never expires
}

// LoadEntriesFromFile reads a YAML token table from path and converts
// it into Entry values suitable for NewStaticResolver or Put.
func LoadEntriesFromFile(path string) ([]Entry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("identity: read token file %s: %w", path, err)
	}

	var rows []tokenFileRow
	if err := yaml.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("identity: parse token file %s: %w", path, err)
	}

	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		var expiresAt time.Time
		if row.ExpiresAt != "" {
			expiresAt, err = time.Parse(time.RFC3339, row.ExpiresAt)
			if err != nil {
				return nil, fmt.Errorf("identity: token %q has invalid expires_at %q: %w", row.Token, row.ExpiresAt, err)
			}
		}
		entries = append(entries, Entry{
			Token: row.Token,
			Profile: domain.ActorProfile{
				ActorID:                 domain.ActorID(row.ActorID),
				Roles:                   row.Roles,
				ClearanceLevel:          row.ClearanceLevel,
				EcologicalPriorityScore: row.EcologicalPriorityScore,
			},
			ExpiresAt: expiresAt,
		})
	}
	return entries, nil
}
