package guardrail

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
)

// DefaultHeader is written when a store file is created from scratch.
const DefaultHeader = "# Agent SOUL (Guardrails)\n\n"

// Store is the file-backed guardrail document. It is a single-writer
// append-only store; the design assumes one runner process per file.
type Store struct {
	Path string
}

// Content returns the store text, or "" when the file does not exist yet.
func (s *Store) Content() string {
	b, err := os.ReadFile(s.Path)
	if err != nil {
		return ""
	}
	return string(b)
}

// Bootstrap creates the store with the default header when absent, and
// otherwise runs the idempotent legacy fingerprint seeding pass so stores
// that predate deduplication gain full protection.
func (s *Store) Bootstrap() error {
	if _, err := os.Stat(s.Path); os.IsNotExist(err) {
		if err := os.WriteFile(s.Path, []byte(DefaultHeader), 0o644); err != nil {
			return fmt.Errorf("guardrail: create store: %w", err)
		}
		return nil
	}
	return s.SeedFingerprints()
}

// SeedFingerprints rewrites the store with fingerprint markers added to any
// legacy guardrail blocks. Safe to call repeatedly.
func (s *Store) SeedFingerprints() error {
	content := s.Content()
	if content == "" {
		return nil
	}
	seeded, n := Seed(content)
	if n == 0 {
		return nil
	}
	if err := os.WriteFile(s.Path, []byte(seeded), 0o644); err != nil {
		return fmt.Errorf("guardrail: seed store: %w", err)
	}
	log.Info().Int("blocks", n).Msg("dedup: seeded legacy guardrails with fingerprints")
	return nil
}

// AppendPatch appends a framed patch for questID. filtered must already have
// passed FilterNew; questID must already be sanitized.
func (s *Store) AppendPatch(questID, filtered string) error {
	f, err := os.OpenFile(s.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("guardrail: open store: %w", err)
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, "\n## Patch for %s\n%s\n", questID, filtered); err != nil {
		return fmt.Errorf("guardrail: append patch: %w", err)
	}
	return nil
}
