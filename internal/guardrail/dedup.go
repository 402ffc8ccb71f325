package guardrail

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// FilterResult reports the outcome of a dedup pass over one candidate patch.
type FilterResult struct {
	Filtered string // surviving blocks, each with its fingerprint marker, joined
	Kept     int
	Skipped  int
}

// FilterNew applies three-layer deduplication to a candidate patch against
// the current store content. questID must already be sanitized.
//
// Layer 1: one accepted patch per quest. If the store already holds a patch
// frame for this quest, every block of the candidate is discarded regardless
// of phrasing; the same failure must never produce two stacking rules.
// Layer 2: any block whose fingerprint exists in the store (from any quest)
// is discarded.
// Layer 3: any block whose guardrail name exists in the store, or was kept
// earlier in this same candidate, is discarded — this catches same-concept
// rules the source reworded under a new name.
func FilterNew(patch, storeContent, questID string) FilterResult {
	blocks := SplitBlocks(patch)
	if len(blocks) == 0 {
		if b := strings.TrimSpace(patch); b != "" {
			blocks = []string{b}
		}
	}

	if questID != "" {
		if PatchedQuestIDs(storeContent)[questID] {
			count := len(blocks)
			if count == 0 {
				count = 1
			}
			log.Info().
				Str("quest", questID).
				Int("blocks", count).
				Msg("dedup: quest already patched, skipping all blocks (delete the store to reset guardrails)")
			return FilterResult{Skipped: count}
		}
	}

	existingFPs := Fingerprints(storeContent)
	existingNames := Names(storeContent)

	var kept []string
	skipped := 0

	for _, block := range blocks {
		fp := Fingerprint(block)
		if existingFPs[fp] {
			skipped++
			log.Info().
				Str("fp", fp).
				Str("block", firstLine(block)).
				Msg("dedup: skipping duplicate guardrail")
			continue
		}

		if name := blockName(block); name != "" {
			if existingNames[name] {
				skipped++
				log.Info().
					Str("name", name).
					Msg("dedup: skipping same-name guardrail, already in store")
				continue
			}
			existingNames[name] = true
		}

		kept = append(kept, fmt.Sprintf("%s\n<!-- dojo-fp: %s -->", block, fp))
	}

	return FilterResult{
		Filtered: strings.Join(kept, "\n\n"),
		Kept:     len(kept),
		Skipped:  skipped,
	}
}

// Seed retrofits fingerprint markers onto guardrail blocks written before
// deduplication existed. Returns the rewritten content and the number of
// blocks seeded. Idempotent: already-marked blocks are left untouched, so a
// second pass seeds zero.
func Seed(content string) (string, int) {
	lines := strings.Split(content, "\n")
	var parts []string
	var cur []string
	inBlock := false
	seeded := 0

	flush := func() {
		if len(cur) == 0 {
			return
		}
		part := strings.Join(cur, "\n")
		if inBlock && !strings.Contains(part, "<!-- dojo-fp:") {
			trimmed := strings.TrimRight(part, " \t\n")
			part = trimmed + "\n<!-- dojo-fp: " + Fingerprint(trimmed) + " -->"
			seeded++
		}
		parts = append(parts, part)
		cur = cur[:0]
	}

	for _, line := range lines {
		if strings.HasPrefix(line, blockHeader) {
			flush()
			inBlock = true
		}
		cur = append(cur, line)
	}
	flush()

	return strings.Join(parts, "\n"), seeded
}

func firstLine(s string) string {
	if s == "" {
		return ""
	}
	if len(s) > 60 {
		s = s[:60]
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}
