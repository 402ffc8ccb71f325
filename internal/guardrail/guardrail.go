// Package guardrail models the persistent guardrail store: a human-auditable
// append-only markdown document of ## Guardrail: blocks, each carrying an
// embedded fingerprint marker used for deduplication.
package guardrail

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

const blockHeader = "## Guardrail:"

// fingerprintLen is the number of hex digits kept from the SHA-256 digest.
// The marker format <!-- dojo-fp: ... --> is part of the store wire format.
const fingerprintLen = 12

var (
	wsRe     = regexp.MustCompile(`\s+`)
	fpRe     = regexp.MustCompile(`<!-- dojo-fp: ([0-9a-f]+) -->`)
	nameRe   = regexp.MustCompile(`(?m)^## Guardrail:\s*(.+)$`)
	patchRe  = regexp.MustCompile(`(?m)^## Patch for (.+)$`)
	unsafeRe = regexp.MustCompile(`[^a-zA-Z0-9_\-]`)
)

// Normalize collapses whitespace runs and case-folds a guardrail block so
// cosmetic rewording does not defeat fingerprint comparison, while
// substantively different rules still fingerprint differently.
func Normalize(text string) string {
	return wsRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(text)), " ")
}

// Fingerprint returns the short stable fingerprint of a normalized block.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(Normalize(text)))
	return hex.EncodeToString(sum[:])[:fingerprintLen]
}

// SplitBlocks splits a candidate patch into independent ## Guardrail: blocks.
// A patch may contain several guardrails; each is deduplicated on its own.
// Text preceding the first header stays attached to no block and is dropped
// only if empty; otherwise it forms a headerless leading block.
func SplitBlocks(patch string) []string {
	lines := strings.Split(patch, "\n")
	var blocks []string
	var cur []string
	flush := func() {
		if b := strings.TrimSpace(strings.Join(cur, "\n")); b != "" {
			blocks = append(blocks, b)
		}
		cur = cur[:0]
	}
	for _, line := range lines {
		if strings.HasPrefix(line, blockHeader) {
			flush()
		}
		cur = append(cur, line)
	}
	flush()
	return blocks
}

// Fingerprints extracts every fingerprint marker already present in a store
// document.
func Fingerprints(content string) map[string]bool {
	out := make(map[string]bool)
	for _, m := range fpRe.FindAllStringSubmatch(content, -1) {
		out[m[1]] = true
	}
	return out
}

// Names extracts the case-folded guardrail names present in a store document.
func Names(content string) map[string]bool {
	out := make(map[string]bool)
	for _, m := range nameRe.FindAllStringSubmatch(content, -1) {
		out[strings.ToLower(strings.TrimSpace(m[1]))] = true
	}
	return out
}

// PatchedQuestIDs extracts the quest IDs already framed by a patch record in
// a store document.
func PatchedQuestIDs(content string) map[string]bool {
	out := make(map[string]bool)
	for _, m := range patchRe.FindAllStringSubmatch(content, -1) {
		out[strings.TrimSpace(m[1])] = true
	}
	return out
}

// blockName returns the trimmed, case-folded name of a block, or "" when the
// block has no guardrail header.
func blockName(block string) string {
	if m := nameRe.FindStringSubmatch(block); m != nil {
		return strings.ToLower(strings.TrimSpace(m[1]))
	}
	return ""
}

// SanitizeQuestID restricts a quest ID to filename-safe characters and caps
// its length, for use in store frames and patch-record filenames.
func SanitizeQuestID(id string) string {
	s := unsafeRe.ReplaceAllString(id, "_")
	if len(s) > 64 {
		s = s[:64]
	}
	return s
}
