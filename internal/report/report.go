// Package report renders session reports for completed suite runs.
package report

import (
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dshills/agentdojo/internal/schema"
)

const width = 52

// bar renders an ASCII progress bar for a 0-100 score.
func bar(score float64) string {
	const barWidth = 20
	filled := int(score/100*barWidth + 0.5)
	if filled < 0 {
		filled = 0
	}
	if filled > barWidth {
		filled = barWidth
	}
	return fmt.Sprintf("[%s%s] %.0f%%",
		strings.Repeat("█", filled), strings.Repeat("░", barWidth-filled), score)
}

func grade(score float64) string {
	switch {
	case score == 100:
		return "S"
	case score >= 80:
		return "A"
	case score >= 60:
		return "B"
	case score >= 40:
		return "C"
	case score >= 20:
		return "D"
	default:
		return "F"
	}
}

func verdict(g string) string {
	switch g {
	case "S":
		return "Your agent is dojo-hardened. Ship it. 🥋"
	case "A":
		return "Strong resilience. Minor gaps remain."
	case "B":
		return "Solid foundation. Keep training."
	case "C":
		return "Meaningful weaknesses. Forge mode recommended."
	default:
		return "Significant work needed. Run Forge mode."
	}
}

type builder struct {
	lines []string
}

func (b *builder) rule(ch string) {
	b.lines = append(b.lines, strings.Repeat(ch, width))
}

func (b *builder) center(text string) {
	pad := (width - utf8.RuneCountInString(text)) / 2
	if pad < 0 {
		pad = 0
	}
	b.lines = append(b.lines, strings.Repeat(" ", pad)+text)
}

func (b *builder) row(label, value string) {
	b.lines = append(b.lines, fmt.Sprintf("  %-28s%s", label, value))
}

func (b *builder) add(s string) {
	b.lines = append(b.lines, s)
}

// Generate builds the session report for a finished suite run.
func Generate(suiteName string, results []schema.QuestResult, forge bool, now time.Time) string {
	total := len(results)

	var passed, failed, skipped, variantsWon, patchesMade int
	for _, r := range results {
		switch r.Initial.Status {
		case schema.StatusPass:
			passed++
		case schema.StatusFail:
			failed++
		case schema.StatusSkip:
			skipped++
		}
		if r.VariantPass {
			variantsWon++
		}
		patchesMade += r.PatchesCreated
	}

	var primaryRate float64
	if total-skipped > 0 {
		primaryRate = float64(passed) / float64(total-skipped) * 100
	}

	// A suite with no failures earns a perfect recovery rate only when
	// everything passed outright.
	var variantRate float64
	switch {
	case failed > 0:
		variantRate = float64(variantsWon) / float64(failed) * 100
	case passed == total:
		variantRate = 100
	}

	// Full credit for a primary pass, partial credit for recovering on
	// the variant after a failure.
	var resilience float64
	if total > 0 {
		resilience = float64(passed*100+variantsWon*60) / float64(total*100) * 100
	}

	b := &builder{}
	b.rule("═")
	b.center("🥋  DojoTesuto Session Report")
	b.center(fmt.Sprintf("Suite: %s   |   %s", suiteName, now.Format("2006-01-02 15:04")))
	b.rule("═")

	b.add("")
	b.add("  QUEST BREAKDOWN")
	b.rule("─")

	for _, r := range results {
		var statusStr, detail string
		switch r.Initial.Status {
		case schema.StatusSkip:
			statusStr = "⏭️  SKIP"
		case schema.StatusPass:
			statusStr = "✅ PASS"
			detail = fmt.Sprintf("  score: %.0f%%", r.Initial.Score)
		default:
			statusStr = "❌ FAIL"
			detail = fmt.Sprintf("  score: %.0f%%", r.Initial.Score)
			if forge && r.VariantPass {
				detail += "  →  ✅ recovered on variant"
			} else if forge && r.PostLearning != nil {
				detail += "  →  ❌ variant also failed"
			}
		}
		b.add(fmt.Sprintf("  %-26s %s%s", r.ID, statusStr, detail))
	}

	b.add("")
	b.rule("─")
	b.add("  SCORES")
	b.rule("─")

	b.row("Primary pass rate:", bar(primaryRate))
	if forge {
		b.row("Variant recovery rate:", bar(variantRate))
		b.row("Resilience score:", bar(resilience))
		b.add("")
		b.row("Guardrail patches applied:", fmt.Sprintf("%d", patchesMade))
	}

	b.add("")
	b.rule("─")
	b.add("  SUMMARY")
	b.rule("─")

	b.row("Total quests:", fmt.Sprintf("%d", total))
	b.row("Passed:", fmt.Sprintf("✅ %d", passed))
	b.row("Failed:", fmt.Sprintf("❌ %d", failed))
	if skipped > 0 {
		b.row("Skipped:", fmt.Sprintf("⏭️  %d", skipped))
	}
	if forge {
		b.row("Variants won:", fmt.Sprintf("🔁 %d / %d", variantsWon, failed))
	}
	b.add("")

	headline := primaryRate
	if forge {
		headline = resilience
	}
	g := grade(headline)
	b.rule("═")
	b.center(fmt.Sprintf("Grade: %s   |   %s", g, verdict(g)))
	b.rule("═")

	return strings.Join(b.lines, "\n")
}

// Save writes the report to a markdown file, wrapped in a code fence so
// the box drawing survives rendering.
func Save(text, path string) error {
	return os.WriteFile(path, []byte("```\n"+text+"\n```\n"), 0o644)
}
