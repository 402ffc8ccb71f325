package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/agentdojo/internal/forge"
	"github.com/dshills/agentdojo/internal/provider"
	"github.com/dshills/agentdojo/internal/runner"
)

func runCmd() *cobra.Command {
	var (
		nonInteractive  bool
		forgeMode       bool
		saveReport      bool
		providerName    string
		reflectProvider string
		model           string
		maxReflections  int
		reflectTimeout  time.Duration
		maxSuiteTime    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run [suite]",
		Short: "Run a quest suite against an agent",
		Long: `Run executes every quest in the named suite (default: core).

Without --provider, ask steps read answers from stdin; with
--noninteractive and no provider, ask quests are skipped. With --forge,
failed quests trigger reflection, guardrail patching, and a variant
attempt to confirm the patch generalizes.

Available providers: openai, anthropic, google, mock
Aliases:             manus -> openai | claude -> anthropic | gemini -> google`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			suite := "core"
			if len(args) > 0 {
				suite = args[0]
			}
			if model != "" {
				os.Setenv("DOJO_MODEL", model)
			}

			budget := forge.NewBudget()
			if maxReflections > 0 {
				budget.MaxReflections = maxReflections
			}
			if reflectTimeout > 0 {
				budget.MaxReflectionSeconds = reflectTimeout
			}
			if maxSuiteTime > 0 {
				budget.MaxSuiteSeconds = maxSuiteTime
			}

			r, err := runner.New(baseDir, runner.Options{
				NonInteractive: nonInteractive,
				Forge:          forgeMode,
				Budget:         budget,
			})
			if err != nil {
				return err
			}

			if providerName != "" || os.Getenv("DOJO_ANSWER_PROVIDER") != "" {
				h, err := provider.NewAnswerHandler(providerName)
				if err != nil {
					return err
				}
				r.RegisterAnswerHandler(h)
			}
			if forgeMode {
				name := reflectProvider
				if name == "" {
					name = providerName
				}
				if name != "" || os.Getenv("DOJO_REFLECT_PROVIDER") != "" || os.Getenv("DOJO_ANSWER_PROVIDER") != "" {
					h, err := provider.NewReflectionHandler(name)
					if err != nil {
						return err
					}
					r.RegisterReflectionHandler(h)
				}
			}

			_, err = r.RunSuite(suite, saveReport)
			return err
		},
	}

	cmd.Flags().BoolVar(&nonInteractive, "noninteractive", false, "skip quests that require interactive answers")
	cmd.Flags().BoolVar(&forgeMode, "forge", false, "enable forge mode (reflection + patching)")
	cmd.Flags().BoolVar(&saveReport, "save-report", false, "save the session report to reports/")
	cmd.Flags().StringVarP(&providerName, "provider", "p", "", "answer+reflect provider (default: $DOJO_ANSWER_PROVIDER)")
	cmd.Flags().StringVar(&reflectProvider, "reflect-provider", "", "override the reflect provider separately")
	cmd.Flags().StringVarP(&model, "model", "m", "", "model override (sets $DOJO_MODEL)")
	cmd.Flags().IntVar(&maxReflections, "max-reflections", 0, "max reflection calls per suite (default 10)")
	cmd.Flags().DurationVar(&reflectTimeout, "reflection-timeout", 0, "per-reflection time limit (default 60s)")
	cmd.Flags().DurationVar(&maxSuiteTime, "max-suite-time", 0, "suite wall-clock limit for forge mode (default 30m)")

	return cmd
}
