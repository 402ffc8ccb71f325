package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dshills/agentdojo/internal/questfile"
)

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [dir]",
		Short: "Validate every quest file in a challenges directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := filepath.Join(baseDir, "challenges")
			if len(args) > 0 {
				dir = args[0]
			}
			fmt.Printf("Validating challenges in %s...\n", dir)
			checked, errs := questfile.ValidateAll(dir)
			for _, err := range errs {
				fmt.Printf("❌ %v\n", err)
			}
			if len(errs) > 0 {
				return fmt.Errorf("%d of %d quest file(s) invalid", len(errs), checked)
			}
			fmt.Printf("All %d challenge(s) validated successfully.\n", checked)
			return nil
		},
	}
}
