package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/agentdojo/internal/reflection"
)

func protocolCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "protocol",
		Short: "Print the reflection protocol for integrators",
		Long: `Protocol prints the full reflection contract: the system prompt a
handler should inject into its LLM call and the request and response
schemas. The harness never calls an LLM directly; reflection is the
agent's job, and this is the contract it implements.`,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("\n=== agentdojo Reflection Protocol ===")
			fmt.Println("\nSYSTEM PROMPT (inject into your agent's LLM call):")
			fmt.Println(strings.Repeat("-", 40))
			fmt.Println(reflection.SystemPrompt)
			fmt.Println("\nREQUEST SCHEMA:")
			fmt.Println(reflection.RequestSchema)
			fmt.Println("\nRESPONSE SCHEMA:")
			fmt.Println(reflection.ResponseSchema)
			fmt.Println(strings.Repeat("=", 40))
		},
	}
}
