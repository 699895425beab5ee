package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	outputFmt string
	principal string
	role      string
	token     string
)

var rootCmd = &cobra.Command{
	Use:   "herbtrace",
	Short: "CLI for herb provenance tracking",
	Long: `herbtrace validates harvest locations, generates provenance identifiers and
drives the herbtrace API.

The geo and id commands work offline. The collections and health commands
need a reachable server; identify yourself with --user/--role (header auth)
or --token (JWT auth).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return checkOutputFormat()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOrDefault("HERBTRACE_SERVER", "http://localhost:8080"), "herbtrace server URL")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table", "Output format: table, wide, json, yaml")
	rootCmd.PersistentFlags().StringVar(&principal, "user", os.Getenv("HERBTRACE_USER"), "Actor ID sent as X-User-Principal")
	rootCmd.PersistentFlags().StringVar(&role, "role", os.Getenv("HERBTRACE_ROLE"), "Actor role sent as X-User-Role")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("HERBTRACE_TOKEN"), "Bearer token for JWT auth")

	rootCmd.AddCommand(geoCmd)
	rootCmd.AddCommand(idCmd)
	rootCmd.AddCommand(collectionsCmd)
	rootCmd.AddCommand(healthCmd)
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
