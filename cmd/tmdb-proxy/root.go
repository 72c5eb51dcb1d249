package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand(env *environment) *cobra.Command {
	var envFile string

	ctx := newCommandContext(env, &envFile)

	rootCmd := &cobra.Command{
		Use:           "tmdb-proxy",
		Short:         "Cache TMDb popular movies locally and serve the cache",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	rootCmd.AddCommand(newPagesCommand(ctx))
	rootCmd.AddCommand(newDetailsCommand(ctx))
	rootCmd.AddCommand(newAllCommand(ctx))
	rootCmd.AddCommand(newServeCommand(ctx))

	return rootCmd
}
