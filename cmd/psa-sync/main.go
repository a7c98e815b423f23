package main

import (
	"os"

	"github.com/spf13/cobra"
)

func NewRootCommand() *cobra.Command {

	var listenAddr string
	var connectionID string
	var force bool

	// rootCmd represents the base command when called without any subcommands
	var rootCmd = &cobra.Command{
		Use: "psa-sync",
	}

	var apiServerCmd = &cobra.Command{
		Use:   "api_server",
		Short: "Sync Now and run history API",
		Run: func(cmd *cobra.Command, args []string) {
			startApiServer(listenAddr)
		},
	}

	var syncSchedulerCmd = &cobra.Command{
		Use:   "sync_scheduler",
		Short: "Run scheduled syncs of every due connection",
		Run: func(cmd *cobra.Command, args []string) {
			startSyncScheduler(listenAddr)
		},
	}

	var syncRequestConsumerCmd = &cobra.Command{
		Use:   "sync_request_consumer",
		Short: "Run syncs requested over kafka",
		Run: func(cmd *cobra.Command, args []string) {
			startSyncRequestConsumer(listenAddr)
		},
	}

	var syncNowCmd = &cobra.Command{
		Use:   "sync_now",
		Short: "Run one sync of a connection and print the run",
		RunE: func(cmd *cobra.Command, args []string) error {
			return syncNow(cmd.Context(), cmd.OutOrStdout(), connectionID, force)
		},
	}

	var sealCredentialsCmd = &cobra.Command{
		Use:   "seal_credentials",
		Short: "Encrypt JSON credentials read from stdin for a connection",
		RunE: func(cmd *cobra.Command, args []string) error {
			return sealCredentials(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), connectionID)
		},
	}

	var connectionReportCmd = &cobra.Command{
		Use:   "connection_report",
		Short: "Print connection counts and last sync status per provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			return startConnectionReport(cmd.Context(), cmd.OutOrStdout())
		},
	}

	var matchReviewsCmd = &cobra.Command{
		Use:   "match_reviews",
		Short: "Print ambiguous organization matches waiting for manual resolution",
		RunE: func(cmd *cobra.Command, args []string) error {
			return startMatchReviews(cmd.Context(), cmd.OutOrStdout(), connectionID)
		},
	}

	var schemaDumpCmd = &cobra.Command{
		Use:   "schema_dump",
		Short: "Print the sync tables and migration version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return dumpSchema(cmd.Context(), cmd.OutOrStdout())
		},
	}

	rootCmd.AddCommand(apiServerCmd)
	apiServerCmd.Flags().StringVarP(&listenAddr, "listen-addr", "l", "", "Hostname:port (defaults to the configured API port)")

	rootCmd.AddCommand(syncSchedulerCmd)
	syncSchedulerCmd.Flags().StringVarP(&listenAddr, "listen-addr", "l", "", "Hostname:port (defaults to the configured metrics port)")

	rootCmd.AddCommand(syncRequestConsumerCmd)
	syncRequestConsumerCmd.Flags().StringVarP(&listenAddr, "listen-addr", "l", "", "Hostname:port (defaults to the configured metrics port)")

	rootCmd.AddCommand(syncNowCmd)
	syncNowCmd.Flags().StringVarP(&connectionID, "connection-id", "c", "", "Connection to sync")
	syncNowCmd.Flags().BoolVarP(&force, "force", "f", false, "Sync even if the connection is not due")
	syncNowCmd.MarkFlagRequired("connection-id")

	rootCmd.AddCommand(sealCredentialsCmd)
	sealCredentialsCmd.Flags().StringVarP(&connectionID, "connection-id", "c", "", "Connection the credentials belong to")
	sealCredentialsCmd.MarkFlagRequired("connection-id")

	rootCmd.AddCommand(connectionReportCmd)

	rootCmd.AddCommand(matchReviewsCmd)
	matchReviewsCmd.Flags().StringVarP(&connectionID, "connection-id", "c", "", "Connection whose reviews are listed")
	matchReviewsCmd.MarkFlagRequired("connection-id")

	rootCmd.AddCommand(schemaDumpCmd)

	return rootCmd
}

func main() {
	cmd := NewRootCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
