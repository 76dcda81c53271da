package main

import (
	"fmt"
	"os"

	"github.com/alfredjeanlab/tagrules/internal/client"
	"github.com/spf13/cobra"
)

var (
	httpURL    string
	grpcAddr   string
	authToken  string
	clientID   string
	baseFlag   int64
	jsonOutput bool

	rulesClient client.RulesClient
	// reader serves read-only commands. It is the gRPC client when
	// --grpc-addr is set, otherwise rulesClient.
	reader client.Reader
)

func defaultHTTPURL() string {
	if s := os.Getenv("TAGRULES_URL"); s != "" {
		return s
	}
	if u := activeRemote().URL; u != "" {
		return u
	}
	return "http://localhost:8080"
}

func defaultToken() string {
	if s := os.Getenv("TAGRULES_TOKEN"); s != "" {
		return s
	}
	return activeRemote().Token
}

func defaultGRPCAddr() string {
	if s := os.Getenv("TAGRULES_GRPC"); s != "" {
		return s
	}
	return activeRemote().GRPCAddr
}

var rootCmd = &cobra.Command{
	Use:           "tr <command>",
	Short:         "CLI client for the tagrules service",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if clientID == "" {
			id, err := persistedClientID()
			if err != nil {
				return fmt.Errorf("client id: %w", err)
			}
			clientID = id
		}

		hc := client.NewHTTPClient(httpURL, authToken)
		rulesClient = hc
		reader = hc
		if grpcAddr != "" {
			gc, err := client.NewGRPCClient(grpcAddr, authToken, clientID)
			if err != nil {
				return fmt.Errorf("failed to connect to server: %w", err)
			}
			reader = gc
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if reader != nil {
			reader.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&httpURL, "url", defaultHTTPURL(), "HTTP server URL")
	rootCmd.PersistentFlags().StringVar(&grpcAddr, "grpc-addr", defaultGRPCAddr(), "gRPC address for read-only commands (empty = use HTTP)")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", defaultToken(), "bearer token")
	rootCmd.PersistentFlags().StringVar(&clientID, "client-id", os.Getenv("TAGRULES_CLIENT_ID"), "editor id recorded in the version log (default: persisted per user)")
	rootCmd.PersistentFlags().Int64Var(&baseFlag, "base-version", -1, "version the edit is based on (default: fetch the current version)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: "rules", Title: "Rules:"},
		&cobra.Group{ID: "views", Title: "Views:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(colorizedHelpFunc())

	// Rules
	rootCmd.AddCommand(groupCmd)
	rootCmd.AddCommand(keywordCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(importCmd)

	// Views
	rootCmd.AddCommand(treeCmd)
	rootCmd.AddCommand(expandCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(editorsCmd)
	rootCmd.AddCommand(exportCmd)

	// System
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(remoteCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		reportError(os.Stderr, err)
		os.Exit(1)
	}
}
