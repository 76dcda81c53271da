package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/alfredjeanlab/tagrules/internal/model"
	rulesync "github.com/alfredjeanlab/tagrules/internal/sync"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:     "export",
	Short:   "Write the whole rule set as a legacy export document",
	GroupID: "views",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("output")

		var w io.Writer = cmd.OutOrStdout()
		if path != "" && path != "-" {
			f, err := os.Create(path)
			if err != nil {
				return err
			}
			defer f.Close()
			w = f
		}
		v, err := rulesync.ExportJSON(cmd.Context(), rulesClient, w)
		if err != nil {
			return err
		}
		if w != cmd.OutOrStdout() {
			fmt.Fprintf(cmd.ErrOrStderr(), "Wrote rules version %d to %s\n", v, path)
		}
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:     "import <file|->",
	Short:   "Replace the whole rule set with an export document",
	GroupID: "rules",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var r io.Reader = cmd.InOrStdin()
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			r = f
		}
		var doc model.LegacyExport
		if err := json.NewDecoder(r).Decode(&doc); err != nil {
			return fmt.Errorf("reading export document: %w", err)
		}

		sum, err := rulesClient.Import(cmd.Context(), clientID, &doc)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), sum)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Imported %d group(s), %d keyword(s), %d edge(s); rules now at version %d\n",
			sum.Groups, sum.Keywords, sum.Edges, sum.Version)
		if sum.SkippedKeywords > 0 || sum.SkippedEdges > 0 {
			fmt.Fprintf(out, "Skipped %d keyword(s) and %d edge(s) with unknown or cyclic references\n",
				sum.SkippedKeywords, sum.SkippedEdges)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringP("output", "o", "", "write to this file instead of stdout")
}
