package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/alfredjeanlab/tagrules/internal/client"
	"github.com/alfredjeanlab/tagrules/internal/model"
	"github.com/alfredjeanlab/tagrules/internal/ui"
	"github.com/spf13/cobra"
)

var treeCmd = &cobra.Command{
	Use:     "tree [<group-id>]",
	Short:   "Show the rule tree, or the subtree under one group",
	GroupID: "views",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		depth, _ := cmd.Flags().GetInt("depth")
		since, _ := cmd.Flags().GetString("if-newer-than")
		var known model.Revision
		if since != "" {
			r, err := model.ParseRevision(since)
			if err != nil {
				return err
			}
			known = r
		}

		tree, err := reader.GetTree(cmd.Context(), known)
		if errors.Is(err, client.ErrNotModified) {
			fmt.Fprintf(cmd.OutOrStdout(), "Rules unchanged since revision %s\n", known)
			return nil
		}
		if err != nil {
			return err
		}

		roots := tree.Roots
		if len(args) == 1 {
			id, err := parseID(args[0], "group id")
			if err != nil {
				return err
			}
			n := tree.Find(id)
			if n == nil {
				return fmt.Errorf("group #%d not found", id)
			}
			roots = []*model.GroupNode{n}
		}

		if jsonOutput {
			if len(args) == 1 {
				return printJSON(cmd.OutOrStdout(), roots[0])
			}
			return printJSON(cmd.OutOrStdout(), tree)
		}
		out := cmd.OutOrStdout()
		st := ui.NewStyler(out)
		fmt.Fprintln(out, st.Muted("rules v"+tree.Revision().String()))
		if len(roots) == 0 {
			fmt.Fprintln(out, "No groups.")
			return nil
		}
		printTree(out, st, roots, depth)
		return nil
	},
}

var expandCmd = &cobra.Command{
	Use:     "expand <tag>...",
	Short:   "Expand tags into every keyword of the matching groups and their descendants",
	GroupID: "views",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := reader.Expand(cmd.Context(), args)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), res)
		}
		fmt.Fprintln(cmd.OutOrStdout(), strings.Join(res.Tags, " "))
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:     "version",
	Short:   "Print the current rules version",
	GroupID: "views",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := reader.Version(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), map[string]int64{"version": v})
		}
		fmt.Fprintln(cmd.OutOrStdout(), v)
		return nil
	},
}

var logCmd = &cobra.Command{
	Use:     "log",
	Short:   "Show the version log",
	GroupID: "views",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		since, _ := cmd.Flags().GetInt64("since")
		limit, _ := cmd.Flags().GetInt("limit")

		entries, err := rulesClient.Log(cmd.Context(), since, limit)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), entries)
		}
		if len(entries) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No log entries.")
			return nil
		}
		return printLogTable(cmd.OutOrStdout(), entries)
	},
}

var statsCmd = &cobra.Command{
	Use:     "stats",
	Short:   "Show rule set counts",
	GroupID: "views",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := rulesClient.Stats(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), st)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Version:   %d\n", st.Version)
		fmt.Fprintf(out, "Groups:    %d\n", st.Groups)
		fmt.Fprintf(out, "Keywords:  %d\n", st.Keywords)
		fmt.Fprintf(out, "Edges:     %d\n", st.Edges)
		return nil
	},
}

var editorsCmd = &cobra.Command{
	Use:     "editors",
	Short:   "Show who has edited the rules recently",
	GroupID: "views",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		stale, _ := cmd.Flags().GetDuration("stale")
		editors, err := rulesClient.Editors(cmd.Context(), stale)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), editors)
		}
		return printEditorsTable(cmd.OutOrStdout(), editors)
	},
}

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check server health",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := reader.Health(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), status)
		return nil
	},
}

func init() {
	treeCmd.Flags().Int("depth", 0, "levels to show (0 = all)")
	treeCmd.Flags().String("if-newer-than", "", "only print when the rules moved past this revision (version or version@epoch)")
	logCmd.Flags().Int64("since", 0, "show entries after this version")
	logCmd.Flags().Int("limit", 50, "maximum entries to show")
	editorsCmd.Flags().Duration("stale", 0, "hide editors idle for longer than this (0 = show all)")
}
