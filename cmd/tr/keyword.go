package main

import (
	"fmt"

	"github.com/alfredjeanlab/tagrules/internal/model"
	"github.com/spf13/cobra"
)

var keywordCmd = &cobra.Command{
	Use:     "keyword",
	Short:   "Manage the keywords attached to groups",
	GroupID: "rules",
}

var keywordAddCmd = &cobra.Command{
	Use:   "add <group-id> <keyword>...",
	Short: "Attach keywords to a group",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		groupID, err := parseID(args[0], "group id")
		if err != nil {
			return err
		}
		req, err := editRequest(cmd.Context())
		if err != nil {
			return err
		}

		added := make([]*model.Keyword, 0, len(args)-1)
		for _, text := range args[1:] {
			k, v, err := rulesClient.AddKeyword(cmd.Context(), req, groupID, text)
			if err != nil {
				return fmt.Errorf("adding keyword %q: %w", text, err)
			}
			// Each keyword is its own version; chain them.
			req.BaseVersion = v
			added = append(added, k)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), map[string]any{"success": true, "new_version": req.BaseVersion, "keywords": added})
		}
		for _, k := range added {
			fmt.Fprintf(cmd.OutOrStdout(), "Added keyword %q #%d to group #%d\n", k.Text, k.ID, groupID)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Rules now at version %d\n", req.BaseVersion)
		return nil
	},
}

var keywordRemoveCmd = &cobra.Command{
	Use:   "remove <keyword-id> | --group <group-id> <keyword>",
	Short: "Remove a keyword by id, or by text within a group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		groupID, _ := cmd.Flags().GetInt64("group")
		req, err := editRequest(cmd.Context())
		if err != nil {
			return err
		}

		if groupID > 0 {
			v, err := rulesClient.RemoveKeywordText(cmd.Context(), req, groupID, args[0])
			if err != nil {
				return err
			}
			return printVersion(cmd, "Removed keyword %q from group #%d", v, args[0], groupID)
		}

		id, err := parseID(args[0], "keyword id")
		if err != nil {
			return err
		}
		v, err := rulesClient.RemoveKeyword(cmd.Context(), req, id)
		if err != nil {
			return err
		}
		return printVersion(cmd, "Removed keyword #%d", v, id)
	},
}

func setKeywordEnabledCmd(use string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <keyword-id>",
		Short: fmt.Sprintf("Mark a keyword %sd", use),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "keyword id")
			if err != nil {
				return err
			}
			req, err := editRequest(cmd.Context())
			if err != nil {
				return err
			}
			v, err := rulesClient.SetKeywordEnabled(cmd.Context(), req, id, enabled)
			if err != nil {
				return err
			}
			return printVersion(cmd, "Keyword #%d %sd", v, id, use)
		},
	}
}

func init() {
	keywordRemoveCmd.Flags().Int64("group", 0, "remove by text within this group")

	keywordCmd.AddCommand(keywordAddCmd)
	keywordCmd.AddCommand(keywordRemoveCmd)
	keywordCmd.AddCommand(setKeywordEnabledCmd("enable", true))
	keywordCmd.AddCommand(setKeywordEnabledCmd("disable", false))
}
