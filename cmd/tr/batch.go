package main

import (
	"fmt"

	"github.com/alfredjeanlab/tagrules/internal/client"
	"github.com/alfredjeanlab/tagrules/internal/model"
	"github.com/spf13/cobra"
)

var batchCmd = &cobra.Command{
	Use:     "batch <enable|disable|delete|move> <group-id>...",
	Short:   "Apply one action to many groups as a single version",
	GroupID: "rules",
	Args:    cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		action := model.BatchAction(args[0])
		if !action.IsValid() {
			return fmt.Errorf("unknown batch action %q (must be enable, disable, delete or move)", args[0])
		}
		ids := make([]int64, 0, len(args)-1)
		for _, a := range args[1:] {
			id, err := parseID(a, "group id")
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}

		req, err := editRequest(cmd.Context())
		if err != nil {
			return err
		}
		br := &client.BatchRequest{Request: req, IDs: ids, Action: action}
		if action == model.BatchMove {
			br.TargetParentID = parentFlag(cmd)
		}
		res, err := rulesClient.Batch(cmd.Context(), br)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), res)
		}
		printBatchResult(cmd.OutOrStdout(), res)
		return nil
	},
}

func init() {
	batchCmd.Flags().Int64("parent", 0, "target parent for move (default: root)")
}
