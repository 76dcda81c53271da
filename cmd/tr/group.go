package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/alfredjeanlab/tagrules/internal/client"
	"github.com/spf13/cobra"
)

// editRequest builds the request for a mutating command. Without
// --base-version the current version is fetched first, so the edit only
// conflicts with changes that land in between.
func editRequest(ctx context.Context) (client.Request, error) {
	req := client.Request{ClientID: clientID, BaseVersion: baseFlag}
	if baseFlag >= 0 {
		return req, nil
	}
	v, err := rulesClient.Version(ctx)
	if err != nil {
		return client.Request{}, fmt.Errorf("fetching current version: %w", err)
	}
	req.BaseVersion = v
	return req, nil
}

func parseID(s, what string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive integer", what, s)
	}
	return id, nil
}

// parentFlag reads --parent; 0 or unset means root.
func parentFlag(cmd *cobra.Command) *int64 {
	p, _ := cmd.Flags().GetInt64("parent")
	if p <= 0 {
		return nil
	}
	return &p
}

func printVersion(cmd *cobra.Command, format string, v int64, args ...any) error {
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{"success": true, "new_version": v})
	}
	fmt.Fprintf(cmd.OutOrStdout(), format+" (version %d)\n", append(args, v)...)
	return nil
}

var groupCmd = &cobra.Command{
	Use:     "group",
	Short:   "Create, edit and arrange groups",
	GroupID: "rules",
}

var groupCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a group, optionally under a parent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		disabled, _ := cmd.Flags().GetBool("disabled")
		req, err := editRequest(cmd.Context())
		if err != nil {
			return err
		}
		g, v, err := rulesClient.CreateGroup(cmd.Context(), req, args[0], parentFlag(cmd), !disabled)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), map[string]any{"success": true, "new_version": v, "group": g})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created group %s #%d (version %d)\n", g.Name, g.ID, v)
		return nil
	},
}

var groupRenameCmd = &cobra.Command{
	Use:   "rename <group-id> <name>",
	Short: "Rename a group",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "group id")
		if err != nil {
			return err
		}
		req, err := editRequest(cmd.Context())
		if err != nil {
			return err
		}
		name := args[1]
		v, err := rulesClient.UpdateGroup(cmd.Context(), req, id, &name, nil)
		if err != nil {
			return err
		}
		return printVersion(cmd, "Renamed #%d to %s", v, id, name)
	},
}

func setGroupEnabledCmd(use, short string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <group-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "group id")
			if err != nil {
				return err
			}
			req, err := editRequest(cmd.Context())
			if err != nil {
				return err
			}
			v, err := rulesClient.UpdateGroup(cmd.Context(), req, id, nil, &enabled)
			if err != nil {
				return err
			}
			return printVersion(cmd, "Group #%d %sd", v, id, use)
		},
	}
}

var groupMoveCmd = &cobra.Command{
	Use:   "move <group-id>",
	Short: "Replace a group's parents with --parent (or make it a root)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "group id")
		if err != nil {
			return err
		}
		req, err := editRequest(cmd.Context())
		if err != nil {
			return err
		}
		parent := parentFlag(cmd)
		v, err := rulesClient.MoveGroup(cmd.Context(), req, id, parent)
		if err != nil {
			return err
		}
		if parent == nil {
			return printVersion(cmd, "Moved #%d to the root", v, id)
		}
		return printVersion(cmd, "Moved #%d under #%d", v, id, *parent)
	},
}

func edgeCmd(use, short string, link bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <parent-id> <child-id>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			parent, err := parseID(args[0], "parent id")
			if err != nil {
				return err
			}
			child, err := parseID(args[1], "child id")
			if err != nil {
				return err
			}
			req, err := editRequest(cmd.Context())
			if err != nil {
				return err
			}
			var v int64
			if link {
				v, err = rulesClient.LinkGroup(cmd.Context(), req, parent, child)
			} else {
				v, err = rulesClient.UnlinkGroup(cmd.Context(), req, parent, child)
			}
			if err != nil {
				return err
			}
			return printVersion(cmd, "%sed #%d -> #%d", v, use, parent, child)
		},
	}
}

var groupDeleteCmd = &cobra.Command{
	Use:   "delete <group-id>",
	Short: "Delete a group and every group below it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "group id")
		if err != nil {
			return err
		}
		req, err := editRequest(cmd.Context())
		if err != nil {
			return err
		}
		removed, v, err := rulesClient.DeleteGroup(cmd.Context(), req, id)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), map[string]any{"success": true, "new_version": v, "removed": removed})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d group(s) (version %d)\n", removed, v)
		return nil
	},
}

func init() {
	groupCreateCmd.Flags().Int64("parent", 0, "parent group id (default: root)")
	groupCreateCmd.Flags().Bool("disabled", false, "create the group disabled")
	groupMoveCmd.Flags().Int64("parent", 0, "new parent group id (default: root)")

	groupCmd.AddCommand(groupCreateCmd)
	groupCmd.AddCommand(groupRenameCmd)
	groupCmd.AddCommand(setGroupEnabledCmd("enable", "Enable a group", true))
	groupCmd.AddCommand(setGroupEnabledCmd("disable", "Disable a group and stop it from matching", false))
	groupCmd.AddCommand(groupMoveCmd)
	groupCmd.AddCommand(edgeCmd("link", "Add a parent edge (a group may have several parents)", true))
	groupCmd.AddCommand(edgeCmd("unlink", "Remove a parent edge", false))
	groupCmd.AddCommand(groupDeleteCmd)
}
