package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/alfredjeanlab/tagrules/internal/client"
	"github.com/alfredjeanlab/tagrules/internal/model"
	"github.com/alfredjeanlab/tagrules/internal/presence"
	"github.com/alfredjeanlab/tagrules/internal/ui"
)

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// printTree renders roots as an indented forest. depth limits how many
// levels are shown; 0 means all. A group with several parents is printed
// under the first and lists the others.
func printTree(w io.Writer, st ui.Styler, roots []*model.GroupNode, depth int) {
	for _, n := range roots {
		fmt.Fprintln(w, groupLine(st, n))
		printChildren(w, st, n.Children, "", depth-1)
	}
}

func printChildren(w io.Writer, st ui.Styler, children []*model.GroupNode, prefix string, depth int) {
	if depth == 0 {
		return
	}
	for i, n := range children {
		branch, next := "├── ", "│   "
		if i == len(children)-1 {
			branch, next = "└── ", "    "
		}
		fmt.Fprintln(w, prefix+branch+groupLine(st, n))
		printChildren(w, st, n.Children, prefix+next, depth-1)
	}
}

func groupLine(st ui.Styler, n *model.GroupNode) string {
	name := st.Accent(n.Name)
	if !n.Enabled {
		name = st.Disabled(n.Name)
	}
	line := name + " " + st.Muted("#"+strconv.FormatInt(n.ID, 10))
	if len(n.ParentIDs) > 1 {
		others := make([]string, len(n.ParentIDs)-1)
		for i, p := range n.ParentIDs[1:] {
			others[i] = "#" + strconv.FormatInt(p, 10)
		}
		line += " " + st.Muted("(also under "+strings.Join(others, ", ")+")")
	}
	if len(n.Keywords) == 0 {
		return line
	}
	kws := make([]string, len(n.Keywords))
	for i, k := range n.Keywords {
		if k.Enabled {
			kws[i] = st.Keyword(k.Text)
		} else {
			kws[i] = st.Disabled(k.Text)
		}
	}
	return line + "  " + strings.Join(kws, ", ")
}

func printLogTable(w io.Writer, entries []*model.VersionLogEntry) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tWHEN\tCLIENT\tOPERATION\tDETAILS")
	for _, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
			e.VersionID, e.CreatedAt.Local().Format("2006-01-02 15:04:05"), e.ClientID, e.Operation, e.Details)
	}
	return tw.Flush()
}

func printEditorsTable(w io.Writer, editors []*presence.Entry) error {
	if len(editors) == 0 {
		_, err := fmt.Fprintln(w, "No recent editors.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CLIENT\tLAST OPERATION\tVERSION\tEDITS\tIDLE")
	for _, e := range editors {
		idle := time.Duration(e.IdleSecs * float64(time.Second)).Round(time.Second).String()
		if e.Idle {
			idle += " (idle)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", e.ClientID, e.LastOperation, e.LastVersion, e.EditCount, idle)
	}
	return tw.Flush()
}

func printBatchResult(w io.Writer, res *model.BatchResult) {
	fmt.Fprintf(w, "Applied to %d group(s), rules now at version %d\n", res.Affected, res.NewVersion)
	for _, e := range res.Errors {
		fmt.Fprintf(w, "  skipped #%d: %s\n", e.ID, e.Reason)
	}
}

// reportError prints err for a human. A version conflict gets a summary of
// what moved and how to retry.
func reportError(w io.Writer, err error) {
	st := ui.NewStyler(w)

	var conflict *client.ConflictError
	if errors.As(err, &conflict) {
		fmt.Fprintln(w, st.Warn(fmt.Sprintf("Conflict: the rules are now at version %d.", conflict.CurrentVersion)))
		if n := conflict.DistinctModifiersSince; n > 0 {
			fmt.Fprintf(w, "%d other editor(s) changed them since your base version.\n", n)
		}
		if t := conflict.LatestSnapshot; t != nil {
			fmt.Fprintf(w, "Latest snapshot: %d root group(s), %d edge(s).\n", len(t.Roots), len(t.Edges))
		}
		fmt.Fprintf(w, "Review with `tr tree`, then retry (or pass --base-version %d).\n", conflict.CurrentVersion)
		return
	}

	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		fmt.Fprintf(w, "Error: %s\n", apiErr.Message)
		return
	}
	fmt.Fprintf(w, "Error: %v\n", err)
}
