// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sfxpack/sfxpack/internal/issue"
)

func init() {
	commands.Register("issues", newIssuesCommand)
}

func newIssuesCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "issues [id]",
		Short: "Show troubleshooting notes for common failures",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			style, _ := cmd.Flags().GetString("style")
			var err error
			if len(args) == 0 {
				err = listIssues(app.stdout)
			} else {
				err = showIssue(app.stdout, args[0], style)
			}
			if err != nil {
				return app.fail(cmd, err)
			}
			return nil
		},
	}
	cmd.Flags().String("style", "dark", "glamour style: dark, light, notty or a style file")
	return cmd
}

func listIssues(w io.Writer) error {
	for _, i := range issue.Values() {
		fmt.Fprintf(w, "%s  %-14s %s\n", CmdStyle.Render(fmt.Sprintf("%2d", i.Id())), i.Kind(), issueTitle(i))
	}
	return nil
}

func showIssue(w io.Writer, arg, style string) error {
	id, err := strconv.Atoi(arg)
	entry := issue.Get(issue.Id(id))
	if err != nil || entry == nil {
		return issue.NewErrorContext().
			WithKind(issue.KindConfiguration).
			WithOperation("show issue").
			WithResource(arg).
			WithSuggestion("Run `sfxpack issues` to list the known ids").
			Wrap(fmt.Errorf("unknown issue id %q", arg)).
			BuildError()
	}
	out, err := entry.Render(style)
	if err != nil {
		return fmt.Errorf("rendering issue %d: %w", id, err)
	}
	fmt.Fprint(w, out)
	return nil
}

// issueTitle is the first markdown heading of the entry.
func issueTitle(i *issue.Issue) string {
	for _, line := range strings.Split(string(i.MarkdownMsg()), "\n") {
		if t, ok := strings.CutPrefix(strings.TrimSpace(line), "# "); ok {
			return t
		}
	}
	return ""
}
