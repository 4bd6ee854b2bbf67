// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/sfxpack/sfxpack/internal/issue"
	"github.com/sfxpack/sfxpack/internal/watch"
)

// maxListedChanges caps how many changed paths are echoed per rebuild.
const maxListedChanges = 5

// runWatch rebuilds the archive after every burst of relevant changes until
// ctx is canceled. Failed rebuilds are reported and watching continues.
func runWatch(ctx context.Context, p buildParams, stderr io.Writer, logger *slog.Logger, verbose bool) error {
	ignore, err := p.builder.WatchFilter()
	if err != nil {
		return err
	}
	root := p.builder.Config().InputDir

	w, err := watch.New(watch.Config{
		Root:   root,
		Skip:   watch.SkipFunc(ignore),
		Logger: logger,
		OnChange: func(ctx context.Context, changed []string) error {
			fmt.Fprintf(p.stdout, "\n%s %s\n", SubtitleStyle.Render("Changed:"), summarizeChanges(changed))
			if err := runBuildArchive(ctx, p); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				fmt.Fprintln(stderr, ErrorStyle.Render("Error:")+" "+formatErrorForDisplay(err, verbose))
			}
			return nil
		},
	})
	if err != nil {
		return issue.NewErrorContext().
			WithOperation("watch input directory").
			WithResource(root).
			WithSuggestion("Lower the number of directories under build.input_dir or raise the inotify watch limit").
			Wrap(err).
			WithKind(issue.KindEnvironment).
			BuildError()
	}

	fmt.Fprintf(p.stdout, "%s %s %s\n", TitleStyle.Render("Watching"), CmdStyle.Render(root), VerboseStyle.Render("(Ctrl+C to stop)"))
	return w.Run(ctx)
}

func summarizeChanges(changed []string) string {
	if len(changed) <= maxListedChanges {
		return strings.Join(changed, ", ")
	}
	return fmt.Sprintf("%s and %d more", strings.Join(changed[:maxListedChanges], ", "), len(changed)-maxListedChanges)
}
