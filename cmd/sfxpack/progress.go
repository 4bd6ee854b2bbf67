// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"io"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/sfxpack/sfxpack/internal/builder"
)

// reporter prints build events and drives a download progress bar.
type reporter struct {
	out     io.Writer
	showBar bool
	bar     *progressbar.ProgressBar
	current string
}

// newReporter draws progress bars only when showBar is set and out is a
// terminal; redirected output gets the event lines alone.
func newReporter(out io.Writer, showBar bool) *reporter {
	return &reporter{out: out, showBar: showBar && isTerminal(out)}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	return ok && term.IsTerminal(int(f.Fd()))
}

// Event handles one builder event.
func (r *reporter) Event(e builder.Event) {
	if e.Stage == builder.StageDownloading {
		r.Download(e.Message, e.Written, e.Total)
		return
	}
	r.finish()
	fmt.Fprintf(r.out, "%s %s\n", SubtitleStyle.Render("•"), e.Message)
}

// Download advances the bar for name, starting a new bar when name changes.
func (r *reporter) Download(name string, written, total int64) {
	if !r.showBar {
		return
	}
	if r.bar == nil || r.current != name {
		r.finish()
		r.bar = newDownloadBar(r.out, name, total)
		r.current = name
	}
	_ = r.bar.Set64(written)
}

func (r *reporter) finish() {
	if r == nil || r.bar == nil {
		return
	}
	_ = r.bar.Finish()
	r.bar = nil
	r.current = ""
}

func newDownloadBar(out io.Writer, name string, total int64) *progressbar.ProgressBar {
	return progressbar.NewOptions64(total,
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "━",
			SaucerHead:    "╸",
			SaucerPadding: " ",
			BarStart:      "",
			BarEnd:        "",
		}),
		progressbar.OptionSetWriter(out),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetDescription("Downloading "+name),
		progressbar.OptionOnCompletion(func() { fmt.Fprint(out, "\n") }),
	)
}
