package printer

import (
	"fmt"
	"io"
	"sync"

	"github.com/schollz/progressbar/v3"

	"github.com/slok/restorewatch/internal/model"
)

var theme = progressbar.Theme{
	Saucer:        "[green]=[reset]",
	SaucerHead:    "[green]>[reset]",
	SaucerPadding: " ",
	BarStart:      "[",
	BarEnd:        "]",
}

// ProgressRenderer renders the live progress of an operation view as a terminal progress bar.
type ProgressRenderer struct {
	mu       sync.Mutex
	w        io.Writer
	bar      *progressbar.ProgressBar
	finished bool
}

// NewProgressRenderer creates a progress renderer writing to w.
func NewProgressRenderer(w io.Writer, color bool) *ProgressRenderer {
	opts := []progressbar.Option{
		progressbar.OptionSetWriter(w),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionSetDescription(string(model.StageDetecting)),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(w, "\n")
		}),
	}
	if color {
		opts = append(opts,
			progressbar.OptionUseANSICodes(true),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionSetTheme(theme),
		)
	}

	return &ProgressRenderer{
		w:   w,
		bar: progressbar.NewOptions(100, opts...),
	}
}

// Update renders a view change.
func (r *ProgressRenderer) Update(v model.ClientView) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finished {
		return
	}

	r.bar.Describe(describe(v))
	_ = r.bar.Set(v.Progress)
}

// Finish renders the terminal view, it's safe to call more than once.
func (r *ProgressRenderer) Finish(v model.ClientView) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finished {
		return
	}
	r.finished = true

	r.bar.Describe(describe(v))
	if v.Failed {
		_ = r.bar.Exit()
		fmt.Fprintln(r.w)
		return
	}
	_ = r.bar.Finish()
}

func describe(v model.ClientView) string {
	desc := fmt.Sprintf("%-18s", v.CurrentStage)
	if v.Message != "" {
		desc += " " + v.Message
	}
	if !v.Terminal {
		desc += " (ETA " + FormatETA(v.Remaining) + ")"
	}
	return desc
}
