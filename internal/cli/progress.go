package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/Veraticus/billflow/internal/engine"
	"github.com/schollz/progressbar/v3"
)

// BatchProgress shows a progress bar while a batch of messages is reconciled.
type BatchProgress struct {
	bar    *progressbar.ProgressBar
	writer io.Writer
}

// NewBatchProgress creates a bar for total messages.
func NewBatchProgress(w io.Writer, total int) *BatchProgress {
	p := &BatchProgress{writer: w}
	p.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]Reconciling messages...[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			if _, err := fmt.Fprintln(w); err != nil {
				slog.Warn("failed to write newline after progress bar", "error", err)
			}
		}),
	)
	return p
}

// Observe advances the bar by one finished message. It matches
// engine.ProgressFunc.
func (p *BatchProgress) Observe(out engine.Outcome) {
	if out.Vendor != "" {
		p.bar.Describe(fmt.Sprintf("[cyan][bold]Reconciling messages...[reset] %s", out.Vendor))
	}
	if err := p.bar.Add(1); err != nil {
		slog.Warn("failed to update progress bar", "error", err)
	}
}

// Count is the number of messages observed so far.
func (p *BatchProgress) Count() int {
	return int(p.bar.State().CurrentNum)
}
