package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/ngld/star/pkg/archive"
)

func progressEnabled(cmd *cobra.Command) bool {
	quiet, err := cmd.Flags().GetBool("quiet")
	if err != nil || quiet {
		return false
	}

	if os.Getenv("CI") == "true" {
		return false
	}

	return settings(cmd).Progress && isTerminal(cmd.ErrOrStderr())
}

func getProgressBar(cmd *cobra.Command, length int64, desc string) *progressbar.ProgressBar {
	if length <= 0 || !progressEnabled(cmd) {
		return progressbar.NewOptions64(length, progressbar.OptionSetVisibility(false))
	}

	out := cmd.ErrOrStderr()
	return progressbar.NewOptions64(length,
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetWriter(out),
		progressbar.OptionShowBytes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(out, "\n")
		}),
	)
}

// transfer combines the visible progress bar with a speed tracker for the final summary
type transfer struct {
	bar   *progressbar.ProgressBar
	speed *archive.SpeedTracker
}

func newTransfer(cmd *cobra.Command, length int64, desc string) *transfer {
	return &transfer{
		bar:   getProgressBar(cmd, length, desc),
		speed: archive.NewSpeedTracker(),
	}
}

func (t *transfer) Writer() io.Writer {
	return io.MultiWriter(t.bar, t.speed)
}

func (t *transfer) Finish(ctx context.Context) {
	t.bar.Finish()

	total, speed := t.speed.Average()
	archive.Log(ctx).Debug().Int64("bytes", total).Float64("speed", speed).
		Msgf("Processed %s (%s/s)", archive.FormatBytes(float64(total)), archive.FormatBytes(speed))
}
