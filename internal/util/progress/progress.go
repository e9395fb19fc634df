package progress

import (
	"io"

	"github.com/ethereum/go-ethereum/log"
	"github.com/schollz/progressbar/v3"
)

// Spinner returns an indeterminate progress bar writing to w.
func Spinner(w io.Writer, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionClearOnFinish(),
	)
}

// Add increments the progress bar while safely handling errors.
func Add(bar *progressbar.ProgressBar, n int) {
	if bar == nil || n == 0 {
		return
	}

	if err := bar.Add(n); err != nil {
		log.Warn("Failed to update progress bar", "err", err)
	}
}

// Finish completes the progress bar, ignoring nil bars.
func Finish(bar *progressbar.ProgressBar) {
	if bar == nil {
		return
	}

	if err := bar.Finish(); err != nil {
		log.Warn("Failed to finish progress bar", "err", err)
	}
}
