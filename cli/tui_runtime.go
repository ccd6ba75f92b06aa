package cli

import (
	"os"
	"strings"
)

func isTerminalFD(f *os.File) bool {
	if f == nil {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

func isInteractiveTerminal() bool {
	if !isTerminalFD(os.Stdin) || !isTerminalFD(os.Stdout) {
		return false
	}
	term := strings.TrimSpace(strings.ToLower(os.Getenv("TERM")))
	return term != "" && term != "dumb"
}

// shouldUseReviewUI decides between the interactive review and the plain
// table printout.
func shouldUseReviewUI(isTTY, noUI bool, format string) bool {
	if !isTTY || noUI {
		return false
	}
	return format == "" || format == "text"
}

func shouldUseStatusUI(isTTY, noUI bool) bool {
	return isTTY && !noUI
}

// shouldWatch reports whether a review should reload on file changes.
func shouldWatch(enabled, noWatch, useUI bool) bool {
	return enabled && !noWatch && useUI
}
