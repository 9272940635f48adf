// Package output provides consistent CLI output formatting with status
// icons and an in-place progress bar for interactive terminals.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// Writer formats human-readable CLI output. Progress rendering uses
// carriage returns to redraw in place, which only makes sense on a
// real terminal, so it is suppressed for pipes and CI logs.
type Writer struct {
	out         io.Writer
	interactive bool
}

// New creates a Writer for out. Interactive rendering is enabled only
// when out is a terminal and no CI environment is detected.
func New(out io.Writer) *Writer {
	return &Writer{
		out:         out,
		interactive: IsTTY(out) && !DetectCI(),
	}
}

// Interactive reports whether in-place progress rendering is enabled.
func (w *Writer) Interactive() bool {
	return w.interactive
}

// Status prints a status message with an icon.
// Errors from writing are intentionally ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message with a checkmark.
func (w *Writer) Success(msg string) {
	w.Status("✅", msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status("⚠️ ", msg)
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// Progress redraws a progress bar in place. It is a no-op on
// non-interactive writers; callers print a summary line when done
// instead of relying on the bar.
func (w *Writer) Progress(current, total int, msg string) {
	if !w.interactive || total <= 0 {
		return
	}

	pct := float64(current) / float64(total) * 100
	bar := renderProgressBar(current, total, 30)

	_, _ = fmt.Fprintf(w.out, "\r[%s] %.0f%% %s", bar, pct, msg)
}

// ProgressDone terminates an in-place progress line. No-op when
// progress rendering is suppressed.
func (w *Writer) ProgressDone() {
	if !w.interactive {
		return
	}
	_, _ = fmt.Fprintln(w.out)
}

// renderProgressBar creates a text progress bar of the given width.
func renderProgressBar(current, total, width int) string {
	if total <= 0 {
		return strings.Repeat("░", width)
	}

	pct := float64(current) / float64(total)
	filled := int(pct * float64(width))

	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}

	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

// IsTTY reports whether w is attached to a terminal.
func IsTTY(w io.Writer) bool {
	if w == nil {
		return false
	}

	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}

	return false
}

// DetectCI reports whether a CI environment variable is set.
func DetectCI() bool {
	ciVars := []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"}
	for _, v := range ciVars {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}
