package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/briandowns/spinner"
)

// StatusSpinner shows progress while a command waits on the API. On a
// terminal it animates and Update rewrites its label in place. In plain mode
// every new label is printed on its own line so logs stay readable.
type StatusSpinner struct {
	w     io.Writer
	s     *spinner.Spinner
	label string
	plain bool
}

func NewStatusSpinner(w io.Writer, plain bool) *StatusSpinner {
	return &StatusSpinner{w: w, plain: plain}
}

func (sp *StatusSpinner) Start(label string) {
	sp.label = label
	if sp.plain {
		fmt.Fprintf(sp.w, "  %s\n", label)
		return
	}
	sp.s = spinner.New(spinner.CharSets[14], 80*time.Millisecond, spinner.WithWriter(sp.w))
	sp.s.Prefix = "  "
	sp.s.Suffix = " " + label
	sp.s.Start()
}

// Update replaces the label. Repeating the current label is a no-op.
func (sp *StatusSpinner) Update(label string) {
	if label == sp.label {
		return
	}
	sp.label = label
	if sp.plain {
		fmt.Fprintf(sp.w, "  %s\n", label)
		return
	}
	if sp.s != nil {
		sp.s.Lock()
		sp.s.Suffix = " " + label
		sp.s.Unlock()
	}
}

// Done stops the spinner and prints result with a check mark.
func (sp *StatusSpinner) Done(result string) {
	sp.finish(StyleSuccess.Render(SymbolCheck), result)
}

// Fail stops the spinner and prints result with a cross.
func (sp *StatusSpinner) Fail(result string) {
	sp.finish(StyleError.Render(SymbolCross), result)
}

func (sp *StatusSpinner) finish(mark, result string) {
	sp.stop()
	if sp.plain {
		fmt.Fprintf(sp.w, "  %s %s\n", mark, result)
		return
	}
	fmt.Fprintf(sp.w, "\r  %s %s\n", mark, result)
}

func (sp *StatusSpinner) stop() {
	if sp.s != nil {
		sp.s.Stop()
		sp.s = nil
	}
}
