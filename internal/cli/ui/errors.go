package ui

import (
	"fmt"
	"strings"
)

// FormatError renders an error line followed by the commands that may fix it.
func FormatError(msg string, suggestions ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", StyleError.Render("Error:"), msg)
	writeSuggestions(&b, suggestions)
	return b.String()
}

// FormatWarning renders a problem that did not stop the command.
func FormatWarning(msg string, suggestions ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", StyleWarning.Render(SymbolWarning+" Warning:"), msg)
	writeSuggestions(&b, suggestions)
	return b.String()
}

func writeSuggestions(b *strings.Builder, suggestions []string) {
	if len(suggestions) == 0 {
		return
	}
	b.WriteString("\n" + StyleHint.Render("  Try:") + "\n")
	for _, s := range suggestions {
		fmt.Fprintf(b, "    %s %s\n", StyleHint.Render(SymbolArrow), s)
	}
}
