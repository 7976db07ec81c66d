package ui

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func TestFormatError(t *testing.T) {
	out := FormatError("no access token configured")
	if !strings.Contains(out, "Error:") || !strings.Contains(out, "no access token configured") {
		t.Errorf("unexpected output %q", out)
	}
	if strings.Contains(out, "Try:") {
		t.Error("should not contain 'Try:' without suggestions")
	}
}

func TestFormatErrorWithSuggestions(t *testing.T) {
	out := FormatError("port 8443 is already in use",
		"bluevia listen --port 8444",
		"bluevia config set server.port 8444",
	)
	for _, want := range []string{"Try:", "bluevia listen --port 8444", "bluevia config set server.port 8444", SymbolArrow} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in %q", want, out)
		}
	}
	if strings.Index(out, "--port 8444") > strings.Index(out, "server.port 8444") {
		t.Error("suggestions should keep their order")
	}
}

func TestFormatWarning(t *testing.T) {
	out := FormatWarning("api.client_id is empty", "bluevia config set api.client_id ID")
	if strings.Contains(out, "Error:") {
		t.Error("a warning should not be labelled as an error")
	}
	for _, want := range []string{"Warning:", SymbolWarning, "api.client_id is empty", "bluevia config set api.client_id ID"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in %q", want, out)
		}
	}
}

func TestStatusSpinnerPlainPrintsEachLabelOnce(t *testing.T) {
	var buf bytes.Buffer
	sp := NewStatusSpinner(&buf, true)
	sp.Start("Waiting for delivery of 42...")
	sp.Update("42 is sent, waiting...")
	sp.Update("42 is sent, waiting...")
	sp.Update("42 is waiting, waiting...")
	sp.Done("42 is delivered")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d: %q", len(lines), buf.String())
	}
	if !strings.Contains(lines[3], SymbolCheck) || !strings.Contains(lines[3], "42 is delivered") {
		t.Errorf("unexpected result line %q", lines[3])
	}
}

func TestStatusSpinnerPlainFail(t *testing.T) {
	var buf bytes.Buffer
	sp := NewStatusSpinner(&buf, true)
	sp.Start("Waiting for delivery of 42...")
	sp.Fail(`still "sent" after 5m0s`)

	out := buf.String()
	if !strings.Contains(out, SymbolCross) || !strings.Contains(out, `still "sent"`) {
		t.Errorf("unexpected output %q", out)
	}
}

func TestStatusSpinnerFinishWithoutStart(t *testing.T) {
	var buf bytes.Buffer
	NewStatusSpinner(&buf, true).Done("ok")
	NewStatusSpinner(&buf, false).Fail("failed")
	if strings.Count(buf.String(), "\n") != 2 {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestColorEnabledRespectsNO_COLOR(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	if ColorEnabled() {
		t.Error("ColorEnabled should return false when NO_COLOR is set")
	}
	if ColorEnabledFd(os.Stdout.Fd()) {
		t.Error("ColorEnabledFd should return false when NO_COLOR is set")
	}
}

func TestColorEnabledEmptyNO_COLOR(t *testing.T) {
	t.Setenv("NO_COLOR", "")
	if ColorEnabled() {
		t.Error("an empty NO_COLOR still disables color")
	}
}

func TestColorEnabledWithoutTerminal(t *testing.T) {
	t.Setenv("NO_COLOR", "placeholder")
	os.Unsetenv("NO_COLOR")
	// go test pipes stderr.
	if ColorEnabled() {
		t.Error("ColorEnabled should return false without a terminal")
	}
}

func TestForcedRendererProducesANSI(t *testing.T) {
	r := ForcedRenderer()
	if r != ForcedRenderer() {
		t.Error("ForcedRenderer should return the same instance")
	}
	out := r.NewStyle().Foreground(ColorRed).Render("expired")
	if !strings.Contains(out, "expired") {
		t.Error("rendered text should contain the original text")
	}
	if !strings.Contains(out, "\x1b[") {
		t.Errorf("expected ANSI escape codes, got %q", out)
	}
}
