package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/bluevia-go/bluevia/internal/cli/ui"
)

// helpGroups orders the root command list.
var helpGroups = []struct {
	group    cobra.Group
	commands []string
}{
	{cobra.Group{ID: "messaging", Title: "MESSAGING"}, []string{"sms", "mms", "messages"}},
	{cobra.Group{ID: "receive", Title: "NOTIFICATIONS"}, []string{"listen", "inbox", "mcp"}},
	{cobra.Group{ID: "setup", Title: "SETUP"}, []string{"auth", "config", "version"}},
}

// helpEnvironment lists the variables worth knowing before reading the
// full config reference.
var helpEnvironment = [][2]string{
	{"BLUEVIA_API_CLIENT_ID", "application key"},
	{"BLUEVIA_API_CLIENT_SECRET", "application secret"},
	{"BLUEVIA_API_ACCESS_TOKEN", "OAuth access token from `bluevia auth login`"},
	{"BLUEVIA_API_SANDBOX", "send through the sandbox API"},
	{"NO_COLOR", "disable colored output"},
}

func initHelp() {
	groupOf := map[string]string{}
	for _, g := range helpGroups {
		rootCmd.AddGroup(&g.group)
		for _, name := range g.commands {
			groupOf[name] = g.group.ID
		}
	}
	for _, cmd := range rootCmd.Commands() {
		cmd.GroupID = groupOf[cmd.Name()]
	}

	rootCmd.SetHelpFunc(styledHelp)
	rootCmd.SetUsageFunc(func(cmd *cobra.Command) error {
		styledHelp(cmd, nil)
		return nil
	})
}

func styledHelp(cmd *cobra.Command, _ []string) {
	c := colorEnabled()
	w := cmd.ErrOrStderr()

	fmt.Fprintln(w)
	if cmd == rootCmd {
		fmt.Fprintf(w, "  %s %s\n\n", ui.BrandEmoji, boldCyan("BlueVia", c))
	}
	writeDescription(w, cmd, c)

	section(w, "USAGE", c)
	useLine := cmd.UseLine()
	if cmd.HasAvailableSubCommands() {
		useLine = cmd.CommandPath() + " [command]"
	}
	fmt.Fprintf(w, "  %s\n\n", useLine)

	if cmd.Example != "" {
		section(w, "EXAMPLES", c)
		for _, line := range strings.Split(cmd.Example, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				fmt.Fprintf(w, "  %s\n", green(line, c))
			}
		}
		fmt.Fprintln(w)
	}

	writeCommands(w, cmd, c)

	if cmd == rootCmd {
		writeFlags(w, "FLAGS", cmd.Flags(), c)
		section(w, "ENVIRONMENT", c)
		tw := tabwriter.NewWriter(w, 0, 4, 3, ' ', 0)
		for _, env := range helpEnvironment {
			fmt.Fprintf(tw, "  %s\t%s\n", cyan(env[0], c), dim(env[1], c))
		}
		tw.Flush()
		fmt.Fprintln(w)
	} else {
		writeFlags(w, "FLAGS", cmd.LocalNonPersistentFlags(), c)
		writeFlags(w, "GLOBAL FLAGS", cmd.InheritedFlags(), c)
	}

	if cmd.HasAvailableSubCommands() {
		fmt.Fprintf(w, "%s\n\n", dim(fmt.Sprintf("Use %q for more information about a command.", cmd.CommandPath()+" [command] --help"), c))
	}
}

// writeDescription prints Long, or Short when there is no Long. On the root
// command indented lines are example commands.
func writeDescription(w io.Writer, cmd *cobra.Command, c bool) {
	text := cmd.Long
	if text == "" {
		text = cmd.Short
	}
	if text == "" {
		return
	}
	for _, line := range strings.Split(text, "\n") {
		switch {
		case strings.TrimSpace(line) == "":
			fmt.Fprintln(w)
		case cmd == rootCmd && strings.HasPrefix(line, "  "):
			fmt.Fprintf(w, "    %s\n", green(strings.TrimSpace(line), c))
		case cmd == rootCmd:
			fmt.Fprintf(w, "  %s\n", dim(line, c))
		default:
			fmt.Fprintf(w, "  %s\n", line)
		}
	}
	fmt.Fprintln(w)
}

func writeCommands(w io.Writer, cmd *cobra.Command, c bool) {
	byGroup := map[string][]*cobra.Command{}
	for _, sub := range cmd.Commands() {
		if sub.IsAvailableCommand() {
			byGroup[sub.GroupID] = append(byGroup[sub.GroupID], sub)
		}
	}
	for _, g := range cmd.Groups() {
		writeCommandList(w, g.Title, byGroup[g.ID], c)
	}
	title := "COMMANDS"
	if len(cmd.Groups()) > 0 {
		title = "OTHER"
	}
	writeCommandList(w, title, byGroup[""], c)
}

func writeCommandList(w io.Writer, title string, cmds []*cobra.Command, c bool) {
	if len(cmds) == 0 {
		return
	}
	section(w, title, c)
	tw := tabwriter.NewWriter(w, 0, 4, 4, ' ', 0)
	for _, sub := range cmds {
		fmt.Fprintf(tw, "  %s\t%s\n", bold(sub.Name(), c), dim(sub.Short, c))
	}
	tw.Flush()
	fmt.Fprintln(w)
}

// writeFlags prints the visible flags of fs with their value type and
// default, one per line.
func writeFlags(w io.Writer, title string, fs *pflag.FlagSet, c bool) {
	var lines [][2]string
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Hidden {
			return
		}
		name := "    --" + f.Name
		if f.Shorthand != "" {
			name = "-" + f.Shorthand + ", --" + f.Name
		}
		varname, usage := pflag.UnquoteUsage(f)
		if varname != "" {
			name += " " + varname
		}
		if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" && f.DefValue != "[]" {
			usage += fmt.Sprintf(" (default %s)", f.DefValue)
		}
		lines = append(lines, [2]string{name, usage})
	})
	if len(lines) == 0 {
		return
	}
	section(w, title, c)
	tw := tabwriter.NewWriter(w, 0, 4, 3, ' ', 0)
	for _, l := range lines {
		fmt.Fprintf(tw, "  %s\t%s\n", cyan(l[0], c), dim(l[1], c))
	}
	tw.Flush()
	fmt.Fprintln(w)
}

func section(w io.Writer, title string, c bool) {
	fmt.Fprintln(w, boldCyan(title, c))
}
