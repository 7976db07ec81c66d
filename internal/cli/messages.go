package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/bluevia-go/bluevia/internal/cli/ui"
	"github.com/bluevia-go/bluevia/internal/store"
)

var messagesCmd = &cobra.Command{
	Use:   "messages",
	Short: "Browse the local message log",
}

var messagesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sent and received messages, newest first",
	Example: `bluevia messages list
bluevia messages list --kind sms --direction inbound --limit 20
bluevia messages list --output csv > messages.csv`,
	RunE: runMessagesList,
}

var messagesShowCmd = &cobra.Command{
	Use:   "show <kind> <direction> <id>",
	Short: "Show one message",
	Args:  cobra.ExactArgs(3),
	RunE:  runMessagesShow,
}

func init() {
	messagesListCmd.Flags().String("kind", "", "Only sms or mms")
	messagesListCmd.Flags().String("direction", "", "Only outbound or inbound")
	messagesListCmd.Flags().Int("limit", 50, "Maximum number of messages")

	messagesCmd.AddCommand(messagesListCmd)
	messagesCmd.AddCommand(messagesShowCmd)
}

func openLog(cmd *cobra.Command) (*store.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	st, err := openStore(commandContext(cmd), cfg)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, errors.New(ui.FormatError("the message store is disabled", "bluevia config set store.enabled true"))
	}
	return st, nil
}

func runMessagesList(cmd *cobra.Command, args []string) error {
	kind, _ := cmd.Flags().GetString("kind")
	direction, _ := cmd.Flags().GetString("direction")
	limit, _ := cmd.Flags().GetInt("limit")
	switch kind {
	case "", store.KindSMS, store.KindMMS:
	default:
		return fmt.Errorf("--kind must be sms or mms, got %q", kind)
	}
	switch direction {
	case "", store.Outbound, store.Inbound:
	default:
		return fmt.Errorf("--direction must be outbound or inbound, got %q", direction)
	}

	st, err := openLog(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	msgs, err := st.List(commandContext(cmd), store.ListFilter{Kind: kind, Direction: direction, Limit: limit})
	if err != nil {
		return err
	}

	outFmt := outputFormat(cmd)
	if outFmt == "json" {
		if msgs == nil {
			msgs = []store.Message{}
		}
		return json.NewEncoder(os.Stdout).Encode(msgs)
	}

	cols := []string{"Kind", "Direction", "ID", "Address", "Body", "Parts", "Status", "Updated"}
	rows := make([][]string, len(msgs))
	for i, m := range msgs {
		rows[i] = []string{
			m.Kind, m.Direction, m.ID, m.Address, m.Body,
			strconv.Itoa(m.Attachments), m.Status, formatTime(m.UpdatedAt),
		}
	}
	if outFmt == "csv" {
		return writeCSVStdout(cols, rows)
	}
	if len(msgs) == 0 {
		fmt.Println("No messages.")
		return nil
	}
	writeTable(os.Stdout, cols, rows)
	fmt.Printf("\n%d message(s)\n", len(msgs))
	return nil
}

func runMessagesShow(cmd *cobra.Command, args []string) error {
	st, err := openLog(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	m, err := st.Get(commandContext(cmd), args[0], args[1], args[2])
	if err != nil {
		return err
	}
	if outputFormat(cmd) == "json" {
		return json.NewEncoder(os.Stdout).Encode(m)
	}
	c := colorEnabledFd(os.Stdout.Fd())
	fmt.Printf("%s %s %s\n", bold(m.ID, c), dim(m.Kind+" "+m.Direction, c), statusColor(m.Status, c))
	fmt.Printf("Address:   %s\n", m.Address)
	fmt.Printf("Body:      %s\n", m.Body)
	if m.Attachments > 0 {
		fmt.Printf("Parts:     %d\n", m.Attachments)
	}
	fmt.Printf("Created:   %s\n", formatTime(m.CreatedAt))
	fmt.Printf("Updated:   %s\n", formatTime(m.UpdatedAt))
	return nil
}
