package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/bluevia-go/bluevia"
	"github.com/bluevia-go/bluevia/internal/store"
)

var smsCmd = &cobra.Command{
	Use:   "sms",
	Short: "Send SMS and read the SMS inbox",
}

var smsSendCmd = &cobra.Command{
	Use:   "send <to> <message>",
	Short: "Send an SMS",
	Long: `Send an SMS to a phone number in international format (+34600000000) or to
an obfuscated alias received earlier.`,
	Args: cobra.ExactArgs(2),
	RunE: runSMSSend,
}

var smsStatusCmd = &cobra.Command{
	Use:   "status <id>",
	Short: "Show the delivery status of a sent SMS",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDeliveryStatus(cmd, args[0], func(c *bluevia.Client) statusFunc { return c.SMSDeliveryStatus })
	},
}

var smsInboxCmd = &cobra.Command{
	Use:   "inbox",
	Short: "Fetch the SMS received since the last fetch",
	RunE:  runSMSInbox,
}

func init() {
	addSendFlags(smsSendCmd)
	addStatusFlags(smsStatusCmd)

	smsCmd.AddCommand(smsSendCmd)
	smsCmd.AddCommand(smsStatusCmd)
	smsCmd.AddCommand(smsInboxCmd)
}

func runSMSSend(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	to, err := parseDestination(cfg, args[0])
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Logging.Level, cfg.Logging.Format)
	client, err := newAPIClient(cfg, logger, true)
	if err != nil {
		return err
	}

	from, _ := cmd.Flags().GetString("from")
	ctx := commandContext(cmd)
	id, err := client.SendSMS(ctx, bluevia.OutboundSMS{
		To:          to,
		Message:     args[1],
		CallbackURL: callbackURL(cmd, cfg),
		From:        from,
	})
	if err != nil {
		return err
	}

	recordMessages(ctx, cfg, logger, true, &store.Message{
		Kind:      store.KindSMS,
		Direction: store.Outbound,
		ID:        id,
		Address:   to,
		Body:      args[1],
	})

	if outputFormat(cmd) == "json" {
		return json.NewEncoder(os.Stdout).Encode(map[string]string{"id": id, "to": to})
	}
	fmt.Println(id)
	return nil
}

func runSMSInbox(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Logging.Level, cfg.Logging.Format)
	client, err := newAPIClient(cfg, logger, false)
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	list, err := client.ReceivedSMS(ctx)
	if err != nil {
		return err
	}

	recorded := make([]*store.Message, len(list))
	for i, m := range list {
		recorded[i] = &store.Message{
			Kind:       store.KindSMS,
			Direction:  store.Inbound,
			ID:         m.ID,
			Address:    m.From,
			Obfuscated: m.Obfuscated,
			Body:       m.Message,
		}
	}
	recordMessages(ctx, cfg, logger, false, recorded...)

	outFmt := outputFormat(cmd)
	if outFmt == "json" {
		if list == nil {
			list = []bluevia.ReceivedSMS{}
		}
		return json.NewEncoder(os.Stdout).Encode(list)
	}

	cols := []string{"ID", "From", "To", "Received", "Message"}
	rows := make([][]string, len(list))
	for i, m := range list {
		rows[i] = []string{m.ID, m.From, m.To, formatTime(m.Timestamp), m.Message}
	}
	if outFmt == "csv" {
		return writeCSVStdout(cols, rows)
	}
	if len(list) == 0 {
		fmt.Println("No new SMS.")
		return nil
	}
	writeTable(os.Stdout, cols, rows)
	fmt.Printf("\n%d sms\n", len(list))
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(time.DateTime)
}
