package cli

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/bluevia-go/bluevia"
	"github.com/bluevia-go/bluevia/internal/imaging"
	"github.com/bluevia-go/bluevia/internal/mmsbody"
	"github.com/bluevia-go/bluevia/internal/store"
)

var mmsCmd = &cobra.Command{
	Use:   "mms",
	Short: "Send MMS and read the MMS inbox",
}

var mmsSendCmd = &cobra.Command{
	Use:   "send <to>",
	Short: "Send an MMS",
	Long: `Send an MMS with a subject, text parts and file attachments. Parts are sent
in the order given: all --text parts first, then all --attach files.

Large JPEG and PNG attachments can be scaled down before sending:
  bluevia mms send +34600000000 --subject Photo --attach photo.jpg --max-width 640`,
	Args: cobra.ExactArgs(1),
	RunE: runMMSSend,
}

var mmsStatusCmd = &cobra.Command{
	Use:   "status <id>",
	Short: "Show the delivery status of a sent MMS",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDeliveryStatus(cmd, args[0], func(c *bluevia.Client) statusFunc { return c.MMSDeliveryStatus })
	},
}

var mmsInboxCmd = &cobra.Command{
	Use:   "inbox",
	Short: "List the MMS received since the last fetch",
	RunE:  runMMSInbox,
}

var mmsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Fetch a received MMS with its attachments",
	Args:  cobra.ExactArgs(1),
	RunE:  runMMSGet,
}

func init() {
	addSendFlags(mmsSendCmd)
	mmsSendCmd.Flags().String("subject", "", "MMS subject")
	mmsSendCmd.Flags().StringArray("text", nil, "Text part (repeatable)")
	mmsSendCmd.Flags().StringArray("attach", nil, "File to attach (repeatable)")
	mmsSendCmd.Flags().Int("max-width", 0, "Scale JPEG/PNG attachments down to this width")
	mmsSendCmd.Flags().Int("max-height", 0, "Scale JPEG/PNG attachments down to this height")
	mmsSendCmd.Flags().Int("quality", imaging.DefaultQuality, "JPEG quality for scaled attachments (1-100)")

	addStatusFlags(mmsStatusCmd)

	mmsInboxCmd.Flags().Bool("details", false, "Fetch every MMS with its attachments")

	mmsGetCmd.Flags().String("save-dir", "", "Write the attachments to this directory")

	mmsCmd.AddCommand(mmsSendCmd)
	mmsCmd.AddCommand(mmsStatusCmd)
	mmsCmd.AddCommand(mmsInboxCmd)
	mmsCmd.AddCommand(mmsGetCmd)
}

func runMMSSend(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	to, err := parseDestination(cfg, args[0])
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Logging.Level, cfg.Logging.Format)

	subject, _ := cmd.Flags().GetString("subject")
	texts, _ := cmd.Flags().GetStringArray("text")
	files, _ := cmd.Flags().GetStringArray("attach")
	if len(texts) == 0 && len(files) == 0 {
		return fmt.Errorf("nothing to send: use --text or --attach")
	}

	limits := imaging.Limits{}
	limits.MaxWidth, _ = cmd.Flags().GetInt("max-width")
	limits.MaxHeight, _ = cmd.Flags().GetInt("max-height")
	limits.Quality, _ = cmd.Flags().GetInt("quality")
	if err := limits.Validate(); err != nil {
		return err
	}

	attachments := make([]bluevia.Attachment, 0, len(texts)+len(files))
	for _, t := range texts {
		attachments = append(attachments, bluevia.TextAttachment(t))
	}
	for _, path := range files {
		a, err := loadAttachment(path, limits, logger)
		if err != nil {
			return err
		}
		attachments = append(attachments, a)
	}

	client, err := newAPIClient(cfg, logger, true)
	if err != nil {
		return err
	}
	from, _ := cmd.Flags().GetString("from")
	ctx := commandContext(cmd)
	id, err := client.SendMMS(ctx, bluevia.OutboundMMS{
		To:          to,
		Subject:     subject,
		CallbackURL: callbackURL(cmd, cfg),
		From:        from,
		Attachments: attachments,
	})
	if err != nil {
		return err
	}

	recordMessages(ctx, cfg, logger, true, &store.Message{
		Kind:        store.KindMMS,
		Direction:   store.Outbound,
		ID:          id,
		Address:     to,
		Body:        subject,
		Attachments: len(attachments),
	})

	if outputFormat(cmd) == "json" {
		return json.NewEncoder(os.Stdout).Encode(map[string]string{"id": id, "to": to})
	}
	fmt.Println(id)
	return nil
}

// loadAttachment reads a file attachment, scaling images that exceed limits.
func loadAttachment(path string, limits imaging.Limits, logger *slog.Logger) (bluevia.Attachment, error) {
	ct := mmsbody.TypeByName(path)
	if ct == "" {
		return nil, fmt.Errorf("cannot tell the content type of %s from its extension", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading attachment: %w", err)
	}
	if limits.Enabled() {
		out, changed, err := imaging.Shrink(data, ct, limits)
		if err != nil {
			return nil, fmt.Errorf("scaling %s: %w", path, err)
		}
		if changed {
			logger.Debug("attachment scaled", "file", path, "from_bytes", len(data), "to_bytes", len(out))
			data = out
		}
	}
	return bluevia.BinaryAttachment{ContentType: ct, Data: data}, nil
}

func runMMSInbox(cmd *cobra.Command, args []string) error {
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
	ids, err := client.ReceivedMMS(ctx)
	if err != nil {
		return err
	}
	outFmt := outputFormat(cmd)

	if details, _ := cmd.Flags().GetBool("details"); !details {
		if outFmt == "json" {
			return json.NewEncoder(os.Stdout).Encode(ids)
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		return nil
	}

	list := make([]*bluevia.ReceivedMMS, 0, len(ids))
	for _, id := range ids {
		m, err := client.ReceivedMMSDetails(ctx, id)
		if err != nil {
			return fmt.Errorf("fetching mms %s: %w", id, err)
		}
		list = append(list, m)
	}
	recorded := make([]*store.Message, len(list))
	for i, m := range list {
		recorded[i] = inboundMMS(m)
	}
	recordMessages(ctx, cfg, logger, false, recorded...)

	if outFmt == "json" {
		return json.NewEncoder(os.Stdout).Encode(list)
	}
	cols := []string{"ID", "From", "To", "Received", "Subject", "Attachments"}
	rows := make([][]string, len(list))
	for i, m := range list {
		rows[i] = []string{m.ID, m.From, m.To, formatTime(m.Timestamp), m.Subject, strconv.Itoa(len(m.Attachments))}
	}
	if outFmt == "csv" {
		return writeCSVStdout(cols, rows)
	}
	if len(list) == 0 {
		fmt.Println("No new MMS.")
		return nil
	}
	writeTable(os.Stdout, cols, rows)
	fmt.Printf("\n%d mms\n", len(list))
	return nil
}

func inboundMMS(m *bluevia.ReceivedMMS) *store.Message {
	return &store.Message{
		Kind:        store.KindMMS,
		Direction:   store.Inbound,
		ID:          m.ID,
		Address:     m.From,
		Obfuscated:  m.Obfuscated,
		Body:        m.Subject,
		Attachments: len(m.Attachments),
	}
}

type attachmentInfo struct {
	Index       int    `json:"index"`
	ContentType string `json:"contentType"`
	Size        int    `json:"size"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
	Path        string `json:"path,omitempty"`
	Data        string `json:"data,omitempty"`
}

func runMMSGet(cmd *cobra.Command, args []string) error {
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
	m, err := client.ReceivedMMSDetails(ctx, args[0])
	if err != nil {
		return err
	}
	recordMessages(ctx, cfg, logger, false, inboundMMS(m))

	saveDir, _ := cmd.Flags().GetString("save-dir")
	if saveDir != "" {
		if err := os.MkdirAll(saveDir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", saveDir, err)
		}
	}

	outFmt := outputFormat(cmd)
	infos := make([]attachmentInfo, len(m.Attachments))
	for i, p := range m.Attachments {
		info := attachmentInfo{Index: i + 1, ContentType: p.ContentType, Size: len(p.Data)}
		if img, err := imaging.Inspect(p.Data); err == nil {
			info.Width, info.Height = img.Width, img.Height
		}
		if saveDir != "" {
			info.Path = filepath.Join(saveDir, fmt.Sprintf("%s-%d%s", safeName(m.ID), i+1, attachmentExt(p.ContentType)))
			if err := os.WriteFile(info.Path, p.Data, 0o644); err != nil {
				return fmt.Errorf("saving attachment %d: %w", i+1, err)
			}
		} else if outFmt == "json" {
			info.Data = base64.StdEncoding.EncodeToString(p.Data)
		}
		infos[i] = info
	}

	if outFmt == "json" {
		return json.NewEncoder(os.Stdout).Encode(map[string]any{
			"id":          m.ID,
			"from":        m.From,
			"obfuscated":  m.Obfuscated,
			"to":          m.To,
			"subject":     m.Subject,
			"timestamp":   m.Timestamp,
			"attachments": infos,
		})
	}

	fmt.Printf("ID:        %s\n", m.ID)
	fmt.Printf("From:      %s\n", m.From)
	fmt.Printf("To:        %s\n", m.To)
	fmt.Printf("Received:  %s\n", formatTime(m.Timestamp))
	fmt.Printf("Subject:   %s\n", m.Subject)
	if len(infos) == 0 {
		return nil
	}
	fmt.Println()
	cols := []string{"#", "Content Type", "Size", "Dimensions", "Saved To"}
	rows := make([][]string, len(infos))
	for i, info := range infos {
		dims := ""
		if info.Width > 0 {
			dims = fmt.Sprintf("%dx%d", info.Width, info.Height)
		}
		rows[i] = []string{strconv.Itoa(info.Index), info.ContentType, strconv.Itoa(info.Size), dims, info.Path}
	}
	writeTable(os.Stdout, cols, rows)
	return nil
}

func attachmentExt(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ".bin"
	}
	switch mt {
	case "text/plain":
		return ".txt"
	case "image/jpeg":
		return ".jpg"
	}
	if exts, _ := mime.ExtensionsByType(mt); len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}

// safeName keeps message ids usable as file names.
func safeName(id string) string {
	out := []rune(id)
	for i, r := range out {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
		default:
			out[i] = '_'
		}
	}
	return string(out)
}
