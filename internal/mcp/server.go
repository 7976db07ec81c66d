// Package mcp implements a Model Context Protocol server for bluevia.
// It exposes the BlueVia SMS and MMS operations as MCP tools, allowing AI
// coding tools to send messages and read the inboxes through structured
// tool calls.
package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bluevia-go/bluevia"
	"github.com/bluevia-go/bluevia/internal/sms"
)

// API is the part of *bluevia.Client the tools call.
type API interface {
	SendSMS(ctx context.Context, msg bluevia.OutboundSMS) (string, error)
	SMSDeliveryStatus(ctx context.Context, id string) (*bluevia.DeliveryStatus, error)
	ReceivedSMS(ctx context.Context) ([]bluevia.ReceivedSMS, error)
	SendMMS(ctx context.Context, msg bluevia.OutboundMMS) (string, error)
	MMSDeliveryStatus(ctx context.Context, id string) (*bluevia.DeliveryStatus, error)
	ReceivedMMS(ctx context.Context) ([]string, error)
	ReceivedMMSDetails(ctx context.Context, id string) (*bluevia.ReceivedMMS, error)
}

// Config holds the sending defaults of the MCP server.
type Config struct {
	// CallbackURL receives delivery status notifications. Empty sends
	// without one.
	CallbackURL string
	// AllowedCountries restricts phone destinations (ISO 3166-1 alpha-2).
	AllowedCountries []string
	Version          string
}

type tools struct {
	api API
	cfg Config
}

// NewServer creates a new MCP server wired to a BlueVia client.
func NewServer(api API, cfg Config) *mcp.Server {
	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "bluevia-mcp",
		Title:   "BlueVia MCP Server",
		Version: version,
	}, &mcp.ServerOptions{
		Instructions: "Send SMS and MMS through BlueVia, check their delivery status " +
			"and read the messages received on your application's short code.",
	})

	t := &tools{api: api, cfg: cfg}
	registerTools(server, t)
	registerResources(server, t)
	registerPrompts(server)

	return server
}

// --- Input/Output types for tools ---

type SendSMSInput struct {
	To      string `json:"to" jsonschema:"Destination: international phone number (e.g. +34600000000) or an obfuscated alias"`
	Message string `json:"message" jsonschema:"Message text"`
}

type SendMMSInput struct {
	To          string            `json:"to" jsonschema:"Destination: international phone number or an obfuscated alias"`
	Subject     string            `json:"subject" jsonschema:"MMS subject"`
	Text        string            `json:"text,omitempty" jsonschema:"Optional text part sent before the attachments"`
	Attachments []AttachmentInput `json:"attachments,omitempty" jsonschema:"Media attachments"`
}

type AttachmentInput struct {
	ContentType string `json:"contentType" jsonschema:"MIME type, e.g. image/jpeg"`
	Data        string `json:"data" jsonschema:"Base64-encoded content"`
}

type SentOutput struct {
	ID string `json:"id"`
}

type MessageIDInput struct {
	ID string `json:"id" jsonschema:"Message id returned when the message was sent or listed"`
}

type DeliveryStatusOutput struct {
	ID      string `json:"id"`
	Address string `json:"address"`
	Status  string `json:"status"`
	Final   bool   `json:"final"`
}

type EmptyInput struct{}

type SMSOutput struct {
	ID         string `json:"id"`
	From       string `json:"from"`
	Obfuscated bool   `json:"obfuscated"`
	To         string `json:"to"`
	Message    string `json:"message"`
	Timestamp  string `json:"timestamp"`
}

type ReceivedSMSOutput struct {
	Messages []SMSOutput `json:"messages"`
}

type MMSOutput struct {
	ID          string            `json:"id"`
	From        string            `json:"from"`
	Obfuscated  bool              `json:"obfuscated"`
	To          string            `json:"to"`
	Subject     string            `json:"subject"`
	Timestamp   string            `json:"timestamp"`
	Attachments []AttachmentInput `json:"attachments"`
}

type ReceivedMMSOutput struct {
	IDs []string `json:"ids"`
}

// --- Tool registration ---

func registerTools(s *mcp.Server, t *tools) {
	// SMS tools
	mcp.AddTool(s, &mcp.Tool{
		Name:        "send_sms",
		Description: "Send an SMS and return its id",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in SendSMSInput) (*mcp.CallToolResult, SentOutput, error) {
		return t.handleSendSMS(ctx, in)
	})

	mcp.AddTool(s, &mcp.Tool{
		Name:        "sms_delivery_status",
		Description: "Get the delivery status of a sent SMS",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in MessageIDInput) (*mcp.CallToolResult, DeliveryStatusOutput, error) {
		return handleDeliveryStatus(ctx, t.api.SMSDeliveryStatus, in)
	})

	mcp.AddTool(s, &mcp.Tool{
		Name:        "received_sms",
		Description: "Fetch the SMS received since the last call. BlueVia removes them from the inbox once read",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in EmptyInput) (*mcp.CallToolResult, ReceivedSMSOutput, error) {
		return t.handleReceivedSMS(ctx)
	})

	// MMS tools
	mcp.AddTool(s, &mcp.Tool{
		Name:        "send_mms",
		Description: "Send an MMS with an optional text part and base64-encoded attachments",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in SendMMSInput) (*mcp.CallToolResult, SentOutput, error) {
		return t.handleSendMMS(ctx, in)
	})

	mcp.AddTool(s, &mcp.Tool{
		Name:        "mms_delivery_status",
		Description: "Get the delivery status of a sent MMS",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in MessageIDInput) (*mcp.CallToolResult, DeliveryStatusOutput, error) {
		return handleDeliveryStatus(ctx, t.api.MMSDeliveryStatus, in)
	})

	mcp.AddTool(s, &mcp.Tool{
		Name:        "received_mms",
		Description: "List the ids of the MMS waiting in the inbox",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in EmptyInput) (*mcp.CallToolResult, ReceivedMMSOutput, error) {
		return t.handleReceivedMMS(ctx)
	})

	mcp.AddTool(s, &mcp.Tool{
		Name:        "received_mms_details",
		Description: "Get a received MMS: sender, subject and attachments (data is base64)",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in MessageIDInput) (*mcp.CallToolResult, MMSOutput, error) {
		return t.handleReceivedMMSDetails(ctx, in)
	})
}

// --- Tool handlers ---

func (t *tools) destination(input string) (string, error) {
	to, err := sms.ParseDestination(input)
	if err != nil {
		return "", fmt.Errorf("invalid destination %q: %w", input, err)
	}
	if sms.IsPhoneNumber(to) && !sms.IsAllowedCountry(to, t.cfg.AllowedCountries) {
		return "", fmt.Errorf("destination %q is outside the allowed countries %v", input, t.cfg.AllowedCountries)
	}
	return to, nil
}

func (t *tools) handleSendSMS(ctx context.Context, in SendSMSInput) (*mcp.CallToolResult, SentOutput, error) {
	to, err := t.destination(in.To)
	if err != nil {
		return nil, SentOutput{}, err
	}
	id, err := t.api.SendSMS(ctx, bluevia.OutboundSMS{
		To:          to,
		Message:     in.Message,
		CallbackURL: t.cfg.CallbackURL,
	})
	if err != nil {
		return nil, SentOutput{}, err
	}
	return nil, SentOutput{ID: id}, nil
}

func (t *tools) handleSendMMS(ctx context.Context, in SendMMSInput) (*mcp.CallToolResult, SentOutput, error) {
	to, err := t.destination(in.To)
	if err != nil {
		return nil, SentOutput{}, err
	}
	msg := bluevia.OutboundMMS{
		To:          to,
		Subject:     in.Subject,
		CallbackURL: t.cfg.CallbackURL,
	}
	if in.Text != "" {
		msg.Attachments = append(msg.Attachments, bluevia.TextAttachment(in.Text))
	}
	for i, a := range in.Attachments {
		data, err := base64.StdEncoding.DecodeString(a.Data)
		if err != nil {
			return nil, SentOutput{}, fmt.Errorf("attachment %d: invalid base64: %w", i, err)
		}
		msg.Attachments = append(msg.Attachments, bluevia.BinaryAttachment{ContentType: a.ContentType, Data: data})
	}

	id, err := t.api.SendMMS(ctx, msg)
	if err != nil {
		return nil, SentOutput{}, err
	}
	return nil, SentOutput{ID: id}, nil
}

func handleDeliveryStatus(ctx context.Context, fetch func(context.Context, string) (*bluevia.DeliveryStatus, error), in MessageIDInput) (*mcp.CallToolResult, DeliveryStatusOutput, error) {
	if in.ID == "" {
		return nil, DeliveryStatusOutput{}, fmt.Errorf("id is required")
	}
	ds, err := fetch(ctx, in.ID)
	if err != nil {
		return nil, DeliveryStatusOutput{}, err
	}
	return nil, DeliveryStatusOutput{
		ID:      ds.ID,
		Address: ds.Address,
		Status:  ds.Status,
		Final:   ds.Final(),
	}, nil
}

func (t *tools) handleReceivedSMS(ctx context.Context) (*mcp.CallToolResult, ReceivedSMSOutput, error) {
	msgs, err := t.api.ReceivedSMS(ctx)
	if err != nil {
		return nil, ReceivedSMSOutput{}, err
	}
	out := ReceivedSMSOutput{Messages: make([]SMSOutput, 0, len(msgs))}
	for _, m := range msgs {
		out.Messages = append(out.Messages, SMSOutput{
			ID:         m.ID,
			From:       m.From,
			Obfuscated: m.Obfuscated,
			To:         m.To,
			Message:    m.Message,
			Timestamp:  m.Timestamp.Format(time.RFC3339Nano),
		})
	}
	return nil, out, nil
}

func (t *tools) handleReceivedMMS(ctx context.Context) (*mcp.CallToolResult, ReceivedMMSOutput, error) {
	ids, err := t.api.ReceivedMMS(ctx)
	if err != nil {
		return nil, ReceivedMMSOutput{}, err
	}
	if ids == nil {
		ids = []string{}
	}
	return nil, ReceivedMMSOutput{IDs: ids}, nil
}

func (t *tools) handleReceivedMMSDetails(ctx context.Context, in MessageIDInput) (*mcp.CallToolResult, MMSOutput, error) {
	if in.ID == "" {
		return nil, MMSOutput{}, fmt.Errorf("id is required")
	}
	mms, err := t.api.ReceivedMMSDetails(ctx, in.ID)
	if err != nil {
		return nil, MMSOutput{}, err
	}
	out := MMSOutput{
		ID:          mms.ID,
		From:        mms.From,
		Obfuscated:  mms.Obfuscated,
		To:          mms.To,
		Subject:     mms.Subject,
		Timestamp:   mms.Timestamp.Format(time.RFC3339Nano),
		Attachments: make([]AttachmentInput, 0, len(mms.Attachments)),
	}
	for _, p := range mms.Attachments {
		out.Attachments = append(out.Attachments, AttachmentInput{
			ContentType: p.ContentType,
			Data:        base64.StdEncoding.EncodeToString(p.Data),
		})
	}
	return nil, out, nil
}

// --- Resource registration ---

func registerResources(s *mcp.Server, t *tools) {
	s.AddResource(&mcp.Resource{
		URI:         "bluevia://settings",
		Name:        "Sending Settings",
		Description: "Callback URL and allowed destination countries used when sending",
		MIMEType:    "application/json",
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		b, err := json.MarshalIndent(map[string]any{
			"callback_url":      t.cfg.CallbackURL,
			"allowed_countries": t.cfg.AllowedCountries,
		}, "", "  ")
		if err != nil {
			return nil, err
		}
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{{
				URI:      "bluevia://settings",
				Text:     string(b),
				MIMEType: "application/json",
			}},
		}, nil
	})
}

// --- Prompt registration ---

func registerPrompts(s *mcp.Server) {
	s.AddPrompt(&mcp.Prompt{
		Name:        "answer-inbox",
		Description: "Read the SMS inbox and draft replies",
		Arguments:   []*mcp.PromptArgument{},
	}, func(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		return &mcp.GetPromptResult{
			Description: "Answer received SMS",
			Messages: []*mcp.PromptMessage{{
				Role: "user",
				Content: &mcp.TextContent{
					Text: "Use received_sms to fetch new messages. For each one, draft a short reply " +
						"and show it to me. Only call send_sms after I confirm. Received messages " +
						"are removed from the inbox once read, so list everything you fetched.",
				},
			}},
		}, nil
	})

	s.AddPrompt(&mcp.Prompt{
		Name:        "track-delivery",
		Description: "Follow a sent message until it reaches a final status",
		Arguments: []*mcp.PromptArgument{
			{Name: "id", Description: "Id of the sent message", Required: true},
			{Name: "kind", Description: "sms or mms", Required: false},
		},
	}, func(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		id := req.Params.Arguments["id"]
		tool := "sms_delivery_status"
		if req.Params.Arguments["kind"] == "mms" {
			tool = "mms_delivery_status"
		}
		return &mcp.GetPromptResult{
			Description: "Track delivery of " + id,
			Messages: []*mcp.PromptMessage{{
				Role: "user",
				Content: &mcp.TextContent{
					Text: fmt.Sprintf(
						"Call %s with id %q and report the status. If the result is not final, "+
							"explain what the status means and check again when I ask.", tool, id),
				},
			}},
		}, nil
	})
}
