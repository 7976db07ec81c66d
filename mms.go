package bluevia

import (
	"context"
	"errors"
	"net/url"
	"strconv"

	"github.com/bluevia-go/bluevia/internal/mmsbody"
	"github.com/bluevia-go/bluevia/internal/sms"
)

// OutboundMMS is an MMS to send.
type OutboundMMS struct {
	To          string
	Subject     string
	CallbackURL string
	// From is the sender. Partner mode only.
	From string
	// Attachments are sent in order after the metadata part.
	Attachments []Attachment
}

type mmsRequest struct {
	To          string `json:"to"`
	Subject     string `json:"subject"`
	CallbackURL string `json:"callbackUrl,omitempty"`
	From        string `json:"from,omitempty"`
}

// SendMMS sends an MMS and returns its id.
func (c *Client) SendMMS(ctx context.Context, msg OutboundMMS) (string, error) {
	if msg.To == "" {
		return "", errors.New("bluevia: mms: destination is required")
	}
	meta := mmsRequest{
		To:          sms.FormatAddress(msg.To),
		Subject:     msg.Subject,
		CallbackURL: msg.CallbackURL,
	}
	if msg.From != "" {
		meta.From = sms.FormatAddress(msg.From)
	}

	res, err := c.do(ctx, pathMMSOutbound, multipartBody{Metadata: meta, Attachments: msg.Attachments}, authBearer)
	if err != nil {
		return "", err
	}
	id, ok := stringField(jsonObject(res), "id")
	if !ok {
		return "", &MissingFieldError{Field: "id"}
	}
	c.logger.Info("mms sent", "id", id, "attachments", len(msg.Attachments))
	return id, nil
}

// MMSDeliveryStatus returns the delivery status of a sent MMS.
func (c *Client) MMSDeliveryStatus(ctx context.Context, id string) (*DeliveryStatus, error) {
	return c.deliveryStatus(ctx, pathMMSOutbound, id)
}

// ReceivedMMS returns the ids of the MMS received since the last call. Use
// ReceivedMMSDetails to fetch each one.
func (c *Client) ReceivedMMS(ctx context.Context) ([]string, error) {
	res, err := c.do(ctx, pathMMSInbound, nil, authBearer)
	if err != nil {
		return nil, err
	}
	ids := []string{}
	for _, item := range jsonList(res) {
		switch v := item.(type) {
		case string:
			ids = append(ids, v)
		case float64:
			ids = append(ids, strconv.FormatFloat(v, 'f', -1, 64))
		case map[string]any:
			id, ok := stringField(v, "id")
			if !ok {
				return nil, &MissingFieldError{Field: "id"}
			}
			ids = append(ids, id)
		default:
			return nil, &ValueError{Format: "JSON", Err: errors.New("unexpected item in received MMS list")}
		}
	}
	return ids, nil
}

// ReceivedMMSDetails returns a received MMS with its attachments.
func (c *Client) ReceivedMMSDetails(ctx context.Context, id string) (*ReceivedMMS, error) {
	if id == "" {
		return nil, errors.New("bluevia: message id is required")
	}
	res, err := c.do(ctx, pathMMSInbound+"/"+url.PathEscape(id), nil, authBearer)
	if err != nil {
		return nil, err
	}
	if res == nil || res.metadata == nil {
		return nil, mmsbody.NewContentTypeError("", -1, "received MMS details response is not multipart")
	}
	return decodeMMS(res.metadata, res.attachments)
}

func decodeMMS(metadata map[string]any, parts []Part) (*ReceivedMMS, error) {
	meta := make(map[string]any, len(metadata))
	for k, v := range metadata {
		if k != "attachments" {
			meta[k] = v
		}
	}
	var mms ReceivedMMS
	if err := decodePayload(meta, &mms); err != nil {
		return nil, err
	}
	mms.Attachments = parts
	return &mms, nil
}
