package bluevia

import (
	"context"
	"errors"
	"net/url"

	"github.com/bluevia-go/bluevia/internal/sms"
)

// OutboundSMS is an SMS to send.
type OutboundSMS struct {
	// To is a phone number in international format without '+', or an
	// obfuscated alias received earlier.
	To      string
	Message string
	// CallbackURL receives delivery status notifications.
	CallbackURL string
	// From is the sender. Partner mode only.
	From string
}

type smsRequest struct {
	To          string `json:"to"`
	Message     string `json:"message"`
	CallbackURL string `json:"callbackUrl,omitempty"`
	From        string `json:"from,omitempty"`
}

// SendSMS sends an SMS and returns its id.
func (c *Client) SendSMS(ctx context.Context, msg OutboundSMS) (string, error) {
	if msg.To == "" {
		return "", errors.New("bluevia: sms: destination is required")
	}
	req := smsRequest{
		To:          sms.FormatAddress(msg.To),
		Message:     msg.Message,
		CallbackURL: msg.CallbackURL,
	}
	if msg.From != "" {
		req.From = sms.FormatAddress(msg.From)
	}

	res, err := c.do(ctx, pathSMSOutbound, jsonBody{Value: req}, authBearer)
	if err != nil {
		return "", err
	}
	id, ok := stringField(jsonObject(res), "id")
	if !ok {
		return "", &MissingFieldError{Field: "id"}
	}
	c.logger.Info("sms sent", "id", id)
	return id, nil
}

// SMSDeliveryStatus returns the delivery status of a sent SMS.
func (c *Client) SMSDeliveryStatus(ctx context.Context, id string) (*DeliveryStatus, error) {
	return c.deliveryStatus(ctx, pathSMSOutbound, id)
}

// ReceivedSMS returns the SMS received since the last call.
func (c *Client) ReceivedSMS(ctx context.Context) ([]ReceivedSMS, error) {
	res, err := c.do(ctx, pathSMSInbound, nil, authBearer)
	if err != nil {
		return nil, err
	}
	out := []ReceivedSMS{}
	if err := decodePayload(jsonList(res), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) deliveryStatus(ctx context.Context, outbound, id string) (*DeliveryStatus, error) {
	if id == "" {
		return nil, errors.New("bluevia: message id is required")
	}
	res, err := c.do(ctx, outbound+"/"+url.PathEscape(id)+"/deliverystatus", nil, authBearer)
	if err != nil {
		return nil, err
	}
	list := jsonList(res)
	if len(list) == 0 {
		return nil, &MissingFieldError{Field: "status"}
	}
	var ds DeliveryStatus
	if err := decodePayload(list[0], &ds); err != nil {
		return nil, err
	}
	if ds.ID == "" {
		ds.ID = id
	}
	return &ds, nil
}
