// Package forward delivers notification events (delivery status updates and
// received messages) to the configured sinks.
package forward

import (
	"context"
	"time"

	"github.com/bluevia-go/bluevia"
)

// Event kinds.
const (
	KindDeliveryStatus = "delivery_status"
	KindReceivedSMS    = "received_sms"
	KindReceivedMMS    = "received_mms"
)

// Event sources.
const (
	SourceNotification = "notification"
	SourcePoll         = "poll"
)

// Event is one notification. Exactly one of DeliveryStatus, SMS or MMS is set,
// matching Kind.
type Event struct {
	Kind           string                  `json:"kind"`
	Source         string                  `json:"source"`
	ReceivedAt     time.Time               `json:"receivedAt"`
	DeliveryStatus *bluevia.DeliveryStatus `json:"deliveryStatus,omitempty"`
	SMS            *bluevia.ReceivedSMS    `json:"sms,omitempty"`
	MMS            *bluevia.ReceivedMMS    `json:"mms,omitempty"`
}

// DeliveryStatusEvent wraps a delivery status update.
func DeliveryStatusEvent(source string, ds *bluevia.DeliveryStatus) *Event {
	return &Event{Kind: KindDeliveryStatus, Source: source, ReceivedAt: time.Now().UTC(), DeliveryStatus: ds}
}

// SMSEvent wraps a received SMS.
func SMSEvent(source string, sms *bluevia.ReceivedSMS) *Event {
	return &Event{Kind: KindReceivedSMS, Source: source, ReceivedAt: time.Now().UTC(), SMS: sms}
}

// MMSEvent wraps a received MMS.
func MMSEvent(source string, mms *bluevia.ReceivedMMS) *Event {
	return &Event{Kind: KindReceivedMMS, Source: source, ReceivedAt: time.Now().UTC(), MMS: mms}
}

// MessageID returns the id of the message the event refers to.
func (e *Event) MessageID() string {
	switch {
	case e.DeliveryStatus != nil:
		return e.DeliveryStatus.ID
	case e.SMS != nil:
		return e.SMS.ID
	case e.MMS != nil:
		return e.MMS.ID
	}
	return ""
}

// WithoutAttachmentData returns a copy of the event whose MMS attachments keep
// their content types but drop their bytes.
func (e *Event) WithoutAttachmentData() *Event {
	if e.MMS == nil || len(e.MMS.Attachments) == 0 {
		return e
	}
	out := *e
	mms := *e.MMS
	mms.Attachments = make([]bluevia.Part, len(e.MMS.Attachments))
	for i, p := range e.MMS.Attachments {
		mms.Attachments[i] = bluevia.Part{ContentType: p.ContentType}
	}
	out.MMS = &mms
	return &out
}

// Sink receives events. Forward may be retried, so sinks should tolerate
// seeing the same event twice.
type Sink interface {
	Name() string
	Forward(ctx context.Context, e *Event) error
}
