package bluevia

import (
	"time"

	"github.com/bluevia-go/bluevia/internal/mmsbody"
)

// MMS attachments.
type (
	Attachment       = mmsbody.Attachment
	TextAttachment   = mmsbody.Text
	BinaryAttachment = mmsbody.Binary
	FileAttachment   = mmsbody.File
	// Part is a received attachment: its media type and raw bytes.
	Part = mmsbody.Part
)

// Delivery states reported for sent messages.
const (
	StatusDelivered          = "delivered"
	StatusDeliveryImpossible = "delivery_impossible"
	StatusUndelivered        = "undelivered"
	StatusExpired            = "expired"
	StatusWaiting            = "waiting"
	StatusSent               = "sent"
)

// DeliveryStatus is the delivery state of a sent message. Address has no
// transport prefix.
type DeliveryStatus struct {
	ID      string `json:"id,omitempty"`
	Address string `json:"address"`
	Status  string `json:"status"`
}

// Final reports whether the status can no longer change.
func (d *DeliveryStatus) Final() bool {
	switch d.Status {
	case StatusDelivered, StatusDeliveryImpossible, StatusUndelivered, StatusExpired:
		return true
	}
	return false
}

// ReceivedSMS is an SMS sent to the application's short code.
type ReceivedSMS struct {
	ID   string `json:"id"`
	From string `json:"from"`
	// Obfuscated is set when From is an alias rather than a phone number.
	Obfuscated bool      `json:"obfuscated"`
	To         string    `json:"to"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
}

// ReceivedMMS is an MMS sent to the application's short code.
type ReceivedMMS struct {
	ID          string    `json:"id"`
	From        string    `json:"from"`
	Obfuscated  bool      `json:"obfuscated"`
	To          string    `json:"to"`
	Subject     string    `json:"subject"`
	Timestamp   time.Time `json:"timestamp"`
	Attachments []Part    `json:"attachments,omitempty"`
}
