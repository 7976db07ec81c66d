package bluevia

import "github.com/bluevia-go/bluevia/internal/mmsbody"

// Fields read from XML notifications.
var (
	deliveryStatusFields = []string{"id", "address", "status"}
	smsFields            = []string{"id", "from", "to", "message", "timestamp"}
)

// ParseDeliveryStatus parses a delivery status notification posted to a
// callback URL. The body may be JSON or XML.
func ParseDeliveryStatus(contentType string, body []byte) (*DeliveryStatus, error) {
	m, err := mmsbody.DecodeMetadata(contentType, body, deliveryStatusFields)
	if err != nil {
		return nil, err
	}
	var ds DeliveryStatus
	if err := decodePayload(m, &ds); err != nil {
		return nil, err
	}
	return &ds, nil
}

// ParseReceivedSMS parses a received SMS notification. The body may be JSON
// or XML.
func ParseReceivedSMS(contentType string, body []byte) (*ReceivedSMS, error) {
	m, err := mmsbody.DecodeMetadata(contentType, body, smsFields)
	if err != nil {
		return nil, err
	}
	var sms ReceivedSMS
	if err := decodePayload(m, &sms); err != nil {
		return nil, err
	}
	return &sms, nil
}

// ParseReceivedMMS parses a received MMS notification, a multipart body
// whose first part is JSON or XML metadata.
func ParseReceivedMMS(contentType string, body []byte) (*ReceivedMMS, error) {
	meta, parts, err := mmsbody.Parse(contentType, body, mmsFields)
	if err != nil {
		return nil, err
	}
	return decodeMMS(meta, parts)
}
