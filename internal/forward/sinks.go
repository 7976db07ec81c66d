package forward

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bluevia-go/bluevia/internal/store"
)

// LogSink writes every event to the logger.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink. A nil logger uses slog.Default().
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Forward(_ context.Context, e *Event) error {
	switch {
	case e.DeliveryStatus != nil:
		s.logger.Info("delivery status",
			"source", e.Source,
			"message_id", e.DeliveryStatus.ID,
			"address", e.DeliveryStatus.Address,
			"status", e.DeliveryStatus.Status,
		)
	case e.SMS != nil:
		s.logger.Info("received sms",
			"source", e.Source,
			"message_id", e.SMS.ID,
			"from", e.SMS.From,
			"obfuscated", e.SMS.Obfuscated,
			"to", e.SMS.To,
			"message", e.SMS.Message,
			"timestamp", e.SMS.Timestamp,
		)
	case e.MMS != nil:
		s.logger.Info("received mms",
			"source", e.Source,
			"message_id", e.MMS.ID,
			"from", e.MMS.From,
			"obfuscated", e.MMS.Obfuscated,
			"to", e.MMS.To,
			"subject", e.MMS.Subject,
			"attachments", len(e.MMS.Attachments),
			"timestamp", e.MMS.Timestamp,
		)
	default:
		return fmt.Errorf("log: empty %s event", e.Kind)
	}
	return nil
}

// Recorder is the part of *store.Store used by StoreSink.
type Recorder interface {
	RecordReceived(ctx context.Context, m *store.Message) error
	UpdateDeliveryStatus(ctx context.Context, id, status string) (int, error)
}

// StoreSink records received messages and applies delivery updates to the
// message log.
type StoreSink struct {
	rec    Recorder
	logger *slog.Logger
}

// NewStoreSink creates a StoreSink.
func NewStoreSink(rec Recorder, logger *slog.Logger) *StoreSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &StoreSink{rec: rec, logger: logger}
}

func (s *StoreSink) Name() string { return "store" }

func (s *StoreSink) Forward(ctx context.Context, e *Event) error {
	switch {
	case e.DeliveryStatus != nil:
		n, err := s.rec.UpdateDeliveryStatus(ctx, e.DeliveryStatus.ID, e.DeliveryStatus.Status)
		if errors.Is(err, store.ErrNotFound) {
			// Sent by another tool.
			s.logger.Debug("delivery status for unknown message", "message_id", e.DeliveryStatus.ID)
			return nil
		}
		if err != nil {
			return err
		}
		if n == 0 {
			s.logger.Debug("stale delivery status ignored",
				"message_id", e.DeliveryStatus.ID, "status", e.DeliveryStatus.Status)
		}
		return nil
	case e.SMS != nil:
		return s.rec.RecordReceived(ctx, &store.Message{
			Kind:       store.KindSMS,
			ID:         e.SMS.ID,
			Address:    e.SMS.From,
			Obfuscated: e.SMS.Obfuscated,
			Body:       e.SMS.Message,
		})
	case e.MMS != nil:
		return s.rec.RecordReceived(ctx, &store.Message{
			Kind:        store.KindMMS,
			ID:          e.MMS.ID,
			Address:     e.MMS.From,
			Obfuscated:  e.MMS.Obfuscated,
			Body:        e.MMS.Subject,
			Attachments: len(e.MMS.Attachments),
		})
	}
	return fmt.Errorf("store: empty %s event", e.Kind)
}
