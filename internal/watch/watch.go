// Package watch polls the BlueVia inboxes on a cron schedule and forwards
// what arrives.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"

	"github.com/bluevia-go/bluevia"
	"github.com/bluevia-go/bluevia/internal/forward"
)

// Inbox is the part of *bluevia.Client the watcher polls.
type Inbox interface {
	ReceivedSMS(ctx context.Context) ([]bluevia.ReceivedSMS, error)
	ReceivedMMS(ctx context.Context) ([]string, error)
	ReceivedMMSDetails(ctx context.Context, id string) (*bluevia.ReceivedMMS, error)
}

// Dispatcher receives the polled messages.
type Dispatcher interface {
	Dispatch(ctx context.Context, e *forward.Event) int
}

// Result counts what one poll found.
type Result struct {
	SMS int
	MMS int
}

// Watcher polls on every tick of a cron schedule.
type Watcher struct {
	inbox    Inbox
	out      Dispatcher
	schedule string
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Watcher. The schedule is a standard five-field cron expression.
func New(inbox Inbox, out Dispatcher, schedule string, logger *slog.Logger) (*Watcher, error) {
	if !gronx.New().IsValid(schedule) {
		return nil, fmt.Errorf("invalid cron expression %q", schedule)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{inbox: inbox, out: out, schedule: schedule, logger: logger, now: time.Now}, nil
}

// NextRun returns the first tick strictly after ref.
func (w *Watcher) NextRun(ref time.Time) (time.Time, error) {
	next, err := gronx.NextTickAfter(w.schedule, ref, false)
	if err != nil {
		return time.Time{}, fmt.Errorf("computing next tick for %q: %w", w.schedule, err)
	}
	return next, nil
}

// Run polls on every tick until ctx is done. Poll errors are logged and the
// watcher waits for the next tick.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("inbox watcher started", "schedule", w.schedule)
	for {
		next, err := w.NextRun(w.now())
		if err != nil {
			return err
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			w.logger.Info("inbox watcher stopped")
			return nil
		case <-timer.C:
		}

		res, err := w.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Error("inbox poll failed", "error", err)
			continue
		}
		if res.SMS > 0 || res.MMS > 0 {
			w.logger.Info("inbox polled", "sms", res.SMS, "mms", res.MMS)
		}
	}
}

// Poll fetches both inboxes once and dispatches every message. MMS whose
// details cannot be fetched are logged and skipped.
func (w *Watcher) Poll(ctx context.Context) (Result, error) {
	var res Result

	smsList, err := w.inbox.ReceivedSMS(ctx)
	if err != nil {
		return res, fmt.Errorf("polling sms inbox: %w", err)
	}
	for i := range smsList {
		w.out.Dispatch(ctx, forward.SMSEvent(forward.SourcePoll, &smsList[i]))
		res.SMS++
	}

	ids, err := w.inbox.ReceivedMMS(ctx)
	if err != nil {
		return res, fmt.Errorf("polling mms inbox: %w", err)
	}
	for _, id := range ids {
		mms, err := w.inbox.ReceivedMMSDetails(ctx, id)
		if err != nil {
			w.logger.Warn("fetching mms failed", "message_id", id, "error", err)
			continue
		}
		w.out.Dispatch(ctx, forward.MMSEvent(forward.SourcePoll, mms))
		res.MMS++
	}
	return res, nil
}
