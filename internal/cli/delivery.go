package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/cobra"

	"github.com/bluevia-go/bluevia"
	"github.com/bluevia-go/bluevia/internal/cli/ui"
	"github.com/bluevia-go/bluevia/internal/config"
	"github.com/bluevia-go/bluevia/internal/sms"
	"github.com/bluevia-go/bluevia/internal/store"
)

// addSendFlags registers the flags shared by `sms send` and `mms send`.
func addSendFlags(cmd *cobra.Command) {
	cmd.Flags().String("from", "", "Sender address (partner certificate only)")
	cmd.Flags().String("callback-url", "", "URL for delivery status notifications (default: the listener's /delivery_status)")
	cmd.Flags().Bool("no-callback", false, "Do not ask for delivery status notifications")
}

// addStatusFlags registers the flags shared by the status commands.
func addStatusFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("wait", false, "Poll until the status is final")
	cmd.Flags().Duration("timeout", 5*time.Minute, "How long --wait polls before giving up")
}

// parseDestination validates a destination argument against the allowed
// countries. Aliases are not checked.
func parseDestination(cfg *config.Config, input string) (string, error) {
	to, err := sms.ParseDestination(input)
	if err != nil {
		return "", fmt.Errorf("invalid destination %q: %w", input, err)
	}
	if sms.IsPhoneNumber(to) && !sms.IsAllowedCountry(to, cfg.API.AllowedCountries) {
		return "", errors.New(ui.FormatError(
			fmt.Sprintf("destination %q is outside the allowed countries %v", input, cfg.API.AllowedCountries),
			"bluevia config set api.allowed_countries "+sms.PhoneCountry(to),
		))
	}
	return to, nil
}

// callbackURL picks the delivery notification URL for a send command. The
// listener's URL is only used when a public address for it is configured.
func callbackURL(cmd *cobra.Command, cfg *config.Config) string {
	if off, _ := cmd.Flags().GetBool("no-callback"); off {
		return ""
	}
	if u, _ := cmd.Flags().GetString("callback-url"); u != "" {
		return u
	}
	if cfg.Server.PublicURL != "" || cfg.Server.TLSDomain != "" {
		return cfg.DeliveryCallbackURL()
	}
	return ""
}

// recordMessages writes messages to the store. Store failures are logged:
// the API call they follow has already succeeded.
func recordMessages(ctx context.Context, cfg *config.Config, logger *slog.Logger, sent bool, msgs ...*store.Message) {
	if len(msgs) == 0 {
		return
	}
	st, err := openStore(ctx, cfg)
	if err != nil {
		logger.Warn("message not recorded", "error", err)
		return
	}
	if st == nil {
		return
	}
	defer st.Close()

	for _, m := range msgs {
		record := st.RecordReceived
		if sent {
			record = st.RecordSent
		}
		if err := record(ctx, m); err != nil {
			logger.Warn("message not recorded", "message_id", m.ID, "error", err)
		}
	}
}

func updateRecordedStatus(ctx context.Context, cfg *config.Config, logger *slog.Logger, ds *bluevia.DeliveryStatus) {
	st, err := openStore(ctx, cfg)
	if err != nil || st == nil {
		if err != nil {
			logger.Warn("delivery status not recorded", "error", err)
		}
		return
	}
	defer st.Close()
	if _, err := st.UpdateDeliveryStatus(ctx, ds.ID, ds.Status); err != nil && !errors.Is(err, store.ErrNotFound) {
		logger.Warn("delivery status not recorded", "message_id", ds.ID, "error", err)
	}
}

type statusFunc func(ctx context.Context, id string) (*bluevia.DeliveryStatus, error)

var errNotFinal = errors.New("delivery status is not final")

// waitForFinal polls fetch with exponential backoff until the status is
// final, the timeout passes or the API rejects the request.
func waitForFinal(ctx context.Context, fetch statusFunc, id string, timeout time.Duration, initial time.Duration) (*bluevia.DeliveryStatus, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = timeout

	var last *bluevia.DeliveryStatus
	op := func() error {
		ds, err := fetch(ctx, id)
		if err != nil {
			var apiErr *bluevia.APIError
			if errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError {
				return backoff.Permanent(err)
			}
			return err
		}
		last = ds
		if !ds.Final() {
			return errNotFinal
		}
		return nil
	}
	err := backoff.Retry(op, backoff.WithContext(b, ctx))
	if errors.Is(err, errNotFinal) {
		return last, fmt.Errorf("still %q after %s", last.Status, timeout)
	}
	return last, err
}

// runDeliveryStatus implements `sms status` and `mms status`.
func runDeliveryStatus(cmd *cobra.Command, id string, fetchFor func(*bluevia.Client) statusFunc) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Logging.Level, cfg.Logging.Format)
	client, err := newAPIClient(cfg, logger, true)
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)
	fetch := fetchFor(client)

	var ds *bluevia.DeliveryStatus
	if wait, _ := cmd.Flags().GetBool("wait"); wait {
		timeout, _ := cmd.Flags().GetDuration("timeout")
		sp := ui.NewStatusSpinner(os.Stderr, !colorEnabledFd(os.Stderr.Fd()))
		sp.Start(fmt.Sprintf("Waiting for delivery of %s...", id))
		watched := func(ctx context.Context, id string) (*bluevia.DeliveryStatus, error) {
			ds, err := fetch(ctx, id)
			if err == nil {
				sp.Update(fmt.Sprintf("%s is %s, waiting...", id, ds.Status))
			}
			return ds, err
		}
		ds, err = waitForFinal(ctx, watched, id, timeout, 2*time.Second)
		if err != nil {
			sp.Fail(err.Error())
		} else {
			sp.Done(fmt.Sprintf("%s is %s", id, ds.Status))
		}
	} else {
		ds, err = fetch(ctx, id)
	}
	if ds != nil {
		if ds.ID == "" {
			ds.ID = id
		}
		updateRecordedStatus(ctx, cfg, logger, ds)
	}
	if err != nil {
		return err
	}

	switch outputFormat(cmd) {
	case "json":
		return json.NewEncoder(os.Stdout).Encode(ds)
	case "csv":
		return writeCSVStdout([]string{"ID", "Address", "Status"}, [][]string{{ds.ID, ds.Address, ds.Status}})
	}
	status := statusColor(ds.Status, colorEnabledFd(os.Stdout.Fd()))
	if ds.Final() {
		status += " (final)"
	}
	fmt.Printf("%s  %s  %s\n", ds.ID, ds.Address, status)
	return nil
}
