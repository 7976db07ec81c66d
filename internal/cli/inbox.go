package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bluevia-go/bluevia/internal/forward"
	"github.com/bluevia-go/bluevia/internal/watch"
)

var inboxCmd = &cobra.Command{
	Use:   "inbox",
	Short: "Poll both inboxes and forward what arrives",
}

var inboxPollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Poll the SMS and MMS inboxes once",
	RunE:  runInboxPoll,
}

var inboxWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll the inboxes on a cron schedule until interrupted",
	Long: `Poll the SMS and MMS inboxes on every tick of a cron schedule and forward
each message to the configured sinks (log, store, email, S3, SNS, webhook).
Use this when BlueVia cannot reach a listener.

  bluevia inbox watch --schedule "*/5 * * * *"`,
	RunE: runInboxWatch,
}

func init() {
	inboxWatchCmd.Flags().String("schedule", "", "Cron expression (default: watch.schedule)")

	inboxCmd.AddCommand(inboxPollCmd)
	inboxCmd.AddCommand(inboxWatchCmd)
}

// inboxWatcher holds what poll and watch share.
type inboxWatcher struct {
	watcher    *watch.Watcher
	dispatcher *forward.Dispatcher
	close      func()
}

func newInboxWatcher(cmd *cobra.Command, schedule string) (*inboxWatcher, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if schedule == "" {
		schedule = cfg.Watch.Schedule
	}
	logger := newLogger(cfg.Logging.Level, cfg.Logging.Format)
	client, err := newAPIClient(cfg, logger, false)
	if err != nil {
		return nil, err
	}

	ctx := commandContext(cmd)
	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	sinks, err := buildSinks(ctx, cfg, st, logger)
	if err != nil {
		if st != nil {
			st.Close()
		}
		return nil, err
	}
	dispatcher := forward.NewDispatcher(logger, sinks...)

	w, err := watch.New(client, dispatcher, schedule, logger)
	if err != nil {
		dispatcher.Close()
		if st != nil {
			st.Close()
		}
		return nil, err
	}
	return &inboxWatcher{
		watcher:    w,
		dispatcher: dispatcher,
		close: func() {
			dispatcher.Close()
			if st != nil {
				st.Close()
			}
		},
	}, nil
}

func runInboxPoll(cmd *cobra.Command, args []string) error {
	iw, err := newInboxWatcher(cmd, "")
	if err != nil {
		return err
	}
	defer iw.close()

	res, err := iw.watcher.Poll(commandContext(cmd))
	if err != nil {
		return err
	}
	if outputFormat(cmd) == "json" {
		return json.NewEncoder(os.Stdout).Encode(map[string]int{"sms": res.SMS, "mms": res.MMS})
	}
	fmt.Printf("%d sms, %d mms\n", res.SMS, res.MMS)
	return nil
}

func runInboxWatch(cmd *cobra.Command, args []string) error {
	schedule, _ := cmd.Flags().GetString("schedule")
	iw, err := newInboxWatcher(cmd, schedule)
	if err != nil {
		return err
	}
	defer iw.close()

	ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return iw.watcher.Run(ctx)
}
