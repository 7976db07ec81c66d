package cli

import (
	"context"
	"log/slog"

	"github.com/bluevia-go/bluevia/internal/config"
	"github.com/bluevia-go/bluevia/internal/forward"
	"github.com/bluevia-go/bluevia/internal/store"
)

// buildSinks returns the forward sinks enabled in configuration. The log sink
// is always first; st may be nil when the store is disabled.
func buildSinks(ctx context.Context, cfg *config.Config, st *store.Store, logger *slog.Logger) ([]forward.Sink, error) {
	sinks := []forward.Sink{forward.NewLogSink(logger)}
	if st != nil {
		sinks = append(sinks, forward.NewStoreSink(st, logger))
	}

	fw := cfg.Forward
	if fw.Email.Enabled {
		s, err := forward.NewMailSink(forward.MailConfig{
			Host:       fw.Email.Host,
			Port:       fw.Email.Port,
			Username:   fw.Email.Username,
			Password:   fw.Email.Password,
			AuthMethod: fw.Email.AuthMethod,
			TLS:        fw.Email.TLS,
			From:       fw.Email.From,
			To:         fw.Email.To,
		})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if fw.S3.Enabled {
		s, err := forward.NewObjectSink(forward.ObjectConfig{
			Endpoint:  fw.S3.Endpoint,
			Bucket:    fw.S3.Bucket,
			Region:    fw.S3.Region,
			AccessKey: fw.S3.AccessKey,
			SecretKey: fw.S3.SecretKey,
			UseSSL:    fw.S3.UseSSL,
			Prefix:    fw.S3.Prefix,
		})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if fw.SNS.Enabled {
		s, err := forward.NewTopicSink(ctx, fw.SNS.TopicARN, fw.SNS.Region)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if fw.Webhook.Enabled {
		sinks = append(sinks, forward.NewWebhookSink(fw.Webhook.URL, fw.Webhook.Secret))
	}

	names := make([]string, len(sinks))
	for i, s := range sinks {
		names[i] = s.Name()
	}
	logger.Debug("forward sinks", "sinks", names)
	return sinks, nil
}
