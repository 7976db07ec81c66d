package forward

import (
	"context"
	"encoding/json"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// Publisher is the part of *sns.Client used by TopicSink.
type Publisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// TopicSink publishes every event as JSON to an SNS topic. Attachment bytes
// are left out to stay under the SNS message size limit.
type TopicSink struct {
	client   Publisher
	topicARN string
}

// NewTopicSink loads the default AWS configuration for region (empty uses the
// environment's region) and publishes to topicARN.
func NewTopicSink(ctx context.Context, topicARN, region string) (*TopicSink, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sns: loading AWS config: %w", err)
	}
	return newTopicSink(sns.NewFromConfig(cfg), topicARN), nil
}

func newTopicSink(client Publisher, topicARN string) *TopicSink {
	return &TopicSink{client: client, topicARN: topicARN}
}

func (s *TopicSink) Name() string { return "sns" }

func (s *TopicSink) Forward(ctx context.Context, e *Event) error {
	body, err := json.Marshal(e.WithoutAttachmentData())
	if err != nil {
		return fmt.Errorf("sns: encoding event: %w", err)
	}
	message := string(body)
	kind := e.Kind
	stringType := "String"
	_, err = s.client.Publish(ctx, &sns.PublishInput{
		TopicArn: &s.topicARN,
		Message:  &message,
		MessageAttributes: map[string]types.MessageAttributeValue{
			"kind": {DataType: &stringType, StringValue: &kind},
		},
	})
	if err != nil {
		return fmt.Errorf("sns: publishing %s: %w", e.Kind, err)
	}
	return nil
}
